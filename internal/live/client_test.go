package live

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// testServer upgrades one connection, acknowledges setup and then floods the
// client with more frames than its delivery buffer holds.
func testServer(t *testing.T, flood int) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		var setup map[string]any
		if err := ws.ReadJSON(&setup); err != nil {
			return
		}
		if err := ws.WriteJSON(map[string]any{"setupComplete": map[string]any{}}); err != nil {
			return
		}
		for i := 0; i < flood; i++ {
			if err := ws.WriteJSON(map[string]any{"serverContent": map[string]any{"turnComplete": true}}); err != nil {
				return
			}
		}
		// Hold the socket open until the client closes it.
		_, _, _ = ws.ReadMessage()
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDialPerformsSetupHandshake(t *testing.T) {
	srv := testServer(t, 1)
	defer srv.Close()

	conn, err := WebsocketDialer{}.Dial(context.Background(), Config{
		Endpoint:       wsURL(srv),
		APIKey:         "k",
		Model:          "models/test",
		ConnectTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	select {
	case msg := <-conn.Messages():
		if msg.ServerContent == nil {
			t.Fatalf("expected a server content frame, got %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame delivered after setup")
	}
}

func TestCloseUnblocksBackloggedReadLoop(t *testing.T) {
	baseline := runtime.NumGoroutine()

	srv := testServer(t, 40)
	conn, err := WebsocketDialer{}.Dial(context.Background(), Config{
		Endpoint:       wsURL(srv),
		APIKey:         "k",
		Model:          "models/test",
		ConnectTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	// Nobody drains Messages, so the read loop fills its buffer and parks
	// on the next delivery. Close must unblock it anyway.
	time.Sleep(50 * time.Millisecond)
	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	srv.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if runtime.NumGoroutine() <= baseline {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("read loop leaked after close: %d goroutines, baseline %d",
		runtime.NumGoroutine(), baseline)
}
