package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/canvaslabs/canvas-voice/internal/tools"
	"github.com/gorilla/websocket"
)

// Config describes one realtime connection.
type Config struct {
	Endpoint          string
	APIKey            string
	Model             string
	SystemInstruction string
	Tools             []ToolSet
	ConnectTimeout    time.Duration
}

// ToolSet is an alias kept narrow so callers hand over catalog declarations
// without importing wire types.
type ToolSet = toolDeclaration

// NewToolSet wraps catalog declarations for the setup frame.
func NewToolSet(decls []tools.Declaration) ToolSet {
	return ToolSet{FunctionDeclarations: decls}
}

// Conn is an open realtime session. Writes are safe for concurrent use;
// Messages delivers decoded server frames until the connection ends, after
// which the channel is closed and Err reports the cause (nil on clean close).
type Conn interface {
	SendMedia(chunks ...MediaChunk) error
	SendTextEvent(text string) error
	SendToolResponses(resps []FunctionResponse) error
	Messages() <-chan ServerMessage
	Err() error
	Close() error
}

// Dialer opens realtime connections. The engine depends on this boundary so
// tests can substitute an in-memory endpoint.
type Dialer interface {
	Dial(ctx context.Context, cfg Config) (Conn, error)
}

// WebsocketDialer dials the production endpoint over a websocket.
type WebsocketDialer struct {
	Log *slog.Logger
}

func (d WebsocketDialer) Dial(ctx context.Context, cfg Config) (Conn, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("live endpoint not configured")
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse live endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", cfg.APIKey)
	u.RawQuery = q.Encode()

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	ws, resp, err := dialer.DialContext(dialCtx, u.String(), http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial live endpoint: %w (status %s)", err, resp.Status)
		}
		return nil, fmt.Errorf("dial live endpoint: %w", err)
	}

	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	c := &wsConn{
		ws:       ws,
		log:      log.With(slog.String("component", "live-client")),
		messages: make(chan ServerMessage, 16),
		done:     make(chan struct{}),
	}

	setup := clientMessage{Setup: &setupPayload{
		Model: cfg.Model,
		Tools: cfg.Tools,
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
	}}
	if cfg.SystemInstruction != "" {
		setup.Setup.SystemInstruction = &content{
			Parts: []part{{Text: cfg.SystemInstruction}},
		}
	}
	if err := c.write(setup); err != nil {
		ws.Close()
		return nil, fmt.Errorf("send setup: %w", err)
	}

	// The endpoint acknowledges setup before anything else; waiting here
	// keeps the connecting state honest.
	var first ServerMessage
	if err := c.readInto(&first, timeout); err != nil {
		ws.Close()
		return nil, fmt.Errorf("await setup ack: %w", err)
	}
	if first.SetupComplete == nil {
		ws.Close()
		return nil, errors.New("endpoint did not acknowledge setup")
	}

	go c.readLoop()
	return c, nil
}

type wsConn struct {
	ws  *websocket.Conn
	log *slog.Logger

	writeMu sync.Mutex

	messages  chan ServerMessage
	done      chan struct{}
	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

func (c *wsConn) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *wsConn) readInto(msg *ServerMessage, timeout time.Duration) error {
	_ = c.ws.SetReadDeadline(time.Now().Add(timeout))
	defer c.ws.SetReadDeadline(time.Time{})
	return c.ws.ReadJSON(msg)
}

func (c *wsConn) readLoop() {
	defer close(c.messages)
	for {
		var msg ServerMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			c.setErr(err)
			return
		}
		if msg.GoAway != nil {
			return
		}
		// Close must unblock a backlogged delivery, not just the read.
		select {
		case c.messages <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) SendMedia(chunks ...MediaChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return c.write(clientMessage{RealtimeInput: &realtimeInput{MediaChunks: chunks}})
}

func (c *wsConn) SendTextEvent(text string) error {
	return c.write(clientMessage{ClientContent: &clientContent{
		Turns:        []content{{Role: "user", Parts: []part{{Text: text}}}},
		TurnComplete: false,
	}})
}

func (c *wsConn) SendToolResponses(resps []FunctionResponse) error {
	if len(resps) == 0 {
		return nil
	}
	return c.write(clientMessage{ToolResponse: &toolResponsePayload{FunctionResponses: resps}})
}

func (c *wsConn) Messages() <-chan ServerMessage { return c.messages }

func (c *wsConn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *wsConn) setErr(err error) {
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
