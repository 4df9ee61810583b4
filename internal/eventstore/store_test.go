package eventstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/canvaslabs/canvas-voice/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T, cfg config.EventStoreConfig) *Store {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "events.db")
	}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndList(t *testing.T) {
	s := openTestStore(t, config.EventStoreConfig{RetentionMode: "session"})
	ctx := context.Background()

	if err := s.BeginSession(ctx, "sess-1", "en", "models/test"); err != nil {
		t.Fatalf("begin session: %v", err)
	}
	events := []Event{
		{SessionID: "sess-1", Type: TypeSessionStart},
		{SessionID: "sess-1", Type: TypeToolCall, Tool: "control_scroll", Payload: []byte(`{"direction":"DOWN"}`)},
		{SessionID: "sess-1", Type: TypeToolResult, Tool: "control_scroll"},
	}
	for i, evt := range events {
		evt.CreatedAt = time.Date(2026, 1, 1, 12, 0, i, 0, time.UTC)
		if err := s.Append(ctx, evt); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	got, err := s.ListSessionEvents(ctx, "sess-1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[0].Type != TypeSessionStart || got[2].Type != TypeToolResult {
		t.Fatalf("unexpected ordering: %q then %q", got[0].Type, got[2].Type)
	}
	if got[1].Tool != "control_scroll" {
		t.Fatalf("expected tool name on call event, got %q", got[1].Tool)
	}
}

func TestBeginSessionIdempotent(t *testing.T) {
	s := openTestStore(t, config.EventStoreConfig{RetentionMode: "session"})
	ctx := context.Background()

	if err := s.BeginSession(ctx, "sess-1", "en", "models/a"); err != nil {
		t.Fatalf("first begin: %v", err)
	}
	if err := s.BeginSession(ctx, "sess-1", "hu", "models/b"); err != nil {
		t.Fatalf("second begin: %v", err)
	}
}

func TestEphemeralModeIsNoop(t *testing.T) {
	s, err := Open(context.Background(), config.EventStoreConfig{RetentionMode: "ephemeral"}, newLogger())
	if err != nil {
		t.Fatalf("open ephemeral store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.BeginSession(ctx, "sess-1", "en", "m"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := s.Append(ctx, Event{SessionID: "sess-1", Type: TypeAnnouncement}); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := s.ListSessionEvents(ctx, "sess-1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no events in ephemeral mode, got %d", len(got))
	}
}

func TestPruneByAge(t *testing.T) {
	s := openTestStore(t, config.EventStoreConfig{RetentionMode: "session", RetentionDays: 7})
	ctx := context.Background()

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	s.clock = func() time.Time { return now }

	if err := s.BeginSession(ctx, "old", "en", "m"); err != nil {
		t.Fatalf("begin old: %v", err)
	}
	old := Event{SessionID: "old", Type: TypeToolCall, CreatedAt: now.Add(-30 * 24 * time.Hour)}
	if err := s.Append(ctx, old); err != nil {
		t.Fatalf("append old: %v", err)
	}
	fresh := Event{SessionID: "old", Type: TypeToolResult, CreatedAt: now.Add(-time.Hour)}
	if err := s.Append(ctx, fresh); err != nil {
		t.Fatalf("append fresh: %v", err)
	}

	if err := s.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	got, err := s.ListSessionEvents(ctx, "old", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Type != TypeToolResult {
		t.Fatalf("expected only the fresh event to survive, got %d", len(got))
	}
}
