package viewport

import (
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/canvaslabs/canvas-voice/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testRegistry() *Registry {
	r := NewRegistry(newLogger())
	r.Register(protocol.ElementRegistration{
		ID: "img-1", Type: "image",
		Rect:       protocol.Rect{Top: 100, Left: 0, Width: 200, Height: 200},
		Attributes: map[string]string{"status": "done"},
	})
	r.Register(protocol.ElementRegistration{
		ID: "btn-generate", Type: "button",
		Rect:       protocol.Rect{Top: 350, Left: 20, Width: 120, Height: 40},
		Attributes: map[string]string{"aria-label": "Generate images"},
	})
	r.Register(protocol.ElementRegistration{
		ID: "input-prompt", Type: "input",
		Rect:       protocol.Rect{Top: 400, Left: 20, Width: 400, Height: 60},
		Attributes: map[string]string{"placeholder": "Describe your image", "value": "sunset"},
	})
	r.Register(protocol.ElementRegistration{
		ID: "img-offscreen", Type: "image",
		Rect: protocol.Rect{Top: 2000, Left: 0, Width: 200, Height: 200},
	})
	r.SetWindow(protocol.ScrollState{OffsetPX: 0, ViewportHeight: 800, DocumentHeight: 3000})
	return r
}

func TestAnalyzeFiltersToWindow(t *testing.T) {
	r := testRegistry()
	visible := r.Analyze()
	if len(visible) != 3 {
		t.Fatalf("expected 3 visible elements, got %d", len(visible))
	}
	for _, el := range visible {
		if el.ID == "img-offscreen" {
			t.Fatal("offscreen element must be filtered out")
		}
	}
}

func TestAnalyzeIdempotent(t *testing.T) {
	r := testRegistry()
	first := r.Analyze()
	second := r.Analyze()
	if !reflect.DeepEqual(first, second) {
		t.Fatal("repeated analysis with no change must yield equal results")
	}
}

func TestAnalyzeStableOrder(t *testing.T) {
	r := testRegistry()
	visible := r.Analyze()
	order := []string{"img-1", "btn-generate", "input-prompt"}
	for i, want := range order {
		if visible[i].ID != want {
			t.Fatalf("position %d: got %s want %s", i, visible[i].ID, want)
		}
	}
}

func TestScrolledWindow(t *testing.T) {
	r := testRegistry()
	r.SetWindow(protocol.ScrollState{OffsetPX: 1900, ViewportHeight: 800, DocumentHeight: 3000})
	visible := r.Analyze()
	if len(visible) != 1 || visible[0].ID != "img-offscreen" {
		t.Fatalf("expected only the far element visible, got %v", visible)
	}
}

func TestCounts(t *testing.T) {
	r := testRegistry()
	counts := r.Counts()
	if counts["image"] != 1 || counts["button"] != 1 || counts["input"] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestLookupByIndexAndID(t *testing.T) {
	r := testRegistry()
	el, ok := r.Lookup(1, "")
	if !ok || el.ID != "btn-generate" {
		t.Fatalf("index lookup failed: %v %v", el, ok)
	}
	el, ok = r.Lookup(-1, "input-prompt")
	if !ok || el.Type != "input" {
		t.Fatalf("id lookup failed: %v %v", el, ok)
	}
	if _, ok := r.Lookup(99, ""); ok {
		t.Fatal("out-of-range index must fail")
	}
	if _, ok := r.Lookup(-1, "missing"); ok {
		t.Fatal("unknown id must fail")
	}
}

func TestFindByText(t *testing.T) {
	r := testRegistry()
	el, ok := r.FindByText("generate")
	if !ok || el.ID != "btn-generate" {
		t.Fatalf("text search failed: %v %v", el, ok)
	}
	if _, ok := r.FindByText("no such text"); ok {
		t.Fatal("expected miss for absent text")
	}
}

func TestUnregister(t *testing.T) {
	r := testRegistry()
	r.Unregister("img-1")
	if _, ok := r.Lookup(-1, "img-1"); ok {
		t.Fatal("unregistered element must be gone")
	}
	r.Unregister("img-1") // repeat is a no-op
}

func TestEmptyIDDropped(t *testing.T) {
	r := NewRegistry(newLogger())
	r.Register(protocol.ElementRegistration{ID: "  ", Type: "button"})
	if len(r.Analyze()) != 0 {
		t.Fatal("blank id must not register")
	}
}
