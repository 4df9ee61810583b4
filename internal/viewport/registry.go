package viewport

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/canvaslabs/canvas-voice/internal/protocol"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Element is a registered interactive region of the host document.
type Element struct {
	ID         string
	Type       string // image, button, input, modal
	Rect       protocol.Rect
	Attributes map[string]string
}

// Registry tracks interactive UI elements registered by the host application.
// The introspector queries the registry instead of scanning ambient document
// state, which keeps viewport analysis testable without a live renderer.
type Registry struct {
	log *slog.Logger

	mu       sync.RWMutex
	elements map[string]Element
	window   protocol.ScrollState

	meter metric.Meter
}

func NewRegistry(log *slog.Logger) *Registry {
	r := &Registry{
		log:      log.With(slog.String("component", "viewport")),
		elements: make(map[string]Element),
		meter:    otel.Meter("github.com/canvaslabs/canvas-voice/viewport"),
	}
	if err := r.initMetrics(); err != nil {
		r.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	return r
}

func (r *Registry) initMetrics() error {
	gauge, err := r.meter.Int64ObservableGauge("canvas.viewport.elements",
		metric.WithDescription("Number of registered viewport elements"))
	if err != nil {
		return err
	}
	_, err = r.meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		r.mu.RLock()
		n := int64(len(r.elements))
		r.mu.RUnlock()
		obs.ObserveInt64(gauge, n)
		return nil
	}, gauge)
	return err
}

// Register adds or refreshes an element. Registrations with an empty id are
// dropped.
func (r *Registry) Register(reg protocol.ElementRegistration) {
	id := strings.TrimSpace(reg.ID)
	if id == "" {
		return
	}
	r.mu.Lock()
	r.elements[id] = Element{
		ID:         id,
		Type:       normalizeType(reg.Type),
		Rect:       reg.Rect,
		Attributes: reg.Attributes,
	}
	r.mu.Unlock()
}

// Unregister removes an element by id. Unknown ids are a no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	delete(r.elements, id)
	r.mu.Unlock()
}

// SetWindow updates the visible scroll window used by Analyze.
func (r *Registry) SetWindow(window protocol.ScrollState) {
	r.mu.Lock()
	r.window = window
	r.mu.Unlock()
}

// Window returns the current scroll window.
func (r *Registry) Window() protocol.ScrollState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.window
}

// Analyze returns the elements intersecting the current visible window in a
// stable order (top, then left, then id). Repeated calls with no registry
// change yield equal results.
func (r *Registry) Analyze() []Element {
	r.mu.RLock()
	window := r.window
	visible := make([]Element, 0, len(r.elements))
	for _, el := range r.elements {
		if intersects(el.Rect, window) {
			visible = append(visible, el)
		}
	}
	r.mu.RUnlock()

	sort.Slice(visible, func(i, j int) bool {
		if visible[i].Rect.Top != visible[j].Rect.Top {
			return visible[i].Rect.Top < visible[j].Rect.Top
		}
		if visible[i].Rect.Left != visible[j].Rect.Left {
			return visible[i].Rect.Left < visible[j].Rect.Left
		}
		return visible[i].ID < visible[j].ID
	})
	return visible
}

// Counts reports visible elements per type.
func (r *Registry) Counts() map[string]int {
	counts := make(map[string]int)
	for _, el := range r.Analyze() {
		counts[el.Type]++
	}
	return counts
}

// Lookup finds a visible element by index into the Analyze order or by id.
// Index takes precedence when >= 0.
func (r *Registry) Lookup(index int, id string) (Element, bool) {
	visible := r.Analyze()
	if index >= 0 {
		if index < len(visible) {
			return visible[index], true
		}
		return Element{}, false
	}
	for _, el := range visible {
		if el.ID == id {
			return el, true
		}
	}
	return Element{}, false
}

// FindByText returns the first visible element whose attributes contain the
// given text, case-insensitive. Used as the navigation fallback when direct
// lookup fails.
func (r *Registry) FindByText(text string) (Element, bool) {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return Element{}, false
	}
	for _, el := range r.Analyze() {
		for _, v := range el.Attributes {
			if strings.Contains(strings.ToLower(v), needle) {
				return el, true
			}
		}
	}
	return Element{}, false
}

func intersects(rect protocol.Rect, window protocol.ScrollState) bool {
	if window.ViewportHeight <= 0 {
		// No window reported yet; treat everything as visible.
		return true
	}
	top := window.OffsetPX
	bottom := window.OffsetPX + window.ViewportHeight
	return rect.Top < bottom && rect.Top+rect.Height > top
}

func normalizeType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "image", "button", "input", "modal":
		return strings.ToLower(strings.TrimSpace(t))
	default:
		return "button"
	}
}
