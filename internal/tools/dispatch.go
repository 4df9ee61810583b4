package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Args is the raw argument mapping of a tool call.
type Args map[string]any

// String returns a trimmed string argument, or "" when absent.
func (a Args) String(key string) string {
	v, ok := a[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprintf("%v", v)
	}
	return strings.TrimSpace(s)
}

// Int returns an integer argument. JSON numbers arrive as float64; numeric
// strings are accepted too since models frequently quote indices.
func (a Args) Int(key string, fallback int) int {
	v, ok := a[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return parsed
		}
	}
	return fallback
}

// Bool returns a boolean argument, accepting "true"/"false" strings.
func (a Args) Bool(key string) bool {
	v, ok := a[key]
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return err == nil && parsed
	}
	return false
}

// Has reports whether the argument is present at all.
func (a Args) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// Result is the uniform outcome of a tool handler. A failed call is still a
// result; handlers never propagate errors past the dispatcher.
type Result struct {
	OK      bool           `json:"ok"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Ok builds a success result.
func Ok(message string) Result {
	return Result{OK: true, Message: message}
}

// OkData builds a success result with a payload.
func OkData(message string, data map[string]any) Result {
	return Result{OK: true, Message: message, Data: data}
}

// Fail builds a failure result.
func Fail(format string, args ...any) Result {
	return Result{OK: false, Message: fmt.Sprintf(format, args...)}
}

// Handler executes one tool call.
type Handler func(ctx context.Context, args Args) Result

// Dispatcher maps tool names to handlers. Dispatch never panics and never
// returns an error: every call, including unknown names and handler panics,
// produces exactly one Result.
type Dispatcher struct {
	log      *slog.Logger
	mu       sync.RWMutex
	handlers map[string]Handler
	calls    metric.Int64Counter
}

func NewDispatcher(log *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		log:      log.With(slog.String("component", "tool-dispatch")),
		handlers: make(map[string]Handler),
	}
	meter := otel.Meter("github.com/canvaslabs/canvas-voice/tools")
	counter, err := meter.Int64Counter("canvas.tools.calls",
		metric.WithDescription("Tool calls by name and outcome"))
	if err != nil {
		d.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	} else {
		d.calls = counter
	}
	return d
}

// Register binds a handler to a tool name, replacing any previous binding.
func (d *Dispatcher) Register(name string, h Handler) {
	d.mu.Lock()
	d.handlers[name] = h
	d.mu.Unlock()
}

// Names returns the registered tool names.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	return names
}

// Dispatch runs the named handler. Unknown tools and handler panics become
// failure results so one bad call cannot desynchronize the conversation.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args Args) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("tool handler panicked",
				slog.String("tool", name), slog.Any("panic", r))
			result = Fail("internal error executing %s", name)
		}
		d.count(ctx, name, result.OK)
	}()

	d.mu.RLock()
	h, ok := d.handlers[name]
	d.mu.RUnlock()
	if !ok {
		return Fail("unknown tool %q", name)
	}
	if args == nil {
		args = Args{}
	}
	return h(ctx, args)
}

func (d *Dispatcher) count(ctx context.Context, name string, ok bool) {
	if d.calls == nil {
		return
	}
	d.calls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", name),
			attribute.Bool("ok", ok),
		))
}
