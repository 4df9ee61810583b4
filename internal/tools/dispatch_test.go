package tools

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestDispatchUnknownTool(t *testing.T) {
	d := NewDispatcher(newLogger())
	res := d.Dispatch(context.Background(), "does_not_exist", nil)
	if res.OK {
		t.Fatal("unknown tool must fail")
	}
	if res.Message == "" {
		t.Fatal("failure must carry a message")
	}
}

func TestDispatchPanicBecomesFailure(t *testing.T) {
	d := NewDispatcher(newLogger())
	d.Register("boom", func(context.Context, Args) Result {
		panic("handler bug")
	})
	res := d.Dispatch(context.Background(), "boom", Args{})
	if res.OK {
		t.Fatal("panicking handler must yield a failure result")
	}
}

func TestDispatchNilArgs(t *testing.T) {
	d := NewDispatcher(newLogger())
	d.Register("echo", func(_ context.Context, args Args) Result {
		if args == nil {
			t.Fatal("handler must never see nil args")
		}
		return Ok("done")
	})
	if res := d.Dispatch(context.Background(), "echo", nil); !res.OK {
		t.Fatalf("unexpected failure: %s", res.Message)
	}
}

func TestArgsAccessors(t *testing.T) {
	args := Args{
		"s":      "  hello  ",
		"n":      float64(3),
		"quoted": "7",
		"b":      true,
		"bstr":   "true",
	}
	if got := args.String("s"); got != "hello" {
		t.Fatalf("String: %q", got)
	}
	if got := args.Int("n", -1); got != 3 {
		t.Fatalf("Int float64: %d", got)
	}
	if got := args.Int("quoted", -1); got != 7 {
		t.Fatalf("Int string: %d", got)
	}
	if got := args.Int("missing", 42); got != 42 {
		t.Fatalf("Int fallback: %d", got)
	}
	if !args.Bool("b") || !args.Bool("bstr") {
		t.Fatal("Bool accessors failed")
	}
	if args.Bool("missing") {
		t.Fatal("missing bool must be false")
	}
	if !args.Has("s") || args.Has("nope") {
		t.Fatal("Has failed")
	}
}

func TestCatalogCoversAllNames(t *testing.T) {
	want := []string{
		NameGetSystemState, NameControlScroll, NameNavigateToPosition,
		NameAnalyzeViewport, NamePerformElementAction, NameManageUIState,
		NameTriggerNativeGeneration, NamePerformItemAction,
		NameApplySettingsGlobally, NameStartProcessingQueue, NameAnalyzeImages,
		NameManageQueueActions, NameManageCompositeSettings,
		NameRequestVisualContext, NameReadDocumentation, NamePlaybackControl,
		NameCloseAssistant,
	}
	catalog := Catalog()
	byName := make(map[string]Declaration, len(catalog))
	for _, decl := range catalog {
		byName[decl.Name] = decl
	}
	for _, name := range want {
		decl, ok := byName[name]
		if !ok {
			t.Fatalf("catalog missing %s", name)
		}
		if decl.Description == "" {
			t.Fatalf("%s has no description", name)
		}
	}
	if len(catalog) != len(want) {
		t.Fatalf("catalog has %d entries, want %d", len(catalog), len(want))
	}
}

func TestCatalogSchemasAreFlat(t *testing.T) {
	for _, decl := range Catalog() {
		if decl.Parameters == nil {
			continue
		}
		if decl.Parameters.Type != "object" {
			t.Fatalf("%s: parameter schema must be an object", decl.Name)
		}
		for name, prop := range decl.Parameters.Properties {
			switch prop.Type {
			case "string", "number", "boolean":
			default:
				t.Fatalf("%s.%s: nested or unknown type %q", decl.Name, name, prop.Type)
			}
		}
	}
}

func TestNormalizeLanguage(t *testing.T) {
	cases := map[string]string{
		"Hungarian": "hu",
		"Magyar":    "hu",
		"English":   "en",
		"Angol":     "en",
		"hu":        "hu",
		"EN":        "en",
		"de":        "de",
	}
	for in, want := range cases {
		got, ok := NormalizeLanguage(in)
		if !ok || got != want {
			t.Fatalf("NormalizeLanguage(%q) = %q,%v want %q", in, got, ok, want)
		}
	}
	for _, bad := range []string{"", "Klingon", "  "} {
		if _, ok := NormalizeLanguage(bad); ok {
			t.Fatalf("NormalizeLanguage(%q) should fail", bad)
		}
	}
}
