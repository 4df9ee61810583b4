// Package report assembles the textual application snapshot injected into the
// model's context at session open and on demand via get_system_state.
package report

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/canvaslabs/canvas-voice/internal/protocol"
)

// Snapshot is everything the generator needs. All fields are plain data so a
// report can be produced synchronously at any time.
type Snapshot struct {
	Language      string
	Scroll        protocol.ScrollState
	ElementCounts map[string]int
	Modals        protocol.ModalsState
	InputText     string
	Generating    bool
	QueueLength   int
	BatchCounter  int
}

const maxInputExcerpt = 120

// Generate renders a deterministic, model-readable state block.
func Generate(s Snapshot) string {
	var b strings.Builder
	b.WriteString("APPLICATION STATE\n")
	fmt.Fprintf(&b, "language: %s\n", valueOr(s.Language, "en"))
	fmt.Fprintf(&b, "scroll: %.0fpx (%.0f%% of page)\n", s.Scroll.OffsetPX, s.Scroll.Percent())
	fmt.Fprintf(&b, "visible elements: images=%d buttons=%d inputs=%d modals=%d\n",
		s.ElementCounts["image"], s.ElementCounts["button"],
		s.ElementCounts["input"], s.ElementCounts["modal"])
	fmt.Fprintf(&b, "modals: composite=%t ocr=%t guide=%t language_menu=%t\n",
		s.Modals.Composite, s.Modals.OCR, s.Modals.Guide, s.Modals.LanguageMenu)
	fmt.Fprintf(&b, "prompt input: %q\n", truncate(s.InputText, maxInputExcerpt))
	fmt.Fprintf(&b, "generation in progress: %t\n", s.Generating)
	fmt.Fprintf(&b, "image queue length: %d\n", s.QueueLength)
	fmt.Fprintf(&b, "completed batches: %d\n", s.BatchCounter)
	return b.String()
}

// ActiveView names the view the user is currently looking at, for the
// proactive context-sync event pushed when modal state changes.
func ActiveView(m protocol.ModalsState) string {
	switch {
	case m.Composite:
		return "composite editor"
	case m.OCR:
		return "ocr panel"
	case m.Guide:
		return "documentation"
	case m.LanguageMenu:
		return "language menu"
	default:
		return "main gallery"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Cut on a rune boundary so multibyte prompt text survives intact.
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}

func valueOr(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
