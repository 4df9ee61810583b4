package tools

import "strings"

// spoken language names mapped to the ISO codes the host understands. The
// model is instructed to do this mapping itself; normalizing here guards
// against it passing a full name anyway.
var languageAliases = map[string]string{
	"en":        "en",
	"english":   "en",
	"angol":     "en",
	"hu":        "hu",
	"hungarian": "hu",
	"magyar":    "hu",
}

// NormalizeLanguage resolves a spoken or written language reference to a
// lower-case ISO code. Unknown two-letter inputs pass through lowered;
// anything else is rejected.
func NormalizeLanguage(value string) (string, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return "", false
	}
	if code, ok := languageAliases[v]; ok {
		return code, true
	}
	if len(v) == 2 {
		return v, true
	}
	return "", false
}
