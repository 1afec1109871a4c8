package transform

import (
	"context"
	"log/slog"
	"strings"
	"unicode"
)

// glmAliases are catalog names the web UI historically exposed for the
// default vision model.
var glmAliases = map[string]bool{
	"GLM-4":   true,
	"GLM-4.5": true,
	"GLM4":    true,
	"GLM45":   true,
}

// NormalizeModel maps an inbound model name onto the upstream catalog.
// Anthropic-dialect names (claude-*) and the legacy GLM aliases collapse to
// the configured default model; everything else passes through for the
// upstream to accept or reject.
func NormalizeModel(ctx context.Context, name, defaultModel string) string {
	switch {
	case name == "":
		return defaultModel
	case strings.HasPrefix(strings.ToLower(name), "claude-"):
		slog.DebugContext(ctx, "mapping dialect model to upstream default", "model", name, "default", defaultModel)
		return defaultModel
	case glmAliases[strings.ToUpper(name)]:
		return defaultModel
	default:
		return name
	}
}

// DisplayName picks the human-readable name for a catalog entry. IDs that
// already look like product names (GLM/Z prefixes) win; otherwise a name
// not starting with an English letter is rebuilt from the ID.
func DisplayName(id, name string) string {
	if strings.HasPrefix(id, "GLM") || strings.HasPrefix(id, "Z") {
		return id
	}
	if name == "" || !isEnglishLetter(rune(name[0])) {
		return FormatModelName(id)
	}
	return name
}

// FormatModelName renders a model ID as a display name: the leading part
// uppercased, numeric parts kept, alphabetic parts capitalized.
func FormatModelName(name string) string {
	if name == "" {
		return ""
	}

	parts := strings.Split(name, "-")
	formatted := make([]string, len(parts))
	formatted[0] = strings.ToUpper(parts[0])
	for i, p := range parts[1:] {
		switch {
		case p == "":
			formatted[i+1] = ""
		case isDigits(p):
			formatted[i+1] = p
		case strings.ContainsFunc(p, unicode.IsLetter):
			formatted[i+1] = capitalize(p)
		default:
			formatted[i+1] = p
		}
	}
	return strings.Join(formatted, "-")
}

func isEnglishLetter(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func capitalize(s string) string {
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
