package transform

import (
	"strings"
	"time"

	"github.com/Baozhi888/Z.ai2api/internal/zai"
)

const (
	systemPrefix = "[SYSTEM] "
	systemSuffix = "\n\n[USER PROMPT FOLLOWS]\n"
)

// CoerceSystem folds system messages into the user prompt. All system
// contents are concatenated, wrapped with the [SYSTEM] prefix and the
// prompt-follows suffix, and merged onto the next user message; the
// originals are removed. The upstream has no system role, so without this
// the instructions would be dropped silently.
//
// When the conversation has no leading user message with plain string
// content (multimodal arrays included), the wrapped block becomes its own
// user message instead.
func CoerceSystem(messages []zai.Message) []zai.Message {
	var systems []string
	rest := make([]zai.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == "system" {
			if text, ok := msg.Content.(string); ok {
				systems = append(systems, text)
			}
			continue
		}
		rest = append(rest, msg)
	}
	if len(systems) == 0 {
		return rest
	}

	block := systemPrefix + strings.Join(systems, "\n\n") + systemSuffix

	if len(rest) > 0 && rest[0].Role == "user" {
		if text, ok := rest[0].Content.(string); ok {
			rest[0].Content = block + text
			return rest
		}
	}
	return append([]zai.Message{{Role: "user", Content: block}}, rest...)
}

// ExpandMessages expands dynamic placeholders in every string-typed message
// content. Content-part arrays pass through untouched; they belong to the
// multimodal passthrough and the upstream expands its own variables there.
func ExpandMessages(messages []zai.Message, now time.Time, user UserFields) []zai.Message {
	out := make([]zai.Message, len(messages))
	for i, msg := range messages {
		if text, ok := msg.Content.(string); ok {
			msg.Content = ExpandVariables(text, now, user)
		}
		out[i] = msg
	}
	return out
}

// ContainsMultimodal reports whether any message carries non-string
// content or an inline base64 image. Such requests get the longer upstream
// timeout.
func ContainsMultimodal(messages []zai.Message) bool {
	for _, msg := range messages {
		switch content := msg.Content.(type) {
		case string:
			if strings.Contains(content, "data:image/") && strings.Contains(content, "base64") {
				return true
			}
		case nil:
		default:
			return true
		}
	}
	return false
}
