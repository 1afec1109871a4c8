package translate

import (
	"unicode/utf8"

	"github.com/Baozhi888/Z.ai2api/internal/zai"
)

// EstimateTokens approximates the upstream tokenizer for responses that
// carry no usage: roughly four characters per token, rounded up.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (utf8.RuneCountInString(s) + 3) / 4
}

// EstimateMessageTokens estimates the prompt side of a request's usage.
// Only plain string contents count; structured parts contribute nothing.
func EstimateMessageTokens(messages []zai.Message) int {
	runes := 0
	for _, msg := range messages {
		if text, ok := msg.Content.(string); ok {
			runes += utf8.RuneCountInString(text)
		}
	}
	return (runes + 3) / 4
}
