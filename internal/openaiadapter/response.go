package openaiadapter

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	"github.com/Baozhi888/Z.ai2api/internal/translate"
	"github.com/Baozhi888/Z.ai2api/internal/zai"
)

// finalizer folds one response's event stream into a buffered completion.
type finalizer struct {
	renderer translate.Renderer
	model    string

	thinking strings.Builder
	answer   strings.Builder
	elapsed  time.Duration
	reason   translate.FinishReason
	usage    *zai.Usage
}

func newFinalizer(renderer translate.Renderer, model string) *finalizer {
	return &finalizer{renderer: renderer, model: model, reason: translate.FinishStop}
}

// observe folds one event into the accumulating response. Tool events are
// ignored here; completed calls come off the machine once the stream ends.
func (f *finalizer) observe(ev translate.Event) {
	switch ev.Kind {
	case translate.KindThinkingDelta:
		f.thinking.WriteString(ev.Text)
	case translate.KindThinkingStop:
		f.elapsed = ev.Elapsed
	case translate.KindAnswerDelta:
		f.answer.WriteString(ev.Text)
	case translate.KindFinish:
		f.reason = ev.Reason
		f.usage = ev.Usage
	}
}

// completion assembles the final body. Reasoning is rendered per the
// configured mode and joined to the answer with a blank line.
func (f *finalizer) completion(calls []translate.ToolCall, prompt int) *ChatCompletion {
	content := f.answer.String()
	if f.thinking.Len() > 0 {
		rendered := f.renderer.Render(f.thinking.String(), f.elapsed)
		if content == "" {
			content = rendered
		} else {
			content = rendered + "\n\n" + content
		}
	}

	message := AssistantMessage{Role: "assistant", Content: content}
	for _, call := range calls {
		message.ToolCalls = append(message.ToolCalls, ToolCall{
			ID:       call.ID,
			Type:     "function",
			Function: FunctionCall{Name: call.Name, Arguments: call.Arguments},
		})
	}

	return &ChatCompletion{
		ID:      newResponseID(),
		Object:  objectChatCompletion,
		Created: time.Now().Unix(),
		Model:   f.model,
		Choices: []Choice{{
			Message:      message,
			FinishReason: string(f.reason),
		}},
		Usage: *resolveUsage(f.usage, prompt, content),
	}
}

// resolveUsage prefers the upstream's own accounting and falls back to the
// character estimate over what was actually delivered.
func resolveUsage(upstream *zai.Usage, prompt int, output string) *Usage {
	if upstream != nil {
		return &Usage{
			PromptTokens:     upstream.InputTokens,
			CompletionTokens: upstream.OutputTokens,
			TotalTokens:      upstream.InputTokens + upstream.OutputTokens,
		}
	}
	completion := translate.EstimateTokens(output)
	return &Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// newResponseID mints a chat completion id (chatcmpl-<token>).
func newResponseID() string {
	b := make([]byte, 24) // 24 bytes yields 32 URL-safe base64 characters
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return "chatcmpl-" + base64.RawURLEncoding.EncodeToString(b)
}
