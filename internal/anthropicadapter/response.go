package anthropicadapter

import (
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/Baozhi888/Z.ai2api/internal/translate"
	"github.com/Baozhi888/Z.ai2api/internal/zai"
)

// finalizer folds one response's event stream into a buffered message.
type finalizer struct {
	model string

	thinking  strings.Builder
	answer    strings.Builder
	signature string
	reason    translate.FinishReason
	usage     *zai.Usage
}

func newFinalizer(model string) *finalizer {
	return &finalizer{model: model, reason: translate.FinishStop}
}

// observe folds one event into the accumulating message. Tool events are
// ignored here; completed calls come off the machine once the stream ends.
func (f *finalizer) observe(ev translate.Event) {
	switch ev.Kind {
	case translate.KindThinkingDelta:
		f.thinking.WriteString(ev.Text)
	case translate.KindThinkingStop:
		f.signature = ev.Signature
	case translate.KindAnswerDelta:
		f.answer.WriteString(ev.Text)
	case translate.KindFinish:
		f.reason = ev.Reason
		f.usage = ev.Usage
	}
}

// message assembles the final body: thinking block first, then text, then
// tool_use blocks in call order.
func (f *finalizer) message(calls []translate.ToolCall, prompt int) *MessagesResponse {
	content := []ContentBlock{}
	if f.thinking.Len() > 0 {
		thinking := f.thinking.String()
		content = append(content, ContentBlock{
			Type:      "thinking",
			Thinking:  &thinking,
			Signature: f.signature,
		})
	}
	if f.answer.Len() > 0 {
		text := f.answer.String()
		content = append(content, ContentBlock{Type: "text", Text: &text})
	}
	for _, call := range calls {
		content = append(content, ContentBlock{
			Type:  "tool_use",
			ID:    call.ID,
			Name:  call.Name,
			Input: json.RawMessage(call.Arguments),
		})
	}

	reason := stopReason(f.reason)
	return &MessagesResponse{
		ID:         newMessageID(),
		Type:       "message",
		Role:       "assistant",
		Content:    content,
		Model:      f.model,
		StopReason: &reason,
		Usage:      resolveUsage(f.usage, prompt, f.thinking.String()+f.answer.String()),
	}
}

// stopReason maps the neutral finish reason onto the dialect vocabulary.
func stopReason(reason translate.FinishReason) string {
	switch reason {
	case translate.FinishToolCalls:
		return "tool_use"
	case translate.FinishLength:
		return "max_tokens"
	default:
		return "end_turn"
	}
}

// resolveUsage prefers the upstream's own accounting and falls back to the
// character estimate over what was actually delivered.
func resolveUsage(upstream *zai.Usage, prompt int, output string) Usage {
	if upstream != nil {
		return Usage{InputTokens: upstream.InputTokens, OutputTokens: upstream.OutputTokens}
	}
	return Usage{InputTokens: prompt, OutputTokens: translate.EstimateTokens(output)}
}

// newMessageID mints a message id (msg_ plus 32 hex characters).
func newMessageID() string {
	u := uuid.New()
	return "msg_" + hex.EncodeToString(u[:])
}
