package anthropicadapter

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// MessagesRequest is the inbound request body of POST /v1/messages.
// Sampling parameters are accepted for compatibility; the upstream ignores
// them.
type MessagesRequest struct {
	Model       string          `json:"model" validate:"required"`
	MaxTokens   int             `json:"max_tokens" validate:"required,gt=0"`
	Messages    []Message       `json:"messages" validate:"required,min=1,dive"`
	System      any             `json:"system,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	Tools       []Tool          `json:"tools,omitempty"`
	ToolChoice  json.RawMessage `json:"tool_choice,omitempty"`
	Thinking    *ThinkingConfig `json:"thinking,omitempty"`
}

// Validate reports whether the request satisfies the dialect's required
// fields.
func (r *MessagesRequest) Validate() error {
	return validate.Struct(r)
}

// Message is one conversation turn. Content is a plain string or a content
// block array.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content any    `json:"content"`
}

// Tool is an inbound declaration. InputSchema stays raw so the schema
// survives the dialect crossing byte-for-byte.
type Tool struct {
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// ThinkingConfig is the dialect's reasoning switch. Thinking defaults to on
// for this upstream; only an explicit "disabled" turns it off.
type ThinkingConfig struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

// Enabled reports whether the upstream should produce a thinking section.
func (t *ThinkingConfig) Enabled() bool {
	return t == nil || t.Type != "disabled"
}

// MessagesResponse is the buffered response body, and doubles as the
// message payload inside message_start.
type MessagesResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Content      []ContentBlock `json:"content"`
	Model        string         `json:"model"`
	StopReason   *string        `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        Usage          `json:"usage"`
}

// ContentBlock is one element of a message's content array and the block
// descriptor inside content_block_start. Only the fields of its Type are
// populated.
type ContentBlock struct {
	Type string `json:"type"`

	// text blocks
	Text *string `json:"text,omitempty"`

	// thinking blocks
	Thinking  *string `json:"thinking,omitempty"`
	Signature string  `json:"signature,omitempty"`

	// tool_use blocks
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// Usage is the dialect's token accounting pair.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Event types, also the SSE event names on the wire.
const (
	EventMessageStart      = "message_start"
	EventPing              = "ping"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventMessageDelta      = "message_delta"
	EventMessageStop       = "message_stop"
	EventError             = "error"
)

// StreamEvent is one streamed SSE payload. Type names the event and is
// mirrored into the SSE event line; the populated fields depend on it.
// Delta holds a *BlockDelta on content_block_delta events and a
// *MessageDelta on message_delta events.
type StreamEvent struct {
	Type         string            `json:"type"`
	Message      *MessagesResponse `json:"message,omitempty"`
	Index        *int              `json:"index,omitempty"`
	ContentBlock *ContentBlock     `json:"content_block,omitempty"`
	Delta        any               `json:"delta,omitempty"`
	Usage        *Usage            `json:"usage,omitempty"`
	Error        *ErrorDetail      `json:"error,omitempty"`
}

// BlockDelta is the delta payload of content_block_delta events.
type BlockDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	Signature   string `json:"signature,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

// MessageDelta is the delta payload of the message_delta event.
// StopSequence is always present and null; the upstream has no stop
// sequences.
type MessageDelta struct {
	StopReason   string  `json:"stop_reason"`
	StopSequence *string `json:"stop_sequence"`
}

// ErrorDetail is the payload of an error event.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
