package openaiadapter

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
)

const (
	objectChatCompletion = "chat.completion"
	objectChunk          = "chat.completion.chunk"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ChatCompletionRequest is the inbound request body of
// POST /v1/chat/completions. Unknown fields are tolerated and dropped;
// sampling parameters are accepted for compatibility but the upstream has
// no use for them.
type ChatCompletionRequest struct {
	Model       string          `json:"model" validate:"required"`
	Messages    []ChatMessage   `json:"messages" validate:"required,min=1,dive"`
	Stream      bool            `json:"stream,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Tools       []ChatTool      `json:"tools,omitempty"`
	ToolChoice  json.RawMessage `json:"tool_choice,omitempty"`

	// Reasoning asks the upstream to produce a thinking section. Mirrors
	// the upstream web client's toggle; off unless the caller opts in.
	Reasoning bool `json:"reasoning,omitempty"`

	User string `json:"user,omitempty"`
}

// Validate reports whether the request satisfies the dialect's required
// fields.
func (r *ChatCompletionRequest) Validate() error {
	return validate.Struct(r)
}

// ChatMessage is one conversation turn. Content is a plain string or a
// content-part array; arrays pass through to the upstream untouched.
type ChatMessage struct {
	Role       string     `json:"role" validate:"required,oneof=system user assistant tool"`
	Content    any        `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ChatTool is an inbound function declaration.
type ChatTool struct {
	Type     string       `json:"type"`
	Function ChatFunction `json:"function"`
}

// ChatFunction carries the declaration payload. Parameters stay raw so the
// schema survives the dialect crossing byte-for-byte.
type ChatFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ChatCompletion is the buffered response body.
type ChatCompletion struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice holds the single assembled reply.
type Choice struct {
	Index        int              `json:"index"`
	Message      AssistantMessage `json:"message"`
	FinishReason string           `json:"finish_reason"`
}

// AssistantMessage is the assembled assistant turn.
type AssistantMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a completed function invocation, also accepted inbound on
// assistant history turns.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall pairs the function name with its argument JSON, serialized
// exactly as the upstream produced it.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Usage is the dialect's token accounting triple.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionChunk is one streamed SSE payload.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"`
}

// ChunkChoice wraps one delta. FinishReason stays null until the closing
// chunk, which is how clients detect the end of the reply.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChunkDelta is the incremental payload of one chunk. Exactly one of the
// fields is populated except for the preamble, which carries only Role.
type ChunkDelta struct {
	Role      string          `json:"role,omitempty"`
	Content   *string         `json:"content,omitempty"`
	ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`
}

// ToolCallDelta streams one fragment of a function invocation. The opening
// fragment carries id, type and name; later fragments carry only the index
// and an arguments continuation.
type ToolCallDelta struct {
	Index    int            `json:"index"`
	ID       string         `json:"id,omitempty"`
	Type     string         `json:"type,omitempty"`
	Function *FunctionDelta `json:"function,omitempty"`
}

// FunctionDelta carries the function payload fragment. Arguments is always
// serialized, empty on the opening fragment, so concatenation across a
// call's fragments yields its full argument JSON.
type FunctionDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}
