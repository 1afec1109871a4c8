package zai

import "encoding/json"

// Phase tags an upstream frame with the kind of content it carries.
type Phase string

const (
	PhaseThinking Phase = "thinking"
	PhaseAnswer   Phase = "answer"
	PhaseToolCall Phase = "tool_call"
	PhaseOther    Phase = "other"
)

// Frame is one decoded upstream SSE event: the inner "data" object of a
// data: {"data":{...}} line.
//
// A reply is a finite frame sequence terminated by Done=true or by the
// upstream closing the stream.
type Frame struct {
	Phase        Phase      `json:"phase"`
	DeltaContent string     `json:"delta_content,omitempty"`
	EditContent  string     `json:"edit_content,omitempty"`
	Usage        *Usage     `json:"usage,omitempty"`
	Done         bool       `json:"done,omitempty"`
	Error        *WireError `json:"error,omitempty"`
}

// Usage is the upstream's own token accounting, attached to terminal frames
// when the upstream provides it.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// WireError is an in-band error the upstream places inside a frame instead
// of failing the HTTP exchange.
type WireError struct {
	Code   json.RawMessage `json:"code,omitempty"`
	Detail string          `json:"detail,omitempty"`
}

// envelope is the outer object of every SSE data line.
type envelope struct {
	Data Frame `json:"data"`
}

// ChatRequest is the upstream chat completion request body. The field set
// mirrors what the web client sends; the upstream rejects bodies missing the
// features or variables objects.
type ChatRequest struct {
	Stream    bool              `json:"stream"`
	ChatID    string            `json:"chat_id"`
	ID        string            `json:"id"`
	Model     string            `json:"model"`
	Messages  []Message         `json:"messages"`
	Params    map[string]any    `json:"params"`
	Features  Features          `json:"features"`
	Variables map[string]string `json:"variables"`
	ModelItem ModelItem         `json:"model_item"`
	Tools     []json.RawMessage `json:"tools,omitempty"`
}

// Message is one chat turn. Content is either a plain string or a
// content-part array passed through from a multimodal request.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// Features selects upstream behaviors per request. Everything except
// EnableThinking stays off; the zero value plus an explicit thinking flag is
// a complete, valid object.
type Features struct {
	ImageGeneration bool     `json:"image_generation"`
	WebSearch       bool     `json:"web_search"`
	AutoWebSearch   bool     `json:"auto_web_search"`
	PreviewMode     bool     `json:"preview_mode"`
	Flags           []string `json:"flags"`
	Features        []any    `json:"features"`
	EnableThinking  bool     `json:"enable_thinking"`
}

// NewFeatures returns the feature object the upstream expects, with empty
// (not null) collection fields.
func NewFeatures(enableThinking bool) Features {
	return Features{
		Flags:          []string{},
		Features:       []any{},
		EnableThinking: enableThinking,
	}
}

// ModelItem mirrors the web client's selected-model descriptor. The
// upstream accepts an empty object.
type ModelItem struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}
