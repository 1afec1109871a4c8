package transform

import "encoding/json"

// Tool is the dialect-neutral function declaration: a name, an optional
// description and the argument JSON Schema. The schema is carried as raw
// bytes; the proxy never rewrites it, so declarations survive the dialect
// crossing byte-for-byte.
type Tool struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// openAITool is the OpenAI wire shape, which is also what the upstream
// accepts in its tools array.
type openAITool struct {
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// UpstreamTools encodes declarations in the function shape the upstream
// expects. An empty set returns nil so the request field is omitted.
func UpstreamTools(tools []Tool) []json.RawMessage {
	if len(tools) == 0 {
		return nil
	}

	out := make([]json.RawMessage, 0, len(tools))
	for _, tool := range tools {
		encoded, err := json.Marshal(openAITool{
			Type: "function",
			Function: openAIFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Schema,
			},
		})
		if err != nil {
			// A raw schema that fails to re-encode was invalid JSON on
			// arrival; the declaration is dropped rather than the request.
			continue
		}
		out = append(out, encoded)
	}
	return out
}
