package anthropicadapter

import (
	"fmt"
	"strings"

	"github.com/Baozhi888/Z.ai2api/internal/transform"
	"github.com/Baozhi888/Z.ai2api/internal/zai"
)

// upstreamMessages converts the inbound conversation for the upstream,
// prepending the system prompt as a system-role turn so the transform
// pipeline folds it into the first user message.
func upstreamMessages(req *MessagesRequest) []zai.Message {
	messages := make([]zai.Message, 0, len(req.Messages)+1)
	if system := systemText(req.System); system != "" {
		messages = append(messages, zai.Message{Role: "system", Content: system})
	}
	for _, msg := range req.Messages {
		messages = append(messages, zai.Message{Role: msg.Role, Content: upstreamContent(msg.Content)})
	}
	return messages
}

// systemText flattens the system prompt: strings pass through, text block
// arrays concatenate in order. Anything else is ignored.
func systemText(system any) string {
	switch v := system.(type) {
	case string:
		return v
	case []any:
		var b strings.Builder
		for _, block := range v {
			m, ok := block.(map[string]any)
			if !ok || m["type"] != "text" {
				continue
			}
			if text, ok := m["text"].(string); ok {
				b.WriteString(text)
			}
		}
		return b.String()
	default:
		return ""
	}
}

// upstreamContent converts one turn's content. Block lists without images
// flatten to their text joined by newlines; lists carrying images become
// content-part arrays with each image re-encoded as a data URL. Block
// types the upstream has no equivalent for are dropped.
func upstreamContent(content any) any {
	blocks, ok := content.([]any)
	if !ok {
		return content
	}

	hasImage := false
	for _, block := range blocks {
		if m, ok := block.(map[string]any); ok && m["type"] == "image" {
			hasImage = true
			break
		}
	}
	if !hasImage {
		var texts []string
		for _, block := range blocks {
			m, ok := block.(map[string]any)
			if !ok || m["type"] != "text" {
				continue
			}
			if text, ok := m["text"].(string); ok {
				texts = append(texts, text)
			}
		}
		return strings.Join(texts, "\n")
	}

	parts := make([]any, 0, len(blocks))
	for _, block := range blocks {
		m, ok := block.(map[string]any)
		if !ok {
			continue
		}
		switch m["type"] {
		case "text":
			parts = append(parts, map[string]any{"type": "text", "text": m["text"]})
		case "image":
			if part, ok := imagePart(m); ok {
				parts = append(parts, part)
			}
		}
	}
	return parts
}

// imagePart converts one base64 image block into the upstream's
// image_url part. Non-base64 sources have no upstream form.
func imagePart(block map[string]any) (map[string]any, bool) {
	source, _ := block["source"].(map[string]any)
	if source["type"] != "base64" {
		return nil, false
	}
	data, _ := source["data"].(string)
	mediaType, _ := source["media_type"].(string)
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	return map[string]any{
		"type":      "image_url",
		"image_url": map[string]any{"url": fmt.Sprintf("data:%s;base64,%s", mediaType, data)},
	}, true
}

// declaredTools maps inbound tool declarations to the neutral form,
// keeping each input schema byte for byte.
func declaredTools(tools []Tool) []transform.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]transform.Tool, 0, len(tools))
	for _, tool := range tools {
		if tool.Name == "" {
			continue
		}
		out = append(out, transform.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			Schema:      tool.InputSchema,
		})
	}
	return out
}
