package transform

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Baozhi888/Z.ai2api/internal/zai"
)

// RequestSpec is the dialect-independent description of one chat request
// after inbound parsing.
type RequestSpec struct {
	Model          string
	Messages       []zai.Message
	Tools          []Tool
	EnableThinking bool
	User           UserFields
	DefaultModel   string

	// Now overrides the wall clock for placeholder expansion. Zero means
	// time.Now.
	Now time.Time
}

// NewChatRequest assembles the upstream request body: ids are minted,
// system messages coerced into the prompt, placeholders expanded and the
// model name normalized. Tools ride along only while thinking is off; the
// upstream ignores the reasoning flag when both are present.
func NewChatRequest(ctx context.Context, spec RequestSpec) *zai.ChatRequest {
	now := spec.Now
	if now.IsZero() {
		now = time.Now()
	}

	messages := CoerceSystem(spec.Messages)
	messages = ExpandMessages(messages, now, spec.User)

	req := &zai.ChatRequest{
		Stream:    true,
		ChatID:    uuid.NewString(),
		ID:        uuid.NewString(),
		Model:     NormalizeModel(ctx, spec.Model, spec.DefaultModel),
		Messages:  messages,
		Params:    map[string]any{},
		Features:  zai.NewFeatures(spec.EnableThinking),
		Variables: UpstreamVariables(now, spec.User),
	}
	if !spec.EnableThinking {
		req.Tools = UpstreamTools(spec.Tools)
	}
	return req
}
