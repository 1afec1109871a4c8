package openaiadapter

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"time"

	"github.com/Baozhi888/Z.ai2api/internal/adapter"
	"github.com/Baozhi888/Z.ai2api/internal/store"
	"github.com/Baozhi888/Z.ai2api/internal/transform"
	"github.com/Baozhi888/Z.ai2api/internal/translate"
	"github.com/Baozhi888/Z.ai2api/internal/zai"
)

// Options configure a CompletionsAdapter.
type Options struct {
	// DefaultModel receives claude-* and unknown model names.
	DefaultModel string

	// Reasoning selects how thinking content is inlined into answer text.
	// Empty means think mode.
	Reasoning translate.Mode

	// User fills prompt placeholders and the upstream variables object.
	User transform.UserFields

	// ToolTimeout bounds how long one tool call may stay open. Zero means
	// the translation default.
	ToolTimeout time.Duration

	// Cache, when set, memoizes rendered reasoning buffers for ContentTTL.
	Cache      *store.Store
	ContentTTL time.Duration
}

// CompletionsAdapter translates Chat Completions traffic onto the upstream
// dialect. It is stateless across requests; all per-response state lives in
// the translation machine.
type CompletionsAdapter struct {
	client *zai.Client
	opts   Options
}

var _ adapter.Adapter[ChatCompletionRequest, ChatCompletion, ChatCompletionChunk] = (*CompletionsAdapter)(nil)

// NewCompletionsAdapter creates an adapter backed by the given upstream
// client.
func NewCompletionsAdapter(client *zai.Client, opts Options) *CompletionsAdapter {
	return &CompletionsAdapter{client: client, opts: opts}
}

// ProcessRequest performs the exchange and buffers the reply into a single
// chat.completion body. A timed-out exchange is retried once; nothing has
// been delivered to the caller yet, so the retry is invisible.
func (a *CompletionsAdapter) ProcessRequest(ctx context.Context, clientReq ChatCompletionRequest) (*ChatCompletion, error) {
	upstream := transform.NewChatRequest(ctx, a.requestSpec(&clientReq))

	resp, err := a.collect(ctx, upstream)
	if err != nil {
		var zerr *zai.Error
		if errors.As(err, &zerr) && zerr.Timeout() {
			slog.WarnContext(ctx, "upstream timed out, retrying buffered request",
				slog.String("model", upstream.Model))
			return a.collect(ctx, upstream)
		}
		return nil, err
	}
	return resp, nil
}

// ProcessStreamingRequest performs the exchange and returns the reply as a
// chunk sequence. The sequence may yield a non-terminal *ErrorResponse of
// type tool_call_error and then continue; any other error ends it.
func (a *CompletionsAdapter) ProcessStreamingRequest(ctx context.Context, clientReq ChatCompletionRequest) (iter.Seq2[*ChatCompletionChunk, error], error) {
	upstream := transform.NewChatRequest(ctx, a.requestSpec(&clientReq))

	frames, err := a.client.ChatStream(ctx, upstream)
	if err != nil {
		return nil, err
	}

	stream := &chunkStream{
		id:           newResponseID(),
		created:      time.Now().Unix(),
		model:        upstream.Model,
		machine:      a.machine(),
		thinking:     translate.NewThinkingStream(a.mode()),
		promptTokens: translate.EstimateMessageTokens(upstream.Messages),
	}
	return stream.run(frames), nil
}

// collect drains one upstream exchange into a buffered response.
func (a *CompletionsAdapter) collect(ctx context.Context, upstream *zai.ChatRequest) (*ChatCompletion, error) {
	frames, err := a.client.ChatStream(ctx, upstream)
	if err != nil {
		return nil, err
	}

	machine := a.machine()
	fin := newFinalizer(a.renderer(), upstream.Model)
	for ev, err := range machine.Run(frames) {
		if err != nil {
			return nil, err
		}
		fin.observe(ev)
	}
	return fin.completion(machine.ToolCalls(), translate.EstimateMessageTokens(upstream.Messages)), nil
}

// requestSpec maps the inbound request onto the dialect-neutral form the
// transform pipeline consumes. Tool declarations keep their raw schemas.
func (a *CompletionsAdapter) requestSpec(req *ChatCompletionRequest) transform.RequestSpec {
	messages := make([]zai.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, zai.Message{Role: msg.Role, Content: msg.Content})
	}

	var tools []transform.Tool
	for _, tool := range req.Tools {
		if tool.Function.Name == "" {
			continue
		}
		tools = append(tools, transform.Tool{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			Schema:      tool.Function.Parameters,
		})
	}

	return transform.RequestSpec{
		Model:          req.Model,
		Messages:       messages,
		Tools:          tools,
		EnableThinking: req.Reasoning,
		User:           a.opts.User,
		DefaultModel:   a.opts.DefaultModel,
	}
}

func (a *CompletionsAdapter) machine() *translate.Machine {
	return translate.NewMachine(translate.WithToolTimeout(a.opts.ToolTimeout))
}

func (a *CompletionsAdapter) renderer() translate.Renderer {
	return translate.Renderer{Mode: a.mode(), Cache: a.opts.Cache, TTL: a.opts.ContentTTL}
}

func (a *CompletionsAdapter) mode() translate.Mode {
	if a.opts.Reasoning == "" {
		return translate.ModeThink
	}
	return a.opts.Reasoning
}
