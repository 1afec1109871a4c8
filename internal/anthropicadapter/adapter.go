package anthropicadapter

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"time"

	"github.com/Baozhi888/Z.ai2api/internal/adapter"
	"github.com/Baozhi888/Z.ai2api/internal/transform"
	"github.com/Baozhi888/Z.ai2api/internal/translate"
	"github.com/Baozhi888/Z.ai2api/internal/zai"
)

// Options configure a MessagesAdapter.
type Options struct {
	// DefaultModel receives claude-* and unknown model names.
	DefaultModel string

	// User fills prompt placeholders and the upstream variables object.
	User transform.UserFields

	// ToolTimeout bounds how long one tool call may stay open. Zero means
	// the translation default.
	ToolTimeout time.Duration
}

// MessagesAdapter translates Messages traffic onto the upstream dialect.
// Reasoning surfaces as native thinking blocks, so no rendering mode or
// content cache applies here.
type MessagesAdapter struct {
	client *zai.Client
	opts   Options
}

var _ adapter.Adapter[MessagesRequest, MessagesResponse, StreamEvent] = (*MessagesAdapter)(nil)

// NewMessagesAdapter creates an adapter backed by the given upstream
// client.
func NewMessagesAdapter(client *zai.Client, opts Options) *MessagesAdapter {
	return &MessagesAdapter{client: client, opts: opts}
}

// ProcessRequest performs the exchange and buffers the reply into a single
// message body. A timed-out exchange is retried once; nothing has been
// delivered to the caller yet, so the retry is invisible.
func (a *MessagesAdapter) ProcessRequest(ctx context.Context, clientReq MessagesRequest) (*MessagesResponse, error) {
	upstream := transform.NewChatRequest(ctx, a.requestSpec(&clientReq))

	resp, err := a.collect(ctx, upstream, clientReq.Model)
	if err != nil {
		var zerr *zai.Error
		if errors.As(err, &zerr) && zerr.Timeout() {
			slog.WarnContext(ctx, "upstream timed out, retrying buffered request",
				slog.String("model", upstream.Model))
			return a.collect(ctx, upstream, clientReq.Model)
		}
		return nil, err
	}
	return resp, nil
}

// ProcessStreamingRequest performs the exchange and returns the reply as a
// typed event sequence. Tool failures surface as in-band error events and
// the sequence continues; it ends in an error only when the upstream
// exchange itself fails.
func (a *MessagesAdapter) ProcessStreamingRequest(ctx context.Context, clientReq MessagesRequest) (iter.Seq2[*StreamEvent, error], error) {
	upstream := transform.NewChatRequest(ctx, a.requestSpec(&clientReq))

	frames, err := a.client.ChatStream(ctx, upstream)
	if err != nil {
		return nil, err
	}

	stream := &eventStream{
		machine:      a.machine(),
		model:        clientReq.Model,
		promptTokens: translate.EstimateMessageTokens(upstream.Messages),
		toolIndex:    map[int]int{},
	}
	return stream.run(frames), nil
}

// collect drains one upstream exchange into a buffered message.
func (a *MessagesAdapter) collect(ctx context.Context, upstream *zai.ChatRequest, model string) (*MessagesResponse, error) {
	frames, err := a.client.ChatStream(ctx, upstream)
	if err != nil {
		return nil, err
	}

	machine := a.machine()
	fin := newFinalizer(model)
	for ev, err := range machine.Run(frames) {
		if err != nil {
			return nil, err
		}
		fin.observe(ev)
	}
	return fin.message(machine.ToolCalls(), translate.EstimateMessageTokens(upstream.Messages)), nil
}

// requestSpec maps the inbound request onto the dialect-neutral form the
// transform pipeline consumes. Thinking stays on unless the request
// explicitly disables it.
func (a *MessagesAdapter) requestSpec(req *MessagesRequest) transform.RequestSpec {
	return transform.RequestSpec{
		Model:          req.Model,
		Messages:       upstreamMessages(req),
		Tools:          declaredTools(req.Tools),
		EnableThinking: req.Thinking.Enabled(),
		User:           a.opts.User,
		DefaultModel:   a.opts.DefaultModel,
	}
}

func (a *MessagesAdapter) machine() *translate.Machine {
	return translate.NewMachine(translate.WithToolTimeout(a.opts.ToolTimeout))
}
