package zai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

const (
	chatCompletionsPath = "/api/chat/completions"
	modelsPath          = "/api/models"
	guestAuthPath       = "/api/v1/auths/"

	// frameBuffer bounds the reader→consumer queue. A full buffer blocks the
	// reader, which stops draining the upstream socket and lets TCP
	// backpressure take over.
	frameBuffer = 64

	defaultStreamIdleTimeout = 120 * time.Second
	getTimeout               = 8 * time.Second
)

// Client talks to one Z.ai-compatible upstream.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	tokens      oauth2.TokenSource
	headers     headerPool
	idleTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTransport overrides the HTTP transport. Tests use this to stub the
// upstream.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.Transport = rt
	}
}

// WithStreamIdleTimeout overrides the watchdog that aborts a stream when no
// frame arrives within d.
func WithStreamIdleTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.idleTimeout = d
		}
	}
}

// NewClient creates a client for the upstream at baseURL. Tokens are
// resolved per request through the provided source.
func NewClient(baseURL string, tokens oauth2.TokenSource, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token source cannot be nil")
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{
			// Client.Timeout = 0 allows long-running SSE streams; deadlines
			// come from the request context and the idle watchdog.
		},
		tokens:      tokens,
		idleTimeout: defaultStreamIdleTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// frameResult pairs a decoded frame with a terminal read error. At most one
// of the fields is set.
type frameResult struct {
	frame *Frame
	err   error
}

// ChatStream posts req and returns the decoded frame sequence. The returned
// iterator owns the response body; it closes the exchange when the sequence
// ends or the consumer stops early.
func (c *Client) ChatStream(ctx context.Context, req *ChatRequest) (iter.Seq2[*Frame, error], error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("resolve upstream token: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode upstream request: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, c.baseURL+chatCompletionsPath, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	c.headers.apply(httpReq.Header, c.baseURL, token.AccessToken, req.ChatID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		return nil, classifyTransportError(err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		defer cancel()
		return nil, newStatusError(resp)
	}

	frames := make(chan frameResult, frameBuffer)
	go readFrames(streamCtx, resp.Body, frames)

	seq := func(yield func(*Frame, error) bool) {
		defer cancel()

		idle := time.NewTimer(c.idleTimeout)
		defer idle.Stop()

		for {
			select {
			case res, ok := <-frames:
				if !ok {
					return
				}
				if !yield(res.frame, res.err) || res.err != nil {
					return
				}
				idle.Reset(c.idleTimeout)
			case <-idle.C:
				yield(nil, &Error{Kind: KindTimeout, Msg: fmt.Sprintf("no frame for %s", c.idleTimeout)})
				return
			case <-streamCtx.Done():
				yield(nil, streamCtx.Err())
				return
			}
		}
	}
	return seq, nil
}

// readFrames decodes SSE frames from body into out until the sequence ends,
// the context is canceled, or a read fails. It closes both body and out.
func readFrames(ctx context.Context, body io.ReadCloser, out chan<- frameResult) {
	defer close(out)
	defer body.Close()

	sc := newFrameScanner(body)
	for {
		frame, err := sc.next()

		var res frameResult
		switch {
		case err == io.EOF:
			if sc.skipped > 0 {
				slog.WarnContext(ctx, "skipped malformed upstream frames", "count", sc.skipped)
			}
			return
		case err != nil:
			res = frameResult{err: fmt.Errorf("read upstream stream: %w", err)}
		default:
			res = frameResult{frame: frame}
		}

		select {
		case out <- res:
		case <-ctx.Done():
			return
		}
		if res.err != nil {
			return
		}
	}
}

// classifyTransportError maps a failed HTTP exchange onto the upstream error
// taxonomy.
func classifyTransportError(err error) error {
	var uerr *url.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &uerr) && uerr.Timeout()) {
		return &Error{Kind: KindTimeout, Msg: err.Error()}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &Error{Kind: KindUnavailable, Msg: err.Error()}
}

// FetchGuestToken requests an anonymous visitor token. The endpoint hands a
// token to any browser-looking client without credentials.
func FetchGuestToken(ctx context.Context, baseURL string, rt http.RoundTripper) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, getTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+guestAuthPath, nil)
	if err != nil {
		return "", fmt.Errorf("build guest auth request: %w", err)
	}
	req.Header = guestAuthHeaders(baseURL)

	client := &http.Client{Transport: rt}
	resp, err := client.Do(req)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", newStatusError(resp)
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", &Error{Kind: KindBadResponse, Msg: fmt.Sprintf("decode guest auth response: %v", err)}
	}
	if payload.Token == "" {
		return "", &Error{Kind: KindBadResponse, Msg: "guest auth response carries no token"}
	}
	return payload.Token, nil
}
