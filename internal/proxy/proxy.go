// Package proxy is the HTTP surface of the service: routing, middleware,
// SSE encoding and the dialect endpoint handlers.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Baozhi888/Z.ai2api/internal/adapter"
	"github.com/Baozhi888/Z.ai2api/internal/anthropicadapter"
	"github.com/Baozhi888/Z.ai2api/internal/metrics"
	"github.com/Baozhi888/Z.ai2api/internal/observability/middleware"
	"github.com/Baozhi888/Z.ai2api/internal/openaiadapter"
	"github.com/Baozhi888/Z.ai2api/internal/store"
	"github.com/Baozhi888/Z.ai2api/internal/zai"
)

const (
	defaultMaxRequestBytes = 10 << 20
	defaultMaxConcurrent   = 100
	defaultRequestTimeout  = 60 * time.Second
	defaultStreamTimeout   = 120 * time.Second
	defaultModelsTTL       = 5 * time.Minute
)

// ReadinessChecker reports whether the application can serve traffic.
type ReadinessChecker interface {
	IsReady() bool
}

// alwaysReady is the readiness fallback when no checker is injected.
type alwaysReady struct{}

func (alwaysReady) IsReady() bool { return true }

// Deps are the collaborators behind the HTTP surface. Both adapters, the
// upstream client and the cache are required.
type Deps struct {
	Completions adapter.Adapter[openaiadapter.ChatCompletionRequest, openaiadapter.ChatCompletion, openaiadapter.ChatCompletionChunk]
	Messages    adapter.Adapter[anthropicadapter.MessagesRequest, anthropicadapter.MessagesResponse, anthropicadapter.StreamEvent]
	Upstream    *zai.Client
	Cache       *store.Store
	Meters      *metrics.Registry
	Readiness   ReadinessChecker
}

// Options tune the surface. Zero values take the package defaults.
type Options struct {
	// AccessKey gates inbound requests; empty disables the gate.
	AccessKey string
	// Origins are the allowed CORS origins; empty means any.
	Origins []string

	MaxRequestBytes int64
	MaxConcurrent   int64

	// RequestTimeout bounds buffered requests, StreamTimeout streaming
	// ones.
	RequestTimeout time.Duration
	StreamTimeout  time.Duration

	ModelsTTL time.Duration

	// DisableInstrumentation turns off the request meters. The /metrics
	// endpoint stays up and reports an idle registry.
	DisableInstrumentation bool
}

// Proxy serves both dialect endpoints plus the admin surface.
type Proxy struct {
	deps    Deps
	opts    Options
	handler http.Handler
	server  *http.Server
}

var _ http.Handler = (*Proxy)(nil)

// New assembles the routed, middleware-wrapped surface.
func New(deps Deps, opts Options) (*Proxy, error) {
	if deps.Completions == nil || deps.Messages == nil {
		return nil, errors.New("proxy: both dialect adapters are required")
	}
	if deps.Upstream == nil {
		return nil, errors.New("proxy: upstream client is required")
	}
	if deps.Cache == nil {
		return nil, errors.New("proxy: cache store is required")
	}
	if deps.Meters == nil {
		deps.Meters = metrics.New()
	}
	if deps.Readiness == nil {
		deps.Readiness = alwaysReady{}
	}

	if opts.MaxRequestBytes <= 0 {
		opts.MaxRequestBytes = defaultMaxRequestBytes
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.StreamTimeout <= 0 {
		opts.StreamTimeout = defaultStreamTimeout
	}
	if opts.ModelsTTL <= 0 {
		opts.ModelsTTL = defaultModelsTTL
	}

	p := &Proxy{deps: deps, opts: opts}
	p.handler = p.buildHandler()
	return p, nil
}

func (p *Proxy) buildHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", bannerHandler())
	mux.HandleFunc("GET /health", healthHandler())
	mux.HandleFunc("GET /ready", readinessHandler(p.deps.Readiness))
	mux.HandleFunc("GET /v1/models", modelsHandler(p.deps.Upstream, p.deps.Cache, p.opts.ModelsTTL))
	mux.Handle("POST /v1/chat/completions", &ChatCompletionsHandler{
		Adapter:        p.deps.Completions,
		RequestTimeout: p.opts.RequestTimeout,
		StreamTimeout:  p.opts.StreamTimeout,
	})
	mux.Handle("POST /v1/messages", &MessagesHandler{
		Adapter:        p.deps.Messages,
		RequestTimeout: p.opts.RequestTimeout,
		StreamTimeout:  p.opts.StreamTimeout,
	})
	mux.HandleFunc("GET /metrics", metricsHandler(p.deps.Meters, p.deps.Cache))
	mux.HandleFunc("POST /metrics/reset", metricsResetHandler(p.deps.Meters))
	mux.HandleFunc("GET /cache/stats", cacheStatsHandler(p.deps.Cache))
	mux.HandleFunc("POST /cache/clear", cacheClearHandler(p.deps.Cache))

	return applyMiddlewares(mux,
		Recovery,
		middleware.RequestIDGeneration,
		middleware.TraceContextExtraction,
		middleware.Logging(slog.Default()),
		middleware.RequestIDPropagation,
		CORS(p.opts.Origins),
		RequestSizeLimit(p.opts.MaxRequestBytes),
		p.authenticate,
		p.limitConcurrency(),
		p.instrument,
	)
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.handler.ServeHTTP(w, r)
}

// Start binds the listener and serves in the background. The returned
// channel delivers at most one runtime error and closes when the server
// stops.
func (p *Proxy) Start(ctx context.Context, addr string) (<-chan error, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	p.server = &http.Server{
		Handler:           p.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := p.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.InfoContext(ctx, "proxy listening", slog.String("addr", listener.Addr().String()))
	return errCh, nil
}

// Shutdown drains in-flight requests until ctx expires.
func (p *Proxy) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}
	return p.server.Shutdown(ctx)
}
