// Package app wires the configuration, upstream client, dialect adapters
// and HTTP surface together and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Baozhi888/Z.ai2api/internal/anthropicadapter"
	"github.com/Baozhi888/Z.ai2api/internal/config"
	"github.com/Baozhi888/Z.ai2api/internal/metrics"
	"github.com/Baozhi888/Z.ai2api/internal/openaiadapter"
	"github.com/Baozhi888/Z.ai2api/internal/proxy"
	"github.com/Baozhi888/Z.ai2api/internal/store"
	"github.com/Baozhi888/Z.ai2api/internal/tokensource"
	"github.com/Baozhi888/Z.ai2api/internal/translate"
	"github.com/Baozhi888/Z.ai2api/internal/zai"
)

const shutdownTimeout = 5 * time.Second

// App orchestrates the lifecycle of the proxy server and related services.
type App struct {
	cfg    *config.Config
	proxy  *proxy.Proxy
	cache  *store.Store
	health *Health
}

// New assembles the application from its configuration. ctx bounds the
// background work of the upstream token source.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	tokens, err := tokensource.Resolve(ctx, tokensource.Config{
		BaseURL:     cfg.APIBase,
		Token:       cfg.UpstreamToken,
		AnonEnabled: cfg.AnonTokenEnabled,
		AnonTTL:     cfg.TokenTTL(),
	})
	if err != nil {
		return nil, fmt.Errorf("resolve upstream token source: %w", err)
	}

	client, err := zai.NewClient(cfg.APIBase, tokens)
	if err != nil {
		return nil, fmt.Errorf("create upstream client: %w", err)
	}

	cache := store.New(cfg.ContentTTL(), cfg.CacheMaxSize)
	health := NewHealth()

	completions := openaiadapter.NewCompletionsAdapter(client, openaiadapter.Options{
		DefaultModel: cfg.ModelName,
		Reasoning:    translate.Mode(cfg.ThinkTagsMode),
		ToolTimeout:  cfg.ToolTimeout(),
		Cache:        cache,
		ContentTTL:   cfg.ContentTTL(),
	})
	messages := anthropicadapter.NewMessagesAdapter(client, anthropicadapter.Options{
		DefaultModel: cfg.ModelName,
		ToolTimeout:  cfg.ToolTimeout(),
	})

	proxyServer, err := proxy.New(proxy.Deps{
		Completions: completions,
		Messages:    messages,
		Upstream:    client,
		Cache:       cache,
		Meters:      metrics.New(),
		Readiness:   health,
	}, proxy.Options{
		AccessKey:              cfg.AccessKey(),
		Origins:                cfg.Origins(),
		MaxConcurrent:          cfg.MaxConcurrentRequests,
		RequestTimeout:         cfg.RequestDeadline(),
		StreamTimeout:          cfg.StreamDeadline(),
		ModelsTTL:              cfg.ModelsTTL(),
		DisableInstrumentation: !cfg.EnablePerformanceMonitoring,
	})
	if err != nil {
		_ = cache.Close()
		return nil, fmt.Errorf("failed to create proxy: %w", err)
	}

	return &App{
		cfg:    cfg,
		proxy:  proxyServer,
		cache:  cache,
		health: health,
	}, nil
}

// Health exposes the readiness state, toggled around Start.
func (a *App) Health() *Health {
	return a.health
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting proxy server", slog.String("addr", a.cfg.ListenAddr()))
	proxyErrCh, err := a.proxy.Start(gCtx, a.cfg.ListenAddr())
	if err != nil {
		_ = a.cache.Close()
		return fmt.Errorf("proxy startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.proxy.Shutdown)
	shutdownFuncs = append(shutdownFuncs, func(context.Context) error {
		return a.cache.Close()
	})

	a.health.SetReady(true)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-proxyErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "proxy runtime error", "error", err)
				return fmt.Errorf("proxy: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	runtimeErr := g.Wait()

	a.health.SetReady(false)
	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}
