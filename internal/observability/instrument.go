// Package observability wires the process-wide logging pipeline: stdout
// handlers for local consumption, an optional OpenTelemetry export path
// for collectors, and trace-context enrichment for both.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
)

const scopeName = "z.ai2api"

// Instrument installs the default slog logger and, when an OTLP endpoint
// is configured in the environment, an export pipeline shipping the same
// records to a collector. The returned shutdown flushes buffered export
// batches; it is a no-op when nothing needs flushing.
func Instrument(ctx context.Context, level slog.Level, logFormat string) (func(context.Context) error, error) {
	// W3C trace context arrives on inbound requests; the propagator is
	// what lets the HTTP middleware read it.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	handler, err := newStdoutHandler(level, logFormat)
	if err != nil {
		return nil, err
	}

	provider, err := newExportProvider(ctx, level, logFormat)
	if err != nil {
		return nil, err
	}

	shutdown := func(context.Context) error { return nil }
	if provider != nil {
		global.SetLoggerProvider(provider)
		bridge := otelslog.NewHandler(scopeName, otelslog.WithLoggerProvider(provider))
		if handler != nil {
			handler = newFanoutHandler(newTraceContextHandler(handler), bridge)
		} else {
			handler = bridge
		}
		shutdown = provider.Shutdown
	} else {
		handler = newTraceContextHandler(handler)
	}

	slog.SetDefault(slog.New(handler))

	return shutdown, nil
}

// newStdoutHandler creates a handler for human-readable logs. The "otel"
// format has no plain handler; its records reach stdout through the
// console exporter instead.
func newStdoutHandler(level slog.Level, logFormat string) (slog.Handler, error) {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	switch strings.ToLower(logFormat) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	case "otel":
		handler = nil
	default:
		return nil, fmt.Errorf("unsupported log format %q (expected: json, text, otel)", logFormat)
	}

	return handler, nil
}

// newExportProvider builds the OpenTelemetry log provider backing the
// slog bridge. It carries a console processor when the "otel" format is
// selected and a batching OTLP processor when an endpoint is configured;
// with neither it returns nil and the pipeline stays stdout-only.
func newExportProvider(ctx context.Context, level slog.Level, logFormat string) (*sdklog.LoggerProvider, error) {
	var procs []sdklog.LoggerProviderOption

	if strings.EqualFold(logFormat, "otel") {
		exporter, err := stdoutlog.New()
		if err != nil {
			return nil, fmt.Errorf("create console log exporter: %w", err)
		}
		procs = append(procs, sdklog.WithProcessor(
			minsev.NewLogProcessor(sdklog.NewSimpleProcessor(exporter), minSeverity(level)),
		))
	}

	if otlpConfigured() {
		exporter, err := newOTLPExporter(ctx)
		if err != nil {
			return nil, err
		}
		procs = append(procs, sdklog.WithProcessor(
			minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), minSeverity(level)),
		))
	}

	if len(procs) == 0 {
		return nil, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", scopeName),
	))
	if err != nil {
		return nil, fmt.Errorf("build telemetry resource: %w", err)
	}

	return sdklog.NewLoggerProvider(append(procs, sdklog.WithResource(res))...), nil
}

// otlpConfigured reports whether the standard OTLP environment variables
// name a collector endpoint. Export stays off without one.
func otlpConfigured() bool {
	return os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" ||
		os.Getenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT") != ""
}

// newOTLPExporter selects the wire protocol per OTEL_EXPORTER_OTLP_PROTOCOL.
// Endpoint, headers and TLS settings come from the exporter's own
// environment handling.
func newOTLPExporter(ctx context.Context) (sdklog.Exporter, error) {
	protocol := os.Getenv("OTEL_EXPORTER_OTLP_LOGS_PROTOCOL")
	if protocol == "" {
		protocol = os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL")
	}

	switch strings.ToLower(protocol) {
	case "grpc":
		exporter, err := otlploggrpc.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("create OTLP gRPC log exporter: %w", err)
		}
		return exporter, nil
	case "", "http/protobuf":
		exporter, err := otlploghttp.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("create OTLP HTTP log exporter: %w", err)
		}
		return exporter, nil
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q (expected: grpc, http/protobuf)", protocol)
	}
}

// minSeverity maps an slog level onto the minimum severity admitted into
// the export pipeline.
func minSeverity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
