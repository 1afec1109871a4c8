package proxy

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Baozhi888/Z.ai2api/internal/adapter"
	"github.com/Baozhi888/Z.ai2api/internal/openaiadapter"
)

// ChatCompletionsHandler serves POST /v1/chat/completions in both its
// buffered and streaming forms.
type ChatCompletionsHandler struct {
	Adapter        adapter.Adapter[openaiadapter.ChatCompletionRequest, openaiadapter.ChatCompletion, openaiadapter.ChatCompletionChunk]
	RequestTimeout time.Duration
	StreamTimeout  time.Duration
}

// Compile-time check to ensure ChatCompletionsHandler implements http.Handler
var _ http.Handler = (*ChatCompletionsHandler)(nil)

// ServeHTTP implements http.Handler interface for streaming or non-streaming requests.
func (h *ChatCompletionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req openaiadapter.ChatCompletionRequest
	if errResp := decode(r, &req); errResp != nil {
		slog.ErrorContext(ctx, "failed to decode request", "error", errResp.Err.Message)
		writeError(ctx, w, errResp)
		return
	}

	if err := req.Validate(); err != nil {
		slog.WarnContext(ctx, "rejected invalid request", "error", err)
		writeError(ctx, w, openaiadapter.FromError(err))
		return
	}

	if req.Stream {
		h.streamResponse(ctx, w, req)
	} else {
		h.writeResponse(ctx, w, req)
	}
}

// writeResponse handles non-streaming chat completion requests.
func (h *ChatCompletionsHandler) writeResponse(
	ctx context.Context,
	w http.ResponseWriter,
	req openaiadapter.ChatCompletionRequest,
) {
	if ctx.Err() != nil {
		return
	}
	ctx, cancel := deadline(ctx, h.RequestTimeout)
	defer cancel()

	response, err := h.Adapter.ProcessRequest(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "request failed", "error", err)
		writeError(ctx, w, openaiadapter.FromError(err))
		return
	}

	writeJSON(ctx, w, response, http.StatusOK)
}

// streamResponse streams chat completion chunks using SSE.
func (h *ChatCompletionsHandler) streamResponse(
	ctx context.Context,
	w http.ResponseWriter,
	req openaiadapter.ChatCompletionRequest,
) {
	if ctx.Err() != nil {
		return
	}
	ctx, cancel := deadline(ctx, h.StreamTimeout)
	defer cancel()

	stream, err := h.Adapter.ProcessStreamingRequest(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "streaming request failed", "error", err)
		writeError(ctx, w, openaiadapter.FromError(err))
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		slog.ErrorContext(ctx, "SSE not supported", "error", err)
		writeError(ctx, w, openaiadapter.NewError(openaiadapter.ErrTypeServer, "streaming unsupported by connection"))
		return
	}

	for chunk, err := range stream {
		// Check for client disconnect before processing chunk
		if ctx.Err() != nil {
			slog.DebugContext(ctx, "client disconnected during stream")
			return
		}

		if err != nil {
			errResp := openaiadapter.FromError(err)

			// Mid-stream tool failures are advisory; the reply continues
			// after the error event.
			if errResp.Err.Type == openaiadapter.ErrTypeToolCall {
				slog.WarnContext(ctx, "tool call failed mid-stream", "error", err)
				if writeErr := writeStreamError(sse, errResp); writeErr != nil {
					slog.ErrorContext(ctx, "failed to write tool error event", "error", writeErr)
					return
				}
				continue
			}

			slog.ErrorContext(ctx, "stream error", "error", err)
			if writeErr := writeStreamError(sse, errResp); writeErr != nil {
				slog.ErrorContext(ctx, "failed to write error event", "error", writeErr)
			}
			return
		}

		if err := sse.WriteData(chunk); err != nil {
			slog.ErrorContext(ctx, "failed to write chunk", "error", err)
			return
		}
	}

	// OpenAI streaming protocol requires [DONE] marker
	if err := sse.WriteRaw("[DONE]"); err != nil {
		slog.ErrorContext(ctx, "failed to write stream termination marker", "error", err)
	}
}

// writeStreamError emits an {"error":{...}} event. OpenAI SDKs recognize
// the envelope inside a data line and surface it to the caller.
func writeStreamError(sse *SSEWriter, errResp *openaiadapter.ErrorResponse) error {
	if err := sse.WriteEvent("error"); err != nil {
		return err
	}
	return sse.WriteData(errResp)
}

// deadline bounds ctx by d when d is positive.
func deadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
