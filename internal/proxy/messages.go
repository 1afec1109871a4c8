package proxy

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Baozhi888/Z.ai2api/internal/adapter"
	"github.com/Baozhi888/Z.ai2api/internal/anthropicadapter"
	"github.com/Baozhi888/Z.ai2api/internal/openaiadapter"
)

// MessagesHandler serves POST /v1/messages in both its buffered and
// streaming forms.
type MessagesHandler struct {
	Adapter        adapter.Adapter[anthropicadapter.MessagesRequest, anthropicadapter.MessagesResponse, anthropicadapter.StreamEvent]
	RequestTimeout time.Duration
	StreamTimeout  time.Duration
}

// Compile-time check to ensure MessagesHandler implements http.Handler
var _ http.Handler = (*MessagesHandler)(nil)

// ServeHTTP implements http.Handler interface for streaming or non-streaming requests.
func (h *MessagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req anthropicadapter.MessagesRequest
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

// writeResponse handles non-streaming message requests.
func (h *MessagesHandler) writeResponse(
	ctx context.Context,
	w http.ResponseWriter,
	req anthropicadapter.MessagesRequest,
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

// streamResponse streams typed message events using SSE. Every event goes
// out with its event-type line; the stream ends after message_stop with
// no extra terminator.
func (h *MessagesHandler) streamResponse(
	ctx context.Context,
	w http.ResponseWriter,
	req anthropicadapter.MessagesRequest,
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

	for event, err := range stream {
		if ctx.Err() != nil {
			slog.DebugContext(ctx, "client disconnected during stream")
			return
		}

		if err != nil {
			slog.ErrorContext(ctx, "stream error", "error", err)
			if writeErr := writeEventJSON(sse, anthropicadapter.ErrorEvent(err)); writeErr != nil {
				slog.ErrorContext(ctx, "failed to write error event", "error", writeErr)
			}
			return
		}

		if writeErr := writeEventJSON(sse, event); writeErr != nil {
			slog.ErrorContext(ctx, "failed to write event", "error", writeErr)
			return
		}
	}
}

// writeEventJSON writes one typed SSE event.
func writeEventJSON(sse *SSEWriter, event *anthropicadapter.StreamEvent) error {
	if err := sse.WriteEvent(event.Type); err != nil {
		return err
	}
	return sse.WriteData(event)
}
