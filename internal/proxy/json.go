package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Baozhi888/Z.ai2api/internal/openaiadapter"
)

// writeJSON writes a JSON response with the given status code.
// Logs encoding failures internally using the provided context.
func writeJSON(ctx context.Context, w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	// Headers and status are written before encoding to avoid buffering.
	// If encoding fails, the client may receive a partial response.
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}

// writeError writes the error envelope with the HTTP status its type
// maps onto. Both dialect endpoints answer failures with this envelope.
func writeError(ctx context.Context, w http.ResponseWriter, errResp *openaiadapter.ErrorResponse) {
	var status int
	switch errResp.Err.Type {
	case openaiadapter.ErrTypeInvalidRequest:
		status = http.StatusBadRequest
	case openaiadapter.ErrTypeAuthentication:
		status = http.StatusUnauthorized
	case openaiadapter.ErrTypeRateLimit:
		status = http.StatusTooManyRequests
	case openaiadapter.ErrTypeUpstream:
		status = http.StatusBadGateway
	case openaiadapter.ErrTypeUpstreamTimeout:
		status = http.StatusGatewayTimeout
	default:
		status = http.StatusInternalServerError
	}

	writeJSON(ctx, w, errResp, status)
}

// decode reads the request body into v. Size-limit overflows and
// malformed JSON come back as invalid_request envelopes ready to write.
func decode(r *http.Request, v any) *openaiadapter.ErrorResponse {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			slog.WarnContext(r.Context(), "request exceeds size limit", "limit_bytes", maxBytesErr.Limit)
			return openaiadapter.InvalidRequest(http.StatusText(http.StatusRequestEntityTooLarge))
		}
		return openaiadapter.InvalidRequest(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}
