package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// SSEWriter encodes server-sent events onto a streaming response.
type SSEWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// NewSSEWriter prepares w for event streaming and commits the stream
// headers. It fails when the underlying writer cannot flush, in which
// case nothing has been committed and the caller may still write a
// JSON error.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		return nil, fmt.Errorf("response writer does not support flushing: %w", err)
	}

	return &SSEWriter{w: w, rc: rc}, nil
}

// WriteEvent writes an event type line. It does not flush; the event is
// incomplete until the data line that follows it.
func (s *SSEWriter) WriteEvent(name string) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\n", name); err != nil {
		return fmt.Errorf("write event type: %w", err)
	}
	return nil
}

// WriteData marshals v into a data line and flushes the event.
func (s *SSEWriter) WriteData(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	return s.WriteRaw(string(payload))
}

// WriteRaw writes data verbatim and flushes the event.
func (s *SSEWriter) WriteRaw(data string) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event data: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("flush event: %w", err)
	}
	return nil
}
