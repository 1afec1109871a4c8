package zai

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ErrorKind classifies a failed upstream exchange for status mapping.
type ErrorKind string

const (
	KindUnavailable  ErrorKind = "upstream_unavailable"
	KindTimeout      ErrorKind = "upstream_timeout"
	KindUnauthorized ErrorKind = "upstream_unauthorized"
	KindBadResponse  ErrorKind = "upstream_bad_response"
)

// Error describes a failed exchange with the upstream.
type Error struct {
	Kind   ErrorKind
	Status int
	Msg    string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream: %s (status %d)", e.Msg, e.Status)
	}
	return "upstream: " + e.Msg
}

// Timeout reports whether the exchange failed on a deadline, either the
// stream-idle watchdog or an HTTP-level timeout.
func (e *Error) Timeout() bool {
	return e.Kind == KindTimeout
}

// newStatusError converts a non-2xx upstream response into an *Error,
// sampling the body for the log line.
func newStatusError(resp *http.Response) *Error {
	kind := KindUnavailable
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = KindUnauthorized
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		kind = KindTimeout
	}

	msg := "request rejected"
	if body, err := io.ReadAll(io.LimitReader(resp.Body, 2048)); err == nil && len(body) > 0 {
		var wire struct {
			Error *WireError `json:"error"`
		}
		if json.Unmarshal(body, &wire) == nil && wire.Error != nil && wire.Error.Detail != "" {
			msg = wire.Error.Detail
		} else {
			msg = string(body)
		}
	}

	return &Error{Kind: kind, Status: resp.StatusCode, Msg: msg}
}
