package openaiadapter

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"

	"github.com/Baozhi888/Z.ai2api/internal/zai"
)

// Error types carried in the envelope. Both dialects answer with this
// taxonomy; the HTTP layer maps each type onto a status code.
const (
	ErrTypeInvalidRequest  = "invalid_request_error"
	ErrTypeAuthentication  = "authentication_error"
	ErrTypeRateLimit       = "rate_limit_error"
	ErrTypeUpstream        = "upstream_error"
	ErrTypeUpstreamTimeout = "upstream_timeout"
	ErrTypeServer          = "server_error"

	// ErrTypeToolCall marks a mid-stream tool failure. It never terminates
	// the response; the stream carries on after the error event.
	ErrTypeToolCall = "tool_call_error"
)

// Error is the error detail OpenAI clients expect. Param is always present
// and null; the upstream never attributes failures to a parameter.
type Error struct {
	Message string  `json:"message"`
	Type    string  `json:"type"`
	Code    string  `json:"code,omitempty"`
	Param   *string `json:"param"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// ErrorResponse is the wire envelope {"error":{...}} used for both error
// bodies and streamed error events.
type ErrorResponse struct {
	Err *Error `json:"error"`
}

// Error implements the error interface so the envelope can travel through
// error returns without losing its structure.
func (e *ErrorResponse) Error() string {
	if e.Err == nil {
		return "unknown error"
	}
	return e.Err.Message
}

// NewError builds an envelope of the given type.
func NewError(errType, message string) *ErrorResponse {
	return &ErrorResponse{Err: &Error{Message: message, Type: errType}}
}

// InvalidRequest builds the envelope for a malformed or unparseable
// request.
func InvalidRequest(message string) *ErrorResponse {
	return NewError(ErrTypeInvalidRequest, message)
}

// FromError converts any error into the wire envelope. Upstream failures
// keep their classification, validation failures become invalid_request
// errors, everything else is wrapped as a generic server error. An error
// that already is an envelope passes through unchanged.
func FromError(err error) *ErrorResponse {
	if err == nil {
		return nil
	}

	var resp *ErrorResponse
	if errors.As(err, &resp) {
		return resp
	}

	var zerr *zai.Error
	if errors.As(err, &zerr) {
		switch zerr.Kind {
		case zai.KindTimeout:
			return NewError(ErrTypeUpstreamTimeout, zerr.Error())
		default:
			return NewError(ErrTypeUpstream, zerr.Error())
		}
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return InvalidRequest(verrs.Error())
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(ErrTypeUpstreamTimeout, "request deadline exceeded")
	}

	return NewError(ErrTypeServer, err.Error())
}
