package anthropicadapter

import (
	"github.com/Baozhi888/Z.ai2api/internal/openaiadapter"
)

// ErrorEvent maps a terminal error onto the dialect's in-stream error
// event. The type taxonomy is shared with the completions surface so both
// dialects classify a given failure the same way.
func ErrorEvent(err error) *StreamEvent {
	resp := openaiadapter.FromError(err)
	if resp == nil {
		return nil
	}
	return &StreamEvent{
		Type:  EventError,
		Error: &ErrorDetail{Type: resp.Err.Type, Message: resp.Err.Message},
	}
}
