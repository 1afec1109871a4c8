package anthropicadapter

import (
	"encoding/json"
	"iter"
	"strings"

	"github.com/Baozhi888/Z.ai2api/internal/translate"
	"github.com/Baozhi888/Z.ai2api/internal/zai"
)

// eventStream projects one response's translated events onto the typed
// event sequence: message_start, ping, content blocks in arrival order,
// message_delta with usage, message_stop.
type eventStream struct {
	machine      *translate.Machine
	model        string
	promptTokens int

	nextIndex  int
	thinkIndex *int        // open thinking block, nil once closed
	textIndex  *int        // open text block, nil until the first answer delta
	toolIndex  map[int]int // tool call ordinal -> block index
	out        strings.Builder
}

// run yields the event sequence for the given frames. Tool failures become
// in-band error events; a machine error ends the sequence.
func (s *eventStream) run(frames iter.Seq2[*zai.Frame, error]) iter.Seq2[*StreamEvent, error] {
	return func(yield func(*StreamEvent, error) bool) {
		if !yield(s.messageStart(), nil) {
			return
		}
		if !yield(&StreamEvent{Type: EventPing}, nil) {
			return
		}
		for ev, err := range s.machine.Run(frames) {
			if err != nil {
				yield(nil, err)
				return
			}
			if !s.emit(ev, yield) {
				return
			}
		}
	}
}

// messageStart opens the response envelope. Stop fields stay null and the
// content array empty until the stream delivers them.
func (s *eventStream) messageStart() *StreamEvent {
	return &StreamEvent{
		Type: EventMessageStart,
		Message: &MessagesResponse{
			ID:      newMessageID(),
			Type:    "message",
			Role:    "assistant",
			Content: []ContentBlock{},
			Model:   s.model,
		},
	}
}

func (s *eventStream) emit(ev translate.Event, yield func(*StreamEvent, error) bool) bool {
	switch ev.Kind {
	case translate.KindThinkingStart:
		idx := s.alloc()
		s.thinkIndex = &idx
		empty := ""
		return yield(&StreamEvent{
			Type:         EventContentBlockStart,
			Index:        &idx,
			ContentBlock: &ContentBlock{Type: "thinking", Thinking: &empty},
		}, nil)

	case translate.KindThinkingDelta:
		if s.thinkIndex == nil {
			return true
		}
		s.out.WriteString(ev.Text)
		return yield(&StreamEvent{
			Type:  EventContentBlockDelta,
			Index: s.thinkIndex,
			Delta: &BlockDelta{Type: "thinking_delta", Thinking: ev.Text},
		}, nil)

	case translate.KindThinkingStop:
		if s.thinkIndex == nil {
			return true
		}
		idx := s.thinkIndex
		s.thinkIndex = nil
		if !yield(&StreamEvent{
			Type:  EventContentBlockDelta,
			Index: idx,
			Delta: &BlockDelta{Type: "signature_delta", Signature: ev.Signature},
		}, nil) {
			return false
		}
		return yield(&StreamEvent{Type: EventContentBlockStop, Index: idx}, nil)

	case translate.KindAnswerDelta:
		if s.textIndex == nil {
			idx := s.alloc()
			s.textIndex = &idx
			empty := ""
			if !yield(&StreamEvent{
				Type:         EventContentBlockStart,
				Index:        &idx,
				ContentBlock: &ContentBlock{Type: "text", Text: &empty},
			}, nil) {
				return false
			}
		}
		s.out.WriteString(ev.Text)
		return yield(&StreamEvent{
			Type:  EventContentBlockDelta,
			Index: s.textIndex,
			Delta: &BlockDelta{Type: "text_delta", Text: ev.Text},
		}, nil)

	case translate.KindToolOpen:
		if !s.closeText(yield) {
			return false
		}
		idx := s.alloc()
		s.toolIndex[ev.Tool.Index] = idx
		return yield(&StreamEvent{
			Type:  EventContentBlockStart,
			Index: &idx,
			ContentBlock: &ContentBlock{
				Type:  "tool_use",
				ID:    ev.Tool.ID,
				Name:  ev.Tool.Name,
				Input: json.RawMessage("{}"),
			},
		}, nil)

	case translate.KindToolArgsDelta:
		idx, ok := s.toolIndex[ev.Tool.Index]
		if !ok {
			return true
		}
		return yield(&StreamEvent{
			Type:  EventContentBlockDelta,
			Index: &idx,
			Delta: &BlockDelta{Type: "input_json_delta", PartialJSON: ev.Text},
		}, nil)

	case translate.KindToolClose:
		idx, ok := s.toolIndex[ev.Tool.Index]
		if !ok {
			return true
		}
		return yield(&StreamEvent{Type: EventContentBlockStop, Index: &idx}, nil)

	case translate.KindToolError:
		if idx, ok := s.toolIndex[ev.Tool.Index]; ok {
			if !yield(&StreamEvent{Type: EventContentBlockStop, Index: &idx}, nil) {
				return false
			}
		}
		return yield(&StreamEvent{
			Type:  EventError,
			Error: &ErrorDetail{Type: "tool_call_error", Message: ev.Text},
		}, nil)

	case translate.KindFinish:
		if !s.closeText(yield) {
			return false
		}
		usage := resolveUsage(ev.Usage, s.promptTokens, s.out.String())
		if !yield(&StreamEvent{
			Type:  EventMessageDelta,
			Delta: &MessageDelta{StopReason: stopReason(ev.Reason)},
			Usage: &usage,
		}, nil) {
			return false
		}
		return yield(&StreamEvent{Type: EventMessageStop}, nil)
	}
	return true
}

// closeText ends the open text block, if any.
func (s *eventStream) closeText(yield func(*StreamEvent, error) bool) bool {
	if s.textIndex == nil {
		return true
	}
	idx := s.textIndex
	s.textIndex = nil
	return yield(&StreamEvent{Type: EventContentBlockStop, Index: idx}, nil)
}

func (s *eventStream) alloc() int {
	idx := s.nextIndex
	s.nextIndex++
	return idx
}
