package openaiadapter

import (
	"iter"
	"strings"

	"github.com/Baozhi888/Z.ai2api/internal/translate"
	"github.com/Baozhi888/Z.ai2api/internal/zai"
)

// chunkStream projects one response's translated events onto
// chat.completion.chunk objects.
type chunkStream struct {
	id           string
	created      int64
	model        string
	machine      *translate.Machine
	thinking     *translate.ThinkingStream
	promptTokens int

	// out accumulates the delivered content text for the usage estimate.
	out strings.Builder
}

// run consumes the upstream frames and yields the chunk sequence, starting
// with the role-bearing preamble chunk.
func (s *chunkStream) run(frames iter.Seq2[*zai.Frame, error]) iter.Seq2[*ChatCompletionChunk, error] {
	return func(yield func(*ChatCompletionChunk, error) bool) {
		if !yield(s.preamble(), nil) {
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

func (s *chunkStream) emit(ev translate.Event, yield func(*ChatCompletionChunk, error) bool) bool {
	switch ev.Kind {
	case translate.KindThinkingStart:
		return s.content(s.thinking.Open(), yield)
	case translate.KindThinkingDelta:
		return s.content(s.thinking.Delta(ev.Text), yield)
	case translate.KindThinkingStop:
		return s.content(s.thinking.Close(ev.Elapsed), yield)
	case translate.KindAnswerDelta:
		return s.content(ev.Text, yield)
	case translate.KindToolOpen:
		return yield(s.chunk(ChunkDelta{ToolCalls: []ToolCallDelta{{
			Index:    ev.Tool.Index,
			ID:       ev.Tool.ID,
			Type:     "function",
			Function: &FunctionDelta{Name: ev.Tool.Name},
		}}}), nil)
	case translate.KindToolArgsDelta:
		return yield(s.chunk(ChunkDelta{ToolCalls: []ToolCallDelta{{
			Index:    ev.Tool.Index,
			Function: &FunctionDelta{Arguments: ev.Text},
		}}}), nil)
	case translate.KindToolError:
		// Non-terminal: the consumer writes the error event and keeps
		// reading.
		return yield(nil, toolCallError(ev))
	case translate.KindFinish:
		return yield(s.closing(ev), nil)
	}
	return true
}

// content yields one text delta. Empties are skipped so pure mode's silent
// opening never produces a blank chunk.
func (s *chunkStream) content(text string, yield func(*ChatCompletionChunk, error) bool) bool {
	if text == "" {
		return true
	}
	s.out.WriteString(text)
	return yield(s.chunk(ChunkDelta{Content: &text}), nil)
}

// closing builds the finish chunk: empty delta, finish reason, and usage
// from the upstream when reported, the estimate otherwise.
func (s *chunkStream) closing(ev translate.Event) *ChatCompletionChunk {
	reason := string(ev.Reason)
	chunk := s.chunk(ChunkDelta{})
	chunk.Choices[0].FinishReason = &reason
	chunk.Usage = resolveUsage(ev.Usage, s.promptTokens, s.out.String())
	return chunk
}

func (s *chunkStream) preamble() *ChatCompletionChunk {
	return s.chunk(ChunkDelta{Role: "assistant"})
}

func (s *chunkStream) chunk(delta ChunkDelta) *ChatCompletionChunk {
	return &ChatCompletionChunk{
		ID:      s.id,
		Object:  objectChunk,
		Created: s.created,
		Model:   s.model,
		Choices: []ChunkChoice{{Delta: delta}},
	}
}

// toolCallError shapes one failed call as a stream error event.
func toolCallError(ev translate.Event) *ErrorResponse {
	resp := NewError(ErrTypeToolCall, ev.Text)
	resp.Err.Code = string(ev.ErrKind)
	return resp
}
