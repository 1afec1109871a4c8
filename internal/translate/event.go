package translate

import (
	"time"

	"github.com/Baozhi888/Z.ai2api/internal/zai"
)

// Kind identifies one kind of translated stream event.
type Kind int

const (
	// KindThinkingStart opens the reasoning section of a response. It is
	// emitted at most once, before the first KindThinkingDelta.
	KindThinkingStart Kind = iota

	// KindThinkingDelta carries a fragment of reasoning text with the
	// upstream's presentation markup already stripped.
	KindThinkingDelta

	// KindThinkingStop freezes the reasoning section. Signature holds the
	// freeze timestamp, Elapsed how long the model reasoned.
	KindThinkingStop

	// KindAnswerDelta carries a fragment of visible answer text.
	KindAnswerDelta

	// KindToolOpen announces a tool call; Tool carries its identity.
	KindToolOpen

	// KindToolArgsDelta carries a fragment of a tool call's argument JSON.
	// Concatenating one call's fragments reproduces the upstream
	// serialization byte for byte.
	KindToolArgsDelta

	// KindToolClose completes a tool call's argument stream.
	KindToolClose

	// KindToolError reports a call that could not complete. The response
	// stream itself carries on.
	KindToolError

	// KindFinish ends the stream. It is emitted exactly once per response
	// and carries the final reason plus any upstream-reported usage.
	KindFinish
)

func (k Kind) String() string {
	switch k {
	case KindThinkingStart:
		return "thinking_start"
	case KindThinkingDelta:
		return "thinking_delta"
	case KindThinkingStop:
		return "thinking_stop"
	case KindAnswerDelta:
		return "answer_delta"
	case KindToolOpen:
		return "tool_open"
	case KindToolArgsDelta:
		return "tool_args_delta"
	case KindToolClose:
		return "tool_close"
	case KindToolError:
		return "tool_error"
	case KindFinish:
		return "finish"
	}
	return "unknown"
}

// FinishReason is the dialect-neutral reason a response ended. Dialects map
// it onto their own vocabulary.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishLength    FinishReason = "length"
)

// ToolErrorKind classifies why a tool call failed to complete.
type ToolErrorKind string

const (
	// ToolErrorBadArguments marks argument buffers that do not parse as
	// JSON once the call closes.
	ToolErrorBadArguments ToolErrorKind = "bad_arguments"
	// ToolErrorTimeout marks calls that stayed open past the deadline.
	ToolErrorTimeout ToolErrorKind = "timeout"
)

// ToolRef identifies one tool call within a response. Index is the call's
// ordinal in arrival order; ID is the upstream id, or a synthesized one
// when the upstream sent none.
type ToolRef struct {
	Index int
	ID    string
	Name  string
}

// Event is one output of the Machine. Only the fields implied by Kind are
// populated.
type Event struct {
	Kind Kind

	// Text carries thinking, answer and argument delta content, or the
	// message of a tool error.
	Text string

	// Tool identifies the call for tool events.
	Tool ToolRef

	// Signature is the reasoning freeze timestamp in Unix milliseconds.
	Signature string
	// Elapsed is the reasoning duration at freeze time.
	Elapsed time.Duration

	// ErrKind classifies a KindToolError.
	ErrKind ToolErrorKind

	// Reason and Usage accompany KindFinish. Usage is nil when the
	// upstream reported none; callers fall back to EstimateTokens.
	Reason FinishReason
	Usage  *zai.Usage
}
