package translate

import (
	"iter"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Baozhi888/Z.ai2api/internal/zai"
)

// State is the translation position within one response.
type State int

const (
	// StateInit precedes the first upstream frame.
	StateInit State = iota
	// StateThinking streams reasoning deltas.
	StateThinking
	// StateBridge sits between frozen reasoning and the first answer text.
	StateBridge
	// StateAnswer streams visible answer deltas.
	StateAnswer
	// StateToolCall assembles tool-call blocks.
	StateToolCall
	// StateDone has emitted the finish event; later frames are discarded.
	StateDone
	// StateError ended the stream on an upstream failure.
	StateError
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateThinking:
		return "thinking"
	case StateBridge:
		return "bridge"
	case StateAnswer:
		return "answer"
	case StateToolCall:
		return "tool_call"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Machine translates one response's frame stream into neutral events. It is
// single-use: create one per upstream exchange.
type Machine struct {
	state   State
	cleaner *thinkingCleaner
	tools   *toolSession
	logger  *slog.Logger
	now     func() time.Time

	toolTimeout time.Duration

	thinkingStarted bool
	thinkStartAt    time.Time
	usage           *zai.Usage
	reason          FinishReason
	strayCloses     int
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithToolTimeout bounds how long a tool call may stay open before it is
// failed with ToolErrorTimeout.
func WithToolTimeout(d time.Duration) MachineOption {
	return func(m *Machine) {
		m.toolTimeout = d
	}
}

// WithLogger routes the machine's diagnostics.
func WithLogger(logger *slog.Logger) MachineOption {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// withClock overrides the wall clock; tests pin freeze timestamps with it.
func withClock(now func() time.Time) MachineOption {
	return func(m *Machine) {
		m.now = now
	}
}

// NewMachine creates a machine in StateInit.
func NewMachine(opts ...MachineOption) *Machine {
	m := &Machine{
		state:   StateInit,
		cleaner: newThinkingCleaner(),
		logger:  slog.Default(),
		now:     time.Now,
		reason:  FinishStop,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.tools = newToolSession(m.toolTimeout)
	return m
}

// State returns the machine's current position.
func (m *Machine) State() State {
	return m.state
}

// ToolCalls returns the completed calls once the stream has finished, for
// buffered response assembly.
func (m *Machine) ToolCalls() []ToolCall {
	return m.tools.completed()
}

// StrayCloses counts close signals that arrived with no call open.
func (m *Machine) StrayCloses() int {
	return m.strayCloses
}

// Run consumes the upstream frame sequence and yields translated events.
// The event sequence ends with either a single KindFinish or an error,
// never both. Frames arriving after the finish are discarded.
func (m *Machine) Run(frames iter.Seq2[*zai.Frame, error]) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		emit := func(ev Event) bool { return yield(ev, nil) }

		for frame, err := range frames {
			if err != nil {
				m.state = StateError
				yield(Event{}, err)
				return
			}
			if m.state == StateDone {
				continue
			}
			if frame.Error != nil {
				m.state = StateError
				yield(Event{}, &zai.Error{Kind: zai.KindBadResponse, Msg: frame.Error.Detail})
				return
			}
			if frame.Usage != nil {
				m.usage = frame.Usage
			}

			now := m.now()
			for _, ev := range m.tools.expire(now) {
				if !emit(ev) {
					return
				}
			}

			if frame.Done {
				if !m.finish(emit) {
					return
				}
				continue
			}

			var ok bool
			switch frame.Phase {
			case zai.PhaseThinking:
				ok = m.onThinking(frame, emit)
			case zai.PhaseAnswer:
				ok = m.onAnswer(frame, emit)
			case zai.PhaseToolCall:
				ok = m.onToolCall(frame, now, emit)
			case zai.PhaseOther:
				ok = m.onOther(frame, emit)
			default:
				// Unknown phases are tolerated the same way the scanner
				// tolerates malformed lines.
				ok = true
			}
			if !ok {
				return
			}
		}

		// Upstream closed without a done marker; settle what is open.
		if m.state != StateDone && m.state != StateError {
			m.finish(emit)
		}
	}
}

func (m *Machine) onThinking(frame *zai.Frame, emit func(Event) bool) bool {
	if m.state != StateThinking {
		if m.thinkingStarted {
			// Reasoning cannot reopen once frozen.
			return true
		}
		m.thinkingStarted = true
		m.thinkStartAt = m.now()
		m.state = StateThinking
		if !emit(Event{Kind: KindThinkingStart}) {
			return false
		}
	}

	text := frame.DeltaContent
	if text == "" {
		text = frame.EditContent
	}
	cleaned := m.cleaner.clean(text)
	if cleaned == "" {
		return true
	}
	return emit(Event{Kind: KindThinkingDelta, Text: cleaned})
}

func (m *Machine) onAnswer(frame *zai.Frame, emit func(Event) bool) bool {
	if m.tools.active() {
		// Prose alongside an open tool call is upstream filler; the real
		// payload of the reply is the pending call.
		return true
	}

	text := frame.DeltaContent
	if m.state == StateThinking {
		// The frame that ends reasoning carries an edit whose tail, after
		// the closing tag, is the opening of the visible answer.
		if _, after, found := strings.Cut(frame.EditContent, detailsCloseNL); found {
			text = after
		} else if text == "" {
			return true
		}
		if !m.freeze(emit) {
			return false
		}
		m.state = StateBridge
	}

	if text == "" {
		return true
	}
	m.state = StateAnswer
	return emit(Event{Kind: KindAnswerDelta, Text: text})
}

func (m *Machine) onToolCall(frame *zai.Frame, now time.Time, emit func(Event) bool) bool {
	if m.state == StateThinking {
		if !m.freeze(emit) {
			return false
		}
	}
	m.state = StateToolCall

	content := frame.EditContent
	if content == "" {
		content = frame.DeltaContent
	}
	for _, ev := range m.tools.feed(content, now) {
		if !emit(ev) {
			return false
		}
	}
	return true
}

func (m *Machine) onOther(frame *zai.Frame, emit func(Event) bool) bool {
	if !strings.HasPrefix(frame.EditContent, "null,") {
		return true
	}

	events, closed := m.tools.closeAll()
	if !closed {
		m.strayCloses++
		m.logger.Debug("tool close signal with no open call",
			slog.Int("count", m.strayCloses))
		return true
	}
	for _, ev := range events {
		if !emit(ev) {
			return false
		}
	}
	m.reason = FinishToolCalls
	return m.finish(emit)
}

// finish settles open sections and emits the terminal event.
func (m *Machine) finish(emit func(Event) bool) bool {
	if m.state == StateThinking {
		if !m.freeze(emit) {
			return false
		}
	}
	if m.tools.active() {
		events, _ := m.tools.closeAll()
		for _, ev := range events {
			if !emit(ev) {
				return false
			}
		}
		m.reason = FinishToolCalls
	}
	m.state = StateDone
	return emit(Event{Kind: KindFinish, Reason: m.reason, Usage: m.usage})
}

// freeze closes the reasoning section, stamped with the wall-clock moment
// the upstream stopped thinking.
func (m *Machine) freeze(emit func(Event) bool) bool {
	now := m.now()
	return emit(Event{
		Kind:      KindThinkingStop,
		Signature: strconv.FormatInt(now.UnixMilli(), 10),
		Elapsed:   now.Sub(m.thinkStartAt),
	})
}
