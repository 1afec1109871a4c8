package translate

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Tool-call payloads arrive embedded in edit content between sentinel
// markers; the bytes in between are a JSON document. A block is complete
// once its closing marker has arrived.
const (
	blockOpen  = "<glm_block >"
	blockClose = "</glm_block>"

	// argChunkRunes caps re-emitted argument fragments, mirroring how
	// dialect SDKs stream partial JSON.
	argChunkRunes = 100

	defaultToolTimeout = 30 * time.Second
)

// CallState tracks a tool call through its lifecycle.
type CallState int

const (
	// CallOpen means the call is announced and may still receive arguments.
	CallOpen CallState = iota
	// CallClosed means the call's argument JSON validated and completed.
	CallClosed
	// CallFailed means the call was abandoned: bad arguments or timeout.
	CallFailed
)

// ToolCall is the assembly state of one upstream tool invocation.
// Arguments holds the canonical JSON exactly as the upstream serialized it.
type ToolCall struct {
	Index     int
	ID        string
	Name      string
	Arguments string
	State     CallState

	openedAt time.Time
}

func (c *ToolCall) ref() ToolRef {
	return ToolRef{Index: c.Index, ID: c.ID, Name: c.Name}
}

// toolSession reassembles tool calls from the block fragments scattered
// across tool_call frames. Only closed blocks are processed; an unclosed
// trailing block is carried into the next frame's content.
type toolSession struct {
	calls   []*ToolCall
	pending string
	timeout time.Duration
}

func newToolSession(timeout time.Duration) *toolSession {
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}
	return &toolSession{timeout: timeout}
}

func (s *toolSession) active() bool {
	for _, c := range s.calls {
		if c.State == CallOpen {
			return true
		}
	}
	return false
}

// feed scans one frame's edit content for tool blocks. Each newly closed
// block either opens a call (tool-open plus its argument fragments) or
// extends one the upstream restated.
func (s *toolSession) feed(editContent string, now time.Time) []Event {
	var events []Event
	text := s.pending + editContent
	s.pending = ""

	segments := strings.Split(text, blockOpen)
	for i, seg := range segments {
		if i == 0 {
			// Prose before the first marker is presentation scaffolding.
			continue
		}
		end := strings.Index(seg, blockClose)
		if end < 0 {
			if i == len(segments)-1 {
				s.pending = blockOpen + seg
			}
			continue
		}
		events = append(events, s.ingestBlock(seg[:end], now)...)
	}
	return events
}

// ingestBlock decodes one closed block payload into call events. The
// argument serialization is lifted verbatim from the payload, so the
// re-chunked fragments concatenate back to the upstream bytes.
func (s *toolSession) ingestBlock(payload string, now time.Time) []Event {
	if gjson.Get(payload, "type").String() != "tool_call" {
		return nil
	}
	meta := gjson.Get(payload, "data.metadata")
	name := meta.Get("name").String()
	if name == "" {
		return nil
	}

	args := meta.Get("arguments")
	var serialized string
	switch {
	case !args.Exists():
		serialized = "{}"
	case args.Type == gjson.String:
		// String-typed arguments already hold serialized JSON.
		serialized = args.String()
	default:
		serialized = args.Raw
	}

	id := meta.Get("id").String()
	if call := s.lookup(id, name); call != nil {
		return s.extend(call, serialized)
	}

	if id == "" {
		id = synthesizeCallID()
	}
	call := &ToolCall{
		Index:    len(s.calls),
		ID:       id,
		Name:     name,
		State:    CallOpen,
		openedAt: now,
	}
	s.calls = append(s.calls, call)

	events := []Event{{Kind: KindToolOpen, Tool: call.ref()}}
	return append(events, s.extend(call, serialized)...)
}

func (s *toolSession) lookup(id, name string) *ToolCall {
	if id == "" {
		return nil
	}
	for _, c := range s.calls {
		if c.ID == id && c.Name == name {
			return c
		}
	}
	return nil
}

// extend emits whatever of the serialization has not been sent yet. A
// restated block that only repeats known bytes produces nothing; bytes
// already on the wire are never retracted.
func (s *toolSession) extend(call *ToolCall, serialized string) []Event {
	if call.State != CallOpen || !strings.HasPrefix(serialized, call.Arguments) {
		return nil
	}
	tail := serialized[len(call.Arguments):]
	if tail == "" {
		return nil
	}
	call.Arguments = serialized

	var events []Event
	for _, fragment := range chunkRunes(tail, argChunkRunes) {
		events = append(events, Event{Kind: KindToolArgsDelta, Tool: call.ref(), Text: fragment})
	}
	return events
}

// closeAll resolves every open call: valid argument JSON closes it,
// anything else fails it. The second return is false when no call was open,
// which callers count as a stray close signal.
func (s *toolSession) closeAll() ([]Event, bool) {
	var events []Event
	closed := false
	for _, call := range s.calls {
		if call.State != CallOpen {
			continue
		}
		closed = true
		if json.Valid([]byte(call.Arguments)) {
			call.State = CallClosed
			events = append(events, Event{Kind: KindToolClose, Tool: call.ref()})
			continue
		}
		call.State = CallFailed
		events = append(events, Event{
			Kind:    KindToolError,
			Tool:    call.ref(),
			ErrKind: ToolErrorBadArguments,
			Text:    fmt.Sprintf("tool call %s closed with invalid argument JSON", call.Name),
		})
	}
	return events, closed
}

// expire fails calls that have stayed open past the session timeout.
func (s *toolSession) expire(now time.Time) []Event {
	var events []Event
	for _, call := range s.calls {
		if call.State != CallOpen || now.Sub(call.openedAt) <= s.timeout {
			continue
		}
		call.State = CallFailed
		events = append(events, Event{
			Kind:    KindToolError,
			Tool:    call.ref(),
			ErrKind: ToolErrorTimeout,
			Text:    fmt.Sprintf("tool call %s still open after %s", call.Name, s.timeout),
		})
	}
	return events
}

// completed returns the calls whose argument JSON validated, for buffered
// response assembly.
func (s *toolSession) completed() []ToolCall {
	var out []ToolCall
	for _, c := range s.calls {
		if c.State == CallClosed {
			out = append(out, *c)
		}
	}
	return out
}

// synthesizeCallID mints an id for blocks the upstream sent without one.
func synthesizeCallID() string {
	return "call_" + uuid.NewString()[:8]
}

// chunkRunes splits s into rune-aligned pieces of at most n runes.
func chunkRunes(s string, n int) []string {
	if s == "" {
		return nil
	}
	var parts []string
	for len(s) > 0 {
		i, count := 0, 0
		for i < len(s) && count < n {
			_, size := utf8.DecodeRuneInString(s[i:])
			i += size
			count++
		}
		parts = append(parts, s[:i])
		s = s[i:]
	}
	return parts
}
