package zai

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"

	// maxLineBytes bounds one SSE line. Tool-call frames restate the whole
	// edit buffer, so lines grow with the reply.
	maxLineBytes = 10 << 20
)

// frameScanner reads an upstream SSE body line by line and decodes frames.
// Non-data lines are ignored; data lines that fail to decode are skipped and
// counted, never fatal.
type frameScanner struct {
	scanner *bufio.Scanner
	skipped int
}

func newFrameScanner(r io.Reader) *frameScanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &frameScanner{scanner: sc}
}

// next returns the next decoded frame. io.EOF signals a clean end of the
// sequence, either the [DONE] sentinel or upstream close.
func (s *frameScanner) next() (*Frame, error) {
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if !bytes.HasPrefix(line, []byte(dataPrefix)) {
			continue
		}
		payload := bytes.TrimSpace(line[len(dataPrefix):])
		if len(payload) == 0 {
			continue
		}
		if string(payload) == doneSentinel {
			return nil, io.EOF
		}

		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			s.skipped++
			continue
		}
		frame := env.Data
		return &frame, nil
	}

	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
