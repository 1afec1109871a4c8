package translate

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Baozhi888/Z.ai2api/internal/store"
)

// Mode selects how reasoning text is rendered for dialects that inline it
// into answer content.
type Mode string

const (
	// ModeThink strips the upstream markup and prepends a thinking marker.
	ModeThink Mode = "think"
	// ModePure strips the upstream markup and quotes every non-empty line.
	ModePure Mode = "pure"
	// ModeRaw re-wraps the text in the upstream's collapsible markup.
	ModeRaw Mode = "raw"
)

// ParseMode validates a configured mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeThink, ModePure, ModeRaw:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown reasoning mode %q", s)
}

// The upstream presents reasoning inside a collapsible HTML fragment:
//
//	<details type="reasoning" open><div>
//
//	> each line quoted
//
//	</div><summary>Thought for N seconds</summary></details>
//
// followed by the visible answer. The tags below are what gets stripped on
// the way in and re-added by ModeRaw on the way out.
const (
	detailsClose   = "</details>"
	detailsCloseNL = detailsClose + "\n"
	divClose       = "</div>"
	quotePrefix    = "> "
	thinkMarker    = "🤔\n\n"

	rawOpen        = "<details type=\"reasoning\" open><div>\n\n"
	rawCloseFormat = "\n\n" + divClose + "<summary>Thought for %d seconds</summary>" + detailsClose
)

var (
	summaryRE     = regexp.MustCompile(`(?s)\n?<summary[^>]*>.*?</summary>\n?`)
	detailsOpenRE = regexp.MustCompile(`<details[^>]*>\n?`)
)

// thinkingCleaner strips presentation markup from reasoning deltas as they
// stream. Wrapper tags are removed before quote markers so a freshly
// unwrapped line head is still recognized; line state persists across
// deltas because markers split at frame boundaries.
type thinkingCleaner struct {
	atLineStart bool
	seen        bool
}

func newThinkingCleaner() *thinkingCleaner {
	return &thinkingCleaner{atLineStart: true}
}

func (c *thinkingCleaner) clean(delta string) string {
	if delta == "" {
		return ""
	}
	if !c.seen {
		c.seen = true
		delta = strings.TrimLeft(delta, "\n")
	}
	if strings.Contains(delta, "<") {
		delta = summaryRE.ReplaceAllString(delta, "")
		delta = detailsOpenRE.ReplaceAllString(delta, "")
		delta = strings.ReplaceAll(delta, detailsClose, "")
		delta = strings.TrimPrefix(delta, "<div>")
		delta = strings.ReplaceAll(delta, "\n\n"+divClose, "")
	}

	var b strings.Builder
	b.Grow(len(delta))
	rest := delta
	for len(rest) > 0 {
		if c.atLineStart && rest[0] == '>' {
			rest = strings.TrimPrefix(rest[1:], " ")
			c.atLineStart = false
			continue
		}
		ch := rest[0]
		b.WriteByte(ch)
		c.atLineStart = ch == '\n'
		rest = rest[1:]
	}
	return b.String()
}

// CleanThinking strips a complete reasoning buffer of wrapper markup and
// quote markers.
func CleanThinking(s string) string {
	c := newThinkingCleaner()
	return strings.TrimSpace(c.clean(s))
}

// quoteLines prefixes each non-empty line with a markdown quote marker,
// leaving already-quoted lines alone.
func quoteLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line == "" || strings.HasPrefix(line, quotePrefix) {
			continue
		}
		lines[i] = quotePrefix + line
	}
	return strings.Join(lines, "\n")
}

// StripRawWrapper removes the collapsible wrapper ModeRaw adds and reports
// whether the text carried one.
func StripRawWrapper(s string) (string, bool) {
	if !strings.HasPrefix(s, rawOpen) || !strings.HasSuffix(s, detailsClose) {
		return s, false
	}
	inner := strings.TrimPrefix(s, rawOpen)
	if i := strings.LastIndex(inner, "\n\n"+divClose+"<summary>"); i >= 0 {
		inner = inner[:i]
	}
	return inner, true
}

// Renderer formats a complete reasoning buffer according to a Mode.
// Rendering is idempotent: feeding a rendered result back in returns it
// unchanged. A nil Cache disables result caching.
type Renderer struct {
	Mode  Mode
	Cache *store.Store
	TTL   time.Duration
}

// Render formats text for inline presentation. elapsed is the reasoning
// duration, shown by ModeRaw's summary line.
func (r Renderer) Render(text string, elapsed time.Duration) string {
	if text == "" {
		return ""
	}
	if r.Mode == ModeRaw {
		// Wrapped output embeds the duration, so it is never cached.
		if _, wrapped := StripRawWrapper(text); wrapped {
			return text
		}
		return rawOpen + text + fmt.Sprintf(rawCloseFormat, int(elapsed.Seconds()))
	}

	key := renderKey(text, r.Mode)
	if r.Cache != nil {
		if hit, ok := r.Cache.Get(key); ok {
			if s, ok := hit.(string); ok {
				return s
			}
		}
	}

	var out string
	switch r.Mode {
	case ModePure:
		out = quoteLines(strings.TrimSpace(stripWrappers(text)))
	default:
		out = CleanThinking(text)
		if out != "" && !strings.HasPrefix(out, "🤔") {
			out = thinkMarker + out
		}
	}

	if r.Cache != nil {
		r.Cache.Set(key, out, r.TTL)
	}
	return out
}

func stripWrappers(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	s = summaryRE.ReplaceAllString(s, "")
	s = detailsOpenRE.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, detailsClose, "")
	s = strings.TrimPrefix(s, "<div>")
	s = strings.ReplaceAll(s, "\n\n"+divClose, "")
	return s
}

// renderKey hashes only a prefix of the text so long buffers do not
// dominate hashing cost. Collisions cost a stale render, nothing worse.
func renderKey(text string, mode Mode) string {
	prefix := text
	if len(prefix) > 100 {
		prefix = prefix[:100]
	}
	return "content_process:" + store.Fingerprint(prefix, string(mode), "render")
}

// ThinkingStream decorates cleaned reasoning deltas incrementally, the way
// Renderer formats a whole buffer, for dialects that inline reasoning into
// streamed answer text. Each method returns the exact text to append.
type ThinkingStream struct {
	mode        Mode
	atLineStart bool
}

// NewThinkingStream returns a decorator for one response's reasoning.
func NewThinkingStream(mode Mode) *ThinkingStream {
	return &ThinkingStream{mode: mode, atLineStart: true}
}

// Open returns the text that precedes the first reasoning delta.
func (t *ThinkingStream) Open() string {
	switch t.mode {
	case ModePure:
		return ""
	case ModeRaw:
		return rawOpen
	default:
		return thinkMarker
	}
}

// Delta decorates one cleaned reasoning fragment.
func (t *ThinkingStream) Delta(text string) string {
	if t.mode != ModePure || text == "" {
		return text
	}
	var b strings.Builder
	b.Grow(len(text) + 8)
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if t.atLineStart && ch != '\n' {
			b.WriteString(quotePrefix)
		}
		b.WriteByte(ch)
		t.atLineStart = ch == '\n'
	}
	return b.String()
}

// Close returns the text bridging frozen reasoning to the answer.
func (t *ThinkingStream) Close(elapsed time.Duration) string {
	if t.mode == ModeRaw {
		return fmt.Sprintf(rawCloseFormat, int(elapsed.Seconds())) + "\n\n"
	}
	return "\n\n"
}
