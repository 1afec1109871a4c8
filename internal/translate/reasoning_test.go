package translate

import (
	"strings"
	"testing"
	"time"

	"github.com/Baozhi888/Z.ai2api/internal/store"
)

const wrapped = "<details type=\"reasoning\" open><div>\n\n> First line\n> Second line\n\n</div><summary>Thought for 3 seconds</summary></details>"

func TestCleanThinking(t *testing.T) {
	got := CleanThinking(wrapped)
	want := "First line\nSecond line"
	if got != want {
		t.Errorf("CleanThinking = %q, want %q", got, want)
	}
}

func TestCleanThinkingLeavesPlainText(t *testing.T) {
	if got := CleanThinking("no markup at all"); got != "no markup at all" {
		t.Errorf("got %q", got)
	}
}

func TestCleanerQuoteMarkerAcrossDeltas(t *testing.T) {
	c := newThinkingCleaner()
	got := c.clean("first line\n") + c.clean("> second line")
	if got != "first line\nsecond line" {
		t.Errorf("got %q, want the marker stripped at the frame boundary", got)
	}
}

func TestCleanerStripsWrapperBeforeQuoteMarkers(t *testing.T) {
	c := newThinkingCleaner()
	got := c.clean("<details type=\"reasoning\" open>\n> head of line")
	if got != "head of line" {
		t.Errorf("got %q, want the unwrapped line head dequoted", got)
	}
}

func TestRenderModes(t *testing.T) {
	tests := []struct {
		name string
		mode Mode
		in   string
		want string
	}{
		{"think adds marker", ModeThink, "Let me ponder", "🤔\n\nLet me ponder"},
		{"think strips markup", ModeThink, wrapped, "🤔\n\nFirst line\nSecond line"},
		{"pure quotes lines", ModePure, "one\n\ntwo", "> one\n\n> two"},
		{"pure strips wrapper first", ModePure, wrapped, "> First line\n> Second line"},
		{"raw wraps", ModeRaw, "deep thought", "<details type=\"reasoning\" open><div>\n\ndeep thought\n\n</div><summary>Thought for 2 seconds</summary></details>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Renderer{Mode: tt.mode}
			if got := r.Render(tt.in, 2*time.Second); got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRenderIdempotent(t *testing.T) {
	for _, mode := range []Mode{ModeThink, ModePure, ModeRaw} {
		t.Run(string(mode), func(t *testing.T) {
			r := Renderer{Mode: mode}
			once := r.Render("line one\nline two", 4*time.Second)
			twice := r.Render(once, 4*time.Second)
			if once != twice {
				t.Errorf("second pass changed output:\nonce  %q\ntwice %q", once, twice)
			}
		})
	}
}

func TestRawWrapperReversible(t *testing.T) {
	r := Renderer{Mode: ModeRaw}
	original := "thoughts\nacross lines"
	inner, ok := StripRawWrapper(r.Render(original, 7*time.Second))
	if !ok {
		t.Fatal("rendered text not recognized as wrapped")
	}
	if inner != original {
		t.Errorf("round trip = %q, want %q", inner, original)
	}
}

func TestStripRawWrapperPassesPlainText(t *testing.T) {
	if got, ok := StripRawWrapper("plain"); ok || got != "plain" {
		t.Errorf("got (%q, %v)", got, ok)
	}
}

func TestRenderUsesCache(t *testing.T) {
	cache := store.New(time.Minute, 16)
	defer cache.Close()

	r := Renderer{Mode: ModeThink, Cache: cache, TTL: time.Minute}
	first := r.Render("cached thought", 0)
	second := r.Render("cached thought", 0)

	if first != second {
		t.Fatalf("cache returned a different render: %q vs %q", first, second)
	}
	if stats := cache.Stats(); stats.Hits == 0 {
		t.Errorf("stats = %+v, want a cache hit on the repeat render", stats)
	}
}

func TestParseMode(t *testing.T) {
	for _, valid := range []string{"think", "pure", "raw"} {
		if _, err := ParseMode(valid); err != nil {
			t.Errorf("ParseMode(%q) error = %v", valid, err)
		}
	}
	if _, err := ParseMode("loud"); err == nil {
		t.Error("ParseMode accepted an unknown mode")
	}
}

func TestThinkingStreamPure(t *testing.T) {
	ts := NewThinkingStream(ModePure)
	if ts.Open() != "" {
		t.Errorf("pure open = %q, want empty", ts.Open())
	}
	got := ts.Delta("first li") + ts.Delta("ne\nsecond") + ts.Delta(" line")
	want := "> first line\n> second line"
	if got != want {
		t.Errorf("decorated stream = %q, want %q", got, want)
	}
	if ts.Close(time.Second) != "\n\n" {
		t.Errorf("close = %q, want paragraph break", ts.Close(time.Second))
	}
}

func TestThinkingStreamThink(t *testing.T) {
	ts := NewThinkingStream(ModeThink)
	if ts.Open() != "🤔\n\n" {
		t.Errorf("open = %q", ts.Open())
	}
	if got := ts.Delta("thought"); got != "thought" {
		t.Errorf("delta = %q, want passthrough", got)
	}
}

func TestThinkingStreamRaw(t *testing.T) {
	ts := NewThinkingStream(ModeRaw)
	if !strings.HasPrefix(ts.Open(), "<details") {
		t.Errorf("open = %q, want wrapper", ts.Open())
	}
	closeText := ts.Close(5 * time.Second)
	if !strings.Contains(closeText, "Thought for 5 seconds") {
		t.Errorf("close = %q, want the duration line", closeText)
	}
	if !strings.HasSuffix(closeText, "</details>\n\n") {
		t.Errorf("close = %q, want wrapper end plus bridge", closeText)
	}
}
