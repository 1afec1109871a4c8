// Package translate turns the upstream's phased frame stream into a flat,
// dialect-neutral event stream.
//
// The upstream interleaves reasoning, answer text and tool-call fragments
// as phase-tagged frames, some carrying append deltas and some carrying
// replace-style edits. Machine consumes that stream and emits Events that
// already embody the translation decisions: where reasoning starts and
// freezes, which answer deltas are visible, how tool-call argument JSON is
// reassembled and re-chunked, and the single finishing reason. Dialect
// packages render Events into their own wire chunks without re-deriving
// any of this.
//
// Renderer formats a complete reasoning buffer for dialects that inline it
// into answer text; ThinkingStream does the same incrementally for
// streamed responses.
package translate
