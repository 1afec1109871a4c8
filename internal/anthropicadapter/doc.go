// Package anthropicadapter serves the Anthropic Messages dialect on top of
// the phased upstream stream.
//
// The adapter handles:
//
//   - Request translation: system prompts (strings or text blocks) and
//     multimodal content lists are converted to upstream message shapes;
//     thinking is on unless the request disables it; tool declarations keep
//     their input_schema bytes intact.
//
//   - Streaming: translated events become the typed event sequence Messages
//     clients expect: message_start, one ping, content blocks in order
//     (thinking with a closing signature_delta, text, tool_use with
//     input_json_delta fragments), message_delta with the stop reason and
//     usage, message_stop.
//
//   - Buffering: non-streaming callers get a single message body whose
//     content array carries the same blocks, with one retry when the
//     upstream times out before anything was delivered.
//
// Reasoning is a first-class thinking block here; the inline rendering
// modes belong to the OpenAI dialect.
package anthropicadapter
