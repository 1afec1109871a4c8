// Package openaiadapter serves the OpenAI Chat Completions dialect on top
// of the phased upstream stream.
//
// The adapter handles:
//
//   - Request translation: inbound completion requests become upstream chat
//     requests through the transform pipeline (system coercion, placeholder
//     expansion, model normalization, tool pass-through).
//
//   - Streaming: translated events become chat.completion.chunk objects. A
//     role-bearing preamble chunk opens every stream; reasoning is inlined
//     into content deltas according to the configured mode; tool calls
//     stream as indexed tool_calls deltas; the closing chunk carries the
//     finish reason and usage.
//
//   - Buffering: non-streaming callers get a single chat.completion body
//     assembled from the same event stream, with one retry when the
//     upstream times out before anything was delivered.
//
// Error payloads use the OpenAI envelope {"error":{...}}; the Anthropic
// dialect reuses the same envelope, so the conversion helpers live here.
package openaiadapter
