// Package transform normalizes inbound requests of either dialect into the
// common upstream form: system messages are coerced into the user prompt,
// dynamic {{...}} placeholders are expanded, model names are mapped onto
// the upstream catalog and tool declarations are carried across dialects
// without touching their JSON Schema bytes.
package transform
