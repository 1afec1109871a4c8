// Package zai speaks the proprietary chat protocol of a Z.ai-compatible
// upstream.
//
// The upstream exposes a browser-oriented API rather than a stable public
// one, which shapes the package in a few ways:
//
//   - Requests carry a browser-identical header set (User-Agent, sec-ch-ua
//     trio, a rotating X-FE-Version token, Origin and a per-chat Referer)
//     because the endpoints reject clients that do not look like the web app.
//
//   - Chat replies are always SSE, even when the request asks for a buffered
//     response. Every caller therefore consumes the frame stream; buffering
//     happens downstream.
//
//   - Each SSE data line wraps the useful payload in a {"data": {...}}
//     envelope. The inner object is decoded as a Frame tagged with a Phase
//     (thinking, answer, tool_call, other).
//
// # Streaming
//
// Client.ChatStream returns the reply as an iter.Seq2 of frames:
//
//	stream, err := client.ChatStream(ctx, req)
//	if err != nil { ... }
//	for frame, err := range stream {
//		if err != nil { ... }
//		// frame.Phase drives the caller's state machine
//	}
//
// A reader goroutine decodes frames into a bounded channel, so a slow
// consumer stops the upstream read and applies TCP backpressure instead of
// buffering the whole reply. An idle watchdog aborts streams that stall.
package zai
