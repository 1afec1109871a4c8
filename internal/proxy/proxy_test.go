package proxy

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/Baozhi888/Z.ai2api/internal/anthropicadapter"
	"github.com/Baozhi888/Z.ai2api/internal/metrics"
	"github.com/Baozhi888/Z.ai2api/internal/openaiadapter"
	"github.com/Baozhi888/Z.ai2api/internal/store"
	"github.com/Baozhi888/Z.ai2api/internal/zai"
)

// routingTransport serves canned upstream responses keyed by path: the
// model catalog as JSON, everything else as an SSE chat exchange.
type routingTransport struct {
	mu sync.Mutex

	chatStatus int
	chatBody   string
	chatCalls  int

	modelsStatus int
	modelsBody   string
	modelsCalls  int
}

func (rt *routingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if req.URL.Path == "/api/models" {
		rt.modelsCalls++
		return cannedResponse(rt.modelsStatus, rt.modelsBody, "application/json"), nil
	}

	rt.chatCalls++
	return cannedResponse(rt.chatStatus, rt.chatBody, "text/event-stream"), nil
}

// blockingTransport parks every exchange until released, so tests can
// hold requests in flight.
type blockingTransport struct {
	started chan struct{}
	release chan struct{}
}

func (bt *blockingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	bt.started <- struct{}{}
	<-bt.release
	return cannedResponse(http.StatusOK, sse(
		`data: {"data":{"phase":"answer","delta_content":"ok"}}`,
		`data: {"data":{"done":true}}`,
	), "text/event-stream"), nil
}

func cannedResponse(status int, body, contentType string) *http.Response {
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{contentType}},
	}
}

func sse(lines ...string) string {
	return strings.Join(lines, "\n")
}

func answerExchange() string {
	return sse(
		`data: {"data":{"phase":"answer","delta_content":"Hello"}}`,
		`data: {"data":{"done":true,"usage":{"input_tokens":1,"output_tokens":2}}}`,
	)
}

func newTestDeps(tb testing.TB, rt http.RoundTripper) Deps {
	tb.Helper()

	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	tokens := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"})
	client, err := zai.NewClient("https://upstream.test", tokens, zai.WithTransport(rt))
	if err != nil {
		tb.Fatalf("NewClient() error = %v", err)
	}

	cache := store.New(time.Minute, 100)
	tb.Cleanup(func() { _ = cache.Close() })

	return Deps{
		Completions: openaiadapter.NewCompletionsAdapter(client, openaiadapter.Options{DefaultModel: "glm-4.5v"}),
		Messages:    anthropicadapter.NewMessagesAdapter(client, anthropicadapter.Options{DefaultModel: "glm-4.5v"}),
		Upstream:    client,
		Cache:       cache,
		Meters:      metrics.New(),
	}
}

func newTestProxy(tb testing.TB, rt http.RoundTripper, opts Options) *Proxy {
	tb.Helper()

	p, err := New(newTestDeps(tb, rt), opts)
	if err != nil {
		tb.Fatalf("New() error = %v", err)
	}
	return p
}

func doRequest(t *testing.T, p *Proxy, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)
	return rec
}

func assertErrorType(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int, wantType string) {
	t.Helper()

	if rec.Code != wantStatus {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, wantStatus, rec.Body.String())
	}
	var resp openaiadapter.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("error body is not an envelope: %v", err)
	}
	if resp.Err == nil || resp.Err.Type != wantType {
		t.Errorf("error = %+v, want type %q", resp.Err, wantType)
	}
}

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	name string
	data string
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()

	var events []sseEvent
	for _, block := range strings.Split(body, "\n\n") {
		if strings.TrimSpace(block) == "" {
			continue
		}
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			if name, ok := strings.CutPrefix(line, "event: "); ok {
				ev.name = name
			}
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				ev.data = data
			}
		}
		events = append(events, ev)
	}
	return events
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Deps{}, Options{}); err == nil {
		t.Fatal("New() with empty deps succeeded, want error")
	}
}

func TestBanner(t *testing.T) {
	p := newTestProxy(t, &routingTransport{}, Options{})

	rec := doRequest(t, p, http.MethodGet, "/", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var banner struct {
		Service   string            `json:"service"`
		Version   string            `json:"version"`
		Endpoints map[string]string `json:"endpoints"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &banner); err != nil {
		t.Fatalf("banner decode: %v", err)
	}
	if banner.Service != "z.ai2api" || banner.Version == "" {
		t.Errorf("banner = %+v, want service z.ai2api with a version", banner)
	}
	if banner.Endpoints["openai_chat"] != "/v1/chat/completions" {
		t.Errorf("endpoints = %v, want openai_chat entry", banner.Endpoints)
	}
	if banner.Endpoints["anthropic_messages"] != "/v1/messages" {
		t.Errorf("endpoints = %v, want anthropic_messages entry", banner.Endpoints)
	}
}

func TestHealth(t *testing.T) {
	p := newTestProxy(t, &routingTransport{}, Options{})

	rec := doRequest(t, p, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("health decode: %v", err)
	}
	if body["status"] != "ok" || body["service"] != "z.ai2api" {
		t.Errorf("health = %v, want status ok, service z.ai2api", body)
	}
}

type stubReadiness struct{ ready bool }

func (s stubReadiness) IsReady() bool { return s.ready }

func TestReadiness(t *testing.T) {
	tests := []struct {
		name       string
		ready      bool
		wantStatus int
	}{
		{name: "ready", ready: true, wantStatus: http.StatusOK},
		{name: "not ready", ready: false, wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newTestDeps(t, &routingTransport{})
			deps.Readiness = stubReadiness{ready: tt.ready}
			p, err := New(deps, Options{})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if rec := doRequest(t, p, http.MethodGet, "/ready", "", nil); rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	p := newTestProxy(t, &routingTransport{chatBody: answerExchange()}, Options{})

	if rec := doRequest(t, p, http.MethodGet, "/nope", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", rec.Code)
	}
	if rec := doRequest(t, p, http.MethodGet, "/v1/chat/completions", "", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET on POST route status = %d, want 405", rec.Code)
	}
}

func TestAuthentication(t *testing.T) {
	chatReq := `{"model":"glm-4.5v","messages":[{"role":"user","content":"Hi"}]}`
	messagesReq := `{"model":"glm-4.5v","max_tokens":64,"messages":[{"role":"user","content":"Hi"}]}`

	t.Run("disabled gate admits everyone", func(t *testing.T) {
		p := newTestProxy(t, &routingTransport{chatBody: answerExchange()}, Options{})
		if rec := doRequest(t, p, http.MethodPost, "/v1/chat/completions", chatReq, nil); rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200 without key", rec.Code)
		}
	})

	key := "sk-test-key"
	opts := Options{AccessKey: key}

	t.Run("missing key rejected", func(t *testing.T) {
		p := newTestProxy(t, &routingTransport{chatBody: answerExchange()}, opts)
		rec := doRequest(t, p, http.MethodPost, "/v1/chat/completions", chatReq, nil)
		assertErrorType(t, rec, http.StatusUnauthorized, openaiadapter.ErrTypeAuthentication)
	})

	t.Run("wrong key rejected", func(t *testing.T) {
		p := newTestProxy(t, &routingTransport{chatBody: answerExchange()}, opts)
		rec := doRequest(t, p, http.MethodPost, "/v1/chat/completions", chatReq, map[string]string{
			"Authorization": "Bearer sk-wrong",
		})
		assertErrorType(t, rec, http.StatusUnauthorized, openaiadapter.ErrTypeAuthentication)
	})

	t.Run("bearer token accepted", func(t *testing.T) {
		p := newTestProxy(t, &routingTransport{chatBody: answerExchange()}, opts)
		rec := doRequest(t, p, http.MethodPost, "/v1/chat/completions", chatReq, map[string]string{
			"Authorization": "Bearer " + key,
		})
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200 with bearer key", rec.Code)
		}
	})

	t.Run("x-api-key accepted on messages", func(t *testing.T) {
		p := newTestProxy(t, &routingTransport{chatBody: answerExchange()}, opts)
		rec := doRequest(t, p, http.MethodPost, "/v1/messages", messagesReq, map[string]string{
			"x-api-key": key,
		})
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200 with x-api-key", rec.Code)
		}
	})

	t.Run("x-api-key rejected elsewhere", func(t *testing.T) {
		p := newTestProxy(t, &routingTransport{chatBody: answerExchange()}, opts)
		rec := doRequest(t, p, http.MethodPost, "/v1/chat/completions", chatReq, map[string]string{
			"x-api-key": key,
		})
		assertErrorType(t, rec, http.StatusUnauthorized, openaiadapter.ErrTypeAuthentication)
	})

	t.Run("admin surface gated", func(t *testing.T) {
		p := newTestProxy(t, &routingTransport{}, opts)
		rec := doRequest(t, p, http.MethodGet, "/metrics", "", nil)
		assertErrorType(t, rec, http.StatusUnauthorized, openaiadapter.ErrTypeAuthentication)
	})

	t.Run("probes stay public", func(t *testing.T) {
		p := newTestProxy(t, &routingTransport{}, opts)
		for _, path := range []string{"/", "/health", "/ready"} {
			if rec := doRequest(t, p, http.MethodGet, path, "", nil); rec.Code != http.StatusOK {
				t.Errorf("%s status = %d, want 200 without key", path, rec.Code)
			}
		}
	})
}

func TestConcurrencyLimit(t *testing.T) {
	transport := &blockingTransport{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	p := newTestProxy(t, transport, Options{MaxConcurrent: 1})

	chatReq := `{"model":"glm-4.5v","messages":[{"role":"user","content":"Hi"}]}`
	firstDone := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		firstDone <- doRequest(t, p, http.MethodPost, "/v1/chat/completions", chatReq, nil)
	}()

	select {
	case <-transport.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first request never reached the upstream")
	}

	rec := doRequest(t, p, http.MethodPost, "/v1/chat/completions", chatReq, nil)
	assertErrorType(t, rec, http.StatusTooManyRequests, openaiadapter.ErrTypeRateLimit)

	// Admin and probe paths stay reachable while the gate is full.
	if rec := doRequest(t, p, http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200 during saturation", rec.Code)
	}

	close(transport.release)
	select {
	case first := <-firstDone:
		if first.Code != http.StatusOK {
			t.Errorf("first request status = %d, want 200", first.Code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first request never finished")
	}
}

func TestCORS(t *testing.T) {
	t.Run("wildcard reflects any origin", func(t *testing.T) {
		p := newTestProxy(t, &routingTransport{}, Options{})
		rec := doRequest(t, p, http.MethodGet, "/health", "", map[string]string{
			"Origin": "https://app.example",
		})
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Allow-Origin = %q, want *", got)
		}
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		p := newTestProxy(t, &routingTransport{}, Options{AccessKey: "sk-test"})
		req := httptest.NewRequest(http.MethodOptions, "/v1/chat/completions", nil)
		req.Header.Set("Origin", "https://app.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		p.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want 204", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, http.MethodPost) {
			t.Errorf("Allow-Methods = %q, want POST included", got)
		}
		if got := rec.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, "Authorization") {
			t.Errorf("Allow-Headers = %q, want Authorization included", got)
		}
	})

	t.Run("restricted origins echo exact match only", func(t *testing.T) {
		p := newTestProxy(t, &routingTransport{}, Options{Origins: []string{"https://app.example"}})

		rec := doRequest(t, p, http.MethodGet, "/health", "", map[string]string{
			"Origin": "https://app.example",
		})
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
			t.Errorf("Allow-Origin = %q, want echoed origin", got)
		}

		rec = doRequest(t, p, http.MethodGet, "/health", "", map[string]string{
			"Origin": "https://evil.example",
		})
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Allow-Origin = %q, want unset for unknown origin", got)
		}
	})
}

func TestRequestIDPropagation(t *testing.T) {
	p := newTestProxy(t, &routingTransport{}, Options{})

	rec := doRequest(t, p, http.MethodGet, "/health", "", map[string]string{
		"X-Request-ID": "req-42",
	})
	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("X-Request-ID = %q, want caller id echoed", got)
	}

	rec = doRequest(t, p, http.MethodGet, "/health", "", nil)
	if got := rec.Header().Get("X-Request-ID"); got == "" {
		t.Error("X-Request-ID missing, want generated id")
	}
}

func TestChatCompletionsBuffered(t *testing.T) {
	p := newTestProxy(t, &routingTransport{chatBody: answerExchange()}, Options{})

	rec := doRequest(t, p, http.MethodPost, "/v1/chat/completions",
		`{"model":"glm-4.5v","messages":[{"role":"user","content":"Hi"}]}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}

	var resp openaiadapter.ChatCompletion
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response decode: %v", err)
	}
	if resp.Object != "chat.completion" {
		t.Errorf("object = %q, want chat.completion", resp.Object)
	}
	if got := resp.Choices[0].Message.Content; got != "Hello" {
		t.Errorf("content = %q, want Hello", got)
	}
	if resp.Usage.PromptTokens != 1 || resp.Usage.CompletionTokens != 2 {
		t.Errorf("usage = %+v, want upstream accounting", resp.Usage)
	}
}

func TestChatCompletionsRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed JSON", body: `{"model":`},
		{name: "missing messages", body: `{"model":"glm-4.5v"}`},
		{name: "missing model", body: `{"messages":[{"role":"user","content":"Hi"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProxy(t, &routingTransport{chatBody: answerExchange()}, Options{})
			rec := doRequest(t, p, http.MethodPost, "/v1/chat/completions", tt.body, nil)
			assertErrorType(t, rec, http.StatusBadRequest, openaiadapter.ErrTypeInvalidRequest)
		})
	}
}

func TestChatCompletionsStreaming(t *testing.T) {
	p := newTestProxy(t, &routingTransport{chatBody: answerExchange()}, Options{})

	rec := doRequest(t, p, http.MethodPost, "/v1/chat/completions",
		`{"model":"glm-4.5v","stream":true,"messages":[{"role":"user","content":"Hi"}]}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", got)
	}

	events := parseSSE(t, rec.Body.String())
	if len(events) < 3 {
		t.Fatalf("got %d events, want preamble, content, finish and terminator", len(events))
	}

	last := events[len(events)-1]
	if last.data != "[DONE]" {
		t.Errorf("last event data = %q, want [DONE]", last.data)
	}

	var content strings.Builder
	for _, ev := range events[:len(events)-1] {
		var chunk openaiadapter.ChatCompletionChunk
		if err := json.Unmarshal([]byte(ev.data), &chunk); err != nil {
			t.Fatalf("chunk decode %q: %v", ev.data, err)
		}
		if delta := chunk.Choices[0].Delta; delta.Content != nil {
			content.WriteString(*delta.Content)
		}
	}
	if content.String() != "Hello" {
		t.Errorf("streamed content = %q, want Hello", content.String())
	}
}

func TestChatCompletionsStreamErrorEndsWithoutDone(t *testing.T) {
	transport := &routingTransport{chatBody: sse(
		`data: {"data":{"phase":"answer","delta_content":"Hi"}}`,
		`data: {"data":{"error":{"detail":"stream broke","code":500}}}`,
	)}
	p := newTestProxy(t, transport, Options{})

	rec := doRequest(t, p, http.MethodPost, "/v1/chat/completions",
		`{"model":"glm-4.5v","stream":true,"messages":[{"role":"user","content":"Hi"}]}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 before the mid-stream failure", rec.Code)
	}

	events := parseSSE(t, rec.Body.String())
	last := events[len(events)-1]
	if last.name != "error" {
		t.Errorf("last event name = %q, want error", last.name)
	}
	var envelope openaiadapter.ErrorResponse
	if err := json.Unmarshal([]byte(last.data), &envelope); err != nil {
		t.Fatalf("error event decode: %v", err)
	}
	if envelope.Err == nil || envelope.Err.Type != openaiadapter.ErrTypeUpstream {
		t.Errorf("error = %+v, want upstream_error", envelope.Err)
	}
	for _, ev := range events {
		if ev.data == "[DONE]" {
			t.Error("stream carries [DONE] after a terminal error")
		}
	}
}

func TestMessagesBuffered(t *testing.T) {
	p := newTestProxy(t, &routingTransport{chatBody: answerExchange()}, Options{})

	rec := doRequest(t, p, http.MethodPost, "/v1/messages",
		`{"model":"glm-4.5v","max_tokens":64,"messages":[{"role":"user","content":"Hi"}]}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}

	var resp anthropicadapter.MessagesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response decode: %v", err)
	}
	if resp.Type != "message" || resp.Role != "assistant" {
		t.Errorf("envelope = type %q role %q, want message/assistant", resp.Type, resp.Role)
	}
	if len(resp.Content) != 1 || resp.Content[0].Text == nil || *resp.Content[0].Text != "Hello" {
		t.Errorf("content = %+v, want single text block Hello", resp.Content)
	}
}

func TestMessagesStreaming(t *testing.T) {
	p := newTestProxy(t, &routingTransport{chatBody: answerExchange()}, Options{})

	rec := doRequest(t, p, http.MethodPost, "/v1/messages",
		`{"model":"glm-4.5v","max_tokens":64,"stream":true,"messages":[{"role":"user","content":"Hi"}]}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", got)
	}

	events := parseSSE(t, rec.Body.String())
	want := []string{
		"message_start", "ping", "content_block_start", "content_block_delta",
		"content_block_stop", "message_delta", "message_stop",
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(want), events)
	}
	for i, ev := range events {
		if ev.name != want[i] {
			t.Errorf("event %d name = %q, want %q", i, ev.name, want[i])
		}
		if ev.data == "" {
			t.Errorf("event %d carries no data line", i)
		}
		if ev.data == "[DONE]" {
			t.Errorf("event %d is an OpenAI terminator in an Anthropic stream", i)
		}
	}
}

func TestModelsEndpoint(t *testing.T) {
	catalog := `{"data":[
		{"id":"GLM-4-6-API-V1","name":"GLM-4.6"},
		{"id":"glm-4.5-air","name":"智谱清言","info":{"created_at":1718000000}},
		{"id":"deepseek-r1","name":"DeepSeek R1"},
		{"id":"0727-360B-API","name":""},
		{"id":"retired","name":"Retired","info":{"is_active":false}}
	]}`
	transport := &routingTransport{modelsBody: catalog}
	p := newTestProxy(t, transport, Options{})

	rec := doRequest(t, p, http.MethodGet, "/v1/models", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}

	var list struct {
		Object string       `json:"object"`
		Data   []modelEntry `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("list decode: %v", err)
	}
	if list.Object != "list" {
		t.Errorf("object = %q, want list", list.Object)
	}
	if len(list.Data) != 4 {
		t.Fatalf("entries = %d, want 4 with the inactive model dropped", len(list.Data))
	}

	byID := map[string]modelEntry{}
	for _, entry := range list.Data {
		if entry.Object != "model" || entry.OwnedBy != "z.ai" {
			t.Errorf("entry %q = %+v, want object model owned by z.ai", entry.ID, entry)
		}
		if entry.Created == 0 {
			t.Errorf("entry %q has no created timestamp", entry.ID)
		}
		byID[entry.ID] = entry
	}

	if got := byID["GLM-4-6-API-V1"].Name; got != "GLM-4-6-API-V1" {
		t.Errorf("GLM id name = %q, want identifier kept verbatim", got)
	}
	if got := byID["glm-4.5-air"].Name; got != "GLM-4.5-Air" {
		t.Errorf("localized name = %q, want GLM-4.5-Air derived from id", got)
	}
	if got := byID["glm-4.5-air"].Created; got != 1718000000 {
		t.Errorf("created = %d, want upstream timestamp", got)
	}
	if got := byID["deepseek-r1"].Name; got != "DeepSeek R1" {
		t.Errorf("latin name = %q, want upstream name kept", got)
	}
	if got := byID["0727-360B-API"].Name; got != "0727-360b-Api" {
		t.Errorf("empty name = %q, want formatted identifier", got)
	}

	// Second fetch is served from cache.
	if rec := doRequest(t, p, http.MethodGet, "/v1/models", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("cached fetch status = %d, want 200", rec.Code)
	}
	transport.mu.Lock()
	calls := transport.modelsCalls
	transport.mu.Unlock()
	if calls != 1 {
		t.Errorf("upstream catalog calls = %d, want 1 (second served from cache)", calls)
	}
}

func TestModelsEndpointUpstreamFailure(t *testing.T) {
	transport := &routingTransport{modelsStatus: http.StatusServiceUnavailable, modelsBody: `{"detail":"down"}`}
	p := newTestProxy(t, transport, Options{})

	rec := doRequest(t, p, http.MethodGet, "/v1/models", "", nil)
	assertErrorType(t, rec, http.StatusBadGateway, openaiadapter.ErrTypeUpstream)
}

func TestUpstreamErrorMapping(t *testing.T) {
	chatReq := `{"model":"glm-4.5v","messages":[{"role":"user","content":"Hi"}]}`

	t.Run("unavailable upstream becomes 502", func(t *testing.T) {
		transport := &routingTransport{chatStatus: http.StatusServiceUnavailable, chatBody: `{"detail":"down"}`}
		p := newTestProxy(t, transport, Options{})
		rec := doRequest(t, p, http.MethodPost, "/v1/chat/completions", chatReq, nil)
		assertErrorType(t, rec, http.StatusBadGateway, openaiadapter.ErrTypeUpstream)
	})

	t.Run("persistent timeout becomes 504", func(t *testing.T) {
		transport := &routingTransport{chatStatus: http.StatusGatewayTimeout, chatBody: `{"detail":"busy"}`}
		p := newTestProxy(t, transport, Options{})
		rec := doRequest(t, p, http.MethodPost, "/v1/chat/completions", chatReq, nil)
		assertErrorType(t, rec, http.StatusGatewayTimeout, openaiadapter.ErrTypeUpstreamTimeout)

		transport.mu.Lock()
		calls := transport.chatCalls
		transport.mu.Unlock()
		if calls != 2 {
			t.Errorf("upstream calls = %d, want retry before giving up", calls)
		}
	})
}

func TestRequestSizeLimit(t *testing.T) {
	p := newTestProxy(t, &routingTransport{chatBody: answerExchange()}, Options{MaxRequestBytes: 64})

	oversized := `{"model":"glm-4.5v","messages":[{"role":"user","content":"` +
		strings.Repeat("x", 256) + `"}]}`
	rec := doRequest(t, p, http.MethodPost, "/v1/chat/completions", oversized, nil)
	assertErrorType(t, rec, http.StatusBadRequest, openaiadapter.ErrTypeInvalidRequest)
}

func TestMetricsLifecycle(t *testing.T) {
	p := newTestProxy(t, &routingTransport{chatBody: answerExchange()}, Options{})

	chatReq := `{"model":"glm-4.5v","messages":[{"role":"user","content":"Hi"}]}`
	if rec := doRequest(t, p, http.MethodPost, "/v1/chat/completions", chatReq, nil); rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d, want 200", rec.Code)
	}

	rec := doRequest(t, p, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", rec.Code)
	}

	var snap struct {
		Global struct {
			Requests int64 `json:"request_count"`
		} `json:"global"`
		Endpoints map[string]struct {
			Requests int64 `json:"request_count"`
			Errors   int64 `json:"error_count"`
		} `json:"endpoints"`
		Cache struct {
			Size int `json:"size"`
		} `json:"cache"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("metrics decode: %v", err)
	}
	endpoint, ok := snap.Endpoints["/v1/chat/completions"]
	if !ok {
		t.Fatalf("endpoints = %v, want /v1/chat/completions tracked", snap.Endpoints)
	}
	if endpoint.Requests != 1 || endpoint.Errors != 0 {
		t.Errorf("endpoint stats = %+v, want one clean request", endpoint)
	}
	if snap.Global.Requests != 1 {
		t.Errorf("global requests = %d, want 1", snap.Global.Requests)
	}

	rec = doRequest(t, p, http.MethodPost, "/metrics/reset", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d, want 200", rec.Code)
	}
	var status map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("reset decode: %v", err)
	}
	if status["status"] != "metrics reset" {
		t.Errorf("reset body = %v, want metrics reset", status)
	}

	rec = doRequest(t, p, http.MethodGet, "/metrics", "", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("metrics decode after reset: %v", err)
	}
	if snap.Global.Requests != 0 {
		t.Errorf("global requests after reset = %d, want 0", snap.Global.Requests)
	}
}

func TestCacheEndpoints(t *testing.T) {
	catalog := `{"data":[{"id":"glm-4.5v","name":"GLM-4.5V"}]}`
	transport := &routingTransport{modelsBody: catalog}
	p := newTestProxy(t, transport, Options{})

	// Prime the cache through the models endpoint.
	if rec := doRequest(t, p, http.MethodGet, "/v1/models", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("models status = %d, want 200", rec.Code)
	}

	rec := doRequest(t, p, http.MethodGet, "/cache/stats", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d, want 200", rec.Code)
	}
	var stats store.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("stats decode: %v", err)
	}
	if stats.Size != 1 || stats.Sets != 1 {
		t.Errorf("stats = %+v, want one cached entry", stats)
	}

	rec = doRequest(t, p, http.MethodPost, "/cache/clear", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d, want 200", rec.Code)
	}
	var status map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("clear decode: %v", err)
	}
	if status["status"] != "cache cleared" {
		t.Errorf("clear body = %v, want cache cleared", status)
	}

	// The next catalog fetch goes back to the upstream.
	if rec := doRequest(t, p, http.MethodGet, "/v1/models", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("models status after clear = %d, want 200", rec.Code)
	}
	transport.mu.Lock()
	calls := transport.modelsCalls
	transport.mu.Unlock()
	if calls != 2 {
		t.Errorf("upstream catalog calls = %d, want refetch after clear", calls)
	}
}
