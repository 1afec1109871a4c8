package zai

import (
	"net/http"
	"sync/atomic"
)

// feVersions is the pool of front-end version tokens rotated across
// requests, matching what deployed web clients report.
var feVersions = []string{
	"prod-fe-1.0.76",
	"prod-fe-1.0.77",
}

const (
	chatUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/139.0.0.0"
	authUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36"
)

// headerPool stamps requests with the browser-identical header set the
// upstream expects, rotating the X-FE-Version token per request.
type headerPool struct {
	counter atomic.Uint64
}

func (p *headerPool) feVersion() string {
	n := p.counter.Add(1) - 1
	return feVersions[n%uint64(len(feVersions))]
}

// apply sets the chat-endpoint headers. The Referer points at the chat the
// request claims to come from; the upstream checks it against the chat_id in
// the body.
func (p *headerPool) apply(h http.Header, baseURL, token, chatID string) {
	h.Set("User-Agent", chatUserAgent)
	h.Set("Accept", "*/*")
	h.Set("Accept-Language", "zh-CN,zh;q=0.9")
	h.Set("Content-Type", "application/json")
	h.Set("X-FE-Version", p.feVersion())
	h.Set("sec-ch-ua", `"Not;A=Brand";v="99", "Edge";v="139"`)
	h.Set("sec-ch-ua-mobile", "?0")
	h.Set("sec-ch-ua-platform", `"Windows"`)
	h.Set("Origin", baseURL)
	h.Set("Referer", baseURL+"/c/"+chatID)
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
}

// guestAuthHeaders returns the fuller header set used for the anonymous
// token endpoint, which is fussier about looking like a page load.
func guestAuthHeaders(baseURL string) http.Header {
	h := make(http.Header)
	h.Set("User-Agent", authUserAgent)
	h.Set("Referer", baseURL+"/")
	h.Set("Accept", "*/*")
	h.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	h.Set("Cache-Control", "no-cache")
	h.Set("Content-Type", "application/json")
	h.Set("Origin", baseURL)
	h.Set("Pragma", "no-cache")
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Sec-Fetch-Site", "same-origin")
	h.Set("X-FE-Version", "prod-fe-1.0.77")
	return h
}
