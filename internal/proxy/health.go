package proxy

import "net/http"

const (
	serviceName    = "z.ai2api"
	serviceVersion = "1.0.0"
)

// bannerHandler describes the service and its endpoints at the root path.
func bannerHandler() http.HandlerFunc {
	banner := map[string]any{
		"service":     serviceName,
		"version":     serviceVersion,
		"description": "Z.ai proxy speaking the OpenAI and Anthropic chat dialects",
		"endpoints": map[string]string{
			"health":             "/health",
			"openai_chat":        "/v1/chat/completions",
			"openai_models":      "/v1/models",
			"anthropic_messages": "/v1/messages",
			"metrics":            "/metrics",
		},
		"repository": "https://github.com/Baozhi888/Z.ai2api",
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(r.Context(), w, banner, http.StatusOK)
	}
}

// healthHandler handles liveness probe requests.
// Always returns 200 OK to indicate the process is alive.
func healthHandler() http.HandlerFunc {
	body := map[string]string{"status": "ok", "service": serviceName}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		writeJSON(r.Context(), w, body, http.StatusOK)
	}
}

// readinessHandler handles readiness probe requests.
// Returns 200 OK if the application is ready to serve traffic, 503 otherwise.
func readinessHandler(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		if checker.IsReady() {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}
}
