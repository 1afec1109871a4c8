package proxy

import (
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/Baozhi888/Z.ai2api/internal/openaiadapter"
)

// publicPath reports whether the path is served without an access key.
func publicPath(path string) bool {
	switch path {
	case "/", "/health", "/ready":
		return true
	}
	return false
}

// servicePath reports whether the path carries dialect traffic, which is
// the traffic the concurrency gate and the request meters apply to.
func servicePath(path string) bool {
	return strings.HasPrefix(path, "/v1/")
}

// Recovery recovers from panics in HTTP handlers and returns HTTP 500 to the client.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recover() != nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				// Logging of panics is handled in Logging middleware
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// RequestSizeLimit enforces maximum request body size.
// Handlers that read the body will receive *http.MaxBytesError when the limit is exceeded.
func RequestSizeLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// CORS answers preflight requests and reflects allowed origins. An empty
// origin list allows any origin.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowAll := len(origins) == 0
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" {
				switch {
				case allowAll:
					w.Header().Set("Access-Control-Allow-Origin", "*")
				default:
					if _, ok := allowed[origin]; ok {
						w.Header().Set("Access-Control-Allow-Origin", origin)
						w.Header().Add("Vary", "Origin")
					}
				}
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h := w.Header()
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Api-Key, X-Request-ID")
				h.Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// authenticate rejects requests that do not carry the access key. The
// Anthropic endpoint additionally accepts the key in the x-api-key
// header, matching what its clients send.
func (p *Proxy) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := p.opts.AccessKey
		if key == "" || publicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if authorized(r, key) {
			next.ServeHTTP(w, r)
			return
		}

		slog.WarnContext(r.Context(), "rejected request without valid access key", slog.String("path", r.URL.Path))
		writeError(r.Context(), w, openaiadapter.NewError(openaiadapter.ErrTypeAuthentication, "invalid or missing API key"))
	})
}

func authorized(r *http.Request, key string) bool {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && token == key {
		return true
	}
	return r.URL.Path == "/v1/messages" && r.Header.Get("x-api-key") == key
}

// limitConcurrency caps the number of dialect requests in flight. The
// gate never queues: over the cap the caller gets an immediate
// rate-limit error and is expected to retry.
func (p *Proxy) limitConcurrency() func(http.Handler) http.Handler {
	sem := semaphore.NewWeighted(p.opts.MaxConcurrent)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !servicePath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			if !sem.TryAcquire(1) {
				slog.WarnContext(r.Context(), "concurrency limit reached", slog.Int64("limit", p.opts.MaxConcurrent))
				writeError(r.Context(), w, openaiadapter.NewError(openaiadapter.ErrTypeRateLimit, "too many concurrent requests"))
				return
			}
			defer sem.Release(1)

			next.ServeHTTP(w, r)
		})
	}
}

// instrument feeds the request meters for dialect traffic.
func (p *Proxy) instrument(next http.Handler) http.Handler {
	if p.opts.DisableInstrumentation {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !servicePath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		timer := p.deps.Meters.Begin(r.URL.Path)
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		timer.End(rec.statusOr200())
	})
}

// statusRecorder captures the response status for the meters while
// keeping Flush reachable through Unwrap.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	if s.status == 0 {
		s.status = status
	}
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func (s *statusRecorder) statusOr200() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}

// applyMiddlewares applies middlewares to a handler in the order they appear.
// The first middleware in the slice is the outermost (executes first).
func applyMiddlewares(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
