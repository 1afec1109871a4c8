package proxy

import (
	"log/slog"
	"net/http"

	"github.com/Baozhi888/Z.ai2api/internal/metrics"
	"github.com/Baozhi888/Z.ai2api/internal/store"
)

// metricsResponse merges the request meters with the cache counters.
type metricsResponse struct {
	metrics.Snapshot
	Cache store.Stats `json:"cache"`
}

// metricsHandler reports request meters and cache counters.
func metricsHandler(meters *metrics.Registry, cache *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(r.Context(), w, metricsResponse{
			Snapshot: meters.Snapshot(),
			Cache:    cache.Stats(),
		}, http.StatusOK)
	}
}

// metricsResetHandler zeroes the request meters.
func metricsResetHandler(meters *metrics.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meters.Reset()
		slog.InfoContext(r.Context(), "request meters reset")
		writeJSON(r.Context(), w, map[string]string{"status": "metrics reset"}, http.StatusOK)
	}
}

// cacheStatsHandler reports the cache counters on their own.
func cacheStatsHandler(cache *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(r.Context(), w, cache.Stats(), http.StatusOK)
	}
}

// cacheClearHandler drops every cached entry.
func cacheClearHandler(cache *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		removed := cache.Clear()
		slog.InfoContext(r.Context(), "cache cleared", slog.Int("entries_removed", removed))
		writeJSON(r.Context(), w, map[string]string{"status": "cache cleared"}, http.StatusOK)
	}
}
