package proxy

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Baozhi888/Z.ai2api/internal/openaiadapter"
	"github.com/Baozhi888/Z.ai2api/internal/store"
	"github.com/Baozhi888/Z.ai2api/internal/transform"
	"github.com/Baozhi888/Z.ai2api/internal/zai"
)

const modelsCacheKey = "models_list"

// modelEntry is one catalog row in the list response.
type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Name    string `json:"name"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// modelList is the OpenAI-shaped catalog envelope.
type modelList struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

// modelsHandler serves the upstream model catalog in OpenAI list form.
// Catalog fetches are cached so bursts of client startups do not hammer
// the upstream.
func modelsHandler(upstream *zai.Client, cache *store.Store, ttl time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if cached, ok := cache.Get(modelsCacheKey); ok {
			if list, ok := cached.(*modelList); ok {
				writeJSON(ctx, w, list, http.StatusOK)
				return
			}
		}

		models, err := upstream.ListModels(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "model catalog fetch failed", "error", err)
			writeError(ctx, w, openaiadapter.FromError(err))
			return
		}

		list := &modelList{Object: "list", Data: make([]modelEntry, 0, len(models))}
		for _, m := range models {
			if !m.Active() {
				continue
			}
			created := m.Info.CreatedAt
			if created == 0 {
				created = time.Now().Unix()
			}
			list.Data = append(list.Data, modelEntry{
				ID:      m.ID,
				Object:  "model",
				Name:    transform.DisplayName(m.ID, m.Name),
				Created: created,
				OwnedBy: "z.ai",
			})
		}

		cache.Set(modelsCacheKey, list, ttl)
		writeJSON(ctx, w, list, http.StatusOK)
	}
}
