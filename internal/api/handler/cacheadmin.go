package handler

import (
	"log/slog"
	"net/http"

	"github.com/scholarsource/scholarsource/internal/api/response"
	"github.com/scholarsource/scholarsource/internal/cache"
)

// NewCacheStatsHandler returns the handler for GET /api/v1/cache/stats.
func NewCacheStatsHandler(c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := c.Stats(r.Context())
		if err != nil {
			slog.Error("cache stats failed", "error", err)
			response.Error(w, http.StatusServiceUnavailable, "CACHE_UNAVAILABLE",
				"Could not read cache statistics", nil)
			return
		}
		response.JSON(w, stats)
	}
}

// NewCacheSweepHandler returns the handler for POST /api/v1/cache/sweep,
// which deletes every entry written under a previous config fingerprint.
func NewCacheSweepHandler(c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deleted, err := c.SweepStale(r.Context())
		if err != nil {
			slog.Error("cache sweep failed", "error", err)
			response.Error(w, http.StatusServiceUnavailable, "CACHE_UNAVAILABLE",
				"Could not sweep cache", nil)
			return
		}
		response.JSON(w, map[string]any{"deleted": deleted})
	}
}
