package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/scholarsource/scholarsource/internal/api/middleware"
	"github.com/scholarsource/scholarsource/internal/api/response"
)

// Dependencies holds all handler dependencies for the router.
type Dependencies struct {
	HealthHandler     http.HandlerFunc
	DiscoverHandler   http.HandlerFunc
	StatusHandler     http.HandlerFunc
	CancelHandler     http.HandlerFunc
	CacheStatsHandler http.HandlerFunc
	CacheSweepHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Post("/api/v1/discover", orNotImplemented(deps.DiscoverHandler))
	r.Get("/api/v1/discover/{jobID}", orNotImplemented(deps.StatusHandler))
	r.Post("/api/v1/discover/{jobID}/cancel", orNotImplemented(deps.CancelHandler))

	r.Get("/api/v1/cache/stats", orNotImplemented(deps.CacheStatsHandler))
	r.Post("/api/v1/cache/sweep", orNotImplemented(deps.CacheSweepHandler))

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
