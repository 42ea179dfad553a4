package handler

import (
	"context"
	"net/http"

	"github.com/scholarsource/scholarsource/internal/api/response"
	"github.com/scholarsource/scholarsource/internal/store"
)

// Pinger reports broker reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler returns the handler for GET /api/v1/health. The service is
// degraded rather than down when the broker is unreachable: status reads keep
// working, only new submissions would fail.
func NewHealthHandler(st store.Store, brokerPing Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbStatus := "ok"
		if err := st.Ping(r.Context()); err != nil {
			dbStatus = "unreachable"
		}
		brokerStatus := "ok"
		if err := brokerPing.Ping(r.Context()); err != nil {
			brokerStatus = "unreachable"
		}

		status := "healthy"
		code := http.StatusOK
		if dbStatus != "ok" {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		} else if brokerStatus != "ok" {
			status = "degraded"
		}

		response.Status(w, code, map[string]any{
			"status":   status,
			"database": dbStatus,
			"broker":   brokerStatus,
		})
	}
}
