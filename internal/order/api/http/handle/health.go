package handle

import (
	"context"
	"net/http"
	"time"
)

// Check reports whether one dependency is reachable.
type Check func(ctx context.Context) error

type HealthHandler struct {
	service string
	checks  map[string]Check
}

func NewHealthHandler(service string, checks map[string]Check) *HealthHandler {
	return &HealthHandler{service: service, checks: checks}
}

func (hh *HealthHandler) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		deps := make(map[string]string, len(hh.checks))
		code, status := http.StatusOK, "healthy"
		for name, check := range hh.checks {
			if err := check(ctx); err != nil {
				deps[name] = err.Error()
				code, status = http.StatusServiceUnavailable, "degraded"
				continue
			}
			deps[name] = "ok"
		}

		jsonResponse(w, code, map[string]any{
			"status":       status,
			"service":      hh.service,
			"dependencies": deps,
		})
	}
}
