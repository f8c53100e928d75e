package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// checkTimeout bounds one dependency probe during a health check.
const checkTimeout = 2 * time.Second

// DependencyCheck probes one backing service for the health endpoint.
type DependencyCheck struct {
	Name  string
	Probe func(ctx context.Context) error
}

// HealthHandler reports liveness plus the state of each backing service.
type HealthHandler struct {
	checks []DependencyCheck
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler running the given checks.
func NewHealthHandler(logger *slog.Logger, checks ...DependencyCheck) *HealthHandler {
	return &HealthHandler{
		checks: checks,
		logger: logger.With(slog.String("component", "health")),
	}
}

// HealthCheck probes every dependency and reports per-dependency status.
// Responds 200 when everything is reachable, 503 otherwise.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	deps := make(map[string]string, len(h.checks))
	healthy := true

	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Probe(ctx)
		cancel()

		if err != nil {
			healthy = false
			deps[c.Name] = err.Error()
			h.logger.WarnContext(r.Context(), "health check failed",
				slog.String("dependency", c.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		deps[c.Name] = "ok"
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":       status,
		"dependencies": deps,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}
