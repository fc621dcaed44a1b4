package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/codetime/internal/store"
	"github.com/go-chi/chi/v5"
)

const healthCheckTimeout = 5 * time.Second

// Prober reports whether the Code Time API is reachable.
type Prober interface {
	Available(ctx context.Context) bool
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo   store.Repository
	prober Prober
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(repo store.Repository, prober Prober) *HealthHandler {
	return &HealthHandler{repo: repo, prober: prober}
}

// Health reports local storage and API reachability. An unreachable API only
// degrades the status; the agent keeps queuing offline data.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"agent": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "unhealthy"
		checks["session_store"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["session_store"] = "ok"
	}

	if h.prober != nil && h.prober.Available(ctx) {
		checks["codetime_api"] = "ok"
	} else {
		checks["codetime_api"] = "unreachable"
		if statusCode == http.StatusOK {
			status["status"] = "degraded"
		}
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
