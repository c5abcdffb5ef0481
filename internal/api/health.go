package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/admitchat/backend/internal/store"
	"github.com/go-chi/chi/v5"
)

// CollaboratorPinger reports reachability of an external AI service.
type CollaboratorPinger interface {
	Health(ctx context.Context) error
}

// HealthHandler reports the health of the API, the database, and the AI
// collaborators.
type HealthHandler struct {
	repo          store.Repository
	collaborators map[string]CollaboratorPinger
	timeout       time.Duration
}

// NewHealthHandler creates a health handler. collaborators maps a check
// name to a pinger; nil entries are skipped.
func NewHealthHandler(repo store.Repository, collaborators map[string]CollaboratorPinger, timeout time.Duration) *HealthHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthHandler{repo: repo, collaborators: collaborators, timeout: timeout}
}

// Health returns the health status of the API and its dependencies.
// Collaborator unreachability degrades the report but keeps a 200: the
// dialogue continues with default values when AI services are down.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := "healthy"
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "check", "database", "error", err)
		checks["database"] = "unreachable"
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	for name, pinger := range h.collaborators {
		if pinger == nil {
			continue
		}
		if err := pinger.Health(ctx); err != nil {
			slog.Warn("Collaborator health check failed", "check", name, "error", err)
			checks[name] = "unreachable"
			status = "degraded"
		} else {
			checks[name] = "ok"
		}
	}

	JSON(w, statusCode, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
