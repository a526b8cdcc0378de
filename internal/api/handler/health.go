package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/mcoot/rankdir/internal/api/response"
)

// Pinger is implemented by backends that can report their connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports liveness and backend connectivity
type HealthHandler struct {
	pingers []Pinger
	logger  *slog.Logger
}

// NewHealthHandler creates a health handler checking the given backends
func NewHealthHandler(logger *slog.Logger, pingers ...Pinger) *HealthHandler {
	return &HealthHandler{pingers: pingers, logger: logger}
}

// Check handles GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, p := range h.pingers {
		if err := p.Ping(ctx); err != nil {
			h.logger.WarnContext(ctx, "health check failed", slog.String("error", err.Error()))
			response.JSON(w, http.StatusServiceUnavailable, response.Health{Status: "unavailable"})
			return
		}
	}
	response.JSON(w, http.StatusOK, response.Health{Status: "ok"})
}
