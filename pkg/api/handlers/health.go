package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is anything the health check can probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports service health
type HealthHandler struct {
	db    Pinger
	cache Pinger
}

// NewHealthHandler creates a health handler. cache may be nil when Redis is not configured.
func NewHealthHandler(db, cache Pinger) *HealthHandler {
	return &HealthHandler{db: db, cache: cache}
}

// Health godoc
// @Summary Health check
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := map[string]string{"database": "ok"}

	if err := h.db.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		checks["database"] = "unavailable"
	}
	if h.cache != nil {
		checks["cache"] = "ok"
		// the service degrades without Redis but stays up
		if err := h.cache.Ping(ctx); err != nil {
			checks["cache"] = "degraded"
		}
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "unhealthy"
	}
	return c.JSON(status, map[string]interface{}{
		"status": state,
		"checks": checks,
		"time":   time.Now().UTC(),
	})
}
