package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger reports whether a backing service is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness endpoints
type HealthHandler struct {
	database Pinger
	cache    Pinger
}

// NewHealthHandler creates a health handler. cache may be nil.
func NewHealthHandler(database, cache Pinger) *HealthHandler {
	return &HealthHandler{database: database, cache: cache}
}

// Live reports that the process is serving requests. It does not touch
// backing services.
func (h *HealthHandler) Live(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready pings the store and, when configured, the cache. It answers 503
// while the store is unreachable.
func (h *HealthHandler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	body := map[string]any{
		"status":    "ready",
		"database":  "up",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	if err := h.database.Ping(ctx); err != nil {
		body["status"] = "unavailable"
		body["database"] = "down"
		status = http.StatusServiceUnavailable
	}

	if h.cache != nil {
		body["cache"] = "up"
		// cache outages are reported but do not fail the check
		if err := h.cache.Ping(ctx); err != nil {
			body["cache"] = "down"
		}
	}

	return c.JSON(status, body)
}
