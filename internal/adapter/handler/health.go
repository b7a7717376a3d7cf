package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/atjeff/kratos-echo/internal/domain"

	"github.com/labstack/echo/v4"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	provider domain.ProviderHealth
}

// NewHealthHandler creates a new health handler. A nil provider reports
// liveness only.
func NewHealthHandler(provider domain.ProviderHealth) *HealthHandler {
	return &HealthHandler{provider: provider}
}

// Handle processes the health endpoint.
func (h *HealthHandler) Handle(c echo.Context) error {
	if h.provider == nil {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	version, err := h.provider.Version(ctx)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status":   "unhealthy",
			"provider": "unreachable",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":   "healthy",
		"provider": version,
	})
}
