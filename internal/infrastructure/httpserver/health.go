// Package httpserver serves the read-only inspection surface: health checks,
// Prometheus metrics, stream contents and saga progress.
package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/lllypuk/eventcore/internal/application/appcore"
)

// Health status values.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
)

// ComponentStatus is the health of a single backend.
type ComponentStatus struct {
	Name   string               `json:"name"`
	Health appcore.HealthStatus `json:"health"`
}

// HealthResponse represents the response for health endpoints.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components []ComponentStatus `json:"components,omitempty"`
}

// HealthEndpoints runs a fixed set of checkers on demand.
type HealthEndpoints struct {
	checkers []appcore.HealthChecker
}

// NewHealthEndpoints creates a new HealthEndpoints instance.
func NewHealthEndpoints(checkers ...appcore.HealthChecker) *HealthEndpoints {
	return &HealthEndpoints{checkers: checkers}
}

// Register registers:
//   - GET /health: liveness, 200 while the process runs
//   - GET /ready: 200 when every checker is healthy, 503 otherwise
func (h *HealthEndpoints) Register(e *echo.Echo) {
	e.GET("/health", h.handleHealth)
	e.GET("/ready", h.handleReady)
}

func (h *HealthEndpoints) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: StatusHealthy})
}

func (h *HealthEndpoints) handleReady(c echo.Context) error {
	ctx := c.Request().Context()

	ready := true
	components := make([]ComponentStatus, 0, len(h.checkers))
	for _, checker := range h.checkers {
		status := checker.Check(ctx)
		ready = ready && status.Healthy
		components = append(components, ComponentStatus{Name: checker.Name(), Health: status})
	}

	if ready {
		return c.JSON(http.StatusOK, HealthResponse{Status: StatusReady, Components: components})
	}
	return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: StatusNotReady, Components: components})
}
