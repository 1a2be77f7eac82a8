package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /health. Only our own components are
// checked; external sources are reported through breaker state, not
// probed, so a flaky provider cannot fail the liveness probe.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if err := s.dbClient.Health(reqCtx); err != nil {
		status = healthStatusUnhealthy
		checks["database"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		checks["database"] = HealthCheck{Status: healthStatusHealthy}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	body := map[string]any{
		"status":             status,
		"checks":             checks,
		"sources":            s.breakers.Snapshots(),
		"active_subscribers": s.broker.ActiveSubscribers(),
	}
	if s.pool != nil {
		body["worker_pool"] = s.pool.Health()
	}
	return c.JSON(httpStatus, body)
}
