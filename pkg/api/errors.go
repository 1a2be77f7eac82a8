package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/bussola-ai/bussola/pkg/services"
)

// respondError maps service-layer errors to HTTP error responses.
func respondError(c *echo.Context, err error) error {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		return respondFail(c, http.StatusBadRequest, "validation_error", validErr.Error())
	}
	if errors.Is(err, services.ErrNotFound) {
		return respondFail(c, http.StatusNotFound, "not_found", "resource not found")
	}
	if errors.Is(err, services.ErrQuotaExceeded) {
		c.Response().Header().Set("Retry-After", "86400")
		return respondFail(c, http.StatusTooManyRequests, "quota_exceeded", "daily submission quota reached")
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return respondFail(c, http.StatusInternalServerError, "internal", "internal server error")
}
