// Package handler exposes the seat service over HTTP.  Every error
// response has the shape {"success":false,"error":"<kind>","message":"…"}.
package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-access/internal/logger"
	"github.com/iliyamo/cinema-seat-access/internal/service"
)

// errorJSON writes the common error envelope.
func errorJSON(c echo.Context, status int, kind, message string) error {
	return c.JSON(status, echo.Map{
		"success": false,
		"error":   kind,
		"message": message,
	})
}

// serviceError maps a service error to a status code.  Unexpected errors
// are logged and reported without detail.
func serviceError(c echo.Context, log *logger.Logger, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return errorJSON(c, http.StatusNotFound, "not_found", "Seat not found")
	case errors.Is(err, service.ErrInvalidCode):
		return errorJSON(c, http.StatusNotFound, "invalid_code", "Invalid code or seat")
	case errors.Is(err, service.ErrAlreadyUsed):
		return errorJSON(c, http.StatusBadRequest, "already_used", "This code has already been used")
	case errors.Is(err, service.ErrExpired):
		return errorJSON(c, http.StatusBadRequest, "expired", "This code has expired")
	case errors.Is(err, service.ErrNoActiveSession):
		return errorJSON(c, http.StatusNotFound, "no_active_session", "No active session for this seat")
	case errors.Is(err, service.ErrConflict):
		return errorJSON(c, http.StatusConflict, "conflict", "Seat is already occupied")
	case errors.Is(err, service.ErrHardwareUnavailable):
		return errorJSON(c, http.StatusServiceUnavailable, "hardware_unavailable", "Seat controller is not connected")
	}
	req := c.Request()
	log.ErrorContext(req.Context(), "request failed", "method", req.Method, "path", c.Path(), "error", err)
	return errorJSON(c, http.StatusInternalServerError, "internal_error", "Internal server error")
}

// seatRequest is the body shared by the seat-scoped POST endpoints.
type seatRequest struct {
	SeatID string `json:"seatId"`
}

// normalizeSeat trims a seat id and upper-cases its row letter.
func normalizeSeat(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
