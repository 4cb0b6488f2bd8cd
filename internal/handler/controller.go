package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-access/internal/hardware"
	"github.com/iliyamo/cinema-seat-access/internal/logger"
	"github.com/iliyamo/cinema-seat-access/internal/service"
)

// ControllerHandler serves the controller binding and the button
// simulator.
type ControllerHandler struct {
	Controller *service.Controller
	Log        *logger.Logger
}

// NewControllerHandler constructs a ControllerHandler.
func NewControllerHandler(ctrl *service.Controller, log *logger.Logger) *ControllerHandler {
	if ctrl == nil {
		panic("nil controller passed to NewControllerHandler")
	}
	return &ControllerHandler{Controller: ctrl, Log: log.Component("http")}
}

func bindingJSON(b service.Binding) echo.Map {
	var seat any
	if b.SeatID != "" {
		seat = b.SeatID
	}
	return echo.Map{"seatId": seat, "state": b.State, "confirmed": b.Confirmed}
}

// Bind handles POST /controller/bind.
func (h *ControllerHandler) Bind(c echo.Context) error {
	var body seatRequest
	if err := c.Bind(&body); err != nil {
		return errorJSON(c, http.StatusBadRequest, "bad_request", "Invalid request body")
	}
	seatID := normalizeSeat(body.SeatID)
	if seatID == "" {
		return errorJSON(c, http.StatusBadRequest, "bad_request", "Seat ID is required")
	}
	b, err := h.Controller.Bind(c.Request().Context(), seatID)
	if err != nil {
		return serviceError(c, h.Log, err)
	}
	resp := bindingJSON(b)
	resp["success"] = true
	return c.JSON(http.StatusOK, resp)
}

// Current handles GET /controller/current.
func (h *ControllerHandler) Current(c echo.Context) error {
	return c.JSON(http.StatusOK, bindingJSON(h.Controller.Current()))
}

// Simulate handles POST /controller/simulate, the software stand-in for a
// button press or release on the board.
func (h *ControllerHandler) Simulate(c echo.Context) error {
	var body struct {
		SeatID string `json:"seatId"`
		Action string `json:"action"`
	}
	if err := c.Bind(&body); err != nil {
		return errorJSON(c, http.StatusBadRequest, "bad_request", "Invalid request body")
	}
	seatID := normalizeSeat(body.SeatID)
	action := strings.ToUpper(strings.TrimSpace(body.Action))
	if seatID == "" {
		return errorJSON(c, http.StatusBadRequest, "bad_request", "Seat ID is required")
	}
	if action != hardware.KindPressed && action != hardware.KindReleased {
		return errorJSON(c, http.StatusBadRequest, "bad_request", "Action must be PRESSED or RELEASED")
	}
	err := h.Controller.HandlePhysicalEvent(c.Request().Context(), seatID, action)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrConflict):
		return errorJSON(c, http.StatusConflict, "conflict", "Seat is not bound to the controller")
	default:
		return serviceError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"seatId":  seatID,
		"action":  action,
	})
}
