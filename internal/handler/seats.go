package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-access/internal/logger"
	"github.com/iliyamo/cinema-seat-access/internal/service"
	"github.com/iliyamo/cinema-seat-access/internal/utils"
)

// SeatHandler serves seats, codes and sessions.
type SeatHandler struct {
	Seats *service.SeatService
	Log   *logger.Logger

	// AfterEndAll runs once the venue was reset, e.g. to drop cached
	// history.  Optional.
	AfterEndAll func(ctx context.Context)
	// AfterChange runs once a session opened or closed on seatID, e.g.
	// to drop that seat's cached history.  Optional.
	AfterChange func(ctx context.Context, seatID string)
}

// NewSeatHandler constructs a SeatHandler and panics if the service is nil.
func NewSeatHandler(seats *service.SeatService, log *logger.Logger) *SeatHandler {
	if seats == nil {
		panic("nil seat service passed to NewSeatHandler")
	}
	return &SeatHandler{Seats: seats, Log: log.Component("http")}
}

// ListSeats handles GET /seats.
func (h *SeatHandler) ListSeats(c echo.Context) error {
	seats, err := h.Seats.ListSeats(c.Request().Context())
	if err != nil {
		return serviceError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, seats)
}

// History handles GET /seats/:id/history.
func (h *SeatHandler) History(c echo.Context) error {
	seatID := normalizeSeat(c.Param("id"))
	entries, err := h.Seats.History(c.Request().Context(), seatID)
	if err != nil {
		return serviceError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":  true,
		"seatId":   seatID,
		"sessions": entries,
	})
}

// IssueCode handles POST /codes.  It returns 201 with the new code.
func (h *SeatHandler) IssueCode(c echo.Context) error {
	var body seatRequest
	if err := c.Bind(&body); err != nil {
		return errorJSON(c, http.StatusBadRequest, "bad_request", "Invalid request body")
	}
	seatID := normalizeSeat(body.SeatID)
	if seatID == "" {
		return errorJSON(c, http.StatusBadRequest, "bad_request", "Seat ID is required")
	}
	issued, err := h.Seats.IssueCode(c.Request().Context(), seatID)
	if err != nil {
		return serviceError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"success":   true,
		"code":      issued.Code,
		"seatId":    issued.SeatID,
		"expiresAt": issued.ExpiresAt,
	})
}

// Validate handles POST /validate.  originIdentity defaults to the
// client IP.
func (h *SeatHandler) Validate(c echo.Context) error {
	var body struct {
		SeatID         string `json:"seatId"`
		Code           string `json:"code"`
		OriginIdentity string `json:"originIdentity"`
	}
	if err := c.Bind(&body); err != nil {
		return errorJSON(c, http.StatusBadRequest, "bad_request", "Invalid request body")
	}
	seatID := normalizeSeat(body.SeatID)
	if seatID == "" || body.Code == "" {
		return errorJSON(c, http.StatusBadRequest, "bad_request", "Seat ID and code are required")
	}
	if !utils.IsAccessCode(body.Code) {
		return serviceError(c, h.Log, service.ErrInvalidCode)
	}
	origin := body.OriginIdentity
	if origin == "" {
		origin = c.RealIP()
	}
	if err := h.Seats.ValidateCode(c.Request().Context(), seatID, body.Code, origin); err != nil {
		return serviceError(c, h.Log, err)
	}
	h.changed(c.Request().Context(), seatID)
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Access granted",
		"seatId":  seatID,
	})
}

// EndSession handles POST /sessions/end.
func (h *SeatHandler) EndSession(c echo.Context) error {
	var body seatRequest
	if err := c.Bind(&body); err != nil {
		return errorJSON(c, http.StatusBadRequest, "bad_request", "Invalid request body")
	}
	seatID := normalizeSeat(body.SeatID)
	if seatID == "" {
		return errorJSON(c, http.StatusBadRequest, "bad_request", "Seat ID is required")
	}
	if err := h.Seats.EndSession(c.Request().Context(), seatID); err != nil {
		return serviceError(c, h.Log, err)
	}
	h.changed(c.Request().Context(), seatID)
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Session ended",
		"seatId":  seatID,
	})
}

func (h *SeatHandler) changed(ctx context.Context, seatID string) {
	if h.AfterChange != nil {
		h.AfterChange(ctx, seatID)
	}
}

// EndAll handles POST /sessions/end-all.
func (h *SeatHandler) EndAll(c echo.Context) error {
	ctx := c.Request().Context()
	res, err := h.Seats.EndAllSessions(ctx)
	if err != nil {
		return serviceError(c, h.Log, err)
	}
	if h.AfterEndAll != nil {
		h.AfterEndAll(ctx)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":          true,
		"sessionsEnded":    res.SessionsEnded,
		"codesDeactivated": res.CodesDeactivated,
		"purged":           res.Purged,
	})
}
