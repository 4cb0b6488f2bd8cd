// Package router registers the HTTP routes of the service.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-access/internal/broadcast"
	"github.com/iliyamo/cinema-seat-access/internal/handler"
)

// Middlewares are the optional per-route middlewares.  A nil entry
// leaves the route unwrapped.
type Middlewares struct {
	// CodeLimiter throttles code issuance and validation.
	CodeLimiter echo.MiddlewareFunc
	// HistoryCache caches seat history responses.
	HistoryCache echo.MiddlewareFunc
}

func optional(mw echo.MiddlewareFunc) []echo.MiddlewareFunc {
	if mw == nil {
		return nil
	}
	return []echo.MiddlewareFunc{mw}
}

// RegisterRoutes maps the health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterSeats maps the seat, code and session endpoints.
func RegisterSeats(e *echo.Echo, h *handler.SeatHandler, mw Middlewares) {
	e.GET("/seats", h.ListSeats)
	e.GET("/seats/:id/history", h.History, optional(mw.HistoryCache)...)

	e.POST("/codes", h.IssueCode, optional(mw.CodeLimiter)...)
	e.POST("/validate", h.Validate, optional(mw.CodeLimiter)...)

	e.POST("/sessions/end", h.EndSession)
	e.POST("/sessions/end-all", h.EndAll)
}

// HistoryPath is the request path of a seat's history.
func HistoryPath(seatID string) string {
	return "/seats/" + seatID + "/history"
}

// RegisterController maps the controller binding and simulator endpoints.
func RegisterController(e *echo.Echo, h *handler.ControllerHandler) {
	g := e.Group("/controller")
	g.POST("/bind", h.Bind)
	g.GET("/current", h.Current)
	g.POST("/simulate", h.Simulate)
}

// RegisterBroadcast maps the WebSocket endpoint.
func RegisterBroadcast(e *echo.Echo, hub *broadcast.Hub) {
	e.GET("/ws", handler.WS(hub))
}
