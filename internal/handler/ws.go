package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-access/internal/broadcast"
)

// WS upgrades GET /ws to a WebSocket subscribed to every seat event.
func WS(hub *broadcast.Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		hub.ServeWS(c.Response(), c.Request())
		return nil
	}
}
