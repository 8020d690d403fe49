package router

import (
	"github.com/labstack/echo/v4"

	"github.com/nowshin-108/capstone/internal/handler"
	"github.com/nowshin-108/capstone/internal/middleware"
)

// RegisterFlights registers the flight reads.  cache applies to the flight
// record only; a passenger's seat changes on every swap and is always
// read fresh.
func RegisterFlights(e *echo.Echo, h *handler.FlightHandler, jwtSecret string, cache echo.MiddlewareFunc) {
	g := e.Group("/v1/flights", middleware.JWTAuth(jwtSecret))
	if cache != nil {
		g.GET("/:id", h.GetFlight, cache)
	} else {
		g.GET("/:id", h.GetFlight)
	}
	g.GET("/:id/seat", h.MySeat)
}
