package router

import (
	"github.com/labstack/echo/v4"

	"github.com/nowshin-108/capstone/internal/handler"
	"github.com/nowshin-108/capstone/internal/middleware"
	"github.com/nowshin-108/capstone/internal/model"
)

// RegisterBidding registers the seat bidding endpoints under /v1/bidding.
// All routes require a valid JWT.  limit guards the mutating routes and
// may be nil.
func RegisterBidding(e *echo.Echo, h *handler.BiddingHandler, rt *handler.RealtimeHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group(
		"/v1/bidding",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RolePassenger, model.RoleAdmin),
	)
	var mutating []echo.MiddlewareFunc
	if limit != nil {
		mutating = append(mutating, limit)
	}
	g.POST("/start", h.Start, mutating...)
	g.POST("/bid", h.PlaceBid, mutating...)
	g.POST("/accept", h.Accept, mutating...)
	g.POST("/cancel", h.Cancel, mutating...)
	g.GET("/active/:flightId", h.ListActive)

	// The stream authenticates with ?access_token= on the upgrade request.
	if rt != nil {
		g.GET("/stream", rt.Stream)
	}
}
