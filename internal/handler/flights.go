package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/nowshin-108/capstone/internal/bidding"
	"github.com/nowshin-108/capstone/internal/repository"
)

// SeatReader returns a passenger's current seat on a flight.
type SeatReader interface {
	GetSeat(ctx context.Context, flightID string, userID uint64) (string, error)
}

// FlightHandler serves the flight reads clients use to refresh their view
// after a swap.
type FlightHandler struct {
	Flights bidding.FlightDirectory
	Seats   SeatReader
}

// NewFlightHandler constructs a FlightHandler.
func NewFlightHandler(flights bidding.FlightDirectory, seats SeatReader) *FlightHandler {
	return &FlightHandler{Flights: flights, Seats: seats}
}

// GetFlight handles GET /v1/flights/:id.
func (h *FlightHandler) GetFlight(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid flight id"})
	}
	f, err := h.Flights.Flight(c.Request().Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "flight not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load flight"})
	}
	return c.JSON(http.StatusOK, f)
}

// MySeat handles GET /v1/flights/:id/seat and returns the caller's seat.
func (h *FlightHandler) MySeat(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id := strings.TrimSpace(c.Param("id"))
	seat, err := h.Seats.GetSeat(c.Request().Context(), id, uid)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not a passenger on this flight"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load seat"})
	}
	return c.JSON(http.StatusOK, echo.Map{"flight_id": id, "user_id": uid, "seat_number": seat})
}
