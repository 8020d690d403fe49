package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nowshin-108/capstone/internal/bidding"
	"github.com/nowshin-108/capstone/internal/middleware"
)

var errNoUser = errors.New("invalid user_id in context")

// getUserID returns the authenticated caller set by the JWT middleware.
func getUserID(c echo.Context) (uint64, error) {
	id, _, ok := middleware.CurrentUser(c)
	if !ok {
		return 0, errNoUser
	}
	return id, nil
}

// biddingError writes the JSON response for an engine error.
func biddingError(c echo.Context, err error) error {
	var conflict *bidding.ConflictError
	switch {
	case errors.As(err, &conflict):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":               conflict.Reason,
			"code":                "conflict",
			"existing_bidding_id": conflict.ExistingBiddingID,
		})
	case errors.Is(err, bidding.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, bidding.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, bidding.ErrInvalidState):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error(), "code": "invalid_state", "refresh": true})
	case errors.Is(err, bidding.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error(), "code": "conflict", "refresh": true})
	case errors.Is(err, bidding.ErrTransaction):
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "seat swap failed, nothing was changed", "code": "transaction_failed"})
	}
	log.Printf("handler: %s %s: %v", c.Request().Method, c.Path(), err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
