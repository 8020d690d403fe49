package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/nowshin-108/capstone/internal/bidding"
	"github.com/nowshin-108/capstone/internal/middleware"
	"github.com/nowshin-108/capstone/internal/model"
)

// BiddingHandler exposes the bidding engine under /v1/bidding.  Callers
// act only as themselves: the passenger starting a bidding, the bidder
// placing a bid and the initiator accepting or cancelling must all be the
// token's subject.  Admins may cancel any bidding.
type BiddingHandler struct {
	Engine *bidding.Engine
}

// NewBiddingHandler constructs a BiddingHandler.
func NewBiddingHandler(e *bidding.Engine) *BiddingHandler {
	if e == nil {
		panic("nil engine passed to NewBiddingHandler")
	}
	return &BiddingHandler{Engine: e}
}

type startReq struct {
	PassengerID uint64 `json:"passenger_id"`
	SeatNumber  string `json:"seat_number"`
	FlightID    string `json:"flight_id"`
}

type bidReq struct {
	BiddingID        string           `json:"bidding_id"`
	BidderID         uint64           `json:"bidder_id"`
	Amount           *decimal.Decimal `json:"amount"`
	BidderSeatNumber string           `json:"bidder_seat_number"`
}

type acceptReq struct {
	BiddingID string `json:"bidding_id"`
	BidID     string `json:"bid_id"`
}

type cancelReq struct {
	BiddingID string `json:"bidding_id"`
}

type startResp struct {
	BiddingID      string              `json:"bidding_id"`
	Status         model.BiddingStatus `json:"status"`
	StartTime      time.Time           `json:"start_time"`
	ExpirationTime time.Time           `json:"expiration_time"`
	Bids           []model.Bid         `json:"bids"`
}

// Start handles POST /v1/bidding/start.  passenger_id may be omitted and
// defaults to the caller.
func (h *BiddingHandler) Start(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req startReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.PassengerID == 0 {
		req.PassengerID = uid
	}
	if req.PassengerID != uid {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "cannot start a bidding for another passenger"})
	}
	b, err := h.Engine.Start(c.Request().Context(), bidding.StartRequest{
		PassengerID: req.PassengerID,
		SeatNumber:  strings.TrimSpace(req.SeatNumber),
		FlightID:    strings.TrimSpace(req.FlightID),
	})
	if err != nil {
		return biddingError(c, err)
	}
	return c.JSON(http.StatusCreated, startResp{
		BiddingID:      b.BiddingID,
		Status:         b.Status,
		StartTime:      b.StartTime,
		ExpirationTime: b.ExpirationTime,
		Bids:           []model.Bid{},
	})
}

// PlaceBid handles POST /v1/bidding/bid.
func (h *BiddingHandler) PlaceBid(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req bidReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Amount == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount is required"})
	}
	if req.BidderID == 0 {
		req.BidderID = uid
	}
	if req.BidderID != uid {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "cannot bid for another passenger"})
	}
	bid, err := h.Engine.PlaceBid(c.Request().Context(), bidding.BidRequest{
		BiddingID:        strings.TrimSpace(req.BiddingID),
		BidderID:         req.BidderID,
		Amount:           *req.Amount,
		BidderSeatNumber: strings.TrimSpace(req.BidderSeatNumber),
	})
	if err != nil {
		return biddingError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"bid_id": bid.BidID})
}

// Accept handles POST /v1/bidding/accept.  Only the initiator may accept.
func (h *BiddingHandler) Accept(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req acceptReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx := c.Request().Context()
	b, err := h.Engine.Get(ctx, strings.TrimSpace(req.BiddingID))
	if err != nil {
		return biddingError(c, err)
	}
	if b.PassengerID != uid {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "only the bidding initiator can accept a bid"})
	}
	if _, err := h.Engine.Accept(ctx, b.BiddingID, strings.TrimSpace(req.BidID)); err != nil {
		return biddingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// Cancel handles POST /v1/bidding/cancel.
func (h *BiddingHandler) Cancel(c echo.Context) error {
	uid, role, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req cancelReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx := c.Request().Context()
	b, err := h.Engine.Get(ctx, strings.TrimSpace(req.BiddingID))
	if err != nil {
		return biddingError(c, err)
	}
	if b.PassengerID != uid && role != model.RoleAdmin {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "only the bidding initiator can cancel"})
	}
	if err := h.Engine.Cancel(ctx, b.BiddingID); err != nil {
		return biddingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// ListActive handles GET /v1/bidding/active/:flightId.
func (h *BiddingHandler) ListActive(c echo.Context) error {
	list, err := h.Engine.ListActive(c.Request().Context(), c.Param("flightId"))
	if err != nil {
		return biddingError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}
