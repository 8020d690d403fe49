package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BiddingStatus is the lifecycle state of a seat bidding.  Only ACTIVE
// biddings are ever persisted; the terminal states are reported in
// responses and events and the row is removed when they are reached.
type BiddingStatus string

const (
	BiddingActive    BiddingStatus = "ACTIVE"
	BiddingExpired   BiddingStatus = "EXPIRED"
	BiddingCompleted BiddingStatus = "COMPLETED"
	BiddingCancelled BiddingStatus = "CANCELLED"
)

// Bidding is one passenger's offer to give up a specific seat on a
// specific flight.  The identifier is derived from the flight and seat so
// that at most one bidding can exist per seat per flight.
//
// Fields:
//  BiddingID      – biddings.bidding_id, see BiddingKey.
//  FlightID       – flight on which the seat is offered.
//  PassengerID    – user who started the bidding.
//  SeatNumber     – seat being offered.
//  StartTime      – creation timestamp (UTC).
//  ExpirationTime – fixed at creation, never extended.
//  Status         – lifecycle state.
//  Bids           – counter-offers ordered by submission time.
type Bidding struct {
	BiddingID      string        `json:"bidding_id"`
	FlightID       string        `json:"flight_id"`
	PassengerID    uint64        `json:"passenger_id"`
	SeatNumber     string        `json:"seat_number"`
	StartTime      time.Time     `json:"start_time"`
	ExpirationTime time.Time     `json:"expiration_time"`
	Status         BiddingStatus `json:"status"`
	Bids           []Bid         `json:"bids"`
}

// IsActive reports whether the bidding can still take bids at the given
// instant.
func (b *Bidding) IsActive(now time.Time) bool {
	return b.Status == BiddingActive && now.Before(b.ExpirationTime)
}

// Bid is a counter-offer against an active bidding: the bidder names an
// amount and the seat they would give in exchange.
//
// Fields:
//  BidID            – bids.bid_id (UUID v4).
//  BiddingID        – owning bidding.
//  FlightID         – denormalised flight of the owning bidding.
//  BidderID         – user placing the bid.
//  BidderSeatNumber – bidder's own seat offered in exchange.
//  Amount           – informational, non-negative amount.
//  Time             – submission timestamp (UTC).
type Bid struct {
	BidID            string          `json:"bid_id"`
	BiddingID        string          `json:"bidding_id"`
	FlightID         string          `json:"flight_id"`
	BidderID         uint64          `json:"bidder_id"`
	BidderSeatNumber string          `json:"bidder_seat_number"`
	Amount           decimal.Decimal `json:"amount"`
	Time             time.Time       `json:"time"`
}

// BiddingKey returns the deterministic bidding identifier for a seat on a
// flight.
func BiddingKey(flightID, seatNumber string) string {
	return flightID + "-" + seatNumber
}
