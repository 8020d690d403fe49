// Package notify fans bidding lifecycle events out to the clients that
// follow a flight.  Delivery is best-effort: a subscriber that is not
// connected, or whose buffer is full, misses the event and is expected to
// re-read the active biddings.
package notify

import (
	"context"
	"time"

	"github.com/nowshin-108/capstone/internal/model"
)

// Event names pushed on a flight channel.
const (
	EventNewBid           = "new-bid"
	EventBiddingCompleted = "bidding-completed"
	EventBiddingExpired   = "bidding-expired"
	EventBiddingCancelled = "bidding-cancelled"
	EventBiddingsRemoved  = "biddings-removed"
)

// Event is one notification scoped to a single flight.
type Event struct {
	Name     string    `json:"event"`
	FlightID string    `json:"flight_id"`
	Data     any       `json:"data"`
	At       time.Time `json:"at"`
}

// Publisher delivers events to the subscribers of the event's flight.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// BiddingStarted is the new-bid payload for a freshly started bidding.
type BiddingStarted struct {
	BiddingID      string      `json:"bidding_id"`
	SeatNumber     string      `json:"seat_number"`
	PassengerID    uint64      `json:"passenger_id"`
	StartTime      time.Time   `json:"start_time"`
	ExpirationTime time.Time   `json:"expiration_time"`
	Bids           []model.Bid `json:"bids"`
}

// BidPlaced is the new-bid payload for a bid on an existing bidding.
type BidPlaced struct {
	BiddingID string    `json:"bidding_id"`
	Bid       model.Bid `json:"bid"`
}

// BiddingCompleted announces an accepted bid and the resulting seats.
type BiddingCompleted struct {
	BiddingID         string `json:"bidding_id"`
	WinnerID          uint64 `json:"winner_id"`
	AuctioneerNewSeat string `json:"auctioneer_new_seat"`
	BidderNewSeat     string `json:"bidder_new_seat"`
}

// BiddingClosed is the payload of bidding-expired and bidding-cancelled.
type BiddingClosed struct {
	BiddingID string `json:"bidding_id"`
}

// BiddingsRemoved tells clients to drop every bidding keyed by, and every
// bid declaring, one of the swapped seats.
type BiddingsRemoved struct {
	RemovedBiddingIDs  []string `json:"removed_bidding_ids"`
	RemovedSeatNumbers []string `json:"removed_seat_numbers"`
}
