package bidding

import (
	"context"
	"time"

	"github.com/nowshin-108/capstone/internal/model"
)

// Store persists active biddings and their bids.  Implementations return
// the sentinels of the repository package: ErrNotFound for a missing row,
// ErrConflict when a uniqueness rule is violated and ErrInactive when a
// bid targets a bidding that is not active.
type Store interface {
	// Create inserts an ACTIVE bidding.  It fails with ErrConflict if the
	// seat key or the passenger already has a bidding.
	Create(ctx context.Context, b *model.Bidding) error
	// Get returns a bidding with its bids ordered by submission time.
	Get(ctx context.Context, biddingID string) (*model.Bidding, error)
	// ActiveByPassenger returns the passenger's ACTIVE bidding, if any.
	ActiveByPassenger(ctx context.Context, passengerID uint64) (*model.Bidding, error)
	// ListByFlight returns the ACTIVE biddings of a flight ordered by start
	// time, each with its bids.
	ListByFlight(ctx context.Context, flightID string) ([]model.Bidding, error)
	// ListActive returns every ACTIVE bidding without bids.
	ListActive(ctx context.Context) ([]model.Bidding, error)
	// AddBid inserts a bid if its bidding is still ACTIVE.
	AddBid(ctx context.Context, bid *model.Bid) error
	// Delete removes an ACTIVE bidding and its bids.
	Delete(ctx context.Context, biddingID string) error
	// DeleteExpired removes the bidding only if it is ACTIVE and its
	// expiration is not after now.  It reports whether a row was removed.
	DeleteExpired(ctx context.Context, biddingID string, now time.Time) (bool, error)
}

// SeatOracle answers whether a user currently holds a seat.  It must read
// the latest committed assignment.
type SeatOracle interface {
	OwnsSeat(ctx context.Context, flightID string, userID uint64, seatNumber string) (bool, error)
}

// SeatSwapper exchanges two seats and purges the auction state that
// referenced them, atomically.  It returns repository.ErrInactive when the
// bidding is no longer active and repository.ErrSeatMoved when either
// party no longer holds the declared seat.
type SeatSwapper interface {
	SwapSeats(ctx context.Context, swap model.SeatSwap) (model.SwapResult, error)
}

// FlightDirectory resolves flight records.
type FlightDirectory interface {
	Flight(ctx context.Context, flightID string) (*model.Flight, error)
}
