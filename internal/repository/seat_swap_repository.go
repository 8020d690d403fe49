package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nowshin-108/capstone/internal/model"
)

// SeatSwapRepo exchanges two passengers' seats and purges the biddings
// and bids that referenced either seat, in one transaction.
type SeatSwapRepo struct {
	db         *sql.DB
	biddings   *BiddingRepo
	passengers *PassengerRepo
}

// NewSeatSwapRepo returns a SeatSwapRepo bound to the given database.
func NewSeatSwapRepo(db *sql.DB) *SeatSwapRepo {
	return &SeatSwapRepo{db: db, biddings: NewBiddingRepo(db), passengers: NewPassengerRepo(db)}
}

// SwapSeats runs the swap.  The bidding row and both passenger rows are
// locked first; ErrInactive or ErrSeatMoved is returned, with nothing
// changed, if the bidding was resolved or a seat moved meanwhile.  The
// initiator passes through a placeholder seat because passengers has a
// unique (flight_id, seat_number) key.
func (r *SeatSwapRepo) SwapSeats(ctx context.Context, swap model.SeatSwap) (model.SwapResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.SwapResult{}, fmt.Errorf("begin swap: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	b, err := r.biddings.LockTx(ctx, tx, swap.BiddingID)
	if err != nil {
		return model.SwapResult{}, err
	}
	if b.Status != model.BiddingActive {
		return model.SwapResult{}, ErrInactive
	}

	// Lock passenger rows in user id order so concurrent swaps on the same
	// flight cannot deadlock on each other.
	type holder struct {
		userID uint64
		seat   string
	}
	holders := []holder{{swap.InitiatorID, swap.InitiatorSeat}, {swap.BidderID, swap.BidderSeat}}
	if holders[1].userID < holders[0].userID {
		holders[0], holders[1] = holders[1], holders[0]
	}
	for _, h := range holders {
		seat, err := r.passengers.LockSeatTx(ctx, tx, swap.FlightID, h.userID)
		if errors.Is(err, ErrNotFound) || (err == nil && seat != h.seat) {
			return model.SwapResult{}, ErrSeatMoved
		}
		if err != nil {
			return model.SwapResult{}, err
		}
	}

	placeholder := "~swap-" + uuid.NewString()[:8]
	if err := r.passengers.UpdateSeatTx(ctx, tx, swap.FlightID, swap.InitiatorID, placeholder); err != nil {
		return model.SwapResult{}, fmt.Errorf("park initiator seat: %w", err)
	}
	if err := r.passengers.UpdateSeatTx(ctx, tx, swap.FlightID, swap.BidderID, swap.InitiatorSeat); err != nil {
		return model.SwapResult{}, fmt.Errorf("assign bidder seat: %w", err)
	}
	if err := r.passengers.UpdateSeatTx(ctx, tx, swap.FlightID, swap.InitiatorID, swap.BidderSeat); err != nil {
		return model.SwapResult{}, fmt.Errorf("assign initiator seat: %w", err)
	}

	biddingIDs, bidIDs, err := r.biddings.DeleteBySeatsTx(ctx, tx, swap.FlightID, swap.Seats())
	if err != nil {
		return model.SwapResult{}, fmt.Errorf("purge biddings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.SwapResult{}, fmt.Errorf("commit swap: %w", err)
	}
	committed = true
	return model.SwapResult{RemovedBiddingIDs: biddingIDs, RemovedBidIDs: bidIDs}, nil
}
