// Package memory is an in-process implementation of the bidding storage
// contracts: bidding store, flight directory, seat oracle and seat swap.
// All state lives behind one mutex, so every method is atomic.  It backs
// the engine and handler tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nowshin-108/capstone/internal/model"
	"github.com/nowshin-108/capstone/internal/repository"
)

// Store holds flights, seat assignments and active biddings.
type Store struct {
	mu       sync.Mutex
	flights  map[string]model.Flight
	seats    map[string]map[uint64]string // flight -> user -> seat
	biddings map[string]*model.Bidding

	// BeforeSwap, when set, runs inside SwapSeats after the guards pass
	// and before any mutation.  A non-nil error aborts the swap.
	BeforeSwap func(model.SeatSwap) error
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		flights:  make(map[string]model.Flight),
		seats:    make(map[string]map[uint64]string),
		biddings: make(map[string]*model.Bidding),
	}
}

// PutFlight adds or replaces a flight record.
func (s *Store) PutFlight(f model.Flight) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flights[f.FlightID] = f
}

// AssignSeat sets a passenger's seat.  It fails if another passenger on
// the flight holds the seat.
func (s *Store) AssignSeat(flightID string, userID uint64, seat string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for uid, held := range s.seats[flightID] {
		if held == seat && uid != userID {
			return fmt.Errorf("seat %s on %s: %w", seat, flightID, repository.ErrConflict)
		}
	}
	if s.seats[flightID] == nil {
		s.seats[flightID] = make(map[uint64]string)
	}
	s.seats[flightID][userID] = seat
	return nil
}

// Seat returns a passenger's current seat.
func (s *Store) Seat(flightID string, userID uint64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seat, ok := s.seats[flightID][userID]
	return seat, ok
}

// GetSeat returns a passenger's seat or repository.ErrNotFound.
func (s *Store) GetSeat(_ context.Context, flightID string, userID uint64) (string, error) {
	seat, ok := s.Seat(flightID, userID)
	if !ok {
		return "", repository.ErrNotFound
	}
	return seat, nil
}

// Flight implements the flight directory.
func (s *Store) Flight(_ context.Context, flightID string) (*model.Flight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flights[flightID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &f, nil
}

// OwnsSeat implements the seat oracle.
func (s *Store) OwnsSeat(_ context.Context, flightID string, userID uint64, seat string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	held, ok := s.seats[flightID][userID]
	return ok && held == seat, nil
}

// Create inserts an active bidding.
func (s *Store) Create(_ context.Context, b *model.Bidding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.biddings[b.BiddingID]; ok {
		return repository.ErrConflict
	}
	for _, other := range s.biddings {
		if other.PassengerID == b.PassengerID {
			return repository.ErrConflict
		}
	}
	cp := copyBidding(b)
	cp.Status = model.BiddingActive
	s.biddings[b.BiddingID] = cp
	return nil
}

// Get returns a copy of a bidding with its bids.
func (s *Store) Get(_ context.Context, biddingID string) (*model.Bidding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.biddings[biddingID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyBidding(b), nil
}

// ActiveByPassenger returns the passenger's bidding.
func (s *Store) ActiveByPassenger(_ context.Context, passengerID uint64) (*model.Bidding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.biddings {
		if b.PassengerID == passengerID && b.Status == model.BiddingActive {
			return copyBidding(b), nil
		}
	}
	return nil, repository.ErrNotFound
}

// ListByFlight returns a flight's active biddings ordered by start time.
func (s *Store) ListByFlight(_ context.Context, flightID string) ([]model.Bidding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Bidding{}
	for _, b := range s.biddings {
		if b.FlightID == flightID && b.Status == model.BiddingActive {
			out = append(out, *copyBidding(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// ListActive returns every active bidding without bids.
func (s *Store) ListActive(_ context.Context) ([]model.Bidding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Bidding, 0, len(s.biddings))
	for _, b := range s.biddings {
		if b.Status != model.BiddingActive {
			continue
		}
		cp := *b
		cp.Bids = nil
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpirationTime.Before(out[j].ExpirationTime) })
	return out, nil
}

// AddBid appends a bid to an active bidding.
func (s *Store) AddBid(_ context.Context, bid *model.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.biddings[bid.BiddingID]
	if !ok {
		return repository.ErrNotFound
	}
	if b.Status != model.BiddingActive {
		return repository.ErrInactive
	}
	b.Bids = append(b.Bids, *bid)
	return nil
}

// Delete removes an active bidding and its bids.
func (s *Store) Delete(_ context.Context, biddingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.biddings[biddingID]
	if !ok {
		return repository.ErrNotFound
	}
	if b.Status != model.BiddingActive {
		return repository.ErrInactive
	}
	delete(s.biddings, biddingID)
	return nil
}

// DeleteExpired removes the bidding if it is active and due at now.
func (s *Store) DeleteExpired(_ context.Context, biddingID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.biddings[biddingID]
	if !ok || b.Status != model.BiddingActive || b.ExpirationTime.After(now) {
		return false, nil
	}
	delete(s.biddings, biddingID)
	return true, nil
}

// SwapSeats exchanges the two seats and purges every bidding keyed by,
// and every bid declaring, either seat on the flight.  Nothing changes
// unless every guard passes.
func (s *Store) SwapSeats(_ context.Context, swap model.SeatSwap) (model.SwapResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.biddings[swap.BiddingID]
	if !ok {
		return model.SwapResult{}, repository.ErrNotFound
	}
	if b.Status != model.BiddingActive {
		return model.SwapResult{}, repository.ErrInactive
	}
	seats := s.seats[swap.FlightID]
	if seats[swap.InitiatorID] != swap.InitiatorSeat || seats[swap.BidderID] != swap.BidderSeat {
		return model.SwapResult{}, repository.ErrSeatMoved
	}
	if s.BeforeSwap != nil {
		if err := s.BeforeSwap(swap); err != nil {
			return model.SwapResult{}, err
		}
	}

	// Same three steps as the SQL transaction so the unique-seat rule holds
	// between each of them.
	seats[swap.InitiatorID] = "~swap-" + uuid.NewString()[:8]
	seats[swap.BidderID] = swap.InitiatorSeat
	seats[swap.InitiatorID] = swap.BidderSeat

	var res model.SwapResult
	purge := map[string]struct{}{swap.InitiatorSeat: {}, swap.BidderSeat: {}}
	for id, other := range s.biddings {
		if other.FlightID != swap.FlightID {
			continue
		}
		if _, hit := purge[other.SeatNumber]; hit {
			for _, bid := range other.Bids {
				res.RemovedBidIDs = append(res.RemovedBidIDs, bid.BidID)
			}
			res.RemovedBiddingIDs = append(res.RemovedBiddingIDs, id)
			delete(s.biddings, id)
			continue
		}
		kept := other.Bids[:0]
		for _, bid := range other.Bids {
			if _, hit := purge[bid.BidderSeatNumber]; hit {
				res.RemovedBidIDs = append(res.RemovedBidIDs, bid.BidID)
				continue
			}
			kept = append(kept, bid)
		}
		other.Bids = kept
	}
	sort.Strings(res.RemovedBiddingIDs)
	return res, nil
}

func copyBidding(b *model.Bidding) *model.Bidding {
	cp := *b
	cp.Bids = append([]model.Bid{}, b.Bids...)
	return &cp
}
