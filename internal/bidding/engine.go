// Package bidding implements the seat-bidding state machine: a passenger
// offers their seat on a flight, other passengers on the same flight bid
// with their own seat, and the initiator may accept one bid, which swaps
// the two seats atomically.  Biddings end by acceptance, cancellation or
// expiration one margin before departure.  Only active biddings are
// stored; every terminal transition deletes the bidding and its bids.
package bidding

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nowshin-108/capstone/internal/model"
	"github.com/nowshin-108/capstone/internal/notify"
	"github.com/nowshin-108/capstone/internal/repository"
	"github.com/nowshin-108/capstone/internal/scheduler"
)

// Storage bounds: seat numbers are VARCHAR(16), amounts DECIMAL(12,2).
const maxSeatLen = 16

var maxAmount = decimal.RequireFromString("9999999999.99")

// Options tunes the bidding window.
type Options struct {
	// ExpiryMargin is how long before scheduled departure a bidding
	// expires.
	ExpiryMargin time.Duration
	// MaxWindow caps the lifetime of a bidding.  Zero means no cap.
	MaxWindow time.Duration
	// ExpireTimeout bounds the storage work of one expiration callback.
	ExpireTimeout time.Duration
}

// DefaultOptions expires biddings one hour before departure.
func DefaultOptions() Options {
	return Options{ExpiryMargin: time.Hour, ExpireTimeout: 10 * time.Second}
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Store     Store
	Seats     SeatOracle
	Swapper   SeatSwapper
	Flights   FlightDirectory
	Events    notify.Publisher
	Scheduler *scheduler.Scheduler
}

// Engine runs the bidding state machine.  Work on one bidding is
// serialised in-process by its key; storage guards serialise across
// processes.
type Engine struct {
	store   Store
	seats   SeatOracle
	swapper SeatSwapper
	flights FlightDirectory
	events  notify.Publisher
	sched   *scheduler.Scheduler
	clock   scheduler.Clock
	opts    Options
	locks   *keyLocks
}

// NewEngine wires an Engine.  A nil scheduler runs on the system clock.
func NewEngine(d Deps, opts Options) *Engine {
	sched := d.Scheduler
	if sched == nil {
		sched = scheduler.New(scheduler.System())
	}
	if opts.ExpireTimeout <= 0 {
		opts.ExpireTimeout = 10 * time.Second
	}
	return &Engine{
		store:   d.Store,
		seats:   d.Seats,
		swapper: d.Swapper,
		flights: d.Flights,
		events:  d.Events,
		sched:   sched,
		clock:   sched.Clock(),
		opts:    opts,
		locks:   newKeyLocks(),
	}
}

// StartRequest opens a bidding on the passenger's seat.
type StartRequest struct {
	PassengerID uint64
	SeatNumber  string
	FlightID    string
}

// BidRequest is a counter-offer on an active bidding.
type BidRequest struct {
	BiddingID        string
	BidderID         uint64
	Amount           decimal.Decimal
	BidderSeatNumber string
}

// AcceptResult describes a completed swap.
type AcceptResult struct {
	Bidding            model.Bidding
	Bid                model.Bid
	InitiatorNewSeat   string
	BidderNewSeat      string
	RemovedBiddingIDs  []string
	RemovedSeatNumbers []string
}

// Start opens a bidding for the passenger's seat.  The expiration is
// derived from the flight's scheduled departure and a timer is armed for
// it.
func (e *Engine) Start(ctx context.Context, req StartRequest) (*model.Bidding, error) {
	seat := strings.TrimSpace(req.SeatNumber)
	flightID := strings.TrimSpace(req.FlightID)
	if req.PassengerID == 0 || seat == "" || flightID == "" {
		return nil, fmt.Errorf("%w: passenger, seat and flight are required", ErrValidation)
	}
	if utf8.RuneCountInString(seat) > maxSeatLen {
		return nil, fmt.Errorf("%w: seat number longer than %d characters", ErrValidation, maxSeatLen)
	}

	flight, err := e.flights.Flight(ctx, flightID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: flight %s", ErrNotFound, flightID)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup flight %s: %w", flightID, err)
	}
	if flight.ScheduledDeparture.IsZero() {
		return nil, fmt.Errorf("%w: flight %s has no scheduled departure", ErrNotFound, flightID)
	}

	now := e.clock.Now().Truncate(time.Millisecond)
	expires := flight.ScheduledDeparture.UTC().Add(-e.opts.ExpiryMargin).Truncate(time.Millisecond)
	if e.opts.MaxWindow > 0 && expires.After(now.Add(e.opts.MaxWindow)) {
		expires = now.Add(e.opts.MaxWindow)
	}
	if !expires.After(now) {
		return nil, fmt.Errorf("%w: bidding window for flight %s is closed", ErrValidation, flightID)
	}

	key := model.BiddingKey(flightID, seat)
	unlock := e.locks.lock(key)
	defer unlock()

	if err := e.checkNoActive(ctx, key, req.PassengerID, now); err != nil {
		return nil, err
	}

	owns, err := e.seats.OwnsSeat(ctx, flightID, req.PassengerID, seat)
	if err != nil {
		return nil, fmt.Errorf("check seat ownership: %w", err)
	}
	if !owns {
		return nil, fmt.Errorf("%w: passenger %d does not hold seat %s", ErrConflict, req.PassengerID, seat)
	}

	b := &model.Bidding{
		BiddingID:      key,
		FlightID:       flightID,
		PassengerID:    req.PassengerID,
		SeatNumber:     seat,
		StartTime:      now,
		ExpirationTime: expires,
		Status:         model.BiddingActive,
		Bids:           []model.Bid{},
	}
	if err := e.store.Create(ctx, b); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, e.conflictFor(ctx, key, req.PassengerID)
		}
		return nil, fmt.Errorf("create bidding: %w", err)
	}

	e.sched.Schedule(key, expires, func() { e.expire(key) })
	e.publish(ctx, flightID, notify.EventNewBid, notify.BiddingStarted{
		BiddingID:      b.BiddingID,
		SeatNumber:     b.SeatNumber,
		PassengerID:    b.PassengerID,
		StartTime:      b.StartTime,
		ExpirationTime: b.ExpirationTime,
		Bids:           []model.Bid{},
	})
	return b, nil
}

// checkNoActive rejects a start when the passenger or the seat already has
// a live bidding.  Biddings that are past their expiration but not yet
// reaped by their timer are expired here.
func (e *Engine) checkNoActive(ctx context.Context, key string, passengerID uint64, now time.Time) error {
	mine, err := e.store.ActiveByPassenger(ctx, passengerID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return fmt.Errorf("lookup passenger bidding: %w", err)
	case mine.IsActive(now):
		return &ConflictError{ExistingBiddingID: mine.BiddingID, Reason: "passenger already has an active bidding"}
	default:
		e.reap(ctx, mine, now)
	}

	seat, err := e.store.Get(ctx, key)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return fmt.Errorf("lookup seat bidding: %w", err)
	case seat.IsActive(now):
		return &ConflictError{ExistingBiddingID: seat.BiddingID, Reason: "seat already has an active bidding"}
	default:
		e.reap(ctx, seat, now)
	}
	return nil
}

// conflictFor builds the error for a create that lost a uniqueness race.
func (e *Engine) conflictFor(ctx context.Context, key string, passengerID uint64) error {
	if mine, err := e.store.ActiveByPassenger(ctx, passengerID); err == nil {
		return &ConflictError{ExistingBiddingID: mine.BiddingID, Reason: "passenger already has an active bidding"}
	}
	if b, err := e.store.Get(ctx, key); err == nil {
		return &ConflictError{ExistingBiddingID: b.BiddingID, Reason: "seat already has an active bidding"}
	}
	return fmt.Errorf("%w: bidding %s already exists", ErrConflict, key)
}

// PlaceBid records a counter-offer.  A passenger may bid several times,
// but never on their own bidding.
func (e *Engine) PlaceBid(ctx context.Context, req BidRequest) (*model.Bid, error) {
	seat := strings.TrimSpace(req.BidderSeatNumber)
	if req.BiddingID == "" || req.BidderID == 0 || seat == "" {
		return nil, fmt.Errorf("%w: bidding, bidder and bidder seat are required", ErrValidation)
	}
	if utf8.RuneCountInString(seat) > maxSeatLen {
		return nil, fmt.Errorf("%w: bidder seat longer than %d characters", ErrValidation, maxSeatLen)
	}
	if req.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}
	if req.Amount.GreaterThan(maxAmount) {
		return nil, fmt.Errorf("%w: amount exceeds %s", ErrValidation, maxAmount)
	}
	if !req.Amount.Equal(req.Amount.Round(2)) {
		return nil, fmt.Errorf("%w: amount has more than two decimal places", ErrValidation)
	}

	unlock := e.locks.lock(req.BiddingID)
	defer unlock()

	now := e.clock.Now().Truncate(time.Millisecond)
	b, err := e.load(ctx, req.BiddingID)
	if err != nil {
		return nil, err
	}
	if !b.IsActive(now) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, b.BiddingID)
	}
	if b.PassengerID == req.BidderID {
		return nil, fmt.Errorf("%w: cannot bid on your own bidding", ErrValidation)
	}

	bid := &model.Bid{
		BidID:            uuid.NewString(),
		BiddingID:        b.BiddingID,
		FlightID:         b.FlightID,
		BidderID:         req.BidderID,
		BidderSeatNumber: seat,
		Amount:           req.Amount,
		Time:             now,
	}
	if err := e.store.AddBid(ctx, bid); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%w: bidding %s", ErrNotFound, b.BiddingID)
		case errors.Is(err, repository.ErrInactive):
			return nil, fmt.Errorf("%w: %s", ErrInvalidState, b.BiddingID)
		}
		return nil, fmt.Errorf("add bid: %w", err)
	}

	e.publish(ctx, b.FlightID, notify.EventNewBid, notify.BidPlaced{BiddingID: b.BiddingID, Bid: *bid})
	return bid, nil
}

// Accept swaps the initiator's seat with the seat declared by the chosen
// bid.  Ownership of both seats is checked before the swap and again
// inside its transaction.
func (e *Engine) Accept(ctx context.Context, biddingID, bidID string) (*AcceptResult, error) {
	if biddingID == "" || bidID == "" {
		return nil, fmt.Errorf("%w: bidding and bid are required", ErrValidation)
	}

	// The bidder's seat is only known from the bid, and its key must be
	// held too since the swap purges biddings on that seat.
	peek, err := e.load(ctx, biddingID)
	if err != nil {
		return nil, err
	}
	peekBid, ok := findBid(peek.Bids, bidID)
	if !ok {
		return nil, fmt.Errorf("%w: bid %s is not on bidding %s", ErrInvalidState, bidID, biddingID)
	}
	unlock := e.locks.lock(biddingID, model.BiddingKey(peek.FlightID, peekBid.BidderSeatNumber))
	defer unlock()

	b, err := e.load(ctx, biddingID)
	if err != nil {
		return nil, err
	}
	if !b.IsActive(e.clock.Now()) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, biddingID)
	}
	bid, ok := findBid(b.Bids, bidID)
	if !ok || bid.BidderSeatNumber != peekBid.BidderSeatNumber {
		return nil, fmt.Errorf("%w: bid %s is not on bidding %s", ErrInvalidState, bidID, biddingID)
	}

	if err := e.checkOwner(ctx, b.FlightID, b.PassengerID, b.SeatNumber, "bidding initiator"); err != nil {
		return nil, err
	}
	if err := e.checkOwner(ctx, b.FlightID, bid.BidderID, bid.BidderSeatNumber, "bidder"); err != nil {
		return nil, err
	}

	swap := model.SeatSwap{
		BiddingID:     b.BiddingID,
		FlightID:      b.FlightID,
		InitiatorID:   b.PassengerID,
		InitiatorSeat: b.SeatNumber,
		BidderID:      bid.BidderID,
		BidderSeat:    bid.BidderSeatNumber,
	}
	res, err := e.swapper.SwapSeats(ctx, swap)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrInactive), errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%w: %s", ErrInvalidState, biddingID)
		case errors.Is(err, repository.ErrSeatMoved):
			return nil, fmt.Errorf("%w: a passenger no longer owns the seat", ErrConflict)
		}
		log.Printf("bidding: swap for %s failed: %v", biddingID, err)
		return nil, fmt.Errorf("%w: %v", ErrTransaction, err)
	}

	e.sched.Cancel(b.BiddingID)
	for _, id := range res.RemovedBiddingIDs {
		e.sched.Cancel(id)
	}

	seats := swap.Seats()
	removedIDs := make([]string, 0, len(seats))
	for _, s := range seats {
		removedIDs = append(removedIDs, model.BiddingKey(b.FlightID, s))
	}
	e.publish(ctx, b.FlightID, notify.EventBiddingCompleted, notify.BiddingCompleted{
		BiddingID:         b.BiddingID,
		WinnerID:          bid.BidderID,
		AuctioneerNewSeat: bid.BidderSeatNumber,
		BidderNewSeat:     b.SeatNumber,
	})
	e.publish(ctx, b.FlightID, notify.EventBiddingsRemoved, notify.BiddingsRemoved{
		RemovedBiddingIDs:  removedIDs,
		RemovedSeatNumbers: seats,
	})

	done := *b
	done.Status = model.BiddingCompleted
	return &AcceptResult{
		Bidding:            done,
		Bid:                bid,
		InitiatorNewSeat:   bid.BidderSeatNumber,
		BidderNewSeat:      b.SeatNumber,
		RemovedBiddingIDs:  removedIDs,
		RemovedSeatNumbers: seats,
	}, nil
}

func (e *Engine) checkOwner(ctx context.Context, flightID string, userID uint64, seat, who string) error {
	owns, err := e.seats.OwnsSeat(ctx, flightID, userID, seat)
	if err != nil {
		return fmt.Errorf("check seat ownership: %w", err)
	}
	if !owns {
		return fmt.Errorf("%w: %s no longer owns seat %s", ErrConflict, who, seat)
	}
	return nil
}

// Cancel withdraws an active bidding and deletes its bids.
func (e *Engine) Cancel(ctx context.Context, biddingID string) error {
	if biddingID == "" {
		return fmt.Errorf("%w: bidding is required", ErrValidation)
	}
	unlock := e.locks.lock(biddingID)
	defer unlock()

	b, err := e.load(ctx, biddingID)
	if err != nil {
		return err
	}
	if !b.IsActive(e.clock.Now()) {
		return fmt.Errorf("%w: %s", ErrInvalidState, biddingID)
	}
	if err := e.store.Delete(ctx, biddingID); err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInactive) {
			return fmt.Errorf("%w: %s", ErrInvalidState, biddingID)
		}
		return fmt.Errorf("delete bidding: %w", err)
	}
	e.sched.Cancel(biddingID)
	e.publish(ctx, b.FlightID, notify.EventBiddingCancelled, notify.BiddingClosed{BiddingID: biddingID})
	return nil
}

// Get returns an active bidding with its bids.
func (e *Engine) Get(ctx context.Context, biddingID string) (*model.Bidding, error) {
	b, err := e.load(ctx, biddingID)
	if err != nil {
		return nil, err
	}
	if !b.IsActive(e.clock.Now()) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, biddingID)
	}
	return b, nil
}

// ListActive returns the live biddings of a flight ordered by start time,
// each with its bids in submission order.
func (e *Engine) ListActive(ctx context.Context, flightID string) ([]model.Bidding, error) {
	if strings.TrimSpace(flightID) == "" {
		return nil, fmt.Errorf("%w: flight is required", ErrValidation)
	}
	all, err := e.store.ListByFlight(ctx, flightID)
	if err != nil {
		return nil, fmt.Errorf("list biddings: %w", err)
	}
	now := e.clock.Now()
	out := make([]model.Bidding, 0, len(all))
	for _, b := range all {
		if !b.IsActive(now) {
			continue
		}
		if b.Bids == nil {
			b.Bids = []model.Bid{}
		}
		sort.SliceStable(b.Bids, func(i, j int) bool { return b.Bids[i].Time.Before(b.Bids[j].Time) })
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// Recover arms a timer for every stored active bidding and expires the
// overdue ones.  It returns the number of timers armed.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	all, err := e.store.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active biddings: %w", err)
	}
	now := e.clock.Now()
	armed := 0
	for _, b := range all {
		id := b.BiddingID
		if !b.ExpirationTime.After(now) {
			e.expire(id)
			continue
		}
		e.sched.Schedule(id, b.ExpirationTime, func() { e.expire(id) })
		armed++
	}
	return armed, nil
}

// Close cancels every pending expiration.
func (e *Engine) Close() {
	e.sched.Stop()
}

// expire is the timer callback.  It acts only if the bidding is still
// active and due, so a late or stale timer is a no-op.
func (e *Engine) expire(biddingID string) {
	ctx, cancel := context.WithTimeout(context.Background(), e.opts.ExpireTimeout)
	defer cancel()

	unlock := e.locks.lock(biddingID)
	defer unlock()

	b, err := e.store.Get(ctx, biddingID)
	if errors.Is(err, repository.ErrNotFound) {
		return
	}
	if err != nil {
		log.Printf("bidding: expire %s: %v", biddingID, err)
		return
	}
	now := e.clock.Now()
	if b.Status != model.BiddingActive || now.Before(b.ExpirationTime) {
		return
	}
	e.reap(ctx, b, now)
}

// reap deletes a bidding that is past its expiration and announces it.
// The caller holds the bidding's key or owns no other state on it.
func (e *Engine) reap(ctx context.Context, b *model.Bidding, now time.Time) {
	deleted, err := e.store.DeleteExpired(ctx, b.BiddingID, now)
	if err != nil {
		log.Printf("bidding: expire %s: %v", b.BiddingID, err)
		return
	}
	e.sched.Cancel(b.BiddingID)
	if !deleted {
		return
	}
	log.Printf("bidding: expired %s on flight %s", b.BiddingID, b.FlightID)
	e.publish(ctx, b.FlightID, notify.EventBiddingExpired, notify.BiddingClosed{BiddingID: b.BiddingID})
}

func (e *Engine) load(ctx context.Context, biddingID string) (*model.Bidding, error) {
	b, err := e.store.Get(ctx, biddingID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: bidding %s", ErrNotFound, biddingID)
	}
	if err != nil {
		return nil, fmt.Errorf("load bidding %s: %w", biddingID, err)
	}
	return b, nil
}

// publish hands an event to the fan-out.  Delivery is best-effort and a
// failure never fails the transition that produced it.
func (e *Engine) publish(ctx context.Context, flightID, name string, data any) {
	if e.events == nil {
		return
	}
	ev := notify.Event{Name: name, FlightID: flightID, Data: data, At: e.clock.Now()}
	if err := e.events.Publish(ctx, ev); err != nil {
		log.Printf("bidding: publish %s for flight %s: %v", name, flightID, err)
	}
}

func findBid(bids []model.Bid, bidID string) (model.Bid, bool) {
	for _, b := range bids {
		if b.BidID == bidID {
			return b, true
		}
	}
	return model.Bid{}, false
}
