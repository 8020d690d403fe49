package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/nowshin-108/capstone/internal/model"
)

// BiddingRepo stores active biddings and their bids in MySQL.  Terminal
// biddings are deleted rather than updated; bids follow their bidding
// through ON DELETE CASCADE.  All timestamps are stored in UTC with
// millisecond precision.
type BiddingRepo struct {
	db *sql.DB
}

// NewBiddingRepo returns a new BiddingRepo bound to the given database.
func NewBiddingRepo(db *sql.DB) *BiddingRepo { return &BiddingRepo{db: db} }

const biddingColumns = `bidding_id, flight_id, passenger_id, seat_number, start_time, expiration_time, status`

const bidColumns = `bid_id, bidding_id, flight_id, bidder_id, bidder_seat_number, amount, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBidding(row rowScanner) (*model.Bidding, error) {
	var b model.Bidding
	var status string
	if err := row.Scan(&b.BiddingID, &b.FlightID, &b.PassengerID, &b.SeatNumber,
		&b.StartTime, &b.ExpirationTime, &status); err != nil {
		return nil, err
	}
	b.Status = model.BiddingStatus(status)
	b.StartTime = b.StartTime.UTC()
	b.ExpirationTime = b.ExpirationTime.UTC()
	b.Bids = []model.Bid{}
	return &b, nil
}

func scanBid(row rowScanner) (model.Bid, error) {
	var bid model.Bid
	err := row.Scan(&bid.BidID, &bid.BiddingID, &bid.FlightID, &bid.BidderID,
		&bid.BidderSeatNumber, &bid.Amount, &bid.Time)
	bid.Time = bid.Time.UTC()
	return bid, err
}

// Create inserts an ACTIVE bidding.  A duplicate bidding_id or a second
// bidding for the same passenger yields ErrConflict.
func (r *BiddingRepo) Create(ctx context.Context, b *model.Bidding) error {
	const q = `INSERT INTO biddings (` + biddingColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, b.BiddingID, b.FlightID, b.PassengerID, b.SeatNumber,
		b.StartTime.UTC(), b.ExpirationTime.UTC(), string(model.BiddingActive))
	if isDuplicate(err) {
		return ErrConflict
	}
	return err
}

// Get returns a bidding with its bids ordered by submission time.
func (r *BiddingRepo) Get(ctx context.Context, biddingID string) (*model.Bidding, error) {
	const q = `SELECT ` + biddingColumns + ` FROM biddings WHERE bidding_id = ?`
	b, err := scanBidding(r.db.QueryRowContext(ctx, q, biddingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	const qb = `SELECT ` + bidColumns + ` FROM bids WHERE bidding_id = ? ORDER BY created_at, seq`
	rows, err := r.db.QueryContext(ctx, qb, biddingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		b.Bids = append(b.Bids, bid)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return b, nil
}

// ActiveByPassenger returns the passenger's ACTIVE bidding without bids.
func (r *BiddingRepo) ActiveByPassenger(ctx context.Context, passengerID uint64) (*model.Bidding, error) {
	const q = `SELECT ` + biddingColumns + ` FROM biddings WHERE passenger_id = ? AND status = 'ACTIVE' LIMIT 1`
	b, err := scanBidding(r.db.QueryRowContext(ctx, q, passengerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

// ListByFlight returns the ACTIVE biddings of a flight ordered by start
// time.  Bids are loaded with one query for the whole flight.
func (r *BiddingRepo) ListByFlight(ctx context.Context, flightID string) ([]model.Bidding, error) {
	const q = `SELECT ` + biddingColumns + ` FROM biddings
			   WHERE flight_id = ? AND status = 'ACTIVE'
			   ORDER BY start_time, bidding_id`
	out, err := r.list(ctx, q, flightID)
	if err != nil || len(out) == 0 {
		return out, err
	}
	index := make(map[string]int, len(out))
	for i := range out {
		index[out[i].BiddingID] = i
	}
	const qb = `SELECT ` + bidColumns + ` FROM bids WHERE flight_id = ? ORDER BY created_at, seq`
	rows, err := r.db.QueryContext(ctx, qb, flightID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[bid.BiddingID]; ok {
			out[i].Bids = append(out[i].Bids, bid)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListActive returns every ACTIVE bidding without bids, soonest expiry
// first.  It is used to re-arm timers on start-up.
func (r *BiddingRepo) ListActive(ctx context.Context) ([]model.Bidding, error) {
	const q = `SELECT ` + biddingColumns + ` FROM biddings WHERE status = 'ACTIVE' ORDER BY expiration_time`
	return r.list(ctx, q)
}

func (r *BiddingRepo) list(ctx context.Context, q string, args ...any) ([]model.Bidding, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Bidding{}
	for rows.Next() {
		b, err := scanBidding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// AddBid inserts a bid only while its bidding is ACTIVE.  The insert and
// the status check are one statement.
func (r *BiddingRepo) AddBid(ctx context.Context, bid *model.Bid) error {
	const q = `INSERT INTO bids (` + bidColumns + `)
			   SELECT ?, bidding_id, flight_id, ?, ?, ?, ?
			   FROM biddings WHERE bidding_id = ? AND status = 'ACTIVE'`
	res, err := r.db.ExecContext(ctx, q, bid.BidID, bid.BidderID, bid.BidderSeatNumber,
		bid.Amount, bid.Time.UTC(), bid.BiddingID)
	if err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return r.missingOrInactive(ctx, bid.BiddingID)
	}
	return nil
}

// Delete removes an ACTIVE bidding; its bids cascade.
func (r *BiddingRepo) Delete(ctx context.Context, biddingID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM biddings WHERE bidding_id = ? AND status = 'ACTIVE'`, biddingID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return r.missingOrInactive(ctx, biddingID)
	}
	return nil
}

// DeleteExpired removes the bidding if it is ACTIVE and due at now.  The
// guard lives in the WHERE clause so a resolved bidding is left alone.
func (r *BiddingRepo) DeleteExpired(ctx context.Context, biddingID string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM biddings WHERE bidding_id = ? AND status = 'ACTIVE' AND expiration_time <= ?`,
		biddingID, now.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *BiddingRepo) missingOrInactive(ctx context.Context, biddingID string) error {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM biddings WHERE bidding_id = ?`, biddingID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrInactive
}

// LockTx reads a bidding with SELECT ... FOR UPDATE inside tx.
func (r *BiddingRepo) LockTx(ctx context.Context, tx *sql.Tx, biddingID string) (*model.Bidding, error) {
	const q = `SELECT ` + biddingColumns + ` FROM biddings WHERE bidding_id = ? FOR UPDATE`
	b, err := scanBidding(tx.QueryRowContext(ctx, q, biddingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

// DeleteBySeatsTx deletes every bidding on the flight keyed by one of the
// seats, and every bid on the flight declaring one of them.  It returns
// the ids of the deleted biddings and bids.
func (r *BiddingRepo) DeleteBySeatsTx(ctx context.Context, tx *sql.Tx, flightID string, seats []string) ([]string, []string, error) {
	if len(seats) == 0 {
		return nil, nil, nil
	}
	in := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(seats)), ", ") + ")"
	seatArgs := make([]any, 0, len(seats)+1)
	seatArgs = append(seatArgs, flightID)
	for _, s := range seats {
		seatArgs = append(seatArgs, s)
	}

	biddingIDs, err := collectIDs(ctx, tx,
		`SELECT bidding_id FROM biddings WHERE flight_id = ? AND seat_number IN `+in+` ORDER BY bidding_id FOR UPDATE`,
		seatArgs...)
	if err != nil {
		return nil, nil, err
	}
	bidArgs := append(append([]any{}, seatArgs...), seatArgs[1:]...)
	bidIDs, err := collectIDs(ctx, tx,
		`SELECT b.bid_id FROM bids b JOIN biddings g ON g.bidding_id = b.bidding_id
		 WHERE b.flight_id = ? AND (g.seat_number IN `+in+` OR b.bidder_seat_number IN `+in+`)
		 ORDER BY b.bid_id`,
		bidArgs...)
	if err != nil {
		return nil, nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM bids WHERE flight_id = ? AND bidder_seat_number IN `+in, seatArgs...); err != nil {
		return nil, nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM biddings WHERE flight_id = ? AND seat_number IN `+in, seatArgs...); err != nil {
		return nil, nil, err
	}
	return biddingIDs, bidIDs, nil
}

func collectIDs(ctx context.Context, tx *sql.Tx, q string, args ...any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
