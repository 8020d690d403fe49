package repository

import (
	"context"
	"database/sql"
	"errors"
)

// PassengerRepo reads and updates seat assignments in the passengers
// table.  It is the seat ownership oracle for the bidding engine and
// provides the row-level operations of the seat swap.
type PassengerRepo struct {
	db *sql.DB
}

// NewPassengerRepo returns a new PassengerRepo bound to the given database.
func NewPassengerRepo(db *sql.DB) *PassengerRepo { return &PassengerRepo{db: db} }

// OwnsSeat reports whether the user currently holds the seat on the
// flight.  It always reads the committed row; nothing is cached.
func (r *PassengerRepo) OwnsSeat(ctx context.Context, flightID string, userID uint64, seatNumber string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM passengers WHERE flight_id = ? AND user_id = ? AND seat_number = ?`,
		flightID, userID, seatNumber).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetSeat returns the user's current seat on the flight.
func (r *PassengerRepo) GetSeat(ctx context.Context, flightID string, userID uint64) (string, error) {
	var seat string
	err := r.db.QueryRowContext(ctx,
		`SELECT seat_number FROM passengers WHERE flight_id = ? AND user_id = ?`,
		flightID, userID).Scan(&seat)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return seat, err
}

// LockSeatTx reads the user's seat with SELECT ... FOR UPDATE.
func (r *PassengerRepo) LockSeatTx(ctx context.Context, tx *sql.Tx, flightID string, userID uint64) (string, error) {
	var seat string
	err := tx.QueryRowContext(ctx,
		`SELECT seat_number FROM passengers WHERE flight_id = ? AND user_id = ? FOR UPDATE`,
		flightID, userID).Scan(&seat)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return seat, err
}

// UpdateSeatTx assigns a seat to the user inside tx.
func (r *PassengerRepo) UpdateSeatTx(ctx context.Context, tx *sql.Tx, flightID string, userID uint64, seatNumber string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE passengers SET seat_number = ? WHERE flight_id = ? AND user_id = ?`,
		seatNumber, flightID, userID)
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
		return ErrNotFound
	}
	return nil
}
