package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/nowshin-108/capstone/internal/model"
)

// FlightRepo reads flight records.  The records are written by the trip
// features; the bidding core only needs the scheduled departure.
type FlightRepo struct {
	db *sql.DB
}

// NewFlightRepo returns a new FlightRepo bound to the given database.
func NewFlightRepo(db *sql.DB) *FlightRepo { return &FlightRepo{db: db} }

// Flight returns a flight by id.  A NULL departure is returned as the
// zero time.
func (r *FlightRepo) Flight(ctx context.Context, flightID string) (*model.Flight, error) {
	var f model.Flight
	var dep sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT flight_id, carrier_code, flight_number, scheduled_departure FROM flights WHERE flight_id = ?`,
		flightID).Scan(&f.FlightID, &f.CarrierCode, &f.FlightNumber, &dep)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if dep.Valid {
		f.ScheduledDeparture = dep.Time.UTC()
	}
	return &f, nil
}
