package model

import "time"

// Flight is the subset of a flight record the bidding core needs.  The
// record itself is maintained by the trip features; the core only reads
// it to derive a bidding's expiration.
//
// Fields:
//  FlightID           – flights.flight_id.
//  CarrierCode        – IATA carrier code (e.g. AA).
//  FlightNumber       – flight number within the carrier.
//  ScheduledDeparture – scheduled departure in UTC.
type Flight struct {
	FlightID           string    `json:"flight_id"`
	CarrierCode        string    `json:"carrier_code"`
	FlightNumber       string    `json:"flight_number"`
	ScheduledDeparture time.Time `json:"scheduled_departure"`
}

// Passenger maps a user on a flight to their assigned seat.  A passenger
// holds exactly one seat per flight and a seat is held by at most one
// passenger.
//
// Fields:
//  FlightID   – passengers.flight_id.
//  UserID     – passengers.user_id.
//  SeatNumber – passengers.seat_number.
type Passenger struct {
	FlightID   string `json:"flight_id"`
	UserID     uint64 `json:"user_id"`
	SeatNumber string `json:"seat_number"`
}
