package bidding

import (
	"errors"
	"fmt"
)

// Error classes returned by the Engine.  Callers match them with
// errors.Is; the wrapped message carries the detail.
var (
	// ErrNotFound is returned for an unknown flight or bidding.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when another active bidding blocks a start
	// or when seat ownership changed before an accept.
	ErrConflict = errors.New("conflict")
	// ErrInvalidState is returned when an operation targets a bidding that
	// is no longer active, or a bid that does not belong to it.
	ErrInvalidState = errors.New("bidding is not active")
	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("invalid input")
	// ErrTransaction is returned when the seat swap failed in storage and
	// was rolled back.
	ErrTransaction = errors.New("seat swap transaction failed")
)

// ConflictError reports the active bidding that prevented a start.
type ConflictError struct {
	ExistingBiddingID string
	Reason            string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s (existing bidding %s)", e.Reason, e.ExistingBiddingID)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }
