// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// bidding engine and the handlers to distinguish between different failure
// scenarios without inspecting driver errors.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an insert or update would violate a
// uniqueness rule, such as a second bidding on the same seat.
// Handlers should translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrInactive is returned when a bidding exists but is no longer ACTIVE.
var ErrInactive = errors.New("bidding not active")

// ErrSeatMoved is returned by a seat swap when a passenger no longer
// holds the seat the swap was planned with.
var ErrSeatMoved = errors.New("seat assignment changed")

// erDupEntry is MySQL's ER_DUP_ENTRY.
const erDupEntry = 1062

// isDuplicate reports whether err is a MySQL duplicate key error.
func isDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == erDupEntry
}
