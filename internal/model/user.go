package model

import "time"

// Roles carried in the access token.  Passengers act on their own seats;
// admins may cancel any bidding on behalf of the system.
const (
	RolePassenger = "PASSENGER"
	RoleAdmin     = "ADMIN"
)

// User is an account from the users table.  A passenger's bookings live
// in the passengers table under the same id.
type User struct {
	ID           uint64
	Email        string
	PasswordHash string // bcrypt
	Role         string
	IsActive     bool // deactivated accounts cannot log in or refresh
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
