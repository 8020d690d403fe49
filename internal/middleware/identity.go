package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// Context keys set by JWTAuth.
const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// CurrentUser returns the authenticated user's id and role.  ok is false
// when JWTAuth did not run or rejected the request.
func CurrentUser(c echo.Context) (id uint64, role string, ok bool) {
	switch v := c.Get(ctxUserID).(type) {
	case uint64:
		id = v
	case float64:
		id = uint64(v)
	case string:
		id, _ = strconv.ParseUint(v, 10, 64)
	}
	role, _ = c.Get(ctxRole).(string)
	return id, role, id != 0
}

// SetUser stores an identity in the context the way JWTAuth does.
func SetUser(c echo.Context, id uint64, role string) {
	c.Set(ctxUserID, id)
	c.Set(ctxRole, role)
}

// userKey identifies the caller for rate limiting; "anon" when unknown.
func userKey(c echo.Context) string {
	if id, _, ok := CurrentUser(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
