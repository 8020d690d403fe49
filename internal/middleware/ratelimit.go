package middleware

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/nowshin-108/capstone/internal/config"
)

// bucketScript refills the bucket continuously since its last visit, then
// tries to take one token.  Replies {allowed, whole tokens left, wait ms}.
var bucketScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local every = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local b = redis.call('HMGET', KEYS[1], 'level', 'seen')
local level = tonumber(b[1]) or capacity
local seen = tonumber(b[2]) or now
if now > seen then
	level = math.min(capacity, level + (now - seen) / every)
end

local wait = 0
if level >= 1 then
	level = level - 1
else
	wait = math.ceil((1 - level) * every)
end

redis.call('HSET', KEYS[1], 'level', tostring(level), 'seen', now)
redis.call('PEXPIRE', KEYS[1], ttl)
if wait > 0 then
	return { 0, 0, wait }
end
return { 1, math.floor(level), 0 }
`)

var errBucketReply = errors.New("ratelimit: malformed bucket reply")

// Decision is the outcome of one Take.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// RateLimiter throttles bidding mutations per passenger and action with a
// Redis-backed token bucket.  A nil *RateLimiter lets everything through.
type RateLimiter struct {
	rdb *redis.Client
	cfg config.RateLimitConfig
	now func() time.Time
}

// NewRateLimiter returns nil when limiting is disabled or Redis is not
// configured.
func NewRateLimiter(cfg config.RateLimitConfig, rdb *redis.Client) *RateLimiter {
	if !cfg.Enabled || rdb == nil {
		return nil
	}
	return &RateLimiter{rdb: rdb, cfg: cfg, now: time.Now}
}

// Take spends one token from the bucket stored at key.
func (l *RateLimiter) Take(ctx context.Context, key string) (Decision, error) {
	vals, err := bucketScript.Run(ctx, l.rdb, []string{key},
		l.now().UnixMilli(),
		l.cfg.Capacity,
		l.cfg.RefillEvery.Milliseconds(),
		l.cfg.TTL.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(vals) != 3 {
		return Decision{}, errBucketReply
	}
	return Decision{
		Allowed:    vals[0] == 1,
		Remaining:  vals[1],
		RetryAfter: time.Duration(vals[2]) * time.Millisecond,
	}, nil
}

// Middleware answers 429 once a bucket runs dry.  Redis failures let the
// request through.
func (l *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if l == nil {
			return next
		}
		return func(c echo.Context) error {
			key := l.key(c)
			d, err := l.Take(c.Request().Context(), key)
			if err != nil {
				if l.cfg.Debug {
					c.Logger().Warnf("[ratelimit] %s: %v", key, err)
				}
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
			if d.Allowed {
				return next(c)
			}

			secs := int((d.RetryAfter + time.Second - 1) / time.Second)
			h.Set("Retry-After", strconv.Itoa(secs))
			if l.cfg.Debug {
				c.Logger().Infof("[ratelimit] %s blocked for %s", key, d.RetryAfter)
			}
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "too many bidding requests",
				"retry_after": secs,
			})
		}
	}
}

// key is prefix:user:<id>:<action> by default, where action is the last
// route segment (start, bid, accept, cancel).
func (l *RateLimiter) key(c echo.Context) string {
	switch strings.ToLower(l.cfg.KeyStrategy) {
	case "ip":
		return l.cfg.Prefix + ":ip:" + c.RealIP()
	case "user":
		return l.cfg.Prefix + ":user:" + userKey(c)
	default:
		return l.cfg.Prefix + ":user:" + userKey(c) + ":" + path.Base(c.Path())
	}
}
