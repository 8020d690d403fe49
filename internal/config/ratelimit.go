package config

import (
	"os"
	"strconv"
	"time"
)

// RateLimitConfig tunes the Redis token bucket in front of the bidding
// mutations.  A bucket holds Capacity tokens and regains one every
// RefillEvery.
type RateLimitConfig struct {
	Enabled     bool
	Capacity    int
	RefillEvery time.Duration
	TTL         time.Duration // idle buckets are dropped after this long
	KeyStrategy string        // user_action | user | ip
	Prefix      string
	Debug       bool
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables.  By default each
// passenger gets a burst of 10 starts, bids, accepts or cancels per action,
// refilled one every 3 seconds.
func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled:     envBool("RATE_LIMIT_ENABLED", true),
		Capacity:    envInt("RATE_LIMIT_CAPACITY", 10),
		RefillEvery: envDur("RATE_LIMIT_REFILL_EVERY", 3*time.Second),
		TTL:         envDur("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy: envStr("RATE_LIMIT_KEY_STRATEGY", "user_action"),
		Prefix:      envStr("RATE_LIMIT_PREFIX", "rl:bidding"),
		Debug:       envBool("RATE_LIMIT_DEBUG", false),
	}
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	if cfg.RefillEvery <= 0 {
		cfg.RefillEvery = time.Second
	}
	// A bucket must outlive a full refill or it would reset early.
	if full := time.Duration(cfg.Capacity) * cfg.RefillEvery; cfg.TTL < full {
		cfg.TTL = full
	}
	return cfg
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		switch v {
		case "yes", "YES", "on", "ON":
			return true
		case "no", "NO", "off", "OFF":
			return false
		}
		return d
	}
	return b
}

func envInt(k string, d int) int {
	if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	if dur, err := time.ParseDuration(os.Getenv(k)); err == nil {
		return dur
	}
	return d
}
