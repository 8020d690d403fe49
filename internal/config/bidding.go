package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// BiddingConfig is the bidding policy.
//
// Keys (environment variable in parentheses):
//  bidding.expiry_margin     (BIDDING_EXPIRY_MARGIN)     – how long before departure a bidding expires.
//  bidding.max_window        (BIDDING_MAX_WINDOW)        – cap on a bidding's lifetime, 0 for none.
//  bidding.subscriber_buffer (BIDDING_SUBSCRIBER_BUFFER) – events buffered per stream client.
//  bidding.expire_timeout    (BIDDING_EXPIRE_TIMEOUT)    – storage deadline of one expiration.
type BiddingConfig struct {
	ExpiryMargin     time.Duration
	MaxWindow        time.Duration
	SubscriberBuffer int
	ExpireTimeout    time.Duration
}

// LoadBiddingConfig reads the bidding policy from defaults, the optional
// file named by BIDDING_CONFIG_FILE and the environment, in increasing
// precedence.
func LoadBiddingConfig() (BiddingConfig, error) {
	v := viper.New()
	v.SetDefault("bidding.expiry_margin", time.Hour)
	v.SetDefault("bidding.max_window", time.Duration(0))
	v.SetDefault("bidding.subscriber_buffer", 32)
	v.SetDefault("bidding.expire_timeout", 10*time.Second)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("bidding.config_file", "BIDDING_CONFIG_FILE")

	if file := v.GetString("bidding.config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return BiddingConfig{}, fmt.Errorf("read bidding config %s: %w", file, err)
		}
	}

	cfg := BiddingConfig{
		ExpiryMargin:     v.GetDuration("bidding.expiry_margin"),
		MaxWindow:        v.GetDuration("bidding.max_window"),
		SubscriberBuffer: v.GetInt("bidding.subscriber_buffer"),
		ExpireTimeout:    v.GetDuration("bidding.expire_timeout"),
	}
	if cfg.ExpiryMargin < 0 {
		return BiddingConfig{}, fmt.Errorf("bidding.expiry_margin must not be negative, got %s", cfg.ExpiryMargin)
	}
	if cfg.MaxWindow < 0 {
		return BiddingConfig{}, fmt.Errorf("bidding.max_window must not be negative, got %s", cfg.MaxWindow)
	}
	if cfg.SubscriberBuffer < 1 {
		cfg.SubscriberBuffer = 1
	}
	if cfg.ExpireTimeout <= 0 {
		cfg.ExpireTimeout = 10 * time.Second
	}
	return cfg, nil
}
