package minesync

import "golang.org/x/time/rate"

// RateLimitConfig holds token bucket settings. The client applies it to
// outbound messages and the loopback server to each peer's inbound frames.
type RateLimitConfig struct {
	// MessagesPerSecond is the sustained number of messages allowed.
	MessagesPerSecond rate.Limit
	// Burst is the maximum burst size.
	Burst int
	// Enabled enables or disables rate limiting.
	Enabled bool
}

// DefaultRateLimitConfig returns 100 messages per second with a burst of
// 200.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		MessagesPerSecond: 100,
		Burst:             200,
		Enabled:           true,
	}
}

// NoRateLimit returns a configuration with rate limiting disabled.
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled: false,
	}
}

// NewLimiter returns a limiter for c, or nil when c is nil or disabled.
func (c *RateLimitConfig) NewLimiter() *rate.Limiter {
	if c == nil || !c.Enabled {
		return nil
	}
	return rate.NewLimiter(c.MessagesPerSecond, c.Burst)
}
