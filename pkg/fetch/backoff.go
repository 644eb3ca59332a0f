package fetch

import (
	"math/rand"
	"time"
)

// RetryConfig holds the configuration for the bounded attempt loop.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts per item
	// (including the initial request).
	MaxAttempts int

	// BaseDelay is the backoff before the second attempt.
	BaseDelay time.Duration

	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration

	// Multiplier is the exponential backoff multiplier.
	Multiplier float64

	// RateLimitFactor scales the delay after a 429 response.
	// Values below 2 are raised to 2 so a rate-limit hold is always at
	// least twice the normal retry delay.
	RateLimitFactor float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		BaseDelay:       1 * time.Second,
		MaxDelay:        30 * time.Second,
		Multiplier:      2.0,
		RateLimitFactor: 2.0,
	}
}

// backoffFor returns the delay to wait after a failed attempt
// (1-based) before the next one. Normal classes get exponential backoff
// with ±20% jitter. Rate-limit responses start from
// RateLimitFactor×BaseDelay and are only jittered upward, so the hold
// never drops below twice the normal delay.
func (c RetryConfig) backoffFor(class ErrorClass, attempt int) time.Duration {
	base := c.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	multiplier := c.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * multiplier)
	}

	if class == ErrorClassRateLimit {
		factor := c.RateLimitFactor
		if factor < 2 {
			factor = 2
		}
		delay = time.Duration(float64(delay) * factor)
		delay = c.clamp(delay)
		return time.Duration(float64(delay) * (1.0 + rand.Float64()*0.2))
	}

	delay = c.clamp(delay)
	return time.Duration(float64(delay) * (0.8 + rand.Float64()*0.4))
}

// clamp caps a delay at MaxDelay when one is configured.
func (c RetryConfig) clamp(delay time.Duration) time.Duration {
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}
