package resilience

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig mirrors the spec §4.7 defaults: 3 attempts, base 1s,
// multiplier 2, cap 10s, ±25% jitter, retrying only the error kinds
// ErrorKind.Retriable reports true for.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	Jitter      float64
}

// DefaultRetryConfig returns the spec's conservative defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2.0,
		MaxDelay:    10 * time.Second,
		Jitter:      0.25,
	}
}

// Do runs fn up to cfg.MaxAttempts times with exponential backoff,
// stopping early on the first non-retriable error. The final attempt's
// error (retriable or not) is returned if every attempt fails.
func Do(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	delay := cfg.BaseDelay

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !KindOf(lastErr).Retriable() {
			return lastErr
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		wait := jittered(delay, cfg.Jitter)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return lastErr
}

func jittered(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return d
	}
	spread := float64(d) * fraction
	offset := (rand.Float64()*2 - 1) * spread
	return time.Duration(float64(d) + offset)
}
