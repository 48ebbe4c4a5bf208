// Package retry provides an exponential backoff policy with jitter for remote calls.
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/hyperjump/colindex/internal/models"
)

// Policy describes how a failed call is retried: up to MaxRetries more attempts, waiting
// BaseDelay * 2^(n-1) before retry n, capped at MaxDelay, with a random Jitter fraction of
// each delay removed so concurrent callers do not retry in lockstep.
type Policy struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
	// Jitter is in [0, 1]. 0 gives fixed delays, 1 gives full jitter.
	Jitter float64 `yaml:"jitter"`
}

// DefaultPolicy returns 3 retries starting at 2s.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
		Jitter:     0.5,
	}
}

// Validate rejects negative counts and delays.
func (p Policy) Validate() error {
	switch {
	case p.MaxRetries < 0:
		return fmt.Errorf("%w: max retries must not be negative, got %d", models.ErrConfiguration, p.MaxRetries)
	case p.BaseDelay < 0:
		return fmt.Errorf("%w: base delay must not be negative, got %s", models.ErrConfiguration, p.BaseDelay)
	case p.MaxDelay < 0:
		return fmt.Errorf("%w: max delay must not be negative, got %s", models.ErrConfiguration, p.MaxDelay)
	case p.Jitter < 0 || p.Jitter > 1:
		return fmt.Errorf("%w: jitter must be within [0, 1], got %v", models.ErrConfiguration, p.Jitter)
	}
	return nil
}

// Delay returns the wait before retry number attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
		// Overflow guard for very large attempt counts.
		if d <= 0 {
			d = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		d -= time.Duration(p.Jitter * rand.Float64() * float64(d))
	}
	return d
}

// Retryable reports whether a failed call may succeed on another attempt. Caller mistakes
// (configuration, conflict, missing collection, shape, empty query) never do.
func Retryable(err error) bool {
	return err != nil && !models.IsPermanent(err)
}

// NotifyFunc is called before each retry with the failed attempt number, its error, and the wait.
type NotifyFunc func(attempt int, err error, delay time.Duration)

// Do calls fn until it succeeds, returns a permanent error, retries are exhausted, or ctx ends.
// It returns the number of attempts made and the last error.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	return p.DoNotify(ctx, fn, nil)
}

// DoNotify is Do with a hook invoked before every retry.
func (p Policy) DoNotify(ctx context.Context, fn func(ctx context.Context, attempt int) error, notify NotifyFunc) (int, error) {
	var lastErr error
	attempt := 0
	for {
		attempt++
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if !Retryable(lastErr) || attempt > p.MaxRetries {
			return attempt, lastErr
		}
		delay := p.Delay(attempt)
		if notify != nil {
			notify(attempt, lastErr, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return attempt, fmt.Errorf("%w (last error: %v)", err, lastErr)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
