// Package retry runs upstream calls with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	"claimsqa/internal/config"
	"claimsqa/internal/observability"
)

// Policy bounds a retry loop by attempts and by total elapsed time.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

// DefaultPolicy mirrors the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxElapsed:      2 * time.Minute,
	}
}

// FromConfig builds a Policy, keeping defaults for unset fields.
func FromConfig(cfg *config.RetryConfig) Policy {
	p := DefaultPolicy()
	if cfg == nil {
		return p
	}
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialInterval > 0 {
		p.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		p.MaxInterval = cfg.MaxInterval
	}
	if cfg.MaxElapsed > 0 {
		p.MaxElapsed = cfg.MaxElapsed
	}
	return p
}

// Do calls fn until it succeeds, returns a non-retryable error, or the policy
// is exhausted. The last error from fn is returned unchanged so callers can
// keep matching it with errors.Is/As.
func Do(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.MaxInterval = p.MaxInterval
	eb.MaxElapsedTime = p.MaxElapsed
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.MaxAttempts-1)), ctx)

	var lastErr error
	operation := func() error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		observability.LoggerFromContext(ctx).Warn().Err(err).
			Str("operation", op).
			Dur("next_attempt_in", next).
			Msg("retry.Do: transient failure, retrying")
	}

	err := backoff.RetryNotify(operation, b, notify)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && lastErr != nil && !errors.Is(lastErr, ctx.Err()) {
		return fmt.Errorf("%s: %w (last error: %v)", op, ctx.Err(), lastErr)
	}
	return err
}

// IsRetryable reports whether err is worth repeating: errors that say so via
// a Retryable method, and network timeouts.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}
