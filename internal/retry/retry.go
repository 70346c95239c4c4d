// Package retry runs an operation under a bounded attempt policy with
// increasing backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrExhausted wraps the last failure once every attempt has been used.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy bounds an operation's attempts.
type Policy struct {
	MaxAttempts int
	// Backoff returns the pause after failed attempt n (1-based).
	Backoff func(attempt int) time.Duration
}

// Linear returns a policy pausing attempt*step after each failure: with a
// 2s step the pauses are 2s, 4s, 6s...
func Linear(maxAttempts int, step time.Duration) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		Backoff: func(attempt int) time.Duration {
			return time.Duration(attempt) * step
		},
	}
}

// Default is three attempts with a 2s linear backoff.
func Default() Policy {
	return Linear(3, 2*time.Second)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns it unwrapped at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Hook observes a failed attempt before the backoff pause.
type Hook func(attempt int, err error)

// Runner executes operations under a Policy.
type Runner struct {
	policy Policy
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	hooks  []Hook
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger for attempt failures.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Runner) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// OnFailure registers a hook called after every failed attempt.
func OnFailure(h Hook) Option {
	return func(r *Runner) {
		r.hooks = append(r.hooks, h)
	}
}

// New creates a Runner. Fewer than one attempt is treated as one.
func New(policy Policy, opts ...Option) *Runner {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	r := &Runner{
		policy: policy,
		logger: slog.Default(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do calls op until it succeeds, returns a Permanent error, the context ends,
// or the attempts run out. attempt is 1-based.
func (r *Runner) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) error {
	var last error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}

		err := op(ctx, attempt)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		last = err

		r.logger.Warn("attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", r.policy.MaxAttempts),
			slog.String("error", err.Error()),
		)
		for _, h := range r.hooks {
			h(attempt, err)
		}

		if attempt == r.policy.MaxAttempts {
			break
		}
		if r.policy.Backoff != nil {
			if d := r.policy.Backoff(attempt); d > 0 {
				if err := r.sleep(ctx, d); err != nil {
					return fmt.Errorf("retry cancelled: %w", err)
				}
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, r.policy.MaxAttempts, last)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
