// Package txn retries storage operations that lost a lock race.
package txn

import (
	"context"
	"errors"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"

	"github.com/coopenergy/platform/internal/app/storage"
	"github.com/coopenergy/platform/pkg/logger"
)

// Policy bounds how often and how long an operation is retried.
type Policy struct {
	Attempts int
	Delay    time.Duration
	MaxDelay time.Duration
	Clock    clock.Clock
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		Attempts: 4,
		Delay:    25 * time.Millisecond,
		MaxDelay: 500 * time.Millisecond,
		Clock:    clock.WallClock,
	}
}

// IsRetryable reports whether err may succeed when the whole transaction is
// run again.
func IsRetryable(err error) bool {
	return errors.Is(err, storage.ErrLockTimeout)
}

// Runner re-runs operations that fail with storage.ErrLockTimeout. Each call
// of the operation must be a complete transaction.
type Runner struct {
	policy  Policy
	log     *logger.Logger
	onRetry func(op string)
}

// New creates a runner. Zero fields of policy fall back to DefaultPolicy.
func New(policy Policy, log *logger.Logger) *Runner {
	def := DefaultPolicy()
	if policy.Attempts <= 0 {
		policy.Attempts = def.Attempts
	}
	if policy.Delay <= 0 {
		policy.Delay = def.Delay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = def.MaxDelay
	}
	if policy.Clock == nil {
		policy.Clock = def.Clock
	}
	if log == nil {
		log = logger.NewDefault("txn")
	}
	return &Runner{policy: policy, log: log}
}

// OnRetry registers a hook called before every retry.
func (r *Runner) OnRetry(fn func(op string)) {
	r.onRetry = fn
}

// Run calls fn until it succeeds, fails with an error that is not retryable,
// the attempts run out or ctx is done. In the last two cases the most recent
// error from fn is returned.
func (r *Runner) Run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			lastErr = fn(ctx)
			return lastErr
		},
		IsFatalError: func(err error) bool {
			return !IsRetryable(err)
		},
		NotifyFunc: func(err error, attempt int) {
			r.log.WithField("operation", op).
				WithField("attempt", attempt).
				Warnf("retrying after lock contention: %v", err)
			if r.onRetry != nil {
				r.onRetry(op)
			}
		},
		Attempts:    r.policy.Attempts,
		Delay:       r.policy.Delay,
		MaxDelay:    r.policy.MaxDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       r.policy.Clock,
		Stop:        ctx.Done(),
	})
	if err == nil {
		return nil
	}
	if retry.IsAttemptsExceeded(err) || retry.IsRetryStopped(err) {
		if lastErr != nil {
			return lastErr
		}
		return ctx.Err()
	}
	return err
}
