// Package flagscope carries the plumbing shared by services whose entities
// hold an exclusive per-scope flag: lock-timeout retries, invalidation of the
// flag-holder cache, operation metrics and logging.
package flagscope

import (
	"context"
	"errors"
	"time"

	"github.com/coopenergy/platform/internal/app/cache"
	"github.com/coopenergy/platform/internal/app/storage"
	"github.com/coopenergy/platform/internal/app/txn"
	"github.com/coopenergy/platform/pkg/logger"
)

// Recorder observes flag operations.
type Recorder interface {
	ObserveFlagOperation(kind, op, outcome string, elapsed time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) ObserveFlagOperation(string, string, string, time.Duration) {}

// Option configures Ops.
type Option func(*Ops)

// WithRunner sets the retry runner.
func WithRunner(r *txn.Runner) Option {
	return func(o *Ops) {
		if r != nil {
			o.runner = r
		}
	}
}

// WithCache sets the flag-holder cache.
func WithCache(c cache.DefaultCache) Option {
	return func(o *Ops) {
		if c != nil {
			o.cache = c
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Ops) {
		if r != nil {
			o.recorder = r
		}
	}
}

// Ops runs the mutations of one entity kind.
type Ops struct {
	kind     string
	runner   *txn.Runner
	cache    cache.DefaultCache
	recorder Recorder
	log      *logger.Logger
}

// New creates Ops for kind, e.g. "plant_config".
func New(kind string, log *logger.Logger, opts ...Option) *Ops {
	if log == nil {
		log = logger.NewDefault(kind)
	}
	o := &Ops{
		kind:     kind,
		cache:    cache.Noop{},
		recorder: noopRecorder{},
		log:      log,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.runner == nil {
		o.runner = txn.New(txn.DefaultPolicy(), log)
	}
	return o
}

// Kind returns the entity kind.
func (o *Ops) Kind() string { return o.kind }

// Cache returns the flag-holder cache.
func (o *Ops) Cache() cache.DefaultCache { return o.cache }

// Outcome names the result of an operation for metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, storage.ErrNotFound):
		return "not_found"
	case errors.Is(err, storage.ErrDuplicate):
		return "duplicate"
	case errors.Is(err, storage.ErrProtectedState):
		return "protected"
	case errors.Is(err, storage.ErrLockTimeout):
		return "lock_timeout"
	default:
		return "error"
	}
}

// Mutate runs fn with retries, drops the cached flag holder of the affected
// scope on success and records the outcome.
func Mutate[T any](ctx context.Context, o *Ops, op, id string, fn func(context.Context) (T, error), scope func(T) string) (T, error) {
	start := time.Now()
	var out T
	err := o.runner.Run(ctx, o.kind+"."+op, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	outcome := Outcome(err)
	o.recorder.ObserveFlagOperation(o.kind, op, outcome, time.Since(start))

	entry := o.log.WithField("operation", op).WithField("id", id)
	if err != nil {
		if outcome == "error" {
			entry.WithError(err).Error("flag operation failed")
		} else {
			entry.WithField("outcome", outcome).Debugf("flag operation rejected: %v", err)
		}
		var zero T
		return zero, err
	}

	o.cache.Invalidate(ctx, o.kind, scope(out))
	entry.WithField("scope", scope(out)).Info("flag operation applied")
	return out, nil
}

// Holder returns the active flag holder of scope. A cached id is served only
// after check confirms the row still holds the flag in that scope.
func Holder[T any](ctx context.Context, o *Ops, scope string,
	get func(context.Context, string) (T, error),
	check func(T) bool,
	lookup func(context.Context, string) (T, error),
	idOf func(T) string,
) (T, error) {
	if id, ok := o.cache.Get(ctx, o.kind, scope); ok {
		if row, err := get(ctx, id); err == nil && check(row) {
			return row, nil
		}
		o.cache.Invalidate(ctx, o.kind, scope)
	}

	row, err := lookup(ctx, scope)
	if err != nil {
		return row, err
	}
	o.cache.Set(ctx, o.kind, scope, idOf(row))
	return row, nil
}
