// Package cache remembers which row holds the flag of a scope.
//
// Entries are hints: readers must confirm the cached row still holds the flag
// before serving it, so a stale entry costs a lookup and never a wrong answer.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/coopenergy/platform/pkg/logger"
)

// DefaultCache maps (kind, scope) to the id of the flag holder.
type DefaultCache interface {
	Get(ctx context.Context, kind, scope string) (string, bool)
	Set(ctx context.Context, kind, scope, id string)
	Invalidate(ctx context.Context, kind, scope string)
}

// Noop never caches anything.
type Noop struct{}

func (Noop) Get(context.Context, string, string) (string, bool) { return "", false }
func (Noop) Set(context.Context, string, string, string)        {}
func (Noop) Invalidate(context.Context, string, string)         {}

// Redis stores entries in Redis with a TTL. Redis failures are logged and
// treated as misses.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	log    *logger.Logger
}

var _ DefaultCache = (*Redis)(nil)
var _ DefaultCache = Noop{}

// NewRedis wraps client. A non-positive ttl defaults to 30 seconds.
func NewRedis(client *redis.Client, ttl time.Duration, log *logger.Logger) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if log == nil {
		log = logger.NewDefault("cache")
	}
	return &Redis{client: client, ttl: ttl, prefix: "coopd:flag:", log: log}
}

// Key returns the Redis key used for kind and scope.
func (r *Redis) Key(kind, scope string) string {
	return r.prefix + kind + ":" + scope
}

func (r *Redis) Get(ctx context.Context, kind, scope string) (string, bool) {
	id, err := r.client.Get(ctx, r.Key(kind, scope)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		r.log.WithError(err).WithField("key", r.Key(kind, scope)).Warn("cache read failed")
		return "", false
	}
	return id, id != ""
}

func (r *Redis) Set(ctx context.Context, kind, scope, id string) {
	if err := r.client.Set(ctx, r.Key(kind, scope), id, r.ttl).Err(); err != nil {
		r.log.WithError(err).WithField("key", r.Key(kind, scope)).Warn("cache write failed")
	}
}

func (r *Redis) Invalidate(ctx context.Context, kind, scope string) {
	if err := r.client.Del(ctx, r.Key(kind, scope)).Err(); err != nil {
		r.log.WithError(err).WithField("key", r.Key(kind, scope)).Warn("cache invalidation failed")
	}
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
