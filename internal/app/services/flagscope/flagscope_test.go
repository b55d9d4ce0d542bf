package flagscope

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopenergy/platform/internal/app/storage"
	"github.com/coopenergy/platform/internal/app/txn"
)

type row struct {
	id    string
	scope string
}

type recordingCache struct {
	invalidated []string
}

func (c *recordingCache) Get(context.Context, string, string) (string, bool) { return "", false }
func (c *recordingCache) Set(context.Context, string, string, string)        {}
func (c *recordingCache) Invalidate(_ context.Context, kind, scope string) {
	c.invalidated = append(c.invalidated, kind+"/"+scope)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "not_found", Outcome(fmt.Errorf("x: %w", storage.ErrNotFound)))
	assert.Equal(t, "duplicate", Outcome(storage.ErrDuplicate))
	assert.Equal(t, "protected", Outcome(storage.ErrProtectedState))
	assert.Equal(t, "lock_timeout", Outcome(storage.ErrLockTimeout))
	assert.Equal(t, "error", Outcome(errors.New("boom")))
}

func TestMutateRetriesAndInvalidates(t *testing.T) {
	c := &recordingCache{}
	runner := txn.New(txn.Policy{Attempts: 3, Delay: time.Millisecond}, nil)
	ops := New("widget", nil, WithCache(c), WithRunner(runner))

	calls := 0
	out, err := Mutate(context.Background(), ops, "promote", "w-1", func(context.Context) (row, error) {
		calls++
		if calls == 1 {
			return row{}, storage.ErrLockTimeout
		}
		return row{id: "w-1", scope: "s-1"}, nil
	}, func(r row) string { return r.scope })

	require.NoError(t, err)
	assert.Equal(t, "w-1", out.id)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"widget/s-1"}, c.invalidated)
}

func TestMutateFailureLeavesCache(t *testing.T) {
	c := &recordingCache{}
	ops := New("widget", nil, WithCache(c))

	_, err := Mutate(context.Background(), ops, "promote", "w-1", func(context.Context) (row, error) {
		return row{}, storage.ErrNotFound
	}, func(r row) string { return r.scope })

	require.ErrorIs(t, err, storage.ErrNotFound)
	assert.Empty(t, c.invalidated)
}
