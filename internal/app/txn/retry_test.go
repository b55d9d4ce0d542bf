package txn

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopenergy/platform/internal/app/storage"
)

func fastPolicy(attempts int) Policy {
	return Policy{Attempts: attempts, Delay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRunRetriesLockTimeouts(t *testing.T) {
	r := New(fastPolicy(5), nil)
	retries := 0
	r.OnRetry(func(op string) {
		assert.Equal(t, "promote", op)
		retries++
	})

	calls := 0
	err := r.Run(context.Background(), "promote", func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("promote: %w", storage.ErrLockTimeout)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
}

func TestRunStopsOnOtherErrors(t *testing.T) {
	r := New(fastPolicy(5), nil)

	calls := 0
	err := r.Run(context.Background(), "promote", func(context.Context) error {
		calls++
		return fmt.Errorf("config 9: %w", storage.ErrNotFound)
	})
	require.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, 1, calls)
}

func TestRunReturnsLastErrorWhenAttemptsRunOut(t *testing.T) {
	r := New(fastPolicy(3), nil)

	calls := 0
	err := r.Run(context.Background(), "promote", func(context.Context) error {
		calls++
		return fmt.Errorf("attempt %d: %w", calls, storage.ErrLockTimeout)
	})
	require.ErrorIs(t, err, storage.ErrLockTimeout)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "attempt 3")
}

func TestRunHonoursCancellation(t *testing.T) {
	r := New(Policy{Attempts: 100, Delay: 50 * time.Millisecond}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := r.Run(ctx, "promote", func(context.Context) error {
		calls++
		cancel()
		return storage.ErrLockTimeout
	})
	require.True(t, errors.Is(err, storage.ErrLockTimeout))
	assert.Equal(t, 1, calls)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", storage.ErrLockTimeout)))
	assert.False(t, IsRetryable(storage.ErrDuplicate))
	assert.False(t, IsRetryable(nil))
}
