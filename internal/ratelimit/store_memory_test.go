package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SlidingWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }
	limit := Limit{Requests: 2, Window: time.Minute}
	ctx := context.Background()

	first, err := store.Allow(ctx, "export:user:a", limit)
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	assert.Equal(t, 1, first.Remaining)

	now = now.Add(20 * time.Second)
	second, err := store.Allow(ctx, "export:user:a", limit)
	require.NoError(t, err)
	assert.True(t, second.Allowed)
	assert.Equal(t, 0, second.Remaining)

	denied, err := store.Allow(ctx, "export:user:a", limit)
	require.NoError(t, err)
	assert.False(t, denied.Allowed)
	assert.Equal(t, 40, denied.RetryAfter(now))

	other, err := store.Allow(ctx, "export:user:b", limit)
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are independent")

	// the first hit leaves the window
	now = now.Add(41 * time.Second)
	again, err := store.Allow(ctx, "export:user:a", limit)
	require.NoError(t, err)
	assert.True(t, again.Allowed)
	assert.Equal(t, 0, again.Remaining)
}

func TestResult_RetryAfterIsAtLeastOneSecond(t *testing.T) {
	now := time.Now()
	assert.Equal(t, 1, Result{ResetAt: now}.RetryAfter(now))
	assert.Equal(t, 1, Result{ResetAt: now.Add(-time.Minute)}.RetryAfter(now))
}

func TestLimit_Enabled(t *testing.T) {
	assert.True(t, Limit{Requests: 1, Window: time.Second}.Enabled())
	assert.False(t, Limit{Requests: 0, Window: time.Second}.Enabled())
	assert.False(t, Limit{Requests: 5}.Enabled())
}
