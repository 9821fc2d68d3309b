//go:build integration

package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitalis/internal/ratelimit"
	"vitalis/pkg/testutil/containers"
)

func TestRedisStore_FixedWindow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.GetManager().GetRedis(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	store := ratelimit.NewRedisStore(rc.Client, "test:ratelimit")
	limit := ratelimit.Limit{Requests: 2, Window: time.Minute}

	for i := range 2 {
		res, err := store.Allow(ctx, "export:user:a", limit)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "hit %d", i+1)
		assert.Equal(t, 1-i, res.Remaining)
	}

	res, err := store.Allow(ctx, "export:user:a", limit)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.WithinDuration(t, time.Now().Add(time.Minute), res.ResetAt, 5*time.Second)

	ttl, err := rc.Client.PTTL(ctx, "test:ratelimit:export:user:a").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
