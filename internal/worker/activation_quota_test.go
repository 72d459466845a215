package worker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQuota(t *testing.T) (*ActivationQuota, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	// Pin miniredis's clock to the same instant the quota sees, so the
	// EXPIREAT the script issues lands 12 hours out rather than in the
	// past.
	frozen := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	mr.SetTime(frozen)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	q := NewActivationQuota(client, time.UTC)
	q.now = func() time.Time { return frozen }
	return q, mr
}

func TestActivationQuotaEnforcesLimit(t *testing.T) {
	q, _ := newTestQuota(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := q.Allow(ctx, "acc-1", 3)
		require.NoError(t, err)
		assert.True(t, ok, "send %d should be allowed", i+1)
	}

	ok, err := q.Allow(ctx, "acc-1", 3)
	require.NoError(t, err)
	assert.False(t, ok)

	used, err := q.Used(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 3, used)

	// Separate accounts have separate counters.
	ok, err = q.Allow(ctx, "acc-2", 3)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestActivationQuotaExpiresAtEndOfDay(t *testing.T) {
	q, mr := newTestQuota(t)
	ctx := context.Background()

	ok, err := q.Allow(ctx, "acc-1", 1)
	require.NoError(t, err)
	require.True(t, ok)

	// Noon: 12 hours remain until the key's midnight expiry.
	mr.FastForward(13 * time.Hour)

	used, err := q.Used(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 0, used)
}

func TestActivationQuotaZeroLimit(t *testing.T) {
	q, _ := newTestQuota(t)
	ok, err := q.Allow(context.Background(), "acc-1", 0)
	require.NoError(t, err)
	assert.False(t, ok)
}
