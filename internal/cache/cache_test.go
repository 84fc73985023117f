package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/couchcryptid/windstation-fabric/internal/cache"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_PutGet_Success(t *testing.T) {
	c := cache.NewMemoryCache(clockwork.NewFakeClock())
	ctx := context.Background()

	entry := cache.Entry{Outcome: cache.OutcomeSuccess, Payload: map[string]any{"alt": "830"}}
	require.NoError(t, c.Put(ctx, "alt/46.713,6.503", entry))

	got, ok, err := c.Get(ctx, "alt/46.713,6.503")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "830", got.Payload["alt"])
}

func TestMemoryCache_Miss(t *testing.T) {
	c := cache.NewMemoryCache(nil)
	_, ok, err := c.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_UsageLimitExpiresAfterShortTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := cache.NewMemoryCache(clock)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "address2/46.0,6.0", cache.Entry{
		Outcome: cache.OutcomeUsageLimit,
		Error:   "OVER_QUERY_LIMIT",
	}))

	// A second call within the TTL fails fast from the cached marker
	// without re-issuing the external call.
	got, ok, err := c.Get(ctx, "address2/46.0,6.0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cache.OutcomeUsageLimit, got.Outcome)
	assert.Contains(t, got.Error, "OVER_QUERY_LIMIT")

	clock.Advance(15 * time.Hour)

	_, ok, err = c.Get(ctx, "address2/46.0,6.0")
	require.NoError(t, err)
	assert.False(t, ok, "entry should have expired and been evicted")
}

func TestMemoryCache_ErrorMarkerLongerTTLThanUsageLimit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := cache.NewMemoryCache(clock)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "address2/1,1", cache.Entry{Outcome: cache.OutcomeError, Error: "boom"}))

	clock.Advance(20 * 24 * time.Hour)
	_, ok, err := c.Get(ctx, "address2/1,1")
	require.NoError(t, err)
	assert.True(t, ok, "other-error marker should still be cached after 20 days")
}

func TestTTLFor_Ordering(t *testing.T) {
	// Usage-limit TTL is always far shorter than error and success TTLs so
	// the system backs off quickly then retries.
	for i := 0; i < 50; i++ {
		assert.Less(t, cache.TTLFor(cache.OutcomeUsageLimit), 15*time.Hour)
		assert.GreaterOrEqual(t, cache.TTLFor(cache.OutcomeError), 30*24*time.Hour)
		assert.GreaterOrEqual(t, cache.TTLFor(cache.OutcomeSuccess), 60*24*time.Hour)
	}
}
