package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/erp/catalogsync/internal/domain/integration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlatformLimiter_Defaults(t *testing.T) {
	l := NewPlatformLimiter()

	rps, burst := l.Limit("shop")
	assert.Equal(t, DefaultRequestsPerSecond, rps)
	assert.Equal(t, DefaultBurst, burst)
}

func TestPlatformLimiter_PlatformOverride(t *testing.T) {
	platforms := integration.NewPlatforms(
		integration.PlatformConfig{Code: "shop", RequestsPerSecond: 10, Burst: 5},
		integration.PlatformConfig{Code: "notes"},
	)
	l := NewPlatformLimiter(WithRate(1, 1), WithPlatforms(platforms))

	rps, burst := l.Limit("shop")
	assert.Equal(t, 10.0, rps)
	assert.Equal(t, 5, burst)

	rps, burst = l.Limit("notes")
	assert.Equal(t, 1.0, rps)
	assert.Equal(t, 1, burst)
}

func TestPlatformLimiter_BurstThenThrottle(t *testing.T) {
	l := NewPlatformLimiter(WithRate(20, 2))
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, l.WaitForSlot(ctx, "shop"))
	}
	elapsed := time.Since(start)

	// Two slots come from the burst, the other two cost 50ms each
	assert.GreaterOrEqual(t, elapsed, 80*time.Millisecond)
}

func TestPlatformLimiter_PlatformsAreIndependent(t *testing.T) {
	l := NewPlatformLimiter(WithRate(1, 1))
	ctx := context.Background()

	require.NoError(t, l.WaitForSlot(ctx, "shop"))

	start := time.Now()
	require.NoError(t, l.WaitForSlot(ctx, "notes"))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestPlatformLimiter_MaxWait(t *testing.T) {
	l := NewPlatformLimiter(WithRate(0.1, 1), WithMaxWait(50*time.Millisecond))
	ctx := context.Background()

	require.NoError(t, l.WaitForSlot(ctx, "shop"))

	start := time.Now()
	err := l.WaitForSlot(ctx, "shop")
	require.ErrorIs(t, err, ErrWaitTooLong)
	assert.Less(t, time.Since(start), time.Second, "a slot 10s away is refused at once")
}

func TestPlatformLimiter_CancelledContext(t *testing.T) {
	l := NewPlatformLimiter(WithRate(0.5, 1))
	require.NoError(t, l.WaitForSlot(context.Background(), "shop"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.WaitForSlot(ctx, "shop")
	require.Error(t, err)
}

func TestPlatformLimiter_ObserverSeesWaits(t *testing.T) {
	var mu sync.Mutex
	var waits []time.Duration
	l := NewPlatformLimiter(WithRate(50, 1), WithWaitObserver(func(p integration.PlatformCode, d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, integration.PlatformCode("shop"), p)
		waits = append(waits, d)
	}))

	for i := 0; i < 3; i++ {
		require.NoError(t, l.WaitForSlot(context.Background(), "shop"))
	}

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, waits)
}
