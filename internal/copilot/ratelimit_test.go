package copilot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type erroringCache struct{}

func (erroringCache) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	return 0, errors.New("cache unreachable")
}

func TestRateLimiterFallsBackWhenCacheNil(t *testing.T) {
	rl := NewRateLimiter(nil, 2, 10, zap.NewNop())
	ctx := context.Background()

	assert.True(t, rl.Allow(ctx, "tenant-1", "actor-1"))
	assert.True(t, rl.Allow(ctx, "tenant-1", "actor-1"))
	assert.False(t, rl.Allow(ctx, "tenant-1", "actor-1"))
}

func TestRateLimiterFallsBackWhenCacheErrors(t *testing.T) {
	rl := NewRateLimiter(erroringCache{}, 1, 10, zap.NewNop())
	ctx := context.Background()

	assert.True(t, rl.Allow(ctx, "tenant-1", "actor-2"))
	assert.False(t, rl.Allow(ctx, "tenant-1", "actor-2"))
}

func TestRateLimiterWindowsAreIndependentPerActor(t *testing.T) {
	rl := NewRateLimiter(nil, 1, 10, zap.NewNop())
	ctx := context.Background()

	assert.True(t, rl.Allow(ctx, "tenant-1", "actor-a"))
	assert.True(t, rl.Allow(ctx, "tenant-1", "actor-b"))
	assert.False(t, rl.Allow(ctx, "tenant-1", "actor-a"))
}

func TestRateLimiterWindowsAreIndependentPerTenant(t *testing.T) {
	rl := NewRateLimiter(nil, 1, 10, zap.NewNop())
	ctx := context.Background()

	assert.True(t, rl.Allow(ctx, "tenant-a", "actor-shared"))
	assert.True(t, rl.Allow(ctx, "tenant-b", "actor-shared"))
	assert.False(t, rl.Allow(ctx, "tenant-a", "actor-shared"))
}

func TestInProcessWindowPrunesExpiredHits(t *testing.T) {
	w := newInProcessWindow()
	count := w.increment("k", -1*time.Millisecond)
	assert.Equal(t, int64(1), count)
	count = w.increment("k", -1*time.Millisecond)
	assert.Equal(t, int64(1), count)
}
