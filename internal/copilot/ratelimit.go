package copilot

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CacheCounter is the shared sliding-window counter store (Redis-shaped).
// Increment returns the new count for key within window; a failure (cache
// unreachable) must surface as an error so RateLimiter can fall back.
type CacheCounter interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

// inProcessWindow is one sliding bucket of timestamps kept entirely in
// memory, used as the fallback counter per spec.md §4.9 — deliberately NOT
// fail-open, unlike the system this was modeled on.
type inProcessWindow struct {
	mu    sync.Mutex
	hits  map[string][]time.Time
}

func newInProcessWindow() *inProcessWindow {
	return &inProcessWindow{hits: make(map[string][]time.Time)}
}

func (w *inProcessWindow) increment(key string, window time.Duration) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-window)
	existing := w.hits[key]
	kept := existing[:0]
	for _, t := range existing {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	w.hits[key] = kept
	return int64(len(kept))
}

// RateLimiter enforces a per-actor sliding-window quota for both an hourly
// and a daily bucket. When the shared cache is unreachable it falls back to
// an in-process counter rather than failing open — a deliberate departure
// from counting nothing on cache failure, since letting every request
// through during an outage defeats the point of the limiter.
type RateLimiter struct {
	cache     CacheCounter
	fallback  *inProcessWindow
	perHour   int64
	perDay    int64
	logger    *zap.Logger
}

func NewRateLimiter(cache CacheCounter, perHour, perDay int, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		cache:    cache,
		fallback: newInProcessWindow(),
		perHour:  int64(perHour),
		perDay:   int64(perDay),
		logger:   logger,
	}
}

// Allow reports whether (tenantID, actorID) may proceed, incrementing both
// windows as a side effect. The tenant is part of the bucket key — per
// spec.md §4.9's "Per (tenant, user) sliding-window counters" — so two
// tenants whose actor ids happen to collide never share a quota bucket. Both
// windows are incremented on every call, including a call that is refused,
// so a refused call still counts against the caller's quota.
func (rl *RateLimiter) Allow(ctx context.Context, tenantID, actorID string) bool {
	prefix := "copilot:rate:" + tenantID + ":" + actorID
	hourOK := rl.checkWindow(ctx, prefix+":hour", time.Hour, rl.perHour)
	dayOK := rl.checkWindow(ctx, prefix+":day", 24*time.Hour, rl.perDay)
	return hourOK && dayOK
}

func (rl *RateLimiter) checkWindow(ctx context.Context, key string, window time.Duration, limit int64) bool {
	if rl.cache != nil {
		count, err := rl.cache.Increment(ctx, key, window)
		if err == nil {
			return count <= limit
		}
		rl.logger.Warn("rate limit cache unreachable, falling back to in-process counter", zap.Error(err), zap.String("key", key))
	}
	count := rl.fallback.increment(key, window)
	return count <= limit
}
