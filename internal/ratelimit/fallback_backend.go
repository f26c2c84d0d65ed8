package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oriys/scalemq/internal/logging"
)

// probeInterval is the minimum time between health probes of the primary backend.
const probeInterval = 5 * time.Second

// FallbackBackend wraps a primary Backend (typically Redis) with an
// in-memory local token bucket fallback. When the primary backend
// errors, it degrades to local rate limiting and periodically probes
// the primary to restore distributed admission once connectivity
// recovers.
//
// Adapted from the teacher's internal/ratelimit/fallback_backend.go,
// unchanged in mechanism.
type FallbackBackend struct {
	primary       Backend
	local         *LocalTokenBucketBackend
	degraded      atomic.Bool
	probeMu       sync.Mutex
	lastProbeTime atomic.Value
}

// NewFallbackBackend creates a rate-limit backend that falls back to
// local in-memory token buckets when the primary backend is unavailable.
func NewFallbackBackend(primary Backend) *FallbackBackend {
	fb := &FallbackBackend{
		primary: primary,
		local:   NewLocalTokenBucketBackend(),
	}
	fb.lastProbeTime.Store(time.Time{})
	return fb
}

func (f *FallbackBackend) CheckRateLimit(ctx context.Context, key string, maxTokens int, refillRate float64, requested int) (bool, int, error) {
	if f.degraded.Load() {
		if last, ok := f.lastProbeTime.Load().(time.Time); ok && time.Since(last) > probeInterval {
			go f.probeAndRecover(ctx)
		}
		return f.local.CheckRateLimit(ctx, key, maxTokens, refillRate, requested)
	}

	allowed, remaining, err := f.primary.CheckRateLimit(ctx, key, maxTokens, refillRate, requested)
	if err != nil {
		logging.Op().Warn("rate-limit primary backend error, degrading to local", "error", err)
		f.degraded.Store(true)
		f.lastProbeTime.Store(time.Now())
		return f.local.CheckRateLimit(ctx, key, maxTokens, refillRate, requested)
	}
	return allowed, remaining, nil
}

// probeAndRecover checks whether the primary backend has recovered.
func (f *FallbackBackend) probeAndRecover(ctx context.Context) {
	if !f.probeMu.TryLock() {
		return
	}
	defer f.probeMu.Unlock()

	f.lastProbeTime.Store(time.Now())

	_, _, err := f.primary.CheckRateLimit(ctx, "scalemq:rl:probe:health", 1000, 1000, 0)
	if err == nil {
		logging.Op().Info("rate-limit primary backend recovered, resuming distributed mode")
		f.degraded.Store(false)
	}
}

// Degraded reports whether the backend is currently in degraded (local) mode.
func (f *FallbackBackend) Degraded() bool {
	return f.degraded.Load()
}
