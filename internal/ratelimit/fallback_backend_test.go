package ratelimit

import (
	"context"
	"errors"
	"testing"
)

type erroringBackend struct {
	err error
}

func (e *erroringBackend) CheckRateLimit(ctx context.Context, key string, maxTokens int, refillRate float64, requested int) (bool, int, error) {
	return false, 0, e.err
}

func TestFallbackBackendDegradesOnPrimaryError(t *testing.T) {
	primary := &erroringBackend{err: errors.New("connection refused")}
	fb := NewFallbackBackend(primary)

	if fb.Degraded() {
		t.Fatal("should not start degraded")
	}

	allowed, _, err := fb.CheckRateLimit(context.Background(), "k", 5, 1.0, 1)
	if err != nil {
		t.Fatalf("CheckRateLimit should degrade, not error: %v", err)
	}
	if !allowed {
		t.Fatal("local fallback should allow the first request")
	}
	if !fb.Degraded() {
		t.Fatal("expected degraded mode after primary error")
	}
}

func TestFallbackBackendUsesPrimaryWhenHealthy(t *testing.T) {
	primary := NewLocalTokenBucketBackend()
	fb := NewFallbackBackend(primary)

	allowed, remaining, err := fb.CheckRateLimit(context.Background(), "k", 5, 1.0, 1)
	if err != nil {
		t.Fatalf("CheckRateLimit: %v", err)
	}
	if !allowed || remaining != 4 {
		t.Fatalf("allowed=%v remaining=%d, want true/4", allowed, remaining)
	}
	if fb.Degraded() {
		t.Fatal("should not degrade when primary succeeds")
	}
}
