package ratelimit

import (
	"context"
	"testing"
)

func TestLocalTokenBucketAllowsWithinBurst(t *testing.T) {
	b := NewLocalTokenBucketBackend()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, remaining, err := b.CheckRateLimit(ctx, "k", 5, 1.0, 1)
		if err != nil {
			t.Fatalf("CheckRateLimit: %v", err)
		}
		if !allowed {
			t.Fatalf("request %d should be allowed, remaining=%d", i, remaining)
		}
	}

	allowed, _, err := b.CheckRateLimit(ctx, "k", 5, 1.0, 1)
	if err != nil {
		t.Fatalf("CheckRateLimit: %v", err)
	}
	if allowed {
		t.Fatal("request beyond burst should be denied")
	}
}

func TestLocalTokenBucketIsolatesKeys(t *testing.T) {
	b := NewLocalTokenBucketBackend()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, _, err := b.CheckRateLimit(ctx, "a", 3, 1.0, 1); err != nil {
			t.Fatalf("CheckRateLimit a: %v", err)
		}
	}

	allowed, _, err := b.CheckRateLimit(ctx, "b", 3, 1.0, 1)
	if err != nil {
		t.Fatalf("CheckRateLimit b: %v", err)
	}
	if !allowed {
		t.Fatal("a separate key should have its own bucket")
	}
}
