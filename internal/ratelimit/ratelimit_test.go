package ratelimit

import (
	"context"
	"testing"

	"github.com/oriys/scalemq/internal/mqerr"
	"github.com/oriys/scalemq/internal/msgqueue"
)

type testMsg string

func (m testMsg) Len() int { return len(m) }

func TestGateAdmitsWithinTier(t *testing.T) {
	g := NewGate(NewLocalTokenBucketBackend(), nil, Tier{MaxTokens: 2, RefillRate: 1})

	for i := 0; i < 2; i++ {
		res, err := g.Admit(context.Background(), "sock-1")
		if err != nil {
			t.Fatalf("Admit: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be admitted", i)
		}
	}

	res, err := g.Admit(context.Background(), "sock-1")
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if res.Allowed {
		t.Fatal("third request should be rejected")
	}
}

func TestGateUsesPerSocketTierOverride(t *testing.T) {
	g := NewGate(NewLocalTokenBucketBackend(), map[string]Tier{
		"vip": {MaxTokens: 100, RefillRate: 100},
	}, Tier{MaxTokens: 1, RefillRate: 1})

	for i := 0; i < 10; i++ {
		res, err := g.Admit(context.Background(), "vip")
		if err != nil {
			t.Fatalf("Admit: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("vip request %d should be admitted under its own tier", i)
		}
	}
}

func TestGatedPutRejectsWithErrAgainWhenExhausted(t *testing.T) {
	g := NewGate(NewLocalTokenBucketBackend(), nil, Tier{MaxTokens: 1, RefillRate: 0})
	q, err := msgqueue.New(4)
	if err != nil {
		t.Fatalf("msgqueue.New: %v", err)
	}
	defer q.Fini()

	if err := g.GatedPut(context.Background(), "sock-1", q, testMsg("m1"), msgqueue.DontBlock(), nil); err != nil {
		t.Fatalf("first GatedPut should succeed: %v", err)
	}
	err = g.GatedPut(context.Background(), "sock-1", q, testMsg("m2"), msgqueue.DontBlock(), nil)
	if err != mqerr.ErrAgain {
		t.Fatalf("expected mqerr.ErrAgain, got %v", err)
	}
}
