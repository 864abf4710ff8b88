package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSubjectLimiter_PerSubjectBuckets(t *testing.T) {
	l := NewSubjectLimiter(0.001, 1)
	ctx := context.Background()
	alice := &Identity{Subject: "alice"}
	bob := &Identity{Subject: "bob"}

	if err := l.Allow(ctx, alice); err != nil {
		t.Fatalf("first alice request: %v", err)
	}
	if err := l.Allow(ctx, alice); !errors.Is(err, ErrTooManyRequests) {
		t.Errorf("second alice request: got %v, want ErrTooManyRequests", err)
	}
	if err := l.Allow(ctx, bob); err != nil {
		t.Errorf("bob shares alice's bucket: %v", err)
	}
	if l.Len() != 2 {
		t.Errorf("Len = %d, want 2", l.Len())
	}
}

func TestSubjectLimiter_Refills(t *testing.T) {
	l := NewSubjectLimiter(1, 1)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	id := &Identity{Subject: "alice"}

	if err := l.Allow(context.Background(), id); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if err := l.Allow(context.Background(), id); err == nil {
		t.Fatal("second request in the same instant was allowed")
	}
	now = now.Add(time.Second)
	if err := l.Allow(context.Background(), id); err != nil {
		t.Errorf("request after refill: %v", err)
	}
}

func TestSubjectLimiter_DisabledAllowsAll(t *testing.T) {
	l := NewSubjectLimiter(0, 0)
	for i := 0; i < 50; i++ {
		if err := l.Allow(context.Background(), &Identity{Subject: "alice"}); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
}

func TestSubjectLimiter_SweepsIdleSubjects(t *testing.T) {
	l := NewSubjectLimiter(10, 5)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	l.Allow(context.Background(), &Identity{Subject: "alice"})
	now = now.Add(2 * idleAfter)
	l.Allow(context.Background(), &Identity{Subject: "bob"})

	if l.Len() != 1 {
		t.Errorf("Len = %d, want 1 after sweeping alice", l.Len())
	}
}
