package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestConsumeBudgetThenBlocked(t *testing.T) {
	mr, rdb := newTestRedis(t)
	_ = mr
	ctx := context.Background()

	l := New(rdb, Options{Prefix: "rl:login", Points: 5, Window: time.Minute})

	for i := 0; i < 5; i++ {
		d, err := l.Consume(ctx, "alice@example.com")
		if err != nil {
			t.Fatalf("Consume %d failed: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("call %d should be allowed", i)
		}
	}

	d, err := l.Consume(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if d.Allowed {
		t.Fatal("sixth call must be blocked")
	}
	if d.RetryAfter <= 0 {
		t.Fatalf("blocked decision must carry positive RetryAfter, got %v", d.RetryAfter)
	}
}

func TestWindowElapseUnblocks(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	l := New(rdb, Options{Prefix: "rl:login", Points: 2, Window: time.Minute})

	for i := 0; i < 2; i++ {
		if d, err := l.Consume(ctx, "k"); err != nil || !d.Allowed {
			t.Fatalf("warmup consume %d: %+v %v", i, d, err)
		}
	}
	if d, _ := l.Consume(ctx, "k"); d.Allowed {
		t.Fatal("expected block at budget")
	}

	mr.FastForward(61 * time.Second)

	if d, err := l.Consume(ctx, "k"); err != nil || !d.Allowed {
		t.Fatalf("expected fresh window to admit, got %+v %v", d, err)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	l := New(rdb, Options{Prefix: "rl:login", Points: 1, Window: time.Minute})

	if d, _ := l.Consume(ctx, "a"); !d.Allowed {
		t.Fatal("first key should be admitted")
	}
	if d, _ := l.Consume(ctx, "a"); d.Allowed {
		t.Fatal("first key should now be blocked")
	}
	if d, _ := l.Consume(ctx, "b"); !d.Allowed {
		t.Fatal("second key must have its own budget")
	}
}

func TestConcurrentConsumeAdmitsExactlyBudget(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	const budget = 10
	l := New(rdb, Options{Prefix: "rl:login", Points: budget, Window: time.Minute})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Consume(ctx, "shared")
			if err != nil {
				t.Errorf("Consume failed: %v", err)
				return
			}
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != budget {
		t.Fatalf("admitted %d, want exactly %d", allowed, budget)
	}
}

func TestStoreFailureDeniesByDefault(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	closed := New(rdb, Options{Prefix: "rl:login", Points: 5, Window: time.Minute})
	open := New(rdb, Options{Prefix: "rl:global", Points: 100, Window: time.Minute, FailOpen: true})

	mr.Close()

	d, err := closed.Consume(ctx, "k")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if d.Allowed {
		t.Fatal("default bucket must fail closed")
	}
	if d.RetryAfter <= 0 {
		t.Fatal("fail-closed decision must carry RetryAfter")
	}

	d, err = open.Consume(ctx, "k")
	if err != nil || !d.Allowed {
		t.Fatalf("fail-open bucket must admit on store failure, got %+v %v", d, err)
	}
}

func TestReset(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	l := New(rdb, Options{Prefix: "rl:login", Points: 1, Window: time.Minute})

	if d, _ := l.Consume(ctx, "k"); !d.Allowed {
		t.Fatal("expected admit")
	}
	if d, _ := l.Consume(ctx, "k"); d.Allowed {
		t.Fatal("expected block")
	}
	if err := l.Reset(ctx, "k"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if d, _ := l.Consume(ctx, "k"); !d.Allowed {
		t.Fatal("expected admit after reset")
	}
}
