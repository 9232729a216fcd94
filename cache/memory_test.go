package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryMissAndSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get on empty cache = %v, want ErrCacheMiss", err)
	}
	if err := m.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "v" {
		t.Fatalf("Get = %q, want v", got)
	}
}

func TestMemoryTTLExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	m := NewMemory(func() time.Time { return now })

	if err := m.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := m.Get(ctx, "k"); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}

	now = now.Add(time.Minute)
	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get at expiry = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryDeleteAndExpireAreNoOpsOnMissing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	if err := m.Delete(ctx, "absent"); err != nil {
		t.Fatalf("Delete on missing key: %v", err)
	}
	if err := m.Expire(ctx, "absent", time.Minute); err != nil {
		t.Fatalf("Expire on missing key: %v", err)
	}
}

func TestMemoryIncrStartsAtOne(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	n, err := m.Incr(ctx, "counter")
	if err != nil {
		t.Fatalf("Incr: %v", err)
	}
	if n != 1 {
		t.Fatalf("first Incr = %d, want 1", n)
	}
	n, err = m.Incr(ctx, "counter")
	if err != nil {
		t.Fatalf("Incr: %v", err)
	}
	if n != 2 {
		t.Fatalf("second Incr = %d, want 2", n)
	}
}

func TestMemoryIncrResetsAfterExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	m := NewMemory(func() time.Time { return now })

	if _, err := m.Incr(ctx, "counter"); err != nil {
		t.Fatalf("Incr: %v", err)
	}
	if err := m.Expire(ctx, "counter", time.Minute); err != nil {
		t.Fatalf("Expire: %v", err)
	}

	now = now.Add(2 * time.Minute)
	n, err := m.Incr(ctx, "counter")
	if err != nil {
		t.Fatalf("Incr after expiry: %v", err)
	}
	if n != 1 {
		t.Fatalf("Incr after expiry = %d, want 1", n)
	}
}

func TestMemoryConcurrentIncr(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	const workers = 16
	const perWorker = 100

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if _, err := m.Incr(ctx, "counter"); err != nil {
					t.Errorf("Incr: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	got, err := m.Get(ctx, "counter")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "1600" {
		t.Fatalf("counter = %s, want 1600", got)
	}
}
