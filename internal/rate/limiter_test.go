package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/avenide/authcore/cache"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(cache.NewRedis(client), cfg, nil), mr
}

func TestAllowWithinBudget(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, Config{})

	for i := 0; i < 10; i++ {
		if err := l.Allow(ctx, nil, "1.2.3.4", "/login", nil); err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
	}
	if err := l.Allow(ctx, nil, "1.2.3.4", "/login", nil); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("11th call = %v, want ErrRateLimited", err)
	}
}

func TestWindowResets(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestLimiter(t, Config{Calls: 2, Period: time.Minute})

	for i := 0; i < 2; i++ {
		if err := l.Allow(ctx, nil, "1.2.3.4", "/login", nil); err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
	}
	if err := l.Allow(ctx, nil, "1.2.3.4", "/login", nil); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("over budget = %v, want ErrRateLimited", err)
	}

	mr.FastForward(2 * time.Minute)

	if err := l.Allow(ctx, nil, "1.2.3.4", "/login", nil); err != nil {
		t.Fatalf("after window reset: %v", err)
	}
}

func TestTenantsAndPathsIsolated(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, Config{Calls: 1, Period: time.Minute})

	t1, t2 := int64(1), int64(2)

	if err := l.Allow(ctx, &t1, "1.2.3.4", "/a", nil); err != nil {
		t.Fatalf("tenant 1: %v", err)
	}
	if err := l.Allow(ctx, &t2, "1.2.3.4", "/a", nil); err != nil {
		t.Fatalf("tenant 2 shares tenant 1 budget: %v", err)
	}
	if err := l.Allow(ctx, &t1, "1.2.3.4", "/b", nil); err != nil {
		t.Fatalf("second path shares first path budget: %v", err)
	}
	if err := l.Allow(ctx, &t1, "5.6.7.8", "/a", nil); err != nil {
		t.Fatalf("second ip shares first ip budget: %v", err)
	}
	if err := l.Allow(ctx, &t1, "1.2.3.4", "/a", nil); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("repeat call = %v, want ErrRateLimited", err)
	}
}

func TestOverrideBudget(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, Config{Calls: 1, Period: time.Minute})

	override := &Config{Calls: 3, Period: time.Minute}
	tid := int64(7)
	for i := 0; i < 3; i++ {
		if err := l.Allow(ctx, &tid, "1.2.3.4", "/x", override); err != nil {
			t.Fatalf("call %d under override: %v", i+1, err)
		}
	}
	if err := l.Allow(ctx, &tid, "1.2.3.4", "/x", override); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("over override budget = %v, want ErrRateLimited", err)
	}
}

func TestFailsOpenWhenCacheDown(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestLimiter(t, Config{Calls: 1, Period: time.Minute})
	mr.Close()

	for i := 0; i < 5; i++ {
		if err := l.Allow(ctx, nil, "1.2.3.4", "/login", nil); err != nil {
			t.Fatalf("call %d with cache down = %v, want nil", i+1, err)
		}
	}
}

func TestKeyShape(t *testing.T) {
	tid := int64(42)
	if got := Key(&tid, "1.2.3.4", "/login"); got != "rl:tenant:42:1.2.3.4:/login" {
		t.Fatalf("Key = %q", got)
	}
	if got := Key(nil, "1.2.3.4", "/login"); got != "rl:tenant:global:1.2.3.4:/login" {
		t.Fatalf("global Key = %q", got)
	}
}
