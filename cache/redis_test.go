package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client), mr
}

func TestRedisMissIsCacheMiss(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRedis(t)

	if _, err := r.Get(ctx, "absent"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get on absent key = %v, want ErrCacheMiss", err)
	}
}

func TestRedisSetGetDelete(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRedis(t)

	if err := r.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := r.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "v" {
		t.Fatalf("Get = %q, want v", got)
	}

	if err := r.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := r.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get after Delete = %v, want ErrCacheMiss", err)
	}
}

func TestRedisIncrExpireWindow(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)

	n, err := r.Incr(ctx, "counter")
	if err != nil {
		t.Fatalf("Incr: %v", err)
	}
	if n != 1 {
		t.Fatalf("first Incr = %d, want 1", n)
	}
	if err := r.Expire(ctx, "counter", time.Minute); err != nil {
		t.Fatalf("Expire: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	n, err = r.Incr(ctx, "counter")
	if err != nil {
		t.Fatalf("Incr after window: %v", err)
	}
	if n != 1 {
		t.Fatalf("Incr after window = %d, want 1", n)
	}
}

func TestRedisDownIsUnavailable(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)
	mr.Close()

	if _, err := r.Get(ctx, "k"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Get with backend down = %v, want ErrUnavailable", err)
	}
	if err := r.Set(ctx, "k", "v", 0); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Set with backend down = %v, want ErrUnavailable", err)
	}
}
