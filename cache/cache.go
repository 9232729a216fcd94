// Package cache defines the flat key/value cache interface shared by the
// session store, cached repositories, and the rate limiter, plus the Redis
// and in-memory implementations.
//
// # Error contract
//
//   - A missing key is ErrCacheMiss, never ("", nil).
//   - Backend failures wrap ErrUnavailable so callers can pick a policy:
//     auth paths fail closed, the rate limiter fails open, repository
//     reads fall through to the durable store.
//   - Delete and Expire on a missing key are nil no-ops.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCacheMiss is returned by Get when the key does not exist.
	ErrCacheMiss = errors.New("cache miss")

	// ErrUnavailable wraps backend transport failures.
	ErrUnavailable = errors.New("cache unavailable")
)

// Client is the minimal cache surface authcore needs.
type Client interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
