// Package rate implements the per-tenant fixed-window request limiter.
//
// # Window semantics
//
// Fixed-window counters: INCR, then EXPIRE only when the count is 1 so the
// window anchors to its first request. Key shape:
//
//	rl:tenant:{tenantID|global}:{ip}:{path}
//
// # Failure policy
//
// The limiter fails OPEN. A cache outage must not take request serving
// down with it; errors are logged and the request passes.
package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/avenide/authcore/cache"
)

// ErrRateLimited is returned when a counter exceeds its window budget.
var ErrRateLimited = errors.New("rate limited")

const keyPrefix = "rl:tenant:"

// Config holds the default window budget. Per-tenant overrides come from
// the tenant's settings and are passed per call.
type Config struct {
	Calls  int
	Period time.Duration
}

func (c Config) withDefaults() Config {
	if c.Calls <= 0 {
		c.Calls = 10
	}
	if c.Period <= 0 {
		c.Period = time.Minute
	}
	return c
}

// Limiter enforces request budgets on cache counters.
type Limiter struct {
	cache    cache.Client
	defaults Config
	logger   *zap.Logger
}

// New creates a [Limiter]. Zero config fields fall back to 10 calls per
// minute.
func New(c cache.Client, cfg Config, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{cache: c, defaults: cfg.withDefaults(), logger: logger}
}

// Key builds the counter key. A nil tenantID falls into the global bucket.
func Key(tenantID *int64, ip, path string) string {
	scope := "global"
	if tenantID != nil {
		scope = fmt.Sprintf("%d", *tenantID)
	}
	return fmt.Sprintf("%s%s:%s:%s", keyPrefix, scope, ip, path)
}

// Allow counts one request against the tenant/ip/path window. override,
// when non-nil, replaces the default budget for this call. Returns
// ErrRateLimited on budget exhaustion and nil on cache failure.
func (l *Limiter) Allow(ctx context.Context, tenantID *int64, ip, path string, override *Config) error {
	budget := l.defaults
	if override != nil {
		budget = override.withDefaults()
	}

	key := Key(tenantID, ip, path)
	count, err := l.cache.Incr(ctx, key)
	if err != nil {
		l.logger.Warn("rate counter unavailable, failing open",
			zap.String("key", key), zap.Error(err))
		return nil
	}
	if count == 1 {
		if err := l.cache.Expire(ctx, key, budget.Period); err != nil {
			l.logger.Warn("rate window expiry not set",
				zap.String("key", key), zap.Error(err))
		}
	}
	if count > int64(budget.Calls) {
		return ErrRateLimited
	}
	return nil
}
