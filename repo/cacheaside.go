package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/avenide/authcore/cache"
)

// readThrough resolves key from the cache, falling back to load on a miss
// or backend failure. The loader returns the value together with every
// cache key that should carry it, so one durable read warms all of the
// entity's lookup keys, not just the one that missed. Cache errors are
// logged and swallowed; only load errors propagate.
func readThrough[T any](
	ctx context.Context,
	c cache.Client,
	logger *zap.Logger,
	key string,
	ttl time.Duration,
	load func(context.Context) (T, []string, error),
) (T, error) {
	var zero T

	cached, err := c.Get(ctx, key)
	switch {
	case err == nil:
		var out T
		if unmarshalErr := json.Unmarshal([]byte(cached), &out); unmarshalErr == nil {
			return out, nil
		}
		// Undecodable entry: treat as a miss and overwrite below.
		logger.Warn("dropping undecodable cache entry", zap.String("key", key))
	case errors.Is(err, cache.ErrCacheMiss):
	default:
		logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	out, keys, err := load(ctx)
	if err != nil {
		return zero, err
	}

	if encoded, marshalErr := json.Marshal(out); marshalErr == nil {
		for _, k := range keys {
			if setErr := c.Set(ctx, k, string(encoded), ttl); setErr != nil {
				logger.Warn("cache write failed", zap.String("key", k), zap.Error(setErr))
			}
		}
	}
	return out, nil
}

// invalidate deletes the given keys, logging failures without propagating.
func invalidate(ctx context.Context, c cache.Client, logger *zap.Logger, keys ...string) {
	for _, key := range keys {
		if err := c.Delete(ctx, key); err != nil {
			logger.Warn("cache invalidation failed", zap.String("key", key), zap.Error(err))
		}
	}
}
