package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/avenide/authcore/cache"
)

const (
	featureKeyPrefix     = "feature:"
	featureIDKeyPrefix   = "feature:id:"
	featureListKeyPrefix = "feature:list:"
)

// CachedFeatures layers read-through caching over a [FeatureSource].
type CachedFeatures struct {
	source FeatureSource
	cache  cache.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedFeatures(source FeatureSource, c cache.Client, ttl time.Duration, logger *zap.Logger) *CachedFeatures {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedFeatures{source: source, cache: c, ttl: ttl, logger: logger}
}

func featureKey(tenantID int64, key string) string {
	return fmt.Sprintf("%s%d:%s", featureKeyPrefix, tenantID, key)
}
func featureIDKey(id int64) string { return fmt.Sprintf("%s%d", featureIDKeyPrefix, id) }
func featureListKey(tenantID int64) string {
	return fmt.Sprintf("%s%d", featureListKeyPrefix, tenantID)
}

func flagKeys(f *FeatureFlag) []string {
	return []string{featureIDKey(f.ID), featureKey(f.TenantID, f.Key)}
}

func (r *CachedFeatures) GetByID(ctx context.Context, id int64) (*FeatureFlag, error) {
	return readThrough(ctx, r.cache, r.logger, featureIDKey(id), r.ttl,
		func(ctx context.Context) (*FeatureFlag, []string, error) {
			f, err := r.source.GetByID(ctx, id)
			if err != nil {
				return nil, nil, err
			}
			return f, flagKeys(f), nil
		})
}

func (r *CachedFeatures) GetByKey(ctx context.Context, tenantID int64, key string) (*FeatureFlag, error) {
	return readThrough(ctx, r.cache, r.logger, featureKey(tenantID, key), r.ttl,
		func(ctx context.Context) (*FeatureFlag, []string, error) {
			f, err := r.source.GetByKey(ctx, tenantID, key)
			if err != nil {
				return nil, nil, err
			}
			return f, flagKeys(f), nil
		})
}

func (r *CachedFeatures) ListByTenant(ctx context.Context, tenantID int64) ([]*FeatureFlag, error) {
	return readThrough(ctx, r.cache, r.logger, featureListKey(tenantID), r.ttl,
		func(ctx context.Context) ([]*FeatureFlag, []string, error) {
			fs, err := r.source.ListByTenant(ctx, tenantID)
			if err != nil {
				return nil, nil, err
			}
			return fs, []string{featureListKey(tenantID)}, nil
		})
}

// Enabled reports whether key is switched on for the tenant. Unknown flags
// are off.
func (r *CachedFeatures) Enabled(ctx context.Context, tenantID int64, key string) (bool, error) {
	f, err := r.GetByKey(ctx, tenantID, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return f.Enabled, nil
}

func (r *CachedFeatures) Upsert(ctx context.Context, f *FeatureFlag) error {
	if err := r.source.Upsert(ctx, f); err != nil {
		return err
	}
	invalidate(ctx, r.cache, r.logger,
		featureKey(f.TenantID, f.Key), featureIDKey(f.ID), featureListKey(f.TenantID))
	return nil
}

func (r *CachedFeatures) Delete(ctx context.Context, id int64) error {
	f, err := r.source.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := r.source.Delete(ctx, id); err != nil {
		return err
	}
	invalidate(ctx, r.cache, r.logger,
		featureKey(f.TenantID, f.Key), featureIDKey(id), featureListKey(f.TenantID))
	return nil
}
