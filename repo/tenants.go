package repo

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/avenide/authcore/cache"
)

const (
	tenantIDKeyPrefix   = "tenant:id:"
	tenantSlugKeyPrefix = "tenant:slug:"
	tenantListKey       = "tenant:list:all"
)

// CachedTenants layers read-through caching over a [TenantSource].
type CachedTenants struct {
	source TenantSource
	cache  cache.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedTenants wraps source. ttl bounds how long a stale tenant can be
// served after an out-of-band database change.
func NewCachedTenants(source TenantSource, c cache.Client, ttl time.Duration, logger *zap.Logger) *CachedTenants {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedTenants{source: source, cache: c, ttl: ttl, logger: logger}
}

func tenantIDKey(id int64) string { return fmt.Sprintf("%s%d", tenantIDKeyPrefix, id) }
func tenantSlugKey(slug string) string { return tenantSlugKeyPrefix + slug }

func tenantKeys(t *Tenant) []string {
	return []string{tenantIDKey(t.ID), tenantSlugKey(t.Slug)}
}

func (r *CachedTenants) GetByID(ctx context.Context, id int64) (*Tenant, error) {
	return readThrough(ctx, r.cache, r.logger, tenantIDKey(id), r.ttl,
		func(ctx context.Context) (*Tenant, []string, error) {
			t, err := r.source.GetByID(ctx, id)
			if err != nil {
				return nil, nil, err
			}
			return t, tenantKeys(t), nil
		})
}

func (r *CachedTenants) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	return readThrough(ctx, r.cache, r.logger, tenantSlugKey(slug), r.ttl,
		func(ctx context.Context) (*Tenant, []string, error) {
			t, err := r.source.GetBySlug(ctx, slug)
			if err != nil {
				return nil, nil, err
			}
			return t, tenantKeys(t), nil
		})
}

func (r *CachedTenants) List(ctx context.Context) ([]*Tenant, error) {
	return readThrough(ctx, r.cache, r.logger, tenantListKey, r.ttl,
		func(ctx context.Context) ([]*Tenant, []string, error) {
			ts, err := r.source.List(ctx)
			if err != nil {
				return nil, nil, err
			}
			return ts, []string{tenantListKey}, nil
		})
}

func (r *CachedTenants) Create(ctx context.Context, t *Tenant) error {
	if err := r.source.Create(ctx, t); err != nil {
		return err
	}
	invalidate(ctx, r.cache, r.logger, tenantListKey)
	return nil
}

func (r *CachedTenants) Update(ctx context.Context, t *Tenant) error {
	prev, err := r.source.GetByID(ctx, t.ID)
	if err != nil {
		return err
	}
	if err := r.source.Update(ctx, t); err != nil {
		return err
	}
	keys := append(tenantKeys(t), tenantListKey)
	if prev.Slug != t.Slug {
		// A renamed slug leaves its old key behind otherwise.
		keys = append(keys, tenantSlugKey(prev.Slug))
	}
	invalidate(ctx, r.cache, r.logger, keys...)
	return nil
}

func (r *CachedTenants) Delete(ctx context.Context, id int64) error {
	t, err := r.source.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := r.source.Delete(ctx, id); err != nil {
		return err
	}
	invalidate(ctx, r.cache, r.logger,
		tenantIDKey(id), tenantSlugKey(t.Slug), tenantListKey)
	return nil
}
