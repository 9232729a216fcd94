package repo

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/avenide/authcore/cache"
)

const (
	permRoleKeyPrefix = "perm:role:"
	permUserKeyPrefix = "perm:user:"
)

// CachedPermissions layers read-through caching over a [PermissionSource].
// Permission sets are read on every authenticated request, so this is the
// hottest cache in the module.
type CachedPermissions struct {
	source PermissionSource
	cache  cache.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedPermissions(source PermissionSource, c cache.Client, ttl time.Duration, logger *zap.Logger) *CachedPermissions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedPermissions{source: source, cache: c, ttl: ttl, logger: logger}
}

func permRoleKey(role string) string { return permRoleKeyPrefix + role }
func permUserKey(userID int64) string { return fmt.Sprintf("%s%d", permUserKeyPrefix, userID) }

func (r *CachedPermissions) ListForRole(ctx context.Context, role string) ([]*Permission, error) {
	return readThrough(ctx, r.cache, r.logger, permRoleKey(role), r.ttl,
		func(ctx context.Context) ([]*Permission, []string, error) {
			ps, err := r.source.ListForRole(ctx, role)
			if err != nil {
				return nil, nil, err
			}
			return ps, []string{permRoleKey(role)}, nil
		})
}

func (r *CachedPermissions) ListForUser(ctx context.Context, userID int64) ([]*Permission, error) {
	return readThrough(ctx, r.cache, r.logger, permUserKey(userID), r.ttl,
		func(ctx context.Context) ([]*Permission, []string, error) {
			ps, err := r.source.ListForUser(ctx, userID)
			if err != nil {
				return nil, nil, err
			}
			return ps, []string{permUserKey(userID)}, nil
		})
}

// InvalidateRole drops the cached permission set for a role after a grant
// or revocation lands in the durable store.
func (r *CachedPermissions) InvalidateRole(ctx context.Context, role string) {
	invalidate(ctx, r.cache, r.logger, permRoleKey(role))
}

// InvalidateUser drops the cached permission set for a single user.
func (r *CachedPermissions) InvalidateUser(ctx context.Context, userID int64) {
	invalidate(ctx, r.cache, r.logger, permUserKey(userID))
}
