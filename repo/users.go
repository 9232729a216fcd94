package repo

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/avenide/authcore/cache"
)

const (
	userIDKeyPrefix    = "user:id:"
	userEmailKeyPrefix = "user:email:"
	userListKeyPrefix  = "user:list:tenant:"
)

// CachedUsers layers read-through caching over a [UserSource].
type CachedUsers struct {
	source UserSource
	cache  cache.Client
	ttl    time.Duration
	logger *zap.Logger
	perms  *CachedPermissions
}

func NewCachedUsers(source UserSource, c cache.Client, ttl time.Duration, logger *zap.Logger) *CachedUsers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedUsers{source: source, cache: c, ttl: ttl, logger: logger}
}

// WithPermissions attaches the permission cache so user writes also drop
// the user's cached permission set; a role change must not keep serving
// the old role's permissions.
func (r *CachedUsers) WithPermissions(p *CachedPermissions) *CachedUsers {
	r.perms = p
	return r
}

func userIDKey(id int64) string { return fmt.Sprintf("%s%d", userIDKeyPrefix, id) }
func userEmailKey(email string) string { return userEmailKeyPrefix + email }
func userListKey(tenantID int64) string { return fmt.Sprintf("%s%d", userListKeyPrefix, tenantID) }

func userKeys(u *User) []string {
	return []string{userIDKey(u.ID), userEmailKey(u.Email)}
}

func (r *CachedUsers) GetByID(ctx context.Context, id int64) (*User, error) {
	return readThrough(ctx, r.cache, r.logger, userIDKey(id), r.ttl,
		func(ctx context.Context) (*User, []string, error) {
			u, err := r.source.GetByID(ctx, id)
			if err != nil {
				return nil, nil, err
			}
			return u, userKeys(u), nil
		})
}

func (r *CachedUsers) GetByEmail(ctx context.Context, email string) (*User, error) {
	return readThrough(ctx, r.cache, r.logger, userEmailKey(email), r.ttl,
		func(ctx context.Context) (*User, []string, error) {
			u, err := r.source.GetByEmail(ctx, email)
			if err != nil {
				return nil, nil, err
			}
			return u, userKeys(u), nil
		})
}

func (r *CachedUsers) ListByTenant(ctx context.Context, tenantID int64) ([]*User, error) {
	return readThrough(ctx, r.cache, r.logger, userListKey(tenantID), r.ttl,
		func(ctx context.Context) ([]*User, []string, error) {
			us, err := r.source.ListByTenant(ctx, tenantID)
			if err != nil {
				return nil, nil, err
			}
			return us, []string{userListKey(tenantID)}, nil
		})
}

func (r *CachedUsers) Create(ctx context.Context, u *User) error {
	if err := r.source.Create(ctx, u); err != nil {
		return err
	}
	invalidate(ctx, r.cache, r.logger, userListKey(u.TenantID))
	return nil
}

func (r *CachedUsers) Update(ctx context.Context, u *User) error {
	prev, err := r.source.GetByID(ctx, u.ID)
	if err != nil {
		return err
	}
	if err := r.source.Update(ctx, u); err != nil {
		return err
	}
	keys := append(userKeys(u), userListKey(u.TenantID))
	if prev.Email != u.Email {
		keys = append(keys, userEmailKey(prev.Email))
	}
	invalidate(ctx, r.cache, r.logger, keys...)
	if r.perms != nil {
		r.perms.InvalidateUser(ctx, u.ID)
	}
	return nil
}

func (r *CachedUsers) Delete(ctx context.Context, id int64) error {
	u, err := r.source.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := r.source.Delete(ctx, id); err != nil {
		return err
	}
	invalidate(ctx, r.cache, r.logger,
		userIDKey(id), userEmailKey(u.Email), userListKey(u.TenantID))
	if r.perms != nil {
		r.perms.InvalidateUser(ctx, id)
	}
	return nil
}
