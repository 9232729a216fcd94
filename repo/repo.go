// Package repo holds the domain model, the durable-source interfaces the
// Postgres layer implements, and read-through cached wrappers over those
// sources.
//
// # Caching discipline
//
// Entity keys are overwritten on every write; list keys are deleted, never
// rewritten in place. Cache failures on this path are logged and swallowed:
// the durable store stays authoritative and a dead cache only costs
// latency, not correctness.
package repo

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by source lookups that match no row.
var ErrNotFound = errors.New("not found")

// TenantSource is the durable store for tenants.
type TenantSource interface {
	GetByID(ctx context.Context, id int64) (*Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
	List(ctx context.Context) ([]*Tenant, error)
	Create(ctx context.Context, t *Tenant) error
	Update(ctx context.Context, t *Tenant) error
	Delete(ctx context.Context, id int64) error
}

// UserSource is the durable store for users.
type UserSource interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ListByTenant(ctx context.Context, tenantID int64) ([]*User, error)
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id int64) error
}

// PermissionSource is the durable store for role and user permissions.
type PermissionSource interface {
	ListForRole(ctx context.Context, role string) ([]*Permission, error)
	ListForUser(ctx context.Context, userID int64) ([]*Permission, error)
}

// FeatureSource is the durable store for feature flags.
type FeatureSource interface {
	GetByID(ctx context.Context, id int64) (*FeatureFlag, error)
	GetByKey(ctx context.Context, tenantID int64, key string) (*FeatureFlag, error)
	ListByTenant(ctx context.Context, tenantID int64) ([]*FeatureFlag, error)
	Upsert(ctx context.Context, f *FeatureFlag) error
	Delete(ctx context.Context, id int64) error
}

// TokenStore is the durable store for refresh tokens and the access-token
// blacklist.
type TokenStore interface {
	InsertRefresh(ctx context.Context, rec *RefreshToken) error
	GetRefreshByHash(ctx context.Context, hash string) (*RefreshToken, error)
	RevokeRefresh(ctx context.Context, id int64) error
	RevokeRefreshForUser(ctx context.Context, userID int64) (int64, error)

	InsertBlacklisted(ctx context.Context, rec *BlacklistedToken) error
	// IsBlacklisted reports whether a non-expired row matches the raw
	// token. now comes from the caller's clock, not the database's.
	IsBlacklisted(ctx context.Context, rawToken string, now time.Time) (bool, error)

	// Purge deletes refresh tokens past expiry and revoked tokens older
	// than now minus keepRevokedFor; a non-positive window deletes every
	// revoked row. Expired blacklist rows go with them. Returns rows
	// deleted.
	Purge(ctx context.Context, now time.Time, keepRevokedFor time.Duration) (int64, error)
}
