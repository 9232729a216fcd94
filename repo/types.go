package repo

import "time"

// Tenant statuses as stored in the tenants.status column.
const (
	TenantActive    = "active"
	TenantSuspended = "suspended"
	TenantDisabled  = "disabled"
)

// User statuses as stored in the users.status column.
const (
	UserActive    = "active"
	UserSuspended = "suspended"
	UserDeleted   = "deleted"
)

// Tenant is one isolated customer organization.
type Tenant struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Slug      string         `json:"slug"`
	Status    string         `json:"status"`
	Settings  map[string]any `json:"settings,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Active reports whether the tenant may serve requests.
func (t *Tenant) Active() bool {
	return t != nil && t.Status == TenantActive
}

// RateLimitOverride reads the optional per-tenant rate limit from
// settings["rate_limit"] = {"calls": N, "period": seconds}. ok is false
// when the setting is absent or malformed.
func (t *Tenant) RateLimitOverride() (calls int, period time.Duration, ok bool) {
	if t == nil || t.Settings == nil {
		return 0, 0, false
	}
	raw, found := t.Settings["rate_limit"]
	if !found {
		return 0, 0, false
	}
	m, isMap := raw.(map[string]any)
	if !isMap {
		return 0, 0, false
	}
	c, cok := settingInt(m["calls"])
	p, pok := settingInt(m["period"])
	if !cok || !pok || c <= 0 || p <= 0 {
		return 0, 0, false
	}
	return c, time.Duration(p) * time.Second, true
}

func settingInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// User is a tenant-scoped account.
type User struct {
	ID           int64     `json:"id"`
	TenantID     int64     `json:"tenant_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash,omitempty"`
	Role         string    `json:"role"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Active reports whether the account may authenticate.
func (u *User) Active() bool {
	return u != nil && u.Status == UserActive
}

// Permission is a named capability attached to roles.
type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// FeatureFlag is a per-tenant toggle.
type FeatureFlag struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	Key       string    `json:"key"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RefreshToken is the durable record of an issued refresh token. Only the
// sha256 hex hash of the raw token is stored.
type RefreshToken struct {
	ID        int64
	UserID    int64
	TokenHash string
	Revoked   bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the record is past its expiry at the given instant.
func (r *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// BlacklistedToken is a raw access token banned before its natural expiry.
// Rows exist only for tokens revoked through the fallback logout path.
type BlacklistedToken struct {
	ID        int64
	UserID    *int64
	Token     string
	Reason    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
