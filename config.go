package authcore

import (
	"errors"
	"time"

	"github.com/avenide/authcore/audit"
	"github.com/avenide/authcore/password"
)

// Config carries every tunable the engine honors. Zero values fall back to
// the defaults applied by Validate.
type Config struct {
	Token     TokenConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Cleanup   CleanupConfig
	Password  password.Params
	Audit     audit.Config
}

// TokenConfig controls issuance and verification.
type TokenConfig struct {
	// Secret signs access tokens. Required.
	Secret []byte
	// AccessTTL bounds access token and session cache lifetime.
	AccessTTL time.Duration
	// RefreshTTL bounds refresh token lifetime in the durable store.
	RefreshTTL time.Duration
}

// CacheConfig controls cache-aside entity TTLs.
type CacheConfig struct {
	// TenantTTL applies to tenant, user, permission, and feature entries.
	TenantTTL time.Duration
}

// RateLimitConfig is the default window budget. Tenants override it
// through settings["rate_limit"].
type RateLimitConfig struct {
	Calls  int
	Period time.Duration
}

// CleanupConfig controls the background token purge.
type CleanupConfig struct {
	// Interval between purge cycles.
	Interval time.Duration
	// KeepRevokedFor retains revoked refresh tokens for forensics before
	// the purge removes them. Zero selects the default retention; the
	// store itself treats a zero window as "purge all revoked rows".
	KeepRevokedFor time.Duration
}

const (
	defaultAccessTTL      = 15 * time.Minute
	defaultRefreshTTL     = 7 * 24 * time.Hour
	defaultTenantCacheTTL = time.Hour
	defaultPurgeInterval  = 24 * time.Hour
	defaultKeepRevoked    = 7 * 24 * time.Hour
	defaultRateCalls      = 10
	defaultRatePeriod     = time.Minute
)

// DefaultConfig returns a Config with every default applied for the
// given signing secret.
func DefaultConfig(secret []byte) Config {
	return Config{
		Token: TokenConfig{
			Secret:     secret,
			AccessTTL:  defaultAccessTTL,
			RefreshTTL: defaultRefreshTTL,
		},
		Cache:     CacheConfig{TenantTTL: defaultTenantCacheTTL},
		RateLimit: RateLimitConfig{Calls: defaultRateCalls, Period: defaultRatePeriod},
		Cleanup: CleanupConfig{
			Interval:       defaultPurgeInterval,
			KeepRevokedFor: defaultKeepRevoked,
		},
		Password: password.DefaultParams,
	}
}

// Validate applies defaults in place and rejects unusable settings.
func (c *Config) Validate() error {
	if len(c.Token.Secret) == 0 {
		return errors.New("config: token secret is required")
	}
	if len(c.Token.Secret) < 32 {
		return errors.New("config: token secret must be at least 32 bytes")
	}

	if c.Token.AccessTTL == 0 {
		c.Token.AccessTTL = defaultAccessTTL
	}
	if c.Token.RefreshTTL == 0 {
		c.Token.RefreshTTL = defaultRefreshTTL
	}
	if c.Token.AccessTTL < 0 || c.Token.RefreshTTL < 0 {
		return errors.New("config: negative token TTL")
	}
	if c.Token.RefreshTTL < c.Token.AccessTTL {
		return errors.New("config: refresh TTL shorter than access TTL")
	}

	if c.Cache.TenantTTL == 0 {
		c.Cache.TenantTTL = defaultTenantCacheTTL
	}
	if c.Cache.TenantTTL < 0 {
		return errors.New("config: negative cache TTL")
	}

	if c.RateLimit.Calls == 0 {
		c.RateLimit.Calls = defaultRateCalls
	}
	if c.RateLimit.Period == 0 {
		c.RateLimit.Period = defaultRatePeriod
	}
	if c.RateLimit.Calls < 0 || c.RateLimit.Period < 0 {
		return errors.New("config: negative rate limit settings")
	}

	if c.Cleanup.Interval == 0 {
		c.Cleanup.Interval = defaultPurgeInterval
	}
	if c.Cleanup.Interval < 0 || c.Cleanup.KeepRevokedFor < 0 {
		return errors.New("config: negative cleanup settings")
	}
	if c.Cleanup.KeepRevokedFor == 0 {
		c.Cleanup.KeepRevokedFor = defaultKeepRevoked
	}

	if c.Password == (password.Params{}) {
		c.Password = password.DefaultParams
	}
	return nil
}
