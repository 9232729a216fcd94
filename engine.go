package authcore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/avenide/authcore/audit"
	"github.com/avenide/authcore/internal/metrics"
	"github.com/avenide/authcore/internal/rate"
	"github.com/avenide/authcore/password"
	"github.com/avenide/authcore/repo"
	"github.com/avenide/authcore/session"
)

// Engine is the multi-tenant authentication core. Construct one through
// [New] and its builder; the zero value is not usable.
type Engine struct {
	cfg      Config
	tokens   *TokenRepository
	sessions *session.Store
	tenants  *repo.CachedTenants
	users    *repo.CachedUsers
	perms    *repo.CachedPermissions
	features *repo.CachedFeatures
	hasher   *password.Hasher
	limiter  *rate.Limiter
	metrics  *metrics.Metrics
	auditor  *audit.Dispatcher
	logger   *zap.Logger
	now      func() time.Time

	purgeCancel context.CancelFunc
	purgeWG     sync.WaitGroup
	closeOnce   sync.Once
}

// Tenants exposes the cached tenant repository for management callers.
func (e *Engine) Tenants() *repo.CachedTenants { return e.tenants }

// Users exposes the cached user repository for management callers.
func (e *Engine) Users() *repo.CachedUsers { return e.users }

// Permissions exposes the cached permission repository.
func (e *Engine) Permissions() *repo.CachedPermissions { return e.perms }

// Features exposes the cached feature flag repository.
func (e *Engine) Features() *repo.CachedFeatures { return e.features }

// Login authenticates an email/password pair and opens a session. Unknown
// accounts and wrong passwords are indistinguishable to the caller.
func (e *Engine) Login(ctx context.Context, email, pw, ip string) (*AuthTokens, *repo.User, error) {
	u, err := e.users.GetByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		e.loginRejected(ctx, email, ip, ErrInvalidCredentials)
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ok, err := e.hasher.Verify(pw, u.PasswordHash)
	if err != nil || !ok {
		e.loginRejected(ctx, email, ip, ErrInvalidCredentials)
		return nil, nil, ErrInvalidCredentials
	}

	if !u.Active() {
		e.loginRejected(ctx, email, ip, ErrUserInactive)
		return nil, nil, ErrUserInactive
	}

	e.maybeRehash(ctx, u, pw)

	tokens, err := e.tokens.CreateLoginSession(ctx, u)
	if err != nil {
		e.metrics.LoginFailure(ctx)
		return nil, nil, err
	}

	e.metrics.LoginSuccess(ctx)
	e.auditor.Emit(ctx, audit.Event{
		Action:   audit.ActionLogin,
		UserID:   u.ID,
		TenantID: u.TenantID,
		IP:       ip,
		Success:  true,
	})
	return tokens, u, nil
}

func (e *Engine) loginRejected(ctx context.Context, email, ip string, cause error) {
	e.metrics.LoginFailure(ctx)
	e.auditor.Emit(ctx, audit.Event{
		Action:   audit.ActionLoginFailed,
		IP:       ip,
		Success:  false,
		Error:    cause.Error(),
		Metadata: map[string]string{"email": email},
	})
}

// maybeRehash upgrades the stored hash when the configured cost grew.
// Failures only cost the upgrade, never the login.
func (e *Engine) maybeRehash(ctx context.Context, u *repo.User, pw string) {
	upgrade, err := e.hasher.NeedsRehash(u.PasswordHash)
	if err != nil || !upgrade {
		return
	}
	newHash, err := e.hasher.Hash(pw)
	if err != nil {
		return
	}
	u.PasswordHash = newHash
	if err := e.users.Update(ctx, u); err != nil {
		e.logger.Warn("password rehash not persisted",
			zap.Int64("user_id", u.ID), zap.Error(err))
	}
}

// Refresh exchanges a refresh token for a fresh access token. The refresh
// token is returned unchanged.
func (e *Engine) Refresh(ctx context.Context, rawRefresh, ip string) (*AuthTokens, *repo.User, error) {
	tokens, u, err := e.tokens.RefreshAccessToken(ctx, rawRefresh)
	if err != nil {
		e.metrics.RefreshFailure(ctx)
		e.auditor.Emit(ctx, audit.Event{
			Action:  audit.ActionRefresh,
			IP:      ip,
			Success: false,
			Error:   err.Error(),
		})
		return nil, nil, err
	}

	e.metrics.RefreshSuccess(ctx)
	e.auditor.Emit(ctx, audit.Event{
		Action:   audit.ActionRefresh,
		UserID:   u.ID,
		TenantID: u.TenantID,
		IP:       ip,
		Success:  true,
	})
	return tokens, u, nil
}

// Logout invalidates a token the client no longer wants. The argument is
// normally a refresh token; when no refresh record matches, it is treated
// as an access token and blacklisted instead. Returns true when something
// was revoked, false when the refresh record was already revoked.
func (e *Engine) Logout(ctx context.Context, raw, ip string) (bool, error) {
	revoked, err := e.tokens.RevokeByRefreshToken(ctx, raw)
	switch {
	case err == nil:
		if revoked {
			e.metrics.Logout(ctx)
			e.auditor.Emit(ctx, audit.Event{Action: audit.ActionLogout, IP: ip, Success: true})
		}
		return revoked, nil
	case errors.Is(err, ErrTokenInvalid):
		if fbErr := e.tokens.RevokeByRawTokenFallback(ctx, raw); fbErr != nil {
			return false, fbErr
		}
		e.metrics.Logout(ctx)
		e.auditor.Emit(ctx, audit.Event{
			Action:   audit.ActionLogout,
			IP:       ip,
			Success:  true,
			Metadata: map[string]string{"path": "blacklist"},
		})
		return true, nil
	default:
		return false, err
	}
}

// RevokeAllSessions force-logs-out every device of a user.
func (e *Engine) RevokeAllSessions(ctx context.Context, userID int64) error {
	dropped, revoked, err := e.tokens.RevokeAllForUser(ctx, userID)
	if err != nil {
		return err
	}
	e.auditor.Emit(ctx, audit.Event{
		Action:  audit.ActionRevokeAll,
		UserID:  userID,
		Success: true,
		Metadata: map[string]string{
			"sessions_dropped": strconv.Itoa(dropped),
			"refresh_revoked":  strconv.FormatInt(revoked, 10),
		},
	})
	return nil
}

// TenantBySlug resolves a tenant by its host label.
func (e *Engine) TenantBySlug(ctx context.Context, slug string) (*repo.Tenant, error) {
	t, err := e.tenants.GetBySlug(ctx, slug)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return t, nil
}

// TenantByID resolves a tenant by primary key.
func (e *Engine) TenantByID(ctx context.Context, id int64) (*repo.Tenant, error) {
	t, err := e.tenants.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return t, nil
}

// Authenticate verifies a raw access token against the resolved tenant and
// returns the caller's identity with permissions prefetched.
//
// resolved may be nil when the request carried no usable tenant slug; the
// token's own tenant claim then determines the tenant. When both are
// present they must agree; the claim is compared against the resolved
// tenant's ID directly, with no extra tenant lookup.
func (e *Engine) Authenticate(ctx context.Context, raw string, resolved *repo.Tenant) (*AuthResult, error) {
	claims, healed, err := e.tokens.VerifySession(ctx, raw)
	if err != nil {
		return nil, err
	}
	if healed {
		e.metrics.SessionHealed(ctx)
	}

	if resolved != nil && claims.TenantID != nil && *claims.TenantID != resolved.ID {
		return nil, ErrTenantMismatch
	}

	tenant := resolved
	if tenant == nil {
		if claims.TenantID == nil {
			return nil, ErrTenantNotFound
		}
		tenant, err = e.TenantByID(ctx, *claims.TenantID)
		if err != nil {
			return nil, err
		}
	}
	if !tenant.Active() {
		return nil, ErrTenantInactive
	}

	uid, err := claims.UserID()
	if err != nil {
		return nil, ErrTokenInvalid
	}
	u, err := e.users.GetByID(ctx, uid)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !u.Active() {
		return nil, ErrUserInactive
	}
	if u.TenantID != tenant.ID {
		return nil, ErrTenantMismatch
	}

	perms, err := e.perms.ListForUser(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	names := make([]string, 0, len(perms))
	for _, p := range perms {
		names = append(names, p.Name)
	}

	return &AuthResult{User: u, Tenant: tenant, Permissions: names}, nil
}

// CheckRateLimit counts one request against the tenant's window. The
// tenant may be nil (global bucket) and may carry a budget override in its
// settings.
func (e *Engine) CheckRateLimit(ctx context.Context, tenant *repo.Tenant, ip, path string) error {
	var tenantID *int64
	var override *rate.Config
	if tenant != nil {
		tenantID = &tenant.ID
		if calls, period, ok := tenant.RateLimitOverride(); ok {
			override = &rate.Config{Calls: calls, Period: period}
		}
	}

	err := e.limiter.Allow(ctx, tenantID, ip, path, override)
	if errors.Is(err, rate.ErrRateLimited) {
		e.metrics.RateLimited(ctx)
		event := audit.Event{
			Action:  audit.ActionRateLimited,
			IP:      ip,
			Success: false,
			Metadata: map[string]string{"path": path},
		}
		if tenantID != nil {
			event.TenantID = *tenantID
		}
		e.auditor.Emit(ctx, event)
		return ErrRateLimited
	}
	return err
}

// FeatureEnabled reports whether a feature flag is on for a tenant.
func (e *Engine) FeatureEnabled(ctx context.Context, tenantID int64, key string) (bool, error) {
	return e.features.Enabled(ctx, tenantID, key)
}

// Close stops the purge loop and drains the audit dispatcher.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		if e.purgeCancel != nil {
			e.purgeCancel()
		}
		e.purgeWG.Wait()
		e.auditor.Close()
	})
}
