package authcore

import "errors"

var (
	// ErrInvalidCredentials is returned on unknown email or wrong password.
	// The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenInvalid is returned for malformed, tampered, or expired tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrSessionNotFound is returned when a token verifies but has no live
	// session entry and cannot be healed.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTokenRevoked is returned for blacklisted access tokens and revoked
	// refresh tokens.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrUserInactive is returned when the account exists but may not
	// authenticate.
	ErrUserInactive = errors.New("user inactive")
	// ErrTenantNotFound is returned when no tenant matches the request.
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrTenantInactive is returned when the resolved tenant is suspended
	// or disabled.
	ErrTenantInactive = errors.New("tenant inactive")
	// ErrTenantMismatch is returned when a token's tenant claim disagrees
	// with the tenant the request resolved to.
	ErrTenantMismatch = errors.New("tenant mismatch")
	// ErrRateLimited is returned when a request exceeds its window budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrPermissionDenied is returned when the caller lacks a required
	// permission.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrCacheUnavailable wraps cache transport failures on paths that
	// fail closed.
	ErrCacheUnavailable = errors.New("cache unavailable")
	// ErrStoreUnavailable wraps durable store failures.
	ErrStoreUnavailable = errors.New("store unavailable")
)
