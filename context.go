package authcore

import (
	"context"

	"github.com/avenide/authcore/repo"
)

type contextKey int

const (
	authResultKey contextKey = iota
	clientIPKey
)

// WithAuthResult stores the resolved identity on the context. The
// middleware does this once per request.
func WithAuthResult(ctx context.Context, result *AuthResult) context.Context {
	return context.WithValue(ctx, authResultKey, result)
}

// AuthResultFrom returns the identity stored by the middleware, or nil.
func AuthResultFrom(ctx context.Context) *AuthResult {
	result, _ := ctx.Value(authResultKey).(*AuthResult)
	return result
}

// CurrentUser returns the authenticated user, or nil for anonymous
// requests.
func CurrentUser(ctx context.Context) *repo.User {
	if r := AuthResultFrom(ctx); r != nil {
		return r.User
	}
	return nil
}

// CurrentTenant returns the tenant the request resolved to, or nil.
func CurrentTenant(ctx context.Context) *repo.Tenant {
	if r := AuthResultFrom(ctx); r != nil {
		return r.Tenant
	}
	return nil
}

// CurrentPermissions returns the permission names prefetched at
// authentication time. No further lookups happen per check.
func CurrentPermissions(ctx context.Context) []string {
	if r := AuthResultFrom(ctx); r != nil {
		return r.Permissions
	}
	return nil
}

// WithClientIP stores the request's client IP on the context.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIPFrom returns the IP stored by the middleware, or "".
func ClientIPFrom(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}
