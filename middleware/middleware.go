package middleware

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	authcore "github.com/avenide/authcore"
	"github.com/avenide/authcore/repo"
)

const unauthorizedDetail = "invalid or expired session"

// SkipPaths are exempt from tenant resolution, authentication, and rate
// limiting.
var SkipPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

// TenantSlug extracts the leftmost host label when it looks like a tenant
// slug. "localhost", bare IPs, and numeric labels yield "".
func TenantSlug(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	label, _, _ := strings.Cut(host, ".")
	if label == "" || label == "localhost" {
		return ""
	}
	numeric := true
	for _, r := range label {
		if r < '0' || r > '9' {
			numeric = false
			break
		}
	}
	if numeric {
		return ""
	}
	return label
}

// ClientIP picks the leftmost X-Forwarded-For entry, falling back to the
// connection's remote address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func bearerToken(value string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(value, prefix) {
		return ""
	}
	return value[len(prefix):]
}

// Resolve builds the per-request context: client IP, tenant from the Host
// header, and (when a bearer token is present) the authenticated identity
// with permissions prefetched.
//
// Token verification is best effort: an invalid or expired bearer token
// leaves the request anonymous instead of rejecting it, and handlers
// behind [RequireAuth] do the rejecting. Tenant problems, a tenant
// mismatch, and backend outages are still answered here.
func Resolve(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if SkipPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			ctx := authcore.WithClientIP(r.Context(), ClientIP(r))

			var tenant *repo.Tenant
			if slug := TenantSlug(r.Host); slug != "" {
				t, err := engine.TenantBySlug(ctx, slug)
				if err != nil {
					writeError(w, err)
					return
				}
				if !t.Active() {
					writeDetail(w, http.StatusForbidden, "tenant inactive")
					return
				}
				tenant = t
			}

			if raw := bearerToken(r.Header.Get("Authorization")); raw != "" {
				result, err := engine.Authenticate(ctx, raw, tenant)
				switch {
				case err == nil:
					next.ServeHTTP(w, r.WithContext(authcore.WithAuthResult(ctx, result)))
					return
				case errors.Is(err, authcore.ErrTenantMismatch),
					errors.Is(err, authcore.ErrStoreUnavailable),
					errors.Is(err, authcore.ErrCacheUnavailable):
					writeError(w, err)
					return
				}
				// Any other failure is a bad token; the request continues
				// without an identity.
			}

			if tenant != nil {
				ctx = authcore.WithAuthResult(ctx, &authcore.AuthResult{Tenant: tenant})
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeError maps engine errors onto status codes. Every credential
// problem collapses into one generic 401.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authcore.ErrTenantNotFound):
		writeDetail(w, http.StatusNotFound, "tenant not found")
	case errors.Is(err, authcore.ErrTenantInactive):
		writeDetail(w, http.StatusForbidden, "tenant inactive")
	case errors.Is(err, authcore.ErrTenantMismatch),
		errors.Is(err, authcore.ErrUserInactive):
		writeDetail(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, authcore.ErrRateLimited):
		writeDetail(w, http.StatusTooManyRequests, "rate limit exceeded")
	case errors.Is(err, authcore.ErrStoreUnavailable),
		errors.Is(err, authcore.ErrCacheUnavailable):
		writeDetail(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		writeDetail(w, http.StatusUnauthorized, unauthorizedDetail)
	}
}

// RateLimit counts the request against the resolved tenant's window.
// Runs after [Resolve] so tenant overrides apply.
func RateLimit(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if SkipPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			ip := authcore.ClientIPFrom(ctx)
			if ip == "" {
				ip = ClientIP(r)
			}
			if err := engine.CheckRateLimit(ctx, authcore.CurrentTenant(ctx), ip, r.URL.Path); err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth rejects requests that carry no authenticated user.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authcore.CurrentUser(r.Context()) == nil {
			writeDetail(w, http.StatusUnauthorized, unauthorizedDetail)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission rejects authenticated callers lacking perm. The check
// reads only the set [Resolve] prefetched.
func RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := authcore.AuthResultFrom(r.Context())
			if result == nil || result.User == nil {
				writeDetail(w, http.StatusUnauthorized, unauthorizedDetail)
				return
			}
			if !result.HasPermission(perm) {
				writeDetail(w, http.StatusForbidden, "permission denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
