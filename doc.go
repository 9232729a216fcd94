// Package authcore is a multi-tenant authentication engine: JWT access
// tokens, durable refresh tokens, Redis-backed session tracking with
// self-healing, per-tenant rate limiting, and cache-aside repositories
// over Postgres.
//
// # Construction
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithRedis(redisClient).
//		WithPool(pgxPool).
//		WithLogger(logger).
//		Build()
//
// # Token model
//
// Access tokens are HS256 JWTs; their liveness is tracked in the cache
// under session:{sha256hex} so revocation takes effect before expiry.
// Refresh tokens are opaque random values stored hash-only in Postgres
// and are not rotated on use. Logout revokes the refresh record when one
// exists and falls back to blacklisting the raw token otherwise.
//
// # Failure policy
//
// Authentication paths fail closed on cache outage; the rate limiter
// fails open; cache-aside repository reads fall through to Postgres.
package authcore
