// Package middleware adapts HTTP semantics onto the authcore engine.
//
// # Request pipeline
//
//   - [Resolve] — tenant resolution from the Host header, best-effort
//     bearer token authentication, context injection. Anonymous requests
//     pass through with tenant-only context.
//   - [RateLimit] — per-tenant fixed-window limiting, after Resolve.
//   - [RequireAuth] — rejects anonymous requests.
//   - [RequirePermission] — checks the permission set prefetched by
//     Resolve; no lookups happen here.
//
// # Architecture boundaries
//
// This package translates HTTP into engine calls and engine errors into
// status codes. It does not parse tokens, touch the cache, or make
// authorization decisions of its own.
//
// All 401 responses share one generic body so callers cannot probe which
// check failed.
package middleware
