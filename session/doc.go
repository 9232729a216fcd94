// Package session tracks live access tokens in the cache.
//
// # Key layout
//
//   - session:{sha256hex}    — the live access token, written under the
//     access hash and again under the refresh hash, TTL matched to the
//     access token's expiry
//   - user_sessions:{userID} — JSON array of the user's session hashes,
//     TTL = longest member TTL plus one hour of grace
//
// The per-user index is best effort. Writes to it never fail a login, and
// reads self-heal: dead members are dropped and the pruned list is written
// back. The per-token entry is authoritative for liveness.
package session
