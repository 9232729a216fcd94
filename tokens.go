package authcore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/avenide/authcore/cache"
	"github.com/avenide/authcore/repo"
	"github.com/avenide/authcore/session"
	"github.com/avenide/authcore/token"
)

// TokenRepository composes the token service, the session cache, and the
// durable token store into the login, refresh, resolve, and revoke flows.
type TokenRepository struct {
	tokens     *token.Service
	sessions   *session.Store
	store      repo.TokenStore
	users      repo.UserSource
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewTokenRepository wires the composite. users is consulted on refresh to
// rebuild claims from the current account state.
func NewTokenRepository(
	tokens *token.Service,
	sessions *session.Store,
	store repo.TokenStore,
	users repo.UserSource,
	accessTTL, refreshTTL time.Duration,
	logger *zap.Logger,
	clock func() time.Time,
) *TokenRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = time.Now
	}
	return &TokenRepository{
		tokens:     tokens,
		sessions:   sessions,
		store:      store,
		users:      users,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		logger:     logger,
		now:        clock,
	}
}

func claimsForUser(u *repo.User) token.Claims {
	tid := u.TenantID
	return token.Claims{
		Subject:  strconv.FormatInt(u.ID, 10),
		TenantID: &tid,
		Extra:    map[string]any{"role": u.Role},
	}
}

// CreateLoginSession mints an access/refresh pair for an authenticated
// user. The refresh hash lands in the durable store before anything else;
// the cache mirror is best effort.
func (tr *TokenRepository) CreateLoginSession(ctx context.Context, u *repo.User) (*AuthTokens, error) {
	access, err := tr.tokens.CreateAccessToken(claimsForUser(u), tr.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := token.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	rec := &repo.RefreshToken{
		UserID:    u.ID,
		TokenHash: token.Hash(refresh),
		ExpiresAt: tr.now().Add(tr.refreshTTL),
	}
	if err := tr.store.InsertRefresh(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := tr.sessions.Add(ctx, u.ID, access, tr.accessTTL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	if err := tr.sessions.Mirror(ctx, refresh, access, tr.accessTTL); err != nil {
		tr.logger.Warn("refresh token mirror not cached",
			zap.Int64("user_id", u.ID), zap.Error(err))
	}

	return &AuthTokens{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(tr.accessTTL.Seconds()),
	}, nil
}

// RefreshAccessToken exchanges a live refresh token for a new access
// token. The refresh token itself is not rotated; it stays valid until
// revocation or expiry.
func (tr *TokenRepository) RefreshAccessToken(ctx context.Context, rawRefresh string) (*AuthTokens, *repo.User, error) {
	rec, err := tr.store.GetRefreshByHash(ctx, token.Hash(rawRefresh))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil, ErrTokenInvalid
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if rec.Revoked {
		return nil, nil, ErrTokenRevoked
	}
	if rec.Expired(tr.now()) {
		return nil, nil, ErrTokenInvalid
	}

	u, err := tr.users.GetByID(ctx, rec.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil, ErrTokenInvalid
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !u.Active() {
		return nil, nil, ErrUserInactive
	}

	access, err := tr.tokens.CreateAccessToken(claimsForUser(u), tr.accessTTL)
	if err != nil {
		return nil, nil, err
	}
	if err := tr.sessions.Add(ctx, u.ID, access, tr.accessTTL); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	if err := tr.sessions.Mirror(ctx, rawRefresh, access, tr.accessTTL); err != nil {
		tr.logger.Warn("refresh token mirror not rewritten",
			zap.Int64("user_id", u.ID), zap.Error(err))
	}

	return &AuthTokens{
		AccessToken:  access,
		RefreshToken: rawRefresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(tr.accessTTL.Seconds()),
	}, u, nil
}

// VerifySession resolves a raw access token to verified claims. Order
// matters: signature, then blacklist, then session liveness with healing.
// A blacklisted token is revoked even if its session entry still exists.
func (tr *TokenRepository) VerifySession(ctx context.Context, raw string) (token.Claims, bool, error) {
	claims, err := tr.tokens.VerifyToken(raw)
	if err != nil {
		return token.Claims{}, false, ErrTokenInvalid
	}

	banned, err := tr.store.IsBlacklisted(ctx, raw, tr.now())
	if err != nil {
		return token.Claims{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if banned {
		return token.Claims{}, false, ErrTokenRevoked
	}

	healed := false
	_, err = tr.sessions.Get(ctx, token.Hash(raw))
	if errors.Is(err, session.ErrNotFound) {
		// The token is cryptographically valid and not revoked; the cache
		// entry was evicted. Rebuild it for the token's remaining life.
		uid, uidErr := claims.UserID()
		if uidErr != nil {
			return token.Claims{}, false, ErrTokenInvalid
		}
		if healErr := tr.sessions.Heal(ctx, uid, raw, claims.ExpiresAt); healErr != nil {
			if errors.Is(healErr, session.ErrNotFound) {
				return token.Claims{}, false, ErrSessionNotFound
			}
			return token.Claims{}, false, fmt.Errorf("%w: %v", ErrCacheUnavailable, healErr)
		}
		healed = true
	} else if err != nil {
		if errors.Is(err, cache.ErrUnavailable) {
			return token.Claims{}, false, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
		}
		return token.Claims{}, false, err
	}

	return claims, healed, nil
}

// RevokeByRefreshToken revokes the durable refresh record and drops its
// cache mirror. Reports whether a live record was revoked; an already
// revoked record is not an error.
func (tr *TokenRepository) RevokeByRefreshToken(ctx context.Context, rawRefresh string) (bool, error) {
	hash := token.Hash(rawRefresh)
	rec, err := tr.store.GetRefreshByHash(ctx, hash)
	if errors.Is(err, repo.ErrNotFound) {
		return false, ErrTokenInvalid
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if rec.Revoked {
		return false, nil
	}

	if err := tr.store.RevokeRefresh(ctx, rec.ID); err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := tr.sessions.Revoke(ctx, rec.UserID, rawRefresh); err != nil {
		tr.logger.Warn("refresh token mirror not dropped",
			zap.Int64("user_id", rec.UserID), zap.Error(err))
	}
	return true, nil
}

// RevokeByRawTokenFallback handles logout with a token that has no refresh
// record: treat it as an access token, drop its session entry, and
// blacklist the raw value for its remaining possible lifetime.
func (tr *TokenRepository) RevokeByRawTokenFallback(ctx context.Context, raw string) error {
	var userID *int64
	uid := int64(0)
	if claims, err := tr.tokens.VerifyToken(raw); err == nil {
		if id, idErr := claims.UserID(); idErr == nil {
			uid = id
			userID = &uid
		}
	}

	if userID != nil {
		if err := tr.sessions.Revoke(ctx, uid, raw); err != nil {
			tr.logger.Warn("session entry not dropped on fallback logout", zap.Error(err))
		}
	} else if err := tr.sessions.DropEntry(ctx, raw); err != nil {
		tr.logger.Warn("session entry not dropped on fallback logout", zap.Error(err))
	}

	rec := &repo.BlacklistedToken{
		UserID:    userID,
		Token:     raw,
		Reason:    "logout",
		ExpiresAt: tr.now().Add(tr.accessTTL),
	}
	if err := tr.store.InsertBlacklisted(ctx, rec); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// IsBlacklisted reports whether the raw token has a live blacklist row.
func (tr *TokenRepository) IsBlacklisted(ctx context.Context, raw string) (bool, error) {
	banned, err := tr.store.IsBlacklisted(ctx, raw, tr.now())
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return banned, nil
}

// Purge removes expired and long-revoked rows from the durable store.
func (tr *TokenRepository) Purge(ctx context.Context, keepRevokedFor time.Duration) (int64, error) {
	return tr.store.Purge(ctx, tr.now(), keepRevokedFor)
}

// RevokeAllForUser drops every cached session and revokes every live
// refresh token for the user. Returns sessions dropped and refresh rows
// revoked.
func (tr *TokenRepository) RevokeAllForUser(ctx context.Context, userID int64) (int, int64, error) {
	dropped, err := tr.sessions.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	revoked, err := tr.store.RevokeRefreshForUser(ctx, userID)
	if err != nil {
		return dropped, 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return dropped, revoked, nil
}
