package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/avenide/authcore/repo"
)

// Tokens implements [repo.TokenStore] on Postgres.
type Tokens struct {
	db DB
}

func NewTokens(db DB) *Tokens {
	return &Tokens{db: db}
}

func (s *Tokens) InsertRefresh(ctx context.Context, rec *repo.RefreshToken) error {
	row := s.db.QueryRow(ctx, `
		INSERT INTO refresh_tokens (user_id, token_hash, revoked, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		rec.UserID, rec.TokenHash, rec.Revoked, rec.ExpiresAt)
	if err := row.Scan(&rec.ID, &rec.CreatedAt); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func (s *Tokens) GetRefreshByHash(ctx context.Context, hash string) (*repo.RefreshToken, error) {
	var rec repo.RefreshToken
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, token_hash, revoked, expires_at, created_at
		FROM refresh_tokens
		WHERE token_hash = $1`, hash).
		Scan(&rec.ID, &rec.UserID, &rec.TokenHash, &rec.Revoked, &rec.ExpiresAt, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	return &rec, nil
}

func (s *Tokens) RevokeRefresh(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE refresh_tokens SET revoked = true WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Tokens) RevokeRefreshForUser(ctx context.Context, userID int64) (int64, error) {
	tag, err := s.db.Exec(ctx,
		"UPDATE refresh_tokens SET revoked = true WHERE user_id = $1 AND NOT revoked", userID)
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Tokens) InsertBlacklisted(ctx context.Context, rec *repo.BlacklistedToken) error {
	row := s.db.QueryRow(ctx, `
		INSERT INTO blacklisted_tokens (user_id, token, reason, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token) DO UPDATE SET reason = EXCLUDED.reason
		RETURNING id, created_at`,
		rec.UserID, rec.Token, rec.Reason, rec.ExpiresAt)
	if err := row.Scan(&rec.ID, &rec.CreatedAt); err != nil {
		return fmt.Errorf("insert blacklisted token: %w", err)
	}
	return nil
}

func (s *Tokens) IsBlacklisted(ctx context.Context, rawToken string, now time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM blacklisted_tokens
			WHERE token = $1 AND expires_at > $2
		)`, rawToken, now).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check blacklist: %w", err)
	}
	return exists, nil
}

func (s *Tokens) Purge(ctx context.Context, now time.Time, keepRevokedFor time.Duration) (int64, error) {
	var deleted int64

	tag, err := s.db.Exec(ctx,
		"DELETE FROM refresh_tokens WHERE expires_at <= $1", now)
	if err != nil {
		return deleted, fmt.Errorf("purge expired refresh tokens: %w", err)
	}
	deleted += tag.RowsAffected()

	if keepRevokedFor > 0 {
		tag, err = s.db.Exec(ctx,
			"DELETE FROM refresh_tokens WHERE revoked AND created_at <= $1",
			now.Add(-keepRevokedFor))
	} else {
		tag, err = s.db.Exec(ctx, "DELETE FROM refresh_tokens WHERE revoked")
	}
	if err != nil {
		return deleted, fmt.Errorf("purge revoked refresh tokens: %w", err)
	}
	deleted += tag.RowsAffected()

	tag, err = s.db.Exec(ctx,
		"DELETE FROM blacklisted_tokens WHERE expires_at <= $1", now)
	if err != nil {
		return deleted, fmt.Errorf("purge blacklisted tokens: %w", err)
	}
	deleted += tag.RowsAffected()

	return deleted, nil
}
