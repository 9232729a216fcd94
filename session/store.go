package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/avenide/authcore/cache"
	"github.com/avenide/authcore/token"
)

// ErrNotFound is returned when no live session entry exists for a token hash.
var ErrNotFound = errors.New("session not found")

const (
	sessionKeyPrefix = "session:"
	userIndexPrefix  = "user_sessions:"
	indexGrace       = time.Hour
)

// Store reads and writes session entries through a [cache.Client].
// accessTTL bounds index rewrites when member TTLs are unknown.
type Store struct {
	cache     cache.Client
	accessTTL time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewStore creates a session [Store]. A nil logger falls back to zap.NewNop;
// a nil clock falls back to time.Now.
func NewStore(c cache.Client, accessTTL time.Duration, logger *zap.Logger, clock func() time.Time) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = time.Now
	}
	return &Store{cache: c, accessTTL: accessTTL, logger: logger, now: clock}
}

// Key returns the cache key for a raw access token.
func Key(raw string) string {
	return sessionKeyPrefix + token.Hash(raw)
}

// KeyForHash returns the cache key for an already-hashed token.
func KeyForHash(hash string) string {
	return sessionKeyPrefix + hash
}

func indexKey(userID int64) string {
	return fmt.Sprintf("%s%d", userIndexPrefix, userID)
}

// Add records a live session for raw with the given TTL. The per-token
// entry must succeed; index maintenance is logged and swallowed.
func (s *Store) Add(ctx context.Context, userID int64, raw string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("session: non-positive ttl %v", ttl)
	}
	if err := s.cache.Set(ctx, Key(raw), raw, ttl); err != nil {
		return err
	}
	s.appendToIndex(ctx, userID, token.Hash(raw), ttl)
	return nil
}

// Mirror stores the live access token under the refresh token's hash,
// without touching the per-user index. Either hash then resolves the
// session; the refresh token's authoritative copy lives in the durable
// store. Rewritten on every refresh so the entry tracks the current
// access token.
func (s *Store) Mirror(ctx context.Context, rawRefresh, access string, ttl time.Duration) error {
	return s.cache.Set(ctx, Key(rawRefresh), access, ttl)
}

// DropEntry deletes the entry for raw without touching the per-user
// index; list reads self-heal the leftover member.
func (s *Store) DropEntry(ctx context.Context, raw string) error {
	return s.cache.Delete(ctx, Key(raw))
}

// Get resolves a token hash to the raw token it was stored under.
// Expired and unknown hashes both return ErrNotFound; backend failures
// propagate so callers can fail closed.
func (s *Store) Get(ctx context.Context, hash string) (string, error) {
	raw, err := s.cache.Get(ctx, KeyForHash(hash))
	if errors.Is(err, cache.ErrCacheMiss) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return raw, nil
}

// Heal re-creates a session entry that was evicted while its token is
// still valid. expiresAt comes from the verified token claims.
func (s *Store) Heal(ctx context.Context, userID int64, raw string, expiresAt time.Time) error {
	remaining := expiresAt.Sub(s.now())
	if remaining <= 0 {
		return ErrNotFound
	}
	if err := s.cache.Set(ctx, Key(raw), raw, remaining); err != nil {
		return err
	}
	s.appendToIndex(ctx, userID, token.Hash(raw), remaining)
	return nil
}

// ListForUser returns the hashes of the user's sessions that still have a
// live entry. Dead members are pruned and the shortened index is written
// back.
func (s *Store) ListForUser(ctx context.Context, userID int64) ([]string, error) {
	members, err := s.readIndex(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}

	live := members[:0]
	for _, hash := range members {
		if _, err := s.Get(ctx, hash); err == nil {
			live = append(live, hash)
		}
	}

	if len(live) != len(members) {
		s.writeIndex(ctx, userID, live)
	}
	return live, nil
}

// Revoke removes the session entry for raw and prunes it from the index.
func (s *Store) Revoke(ctx context.Context, userID int64, raw string) error {
	if err := s.cache.Delete(ctx, Key(raw)); err != nil {
		return err
	}

	members, err := s.readIndex(ctx, userID)
	if err != nil {
		s.logger.Warn("session index read failed during revoke",
			zap.Int64("user_id", userID), zap.Error(err))
		return nil
	}
	hash := token.Hash(raw)
	pruned := members[:0]
	for _, m := range members {
		if m != hash {
			pruned = append(pruned, m)
		}
	}
	if len(pruned) != len(members) {
		s.writeIndex(ctx, userID, pruned)
	}
	return nil
}

// RevokeAllForUser deletes every live session entry for the user and
// drops the index.
func (s *Store) RevokeAllForUser(ctx context.Context, userID int64) (int, error) {
	members, err := s.readIndex(ctx, userID)
	if err != nil {
		return 0, err
	}

	revoked := 0
	for _, hash := range members {
		if err := s.cache.Delete(ctx, KeyForHash(hash)); err != nil {
			s.logger.Warn("session delete failed during bulk revoke",
				zap.Int64("user_id", userID), zap.Error(err))
			continue
		}
		revoked++
	}
	if err := s.cache.Delete(ctx, indexKey(userID)); err != nil {
		s.logger.Warn("session index delete failed",
			zap.Int64("user_id", userID), zap.Error(err))
	}
	return revoked, nil
}

func (s *Store) readIndex(ctx context.Context, userID int64) ([]string, error) {
	val, err := s.cache.Get(ctx, indexKey(userID))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var members []string
	if err := json.Unmarshal([]byte(val), &members); err != nil {
		// Corrupt index: drop it and let logins rebuild.
		s.logger.Warn("corrupt session index dropped", zap.Int64("user_id", userID))
		_ = s.cache.Delete(ctx, indexKey(userID))
		return nil, nil
	}
	return members, nil
}

func (s *Store) writeIndex(ctx context.Context, userID int64, members []string) {
	key := indexKey(userID)
	if len(members) == 0 {
		if err := s.cache.Delete(ctx, key); err != nil {
			s.logger.Warn("session index delete failed",
				zap.Int64("user_id", userID), zap.Error(err))
		}
		return
	}
	encoded, err := json.Marshal(members)
	if err != nil {
		s.logger.Warn("session index encode failed",
			zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, key, string(encoded), s.accessTTL+indexGrace); err != nil {
		s.logger.Warn("session index write failed",
			zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (s *Store) appendToIndex(ctx context.Context, userID int64, hash string, ttl time.Duration) {
	members, err := s.readIndex(ctx, userID)
	if err != nil {
		s.logger.Warn("session index read failed",
			zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	for _, m := range members {
		if m == hash {
			return
		}
	}
	members = append(members, hash)

	encoded, err := json.Marshal(members)
	if err != nil {
		s.logger.Warn("session index encode failed",
			zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, indexKey(userID), string(encoded), ttl+indexGrace); err != nil {
		s.logger.Warn("session index write failed",
			zap.Int64("user_id", userID), zap.Error(err))
	}
}
