package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/avenide/authcore/cache"
	"github.com/avenide/authcore/token"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(cache.NewRedis(client), 15*time.Minute, nil, nil), mr
}

func TestAddAndGet(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	if err := s.Add(ctx, 1, "tok-a", time.Minute); err != nil {
		t.Fatalf("Add: %v", err)
	}
	raw, err := s.Get(ctx, token.Hash("tok-a"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if raw != "tok-a" {
		t.Fatalf("Get = %q, want tok-a", raw)
	}
}

func TestGetUnknownHash(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	if _, err := s.Get(ctx, token.Hash("nope")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get = %v, want ErrNotFound", err)
	}
}

func TestEntryExpires(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	if err := s.Add(ctx, 1, "tok-a", time.Minute); err != nil {
		t.Fatalf("Add: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := s.Get(ctx, token.Hash("tok-a")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after expiry = %v, want ErrNotFound", err)
	}
}

func TestListForUserPrunesDeadMembers(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	if err := s.Add(ctx, 1, "short", time.Minute); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(ctx, 1, "long", 10*time.Minute); err != nil {
		t.Fatalf("Add: %v", err)
	}

	mr.FastForward(5 * time.Minute)

	live, err := s.ListForUser(ctx, 1)
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(live) != 1 || live[0] != token.Hash("long") {
		t.Fatalf("ListForUser = %v, want [hash of long]", live)
	}

	// Second read comes from the pruned index.
	live, err = s.ListForUser(ctx, 1)
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(live) != 1 || live[0] != token.Hash("long") {
		t.Fatalf("pruned ListForUser = %v, want [hash of long]", live)
	}
}

func TestMirrorStoresAccessToken(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	if err := s.Mirror(ctx, "refresh-raw", "access-raw", time.Minute); err != nil {
		t.Fatalf("Mirror: %v", err)
	}
	got, err := s.Get(ctx, token.Hash("refresh-raw"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "access-raw" {
		t.Fatalf("mirror value = %q, want the access token", got)
	}
	if mr.Exists("user_sessions:1") {
		t.Fatal("mirror touched the per-user index")
	}
}

func TestHealRestoresEvictedEntry(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	if err := s.Add(ctx, 1, "tok-a", time.Minute); err != nil {
		t.Fatalf("Add: %v", err)
	}
	mr.Del(Key("tok-a"))

	if err := s.Heal(ctx, 1, "tok-a", time.Now().Add(30*time.Second)); err != nil {
		t.Fatalf("Heal: %v", err)
	}
	if _, err := s.Get(ctx, token.Hash("tok-a")); err != nil {
		t.Fatalf("Get after Heal: %v", err)
	}
}

func TestHealRejectsExpiredClaims(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	err := s.Heal(ctx, 1, "tok-a", time.Now().Add(-time.Second))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Heal with past expiry = %v, want ErrNotFound", err)
	}
}

func TestRevokeRemovesEntryAndIndexMember(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	if err := s.Add(ctx, 1, "tok-a", time.Minute); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(ctx, 1, "tok-b", time.Minute); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := s.Revoke(ctx, 1, "tok-a"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := s.Get(ctx, token.Hash("tok-a")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after Revoke = %v, want ErrNotFound", err)
	}

	live, err := s.ListForUser(ctx, 1)
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(live) != 1 || live[0] != token.Hash("tok-b") {
		t.Fatalf("ListForUser = %v, want [hash of tok-b]", live)
	}
}

func TestRevokeAllForUser(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	for _, raw := range []string{"a", "b", "c"} {
		if err := s.Add(ctx, 1, raw, time.Minute); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if err := s.Add(ctx, 2, "other", time.Minute); err != nil {
		t.Fatalf("Add: %v", err)
	}

	n, err := s.RevokeAllForUser(ctx, 1)
	if err != nil {
		t.Fatalf("RevokeAllForUser: %v", err)
	}
	if n != 3 {
		t.Fatalf("revoked = %d, want 3", n)
	}

	live, err := s.ListForUser(ctx, 1)
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(live) != 0 {
		t.Fatalf("ListForUser after bulk revoke = %v, want empty", live)
	}
	if _, err := s.Get(ctx, token.Hash("other")); err != nil {
		t.Fatalf("unrelated user session lost: %v", err)
	}
}

func TestIndexHoldsHashesOnly(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	if err := s.Add(ctx, 1, "raw-secret-token", time.Minute); err != nil {
		t.Fatalf("Add: %v", err)
	}

	val, err := mr.Get("user_sessions:1")
	if err != nil {
		t.Fatalf("index read: %v", err)
	}
	if !strings.Contains(val, token.Hash("raw-secret-token")) {
		t.Fatal("index missing the session hash")
	}
	if strings.Contains(val, "raw-secret-token") {
		t.Fatal("raw token leaked into the index")
	}
}

func TestCorruptIndexIsDropped(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	mr.Set("user_sessions:1", "{not json")

	live, err := s.ListForUser(ctx, 1)
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(live) != 0 {
		t.Fatalf("ListForUser = %v, want empty", live)
	}
	if mr.Exists("user_sessions:1") {
		t.Fatal("corrupt index was not dropped")
	}
}
