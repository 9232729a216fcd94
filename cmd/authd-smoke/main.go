// Package main runs an end-to-end smoke of the authcore engine against
// miniredis and in-memory durable stores. No external services required.
//
// It seeds one tenant and one user, then walks the full token lifecycle:
// login, authenticated resolve, refresh, logout, post-logout rejection,
// and a rate-limit exhaustion pass.
//
// Run:
//
//	go run ./cmd/authd-smoke
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	authcore "github.com/avenide/authcore"
	"github.com/avenide/authcore/internal/authtest"
	"github.com/avenide/authcore/password"
	"github.com/avenide/authcore/repo"
)

// Low-cost hashing keeps the smoke run fast; not for production.
var hashParams = password.Params{
	Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16,
}

func main() {
	ctx := context.Background()

	mr, err := miniredis.Run()
	if err != nil {
		log.Fatal(err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	store := authtest.NewMemStore()
	seed(ctx, store)

	engine, err := authcore.New().
		WithConfig(authcore.Config{
			Token: authcore.TokenConfig{
				Secret:    []byte("smoke-test-secret-smoke-test-secret"),
				AccessTTL: 15 * time.Minute,
			},
			RateLimit: authcore.RateLimitConfig{Calls: 5, Period: time.Minute},
			Password:  hashParams,
		}).
		WithRedis(rdb).
		WithTenantSource(store).
		WithUserSource(authtest.Users{MemStore: store}).
		WithPermissionSource(store).
		WithFeatureSource(authtest.Features{MemStore: store}).
		WithTokenStore(store).
		WithLogger(logger).
		Build()
	if err != nil {
		log.Fatal(err)
	}
	defer engine.Close()

	step := func(name string, fn func() error) {
		if err := fn(); err != nil {
			log.Fatalf("%s: %v", name, err)
		}
		fmt.Printf("ok  %s\n", name)
	}

	var tokens *authcore.AuthTokens

	step("login rejects bad password", func() error {
		_, _, err := engine.Login(ctx, "alice@acme.test", "wrong", "127.0.0.1")
		if !errors.Is(err, authcore.ErrInvalidCredentials) {
			return fmt.Errorf("got %v", err)
		}
		return nil
	})

	step("login issues tokens", func() error {
		var err error
		tokens, _, err = engine.Login(ctx, "alice@acme.test", "correct horse battery staple", "127.0.0.1")
		return err
	})

	step("access token authenticates", func() error {
		tenant, err := engine.TenantBySlug(ctx, "acme")
		if err != nil {
			return err
		}
		result, err := engine.Authenticate(ctx, tokens.AccessToken, tenant)
		if err != nil {
			return err
		}
		if !result.HasPermission("users.read") {
			return errors.New("expected users.read permission")
		}
		return nil
	})

	step("refresh keeps the refresh token", func() error {
		refreshed, _, err := engine.Refresh(ctx, tokens.RefreshToken, "127.0.0.1")
		if err != nil {
			return err
		}
		if refreshed.RefreshToken != tokens.RefreshToken {
			return errors.New("refresh token unexpectedly rotated")
		}
		tokens = refreshed
		return nil
	})

	step("logout revokes", func() error {
		revoked, err := engine.Logout(ctx, tokens.RefreshToken, "127.0.0.1")
		if err != nil {
			return err
		}
		if !revoked {
			return errors.New("nothing revoked")
		}
		return nil
	})

	step("revoked refresh token is rejected", func() error {
		_, _, err := engine.Refresh(ctx, tokens.RefreshToken, "127.0.0.1")
		if !errors.Is(err, authcore.ErrTokenRevoked) {
			return fmt.Errorf("got %v", err)
		}
		return nil
	})

	step("rate limiter trips after budget", func() error {
		tenant, err := engine.TenantBySlug(ctx, "acme")
		if err != nil {
			return err
		}
		for i := 0; i < 5; i++ {
			if err := engine.CheckRateLimit(ctx, tenant, "10.0.0.1", "/login"); err != nil {
				return fmt.Errorf("call %d: %w", i+1, err)
			}
		}
		if err := engine.CheckRateLimit(ctx, tenant, "10.0.0.1", "/login"); !errors.Is(err, authcore.ErrRateLimited) {
			return fmt.Errorf("got %v", err)
		}
		return nil
	})

	fmt.Println("smoke passed")
}

func seed(ctx context.Context, store *authtest.MemStore) {
	hasher, err := password.NewHasher(hashParams)
	if err != nil {
		log.Fatal(err)
	}
	hash, err := hasher.Hash("correct horse battery staple")
	if err != nil {
		log.Fatal(err)
	}

	tenant := &repo.Tenant{Name: "Acme", Slug: "acme", Status: repo.TenantActive}
	if err := store.Create(ctx, tenant); err != nil {
		log.Fatal(err)
	}
	user := &repo.User{
		TenantID:     tenant.ID,
		Email:        "alice@acme.test",
		PasswordHash: hash,
		Role:         "admin",
		Status:       repo.UserActive,
	}
	if err := store.CreateUser(ctx, user); err != nil {
		log.Fatal(err)
	}
	store.Grant("admin", "users.read")
}
