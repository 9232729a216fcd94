// Package main benchmarks the authcore hot paths against Redis (or an
// embedded miniredis when no address is given). It seeds a batch of login
// sessions, then drives two phases through the engine with concurrent
// workers: authenticated resolves and refresh exchanges.
//
// Run:
//
//	go run ./cmd/authd-loadtest -sessions 1000 -ops 20000 -concurrency 64
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	authcore "github.com/avenide/authcore"
	"github.com/avenide/authcore/internal/authtest"
	"github.com/avenide/authcore/password"
	"github.com/avenide/authcore/repo"
)

// Low-cost hashing: the load test measures token paths, not argon2.
var hashParams = password.Params{
	Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16,
}

func main() {
	var (
		sessions    = flag.Int("sessions", 1000, "number of login sessions to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase (authenticate + refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var client redis.UniversalClient
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		fmt.Printf("using redis at %s\n", addr)
	}
	client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	store := authtest.NewMemStore()
	tenant := seed(ctx, store)

	engine, err := authcore.New().
		WithConfig(authcore.Config{
			Token: authcore.TokenConfig{
				Secret:    []byte("loadtest-secret-loadtest-secret-xx"),
				AccessTTL: time.Hour,
			},
			Password: hashParams,
		}).
		WithRedis(client).
		WithTenantSource(store).
		WithUserSource(authtest.Users{MemStore: store}).
		WithPermissionSource(store).
		WithFeatureSource(authtest.Features{MemStore: store}).
		WithTokenStore(store).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d sessions...\n", *sessions)
	startSeed := time.Now()
	pairs := make([]*authcore.AuthTokens, *sessions)
	for i := range pairs {
		tokens, _, err := engine.Login(ctx, "alice@acme.test", "correct horse battery staple", "10.0.0.1")
		if err != nil {
			fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
			os.Exit(1)
		}
		pairs[i] = tokens
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	authStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		_, err := engine.Authenticate(ctx, pairs[r.Intn(len(pairs))].AccessToken, tenant)
		return err
	})
	refreshStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		_, _, err := engine.Refresh(ctx, pairs[r.Intn(len(pairs))].RefreshToken, "10.0.0.1")
		return err
	})

	fmt.Println("---- results ----")
	printStats("authenticate", authStats)
	printStats("refresh", refreshStats)
}

func runPhase(ops, concurrency int, op func(*rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

func seed(ctx context.Context, store *authtest.MemStore) *repo.Tenant {
	hasher, err := password.NewHasher(hashParams)
	if err != nil {
		panic(err)
	}
	hash, err := hasher.Hash("correct horse battery staple")
	if err != nil {
		panic(err)
	}

	tenant := &repo.Tenant{Name: "Acme", Slug: "acme", Status: repo.TenantActive}
	if err := store.Create(ctx, tenant); err != nil {
		panic(err)
	}
	user := &repo.User{
		TenantID:     tenant.ID,
		Email:        "alice@acme.test",
		PasswordHash: hash,
		Role:         "admin",
		Status:       repo.UserActive,
	}
	if err := store.CreateUser(ctx, user); err != nil {
		panic(err)
	}
	store.Grant("admin", "users.read")
	return tenant
}
