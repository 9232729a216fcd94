package authcore

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/avenide/authcore/audit"
	"github.com/avenide/authcore/cache"
	"github.com/avenide/authcore/internal/metrics"
	"github.com/avenide/authcore/internal/pgstore"
	"github.com/avenide/authcore/internal/rate"
	"github.com/avenide/authcore/password"
	"github.com/avenide/authcore/repo"
	"github.com/avenide/authcore/session"
	"github.com/avenide/authcore/token"
)

// Builder assembles an [Engine]. Sources default to Postgres over the
// configured pool and can be swapped individually for tests or alternative
// backends.
type Builder struct {
	config Config

	cacheClient cache.Client
	pool        *pgxpool.Pool

	tenantSource repo.TenantSource
	userSource   repo.UserSource
	permSource   repo.PermissionSource
	featSource   repo.FeatureSource
	tokenStore   repo.TokenStore

	logger    *zap.Logger
	meter     metric.Meter
	auditSink audit.Sink
	clock     func() time.Time

	built bool
}

// New starts a builder with default configuration.
func New() *Builder {
	return &Builder{}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis uses a Redis client as the cache backend.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.cacheClient = cache.NewRedis(client)
	return b
}

// WithCache uses an arbitrary cache implementation, e.g. [cache.Memory].
func (b *Builder) WithCache(c cache.Client) *Builder {
	b.cacheClient = c
	return b
}

// WithPool uses a pgx pool as the durable store for every source not set
// explicitly.
func (b *Builder) WithPool(pool *pgxpool.Pool) *Builder {
	b.pool = pool
	return b
}

// WithTenantSource overrides the tenant store.
func (b *Builder) WithTenantSource(s repo.TenantSource) *Builder {
	b.tenantSource = s
	return b
}

// WithUserSource overrides the user store.
func (b *Builder) WithUserSource(s repo.UserSource) *Builder {
	b.userSource = s
	return b
}

// WithPermissionSource overrides the permission store.
func (b *Builder) WithPermissionSource(s repo.PermissionSource) *Builder {
	b.permSource = s
	return b
}

// WithFeatureSource overrides the feature flag store.
func (b *Builder) WithFeatureSource(s repo.FeatureSource) *Builder {
	b.featSource = s
	return b
}

// WithTokenStore overrides the refresh/blacklist store.
func (b *Builder) WithTokenStore(s repo.TokenStore) *Builder {
	b.tokenStore = s
	return b
}

// WithLogger attaches a zap logger. Absent one, the engine is silent.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMeter enables OpenTelemetry counters on the given meter.
func (b *Builder) WithMeter(meter metric.Meter) *Builder {
	b.meter = meter
	return b
}

// WithAuditSink routes audit events to sink. Audit must also be enabled
// in the configuration.
func (b *Builder) WithAuditSink(sink audit.Sink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides the time source. Tests use this to control expiry.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// Build validates the configuration and wires the engine. The builder is
// single use.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	if b.cacheClient == nil {
		return nil, errors.New("build: a cache backend is required")
	}

	if b.pool != nil {
		db := pgstore.DB(b.pool)
		if b.tenantSource == nil {
			b.tenantSource = pgstore.NewTenants(db)
		}
		if b.userSource == nil {
			b.userSource = pgstore.NewUsers(db)
		}
		if b.permSource == nil {
			b.permSource = pgstore.NewPermissions(db)
		}
		if b.featSource == nil {
			b.featSource = pgstore.NewFeatures(db)
		}
		if b.tokenStore == nil {
			b.tokenStore = pgstore.NewTokens(db)
		}
	}
	if b.tenantSource == nil || b.userSource == nil ||
		b.permSource == nil || b.featSource == nil || b.tokenStore == nil {
		return nil, errors.New("build: a pgx pool or explicit sources are required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	tokenSvc, err := token.New(b.config.Token.Secret, b.config.Token.AccessTTL, clock)
	if err != nil {
		return nil, err
	}
	hasher, err := password.NewHasher(b.config.Password)
	if err != nil {
		return nil, err
	}

	var m *metrics.Metrics
	if b.meter != nil {
		m, err = metrics.New(b.meter)
		if err != nil {
			return nil, err
		}
	}

	if b.auditSink == nil && b.config.Audit.Enabled {
		b.auditSink = audit.NewZapSink(logger)
	}

	cacheTTL := b.config.Cache.TenantTTL
	sessions := session.NewStore(b.cacheClient, b.config.Token.AccessTTL, logger, clock)
	perms := repo.NewCachedPermissions(b.permSource, b.cacheClient, cacheTTL, logger)
	users := repo.NewCachedUsers(b.userSource, b.cacheClient, cacheTTL, logger).
		WithPermissions(perms)

	e := &Engine{
		cfg:      b.config,
		sessions: sessions,
		tenants:  repo.NewCachedTenants(b.tenantSource, b.cacheClient, cacheTTL, logger),
		users:    users,
		perms:    perms,
		features: repo.NewCachedFeatures(b.featSource, b.cacheClient, cacheTTL, logger),
		hasher:   hasher,
		limiter: rate.New(b.cacheClient, rate.Config{
			Calls:  b.config.RateLimit.Calls,
			Period: b.config.RateLimit.Period,
		}, logger),
		metrics: m,
		auditor: audit.NewDispatcher(b.config.Audit, b.auditSink, clock),
		logger:  logger,
		now:     clock,
	}
	e.tokens = NewTokenRepository(tokenSvc, sessions, b.tokenStore, users,
		b.config.Token.AccessTTL, b.config.Token.RefreshTTL, logger, clock)

	return e, nil
}
