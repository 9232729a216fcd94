// Package authtest provides in-memory implementations of the repo source
// interfaces for tests and the smoke binary.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/avenide/authcore/repo"
)

// MemStore implements repo.TenantSource, repo.PermissionSource, and
// repo.TokenStore directly. Wrap it in [Users] and [Features] for the
// interfaces whose method names collide.
type MemStore struct {
	mu        sync.Mutex
	tenants   map[int64]*repo.Tenant
	users     map[int64]*repo.User
	perms     map[string][]*repo.Permission
	features  map[int64]*repo.FeatureFlag
	refresh   map[string]*repo.RefreshToken
	blacklist map[string]*repo.BlacklistedToken
	nextID    int64

	// FailRefreshLookup makes GetRefreshByHash return the given error,
	// simulating a durable store outage.
	FailRefreshLookup error
	// FailBlacklistLookup does the same for IsBlacklisted.
	FailBlacklistLookup error
}

func NewMemStore() *MemStore {
	return &MemStore{
		tenants:   make(map[int64]*repo.Tenant),
		users:     make(map[int64]*repo.User),
		perms:     make(map[string][]*repo.Permission),
		features:  make(map[int64]*repo.FeatureFlag),
		refresh:   make(map[string]*repo.RefreshToken),
		blacklist: make(map[string]*repo.BlacklistedToken),
		nextID:    1,
	}
}

func (m *MemStore) id() int64 {
	id := m.nextID
	m.nextID++
	return id
}

// Grant attaches a permission to a role.
func (m *MemStore) Grant(role, perm string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.perms[role] = append(m.perms[role], &repo.Permission{ID: m.id(), Name: perm})
}

// RefreshRecords returns a snapshot of the stored refresh tokens.
func (m *MemStore) RefreshRecords() []*repo.RefreshToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*repo.RefreshToken, 0, len(m.refresh))
	for _, rec := range m.refresh {
		cp := *rec
		out = append(out, &cp)
	}
	return out
}

// --- repo.TenantSource ---

func (m *MemStore) GetByID(_ context.Context, id int64) (*repo.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tenants[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, repo.ErrNotFound
}

func (m *MemStore) GetBySlug(_ context.Context, slug string) (*repo.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tenants {
		if t.Slug == slug {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *MemStore) List(_ context.Context) ([]*repo.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*repo.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemStore) Create(_ context.Context, t *repo.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = m.id()
	t.CreatedAt = time.Now()
	cp := *t
	m.tenants[t.ID] = &cp
	return nil
}

func (m *MemStore) Update(_ context.Context, t *repo.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenants[t.ID]; !ok {
		return repo.ErrNotFound
	}
	cp := *t
	m.tenants[t.ID] = &cp
	return nil
}

func (m *MemStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenants[id]; !ok {
		return repo.ErrNotFound
	}
	delete(m.tenants, id)
	return nil
}

// --- user methods, exposed through [Users] ---

func (m *MemStore) getUserByID(id int64) (*repo.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, repo.ErrNotFound
}

func (m *MemStore) CreateUser(_ context.Context, u *repo.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.ID = m.id()
	u.CreatedAt = time.Now()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

// Users adapts MemStore onto repo.UserSource.
type Users struct{ *MemStore }

func (s Users) GetByID(_ context.Context, id int64) (*repo.User, error) {
	return s.getUserByID(id)
}

func (s Users) GetByEmail(_ context.Context, email string) (*repo.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (s Users) ListByTenant(_ context.Context, tenantID int64) ([]*repo.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*repo.User
	for _, u := range s.users {
		if u.TenantID == tenantID {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s Users) Create(ctx context.Context, u *repo.User) error {
	return s.CreateUser(ctx, u)
}

func (s Users) Update(_ context.Context, u *repo.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return repo.ErrNotFound
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s Users) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return repo.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

// --- repo.PermissionSource ---

func (m *MemStore) ListForRole(_ context.Context, role string) ([]*repo.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*repo.Permission(nil), m.perms[role]...), nil
}

func (m *MemStore) ListForUser(_ context.Context, userID int64) ([]*repo.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return append([]*repo.Permission(nil), m.perms[u.Role]...), nil
}

// --- feature methods, exposed through [Features] ---

// Features adapts MemStore onto repo.FeatureSource.
type Features struct{ *MemStore }

func (s Features) GetByID(_ context.Context, id int64) (*repo.FeatureFlag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.features[id]; ok {
		cp := *f
		return &cp, nil
	}
	return nil, repo.ErrNotFound
}

func (s Features) GetByKey(_ context.Context, tenantID int64, key string) (*repo.FeatureFlag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.features {
		if f.TenantID == tenantID && f.Key == key {
			cp := *f
			return &cp, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (s Features) ListByTenant(_ context.Context, tenantID int64) ([]*repo.FeatureFlag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*repo.FeatureFlag
	for _, f := range s.features {
		if f.TenantID == tenantID {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s Features) Upsert(_ context.Context, f *repo.FeatureFlag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ID == 0 {
		f.ID = s.id()
	}
	cp := *f
	s.features[f.ID] = &cp
	return nil
}

func (s Features) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.features[id]; !ok {
		return repo.ErrNotFound
	}
	delete(s.features, id)
	return nil
}

// --- repo.TokenStore ---

func (m *MemStore) InsertRefresh(_ context.Context, rec *repo.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = m.id()
	rec.CreatedAt = time.Now()
	cp := *rec
	m.refresh[rec.TokenHash] = &cp
	return nil
}

func (m *MemStore) GetRefreshByHash(_ context.Context, hash string) (*repo.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailRefreshLookup != nil {
		return nil, m.FailRefreshLookup
	}
	if rec, ok := m.refresh[hash]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, repo.ErrNotFound
}

func (m *MemStore) RevokeRefresh(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.refresh {
		if rec.ID == id {
			rec.Revoked = true
			return nil
		}
	}
	return repo.ErrNotFound
}

func (m *MemStore) RevokeRefreshForUser(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, rec := range m.refresh {
		if rec.UserID == userID && !rec.Revoked {
			rec.Revoked = true
			n++
		}
	}
	return n, nil
}

func (m *MemStore) InsertBlacklisted(_ context.Context, rec *repo.BlacklistedToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = m.id()
	rec.CreatedAt = time.Now()
	cp := *rec
	m.blacklist[rec.Token] = &cp
	return nil
}

func (m *MemStore) IsBlacklisted(_ context.Context, rawToken string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailBlacklistLookup != nil {
		return false, m.FailBlacklistLookup
	}
	rec, ok := m.blacklist[rawToken]
	return ok && rec.ExpiresAt.After(now), nil
}

func (m *MemStore) Purge(_ context.Context, now time.Time, keepRevokedFor time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for hash, rec := range m.refresh {
		expired := !now.Before(rec.ExpiresAt)
		stale := rec.Revoked && (keepRevokedFor <= 0 || rec.CreatedAt.Before(now.Add(-keepRevokedFor)))
		if expired || stale {
			delete(m.refresh, hash)
			deleted++
		}
	}
	for tok, rec := range m.blacklist {
		if !now.Before(rec.ExpiresAt) {
			delete(m.blacklist, tok)
			deleted++
		}
	}
	return deleted, nil
}
