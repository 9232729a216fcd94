package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/avenide/authcore/repo"
)

// Tenants implements [repo.TenantSource] on Postgres.
type Tenants struct {
	db DB
}

func NewTenants(db DB) *Tenants {
	return &Tenants{db: db}
}

const tenantColumns = "id, name, slug, status, settings, created_at, updated_at"

func scanTenant(row pgx.Row) (*repo.Tenant, error) {
	var t repo.Tenant
	var settings []byte
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.Status, &settings, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan tenant: %w", err)
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &t.Settings); err != nil {
			return nil, fmt.Errorf("decode tenant settings: %w", err)
		}
	}
	return &t, nil
}

func (s *Tenants) GetByID(ctx context.Context, id int64) (*repo.Tenant, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+tenantColumns+" FROM tenants WHERE id = $1", id)
	return scanTenant(row)
}

func (s *Tenants) GetBySlug(ctx context.Context, slug string) (*repo.Tenant, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+tenantColumns+" FROM tenants WHERE slug = $1", slug)
	return scanTenant(row)
}

func (s *Tenants) List(ctx context.Context) ([]*repo.Tenant, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+tenantColumns+" FROM tenants ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []*repo.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Tenants) Create(ctx context.Context, t *repo.Tenant) error {
	settings, err := json.Marshal(t.Settings)
	if err != nil {
		return fmt.Errorf("encode tenant settings: %w", err)
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO tenants (name, slug, status, settings)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		t.Name, t.Slug, t.Status, settings)
	if err := row.Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

func (s *Tenants) Update(ctx context.Context, t *repo.Tenant) error {
	settings, err := json.Marshal(t.Settings)
	if err != nil {
		return fmt.Errorf("encode tenant settings: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE tenants
		SET name = $2, slug = $3, status = $4, settings = $5, updated_at = now()
		WHERE id = $1`,
		t.ID, t.Name, t.Slug, t.Status, settings)
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Tenants) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM tenants WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}
