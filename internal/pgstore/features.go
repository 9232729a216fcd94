package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/avenide/authcore/repo"
)

// Features implements [repo.FeatureSource] on Postgres.
type Features struct {
	db DB
}

func NewFeatures(db DB) *Features {
	return &Features{db: db}
}

const featureColumns = "id, tenant_id, key, enabled, created_at, updated_at"

func scanFeature(row pgx.Row) (*repo.FeatureFlag, error) {
	var f repo.FeatureFlag
	err := row.Scan(&f.ID, &f.TenantID, &f.Key, &f.Enabled, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan feature flag: %w", err)
	}
	return &f, nil
}

func (s *Features) GetByID(ctx context.Context, id int64) (*repo.FeatureFlag, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+featureColumns+" FROM feature_flags WHERE id = $1", id)
	return scanFeature(row)
}

func (s *Features) GetByKey(ctx context.Context, tenantID int64, key string) (*repo.FeatureFlag, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+featureColumns+" FROM feature_flags WHERE tenant_id = $1 AND key = $2",
		tenantID, key)
	return scanFeature(row)
}

func (s *Features) ListByTenant(ctx context.Context, tenantID int64) ([]*repo.FeatureFlag, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+featureColumns+" FROM feature_flags WHERE tenant_id = $1 ORDER BY key",
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list feature flags: %w", err)
	}
	defer rows.Close()

	var out []*repo.FeatureFlag
	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Features) Upsert(ctx context.Context, f *repo.FeatureFlag) error {
	row := s.db.QueryRow(ctx, `
		INSERT INTO feature_flags (tenant_id, key, enabled)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, key)
		DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = now()
		RETURNING id, created_at, updated_at`,
		f.TenantID, f.Key, f.Enabled)
	if err := row.Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return fmt.Errorf("upsert feature flag: %w", err)
	}
	return nil
}

func (s *Features) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM feature_flags WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete feature flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}
