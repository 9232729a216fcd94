package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/avenide/authcore/repo"
)

// Users implements [repo.UserSource] on Postgres. Email lookups are
// case-insensitive; addresses are stored lowercased.
type Users struct {
	db DB
}

func NewUsers(db DB) *Users {
	return &Users{db: db}
}

const userColumns = "id, tenant_id, email, password_hash, role, status, created_at, updated_at"

func scanUser(row pgx.Row) (*repo.User, error) {
	var u repo.User
	err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.PasswordHash,
		&u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func (s *Users) GetByID(ctx context.Context, id int64) (*repo.User, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id)
	return scanUser(row)
}

func (s *Users) GetByEmail(ctx context.Context, email string) (*repo.User, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = $1",
		strings.ToLower(email))
	return scanUser(row)
}

func (s *Users) ListByTenant(ctx context.Context, tenantID int64) ([]*repo.User, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+userColumns+" FROM users WHERE tenant_id = $1 ORDER BY id", tenantID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []*repo.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Users) Create(ctx context.Context, u *repo.User) error {
	row := s.db.QueryRow(ctx, `
		INSERT INTO users (tenant_id, email, password_hash, role, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		u.TenantID, strings.ToLower(u.Email), u.PasswordHash, u.Role, u.Status)
	if err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	u.Email = strings.ToLower(u.Email)
	return nil
}

func (s *Users) Update(ctx context.Context, u *repo.User) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE users
		SET email = $2, password_hash = $3, role = $4, status = $5, updated_at = now()
		WHERE id = $1`,
		u.ID, strings.ToLower(u.Email), u.PasswordHash, u.Role, u.Status)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Users) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}
