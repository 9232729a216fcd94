package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/avenide/authcore/repo"
)

// Permissions implements [repo.PermissionSource] on Postgres. A user's
// effective set is the permissions of their role.
type Permissions struct {
	db DB
}

func NewPermissions(db DB) *Permissions {
	return &Permissions{db: db}
}

func collectPermissions(rows pgx.Rows) ([]*repo.Permission, error) {
	defer rows.Close()

	var out []*repo.Permission
	for rows.Next() {
		var p repo.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *Permissions) ListForRole(ctx context.Context, role string) ([]*repo.Permission, error) {
	rows, err := s.db.Query(ctx, `
		SELECT p.id, p.name, p.description
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role = $1
		ORDER BY p.name`, role)
	if err != nil {
		return nil, fmt.Errorf("list role permissions: %w", err)
	}
	return collectPermissions(rows)
}

func (s *Permissions) ListForUser(ctx context.Context, userID int64) ([]*repo.Permission, error) {
	rows, err := s.db.Query(ctx, `
		SELECT p.id, p.name, p.description
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		JOIN users u ON u.role = rp.role
		WHERE u.id = $1
		ORDER BY p.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user permissions: %w", err)
	}
	return collectPermissions(rows)
}
