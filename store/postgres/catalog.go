package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/awe-platform/authcore/rbac"
)

// RoleCatalog implements store.RoleCatalog on pgxpool.
type RoleCatalog struct {
	pool *pgxpool.Pool
}

func NewRoleCatalog(pool *pgxpool.Pool) *RoleCatalog {
	return &RoleCatalog{pool: pool}
}

func (r *RoleCatalog) RolePermissions(ctx context.Context, role rbac.Role) ([]string, error) {
	query := `SELECT permission FROM role_permissions WHERE role = $1`
	rows, err := r.pool.Query(ctx, query, role)
	if err != nil {
		return nil, fmt.Errorf("role permissions %s: %w", role, err)
	}
	perms, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("role permissions %s: %w", role, err)
	}
	return perms, nil
}

func (r *RoleCatalog) AllPermissions(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT permission FROM role_permissions`)
	if err != nil {
		return nil, fmt.Errorf("all permissions: %w", err)
	}
	perms, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("all permissions: %w", err)
	}
	return perms, nil
}
