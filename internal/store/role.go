package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ByAncort/JwtAuth/types"
)

// RoleRepository handles persistence for roles and their permissions.
type RoleRepository struct {
	db *sql.DB
}

func NewRoleRepository(db *sql.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) GetByName(ctx context.Context, name string) (types.Role, error) {
	const query = `SELECT id, name FROM roles WHERE name = $1`
	var role types.Role
	err := r.db.QueryRowContext(ctx, query, name).Scan(&role.ID, &role.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Role{}, ErrNotFound
		}
		return types.Role{}, err
	}
	return role, nil
}

// Permissions returns the permissions attached to the named role. Reverse
// lookups (permission to roles) are deliberately not exposed here.
func (r *RoleRepository) Permissions(ctx context.Context, roleName string) ([]types.Permission, error) {
	const query = `
		SELECT p.id, p.name
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		JOIN roles r ON r.id = rp.role_id
		WHERE r.name = $1
		ORDER BY p.name`
	rows, err := r.db.QueryContext(ctx, query, roleName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var permissions []types.Permission
	for rows.Next() {
		var permission types.Permission
		if err := rows.Scan(&permission.ID, &permission.Name); err != nil {
			return nil, err
		}
		permissions = append(permissions, permission)
	}
	return permissions, rows.Err()
}
