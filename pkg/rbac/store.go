package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/arena/pkg/apperrors"
	"github.com/platinummonkey/arena/pkg/storage/postgres"
)

// Store handles RBAC data persistence
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a new RBAC store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// ListPermissions returns the persisted permission catalog ordered by code
func (s *Store) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, name, description, module
		FROM permissions
		ORDER BY module, code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	perms := []Permission{}
	for rows.Next() {
		var p Permission
		var description sql.NullString
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &description, &p.Module); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		p.Description = description.String
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// GetPermissionByCode retrieves a permission by its code
func (s *Store) GetPermissionByCode(ctx context.Context, code string) (*Permission, error) {
	var p Permission
	var description sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, name, description, module
		FROM permissions
		WHERE code = $1
	`, code).Scan(&p.ID, &p.Code, &p.Name, &description, &p.Module)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("permission not found: %s", code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	p.Description = description.String
	return &p, nil
}

// UpsertPermission inserts a catalog entry or refreshes its metadata. The
// code itself never changes.
func (s *Store) UpsertPermission(ctx context.Context, p *Permission) error {
	if !ValidPermissionCode(p.Code) {
		return apperrors.Validation("invalid permission code %q", p.Code)
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO permissions (code, name, description, module)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description, module = EXCLUDED.module
		RETURNING id
	`, p.Code, p.Name, p.Description, p.Module).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert permission: %w", err)
	}
	return nil
}

// CreateRole creates a new role. A duplicate name is a conflict.
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	role.Name = strings.TrimSpace(role.Name)
	if role.Name == "" {
		return apperrors.Validation("role name is required")
	}

	now := s.now()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO roles (name, description, is_system_role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO NOTHING
		RETURNING id
	`, role.Name, role.Description, role.IsSystemRole, now, now).Scan(&role.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.Conflict("role already exists: %s", role.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

const roleColumns = `id, name, description, is_system_role, created_at, updated_at`

func scanRole(scanner interface{ Scan(...any) error }) (*Role, error) {
	var role Role
	var description sql.NullString
	if err := scanner.Scan(&role.ID, &role.Name, &description, &role.IsSystemRole, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return nil, err
	}
	role.Description = description.String
	return &role, nil
}

// GetRole retrieves a role by ID together with its permission codes
func (s *Store) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	role, err := scanRole(s.db.QueryRowContext(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, roleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("role not found: %d", roleID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	role.Permissions, err = s.GetRolePermissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	return role, nil
}

// GetRoleByName retrieves a role by name
func (s *Store) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	role, err := scanRole(s.db.QueryRowContext(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("role not found: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// ListRoles lists all roles ordered by name
func (s *Store) ListRoles(ctx context.Context) ([]*Role, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	roles := []*Role{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// UpdateRole updates the name and description of a non-system role
func (s *Store) UpdateRole(ctx context.Context, role *Role) error {
	existing, err := s.GetRole(ctx, role.ID)
	if err != nil {
		return err
	}
	if existing.IsSystemRole {
		return apperrors.Forbidden("cannot modify system role: %s", existing.Name)
	}

	role.Name = strings.TrimSpace(role.Name)
	if role.Name == "" {
		return apperrors.Validation("role name is required")
	}

	now := s.now()
	_, err = s.db.ExecContext(ctx, `
		UPDATE roles
		SET name = $1, description = $2, updated_at = $3
		WHERE id = $4
	`, role.Name, role.Description, now, role.ID)
	if postgres.IsUniqueViolation(err) {
		return apperrors.Conflict("role already exists: %s", role.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	role.IsSystemRole = false
	role.CreatedAt = existing.CreatedAt
	role.UpdatedAt = now
	return nil
}

// DeleteRole deletes a non-system role along with its grants and assignments
func (s *Store) DeleteRole(ctx context.Context, roleID int64) error {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystemRole {
		return apperrors.Forbidden("cannot delete system role: %s", role.Name)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM role_permissions WHERE role_id = $1`,
		`DELETE FROM user_roles WHERE role_id = $1`,
		`DELETE FROM roles WHERE id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, q, roleID); err != nil {
			return fmt.Errorf("failed to delete role: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit role deletion: %w", err)
	}
	return nil
}

// GrantPermission adds a role to permission edge. Granting an edge that
// already exists is a conflict, never an overwrite.
func (s *Store) GrantPermission(ctx context.Context, roleID int64, code string) error {
	if _, err := s.GetRole(ctx, roleID); err != nil {
		return err
	}
	perm, err := s.GetPermissionByCode(ctx, code)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO role_permissions (role_id, permission_id, granted_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (role_id, permission_id) DO NOTHING
	`, roleID, perm.ID, s.now())
	if err != nil {
		return fmt.Errorf("failed to grant permission: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.Conflict("role %d already has permission %s", roleID, code)
	}
	return nil
}

// RevokePermission removes a role to permission edge
func (s *Store) RevokePermission(ctx context.Context, roleID int64, code string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM role_permissions
		WHERE role_id = $1 AND permission_id = (SELECT id FROM permissions WHERE code = $2)
	`, roleID, code)
	if err != nil {
		return fmt.Errorf("failed to revoke permission: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.NotFound("role %d does not have permission %s", roleID, code)
	}
	return nil
}

// GetRolePermissions returns the permission codes granted to a role
func (s *Store) GetRolePermissions(ctx context.Context, roleID int64) ([]string, error) {
	return s.queryStrings(ctx, `
		SELECT p.code
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.code
	`, roleID)
}

// AssignRoleToUser assigns a role to a user. A repeated assignment is a conflict.
func (s *Store) AssignRoleToUser(ctx context.Context, ur *UserRole) error {
	if _, err := s.GetRole(ctx, ur.RoleID); err != nil {
		return err
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, ur.UserID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if !exists {
		return apperrors.NotFound("user not found: %d", ur.UserID)
	}

	ur.GrantedAt = s.now()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role_id, granted_by, granted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, role_id) DO NOTHING
	`, ur.UserID, ur.RoleID, ur.GrantedBy, ur.GrantedAt)
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.Conflict("user %d already has role %d", ur.UserID, ur.RoleID)
	}
	return nil
}

// RevokeRoleFromUser removes a role assignment
func (s *Store) RevokeRoleFromUser(ctx context.Context, userID, roleID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.NotFound("user %d does not have role %d", userID, roleID)
	}
	return nil
}

// GetUserRoleNames returns the names of every role assigned to the user
func (s *Store) GetUserRoleNames(ctx context.Context, userID int64) ([]string, error) {
	return s.queryStrings(ctx, `
		SELECT r.name
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY r.name
	`, userID)
}

// GetUserPermissionCodes returns the distinct union of permission codes
// reachable through any of the user's roles
func (s *Store) GetUserPermissionCodes(ctx context.Context, userID int64) ([]string, error) {
	return s.queryStrings(ctx, `
		SELECT DISTINCT p.code
		FROM user_roles ur
		JOIN role_permissions rp ON rp.role_id = ur.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.user_id = $1
		ORDER BY p.code
	`, userID)
}

// GetRoleUserIDs returns the users holding a role
func (s *Store) GetRoleUserIDs(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM user_roles WHERE role_id = $1 ORDER BY user_id`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query role users: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
