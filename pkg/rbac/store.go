package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/ehrops/pkg/apperrors"
)

// Storage is the persistence boundary of the role/permission model
type Storage interface {
	CreatePermission(ctx context.Context, perm *Permission) error
	GetPermissionByName(ctx context.Context, name string) (*Permission, error)
	GetPermissionsByIDs(ctx context.Context, ids []int64) ([]Permission, error)
	ListPermissions(ctx context.Context, filter PermissionFilter) ([]Permission, error)

	CreateRole(ctx context.Context, role *Role) error
	GetRole(ctx context.Context, id int64) (*Role, error)
	GetRoleByName(ctx context.Context, name string) (*Role, error)
	ListRoles(ctx context.Context, filter RoleFilter) ([]Role, error)
	UpdateRole(ctx context.Context, role *Role) error
	DeleteRole(ctx context.Context, id int64) error

	ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64, now time.Time) ([]RolePermission, error)
	AddRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64, now time.Time) (int, error)
	ListRolePermissions(ctx context.Context, roleID int64) ([]Permission, error)

	CreateAssignment(ctx context.Context, assignment *RoleAssignment) error
	FindAssignment(ctx context.Context, userID, roleID int64, projectID *int64) (*RoleAssignment, error)
	DeleteAssignment(ctx context.Context, id int64) error
	ListAssignmentsForUser(ctx context.Context, userID int64, projectID *int64) ([]RoleAssignment, error)

	ActiveRoleIDs(ctx context.Context, roleIDs []int64) ([]int64, error)
	PermissionNamesForRoles(ctx context.Context, roleIDs []int64) ([]string, error)
	RolesGrantPermission(ctx context.Context, roleIDs []int64, name string) (bool, error)

	GetSeedMarker(ctx context.Context, key string) (string, error)
	SetSeedMarker(ctx context.Context, key, version string, now time.Time) error

	// RunInTx runs fn against a store bound to one transaction. fn's error
	// rolls every write back.
	RunInTx(ctx context.Context, fn func(tx Storage) error) error
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SQLStore implements Storage over database/sql. Queries use $n placeholders
// in ascending order so they run on PostgreSQL and SQLite alike.
type SQLStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewStore creates a new RBAC store
func NewStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

var _ Storage = (*SQLStore)(nil)

func (s *SQLStore) conn() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// RunInTx runs fn in a new transaction, or in the current one when s is
// already bound to a transaction.
func (s *SQLStore) RunInTx(ctx context.Context, fn func(tx Storage) error) error {
	return s.inTx(ctx, "failed to commit transaction", func(tx *sql.Tx) error {
		return fn(&SQLStore{db: s.db, tx: tx})
	})
}

func (s *SQLStore) inTx(ctx context.Context, commitOp string, fn func(tx *sql.Tx) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Dependency("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Dependency(commitOp, err)
	}
	return nil
}

const permissionColumns = `id, name, domain, action, description, is_active, created_at`

const roleColumns = `id, name, display_name, description, role_type, hospital_id, is_active, created_by, created_at, updated_at`

// CreatePermission inserts perm and sets its ID
func (s *SQLStore) CreatePermission(ctx context.Context, perm *Permission) error {
	query := `
		INSERT INTO permissions (name, domain, action, description, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := s.conn().QueryRowContext(ctx, query,
		perm.Name, perm.Domain, perm.Action, perm.Description, perm.IsActive, perm.CreatedAt,
	).Scan(&perm.ID)
	if err != nil {
		return apperrors.FromStorage("failed to create permission", err)
	}
	return nil
}

// GetPermissionByName returns the permission or a not-found error
func (s *SQLStore) GetPermissionByName(ctx context.Context, name string) (*Permission, error) {
	query := `SELECT ` + permissionColumns + ` FROM permissions WHERE name = $1`
	perm, err := scanPermission(s.conn().QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("permission", name)
	}
	if err != nil {
		return nil, apperrors.Dependency("failed to get permission", err)
	}
	return perm, nil
}

// GetPermissionsByIDs returns the permissions that exist among ids
func (s *SQLStore) GetPermissionsByIDs(ctx context.Context, ids []int64) ([]Permission, error) {
	if len(ids) == 0 {
		return []Permission{}, nil
	}
	placeholders, args := inClause(1, ids)
	query := `SELECT ` + permissionColumns + ` FROM permissions WHERE id IN (` + placeholders + `) ORDER BY id`
	return s.queryPermissions(ctx, "failed to get permissions", query, args...)
}

// ListPermissions lists permissions ordered by name
func (s *SQLStore) ListPermissions(ctx context.Context, filter PermissionFilter) ([]Permission, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.Domain != nil {
		args = append(args, *filter.Domain)
		conds = append(conds, fmt.Sprintf("domain = $%d", len(args)))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		conds = append(conds, fmt.Sprintf("is_active = $%d", len(args)))
	}

	query := `SELECT ` + permissionColumns + ` FROM permissions` + where(conds) + ` ORDER BY name`
	return s.queryPermissions(ctx, "failed to list permissions", query, args...)
}

// CreateRole inserts role and sets its ID
func (s *SQLStore) CreateRole(ctx context.Context, role *Role) error {
	query := `
		INSERT INTO roles (name, display_name, description, role_type, hospital_id, is_active, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	err := s.conn().QueryRowContext(ctx, query,
		role.Name, role.DisplayName, role.Description, string(role.RoleType),
		nullInt64(role.HospitalID), role.IsActive, nullInt64(role.CreatedBy),
		role.CreatedAt, role.UpdatedAt,
	).Scan(&role.ID)
	if err != nil {
		return apperrors.FromStorage("failed to create role", err)
	}
	return nil
}

// GetRole returns the role or a not-found error
func (s *SQLStore) GetRole(ctx context.Context, id int64) (*Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE id = $1`
	role, err := scanRole(s.conn().QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("role", id)
	}
	if err != nil {
		return nil, apperrors.Dependency("failed to get role", err)
	}
	return role, nil
}

// GetRoleByName returns the role or a not-found error
func (s *SQLStore) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE name = $1`
	role, err := scanRole(s.conn().QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("role", name)
	}
	if err != nil {
		return nil, apperrors.Dependency("failed to get role", err)
	}
	return role, nil
}

// ListRoles lists roles ordered by name
func (s *SQLStore) ListRoles(ctx context.Context, filter RoleFilter) ([]Role, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.RoleType != nil {
		args = append(args, string(*filter.RoleType))
		conds = append(conds, fmt.Sprintf("role_type = $%d", len(args)))
	}
	if filter.HospitalID != nil {
		args = append(args, *filter.HospitalID)
		conds = append(conds, fmt.Sprintf("hospital_id = $%d", len(args)))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		conds = append(conds, fmt.Sprintf("is_active = $%d", len(args)))
	}

	query := `SELECT ` + roleColumns + ` FROM roles` + where(conds) + ` ORDER BY name`
	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Dependency("failed to list roles", err)
	}
	defer rows.Close()

	roles := []Role{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, apperrors.Dependency("failed to scan role", err)
		}
		roles = append(roles, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Dependency("failed to list roles", err)
	}
	return roles, nil
}

// UpdateRole writes the mutable columns of role
func (s *SQLStore) UpdateRole(ctx context.Context, role *Role) error {
	query := `
		UPDATE roles
		SET name = $1, display_name = $2, description = $3, hospital_id = $4, is_active = $5, updated_at = $6
		WHERE id = $7
	`
	result, err := s.conn().ExecContext(ctx, query,
		role.Name, role.DisplayName, role.Description, nullInt64(role.HospitalID),
		role.IsActive, role.UpdatedAt, role.ID,
	)
	if err != nil {
		return apperrors.FromStorage("failed to update role", err)
	}
	return requireAffected(result, "role", role.ID)
}

// DeleteRole removes a role with its permission links and assignments in one transaction
func (s *SQLStore) DeleteRole(ctx context.Context, id int64) error {
	return s.inTx(ctx, "failed to commit role deletion", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
			return apperrors.Dependency("failed to delete role permissions", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM role_assignments WHERE role_id = $1`, id); err != nil {
			return apperrors.Dependency("failed to delete role assignments", err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, id)
		if err != nil {
			return apperrors.Dependency("failed to delete role", err)
		}
		return requireAffected(result, "role", id)
	})
}

// ReplaceRolePermissions swaps the full permission set of a role in one transaction
func (s *SQLStore) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64, now time.Time) ([]RolePermission, error) {
	var links []RolePermission
	err := s.inTx(ctx, "failed to commit role permissions", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return apperrors.Dependency("failed to clear role permissions", err)
		}

		links = make([]RolePermission, 0, len(permissionIDs))
		for _, permID := range permissionIDs {
			link, err := insertRolePermission(ctx, tx, roleID, permID, now)
			if err != nil {
				return err
			}
			links = append(links, *link)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return links, nil
}

// AddRolePermissions links the given permissions to a role, keeping every
// existing link. It returns how many links were added.
func (s *SQLStore) AddRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64, now time.Time) (int, error) {
	added := 0
	err := s.inTx(ctx, "failed to commit role permissions", func(tx *sql.Tx) error {
		linked, err := linkedPermissionIDs(ctx, tx, roleID)
		if err != nil {
			return err
		}
		for _, permID := range permissionIDs {
			if linked[permID] {
				continue
			}
			if _, err := insertRolePermission(ctx, tx, roleID, permID, now); err != nil {
				return err
			}
			linked[permID] = true
			added++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

func linkedPermissionIDs(ctx context.Context, tx *sql.Tx, roleID int64) (map[int64]bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT permission_id FROM role_permissions WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, apperrors.Dependency("failed to list role permissions", err)
	}
	defer rows.Close()

	linked := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.Dependency("failed to scan role permission", err)
		}
		linked[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Dependency("failed to list role permissions", err)
	}
	return linked, nil
}

func insertRolePermission(ctx context.Context, tx *sql.Tx, roleID, permID int64, now time.Time) (*RolePermission, error) {
	link := &RolePermission{RoleID: roleID, PermissionID: permID, CreatedAt: now}
	err := tx.QueryRowContext(ctx,
		`INSERT INTO role_permissions (role_id, permission_id, created_at) VALUES ($1, $2, $3) RETURNING id`,
		roleID, permID, now,
	).Scan(&link.ID)
	if err != nil {
		return nil, apperrors.FromStorage("failed to link permission", err)
	}
	return link, nil
}

// ListRolePermissions returns the permissions linked to a role
func (s *SQLStore) ListRolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	query := `
		SELECT p.id, p.name, p.domain, p.action, p.description, p.is_active, p.created_at
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1
		ORDER BY p.name
	`
	return s.queryPermissions(ctx, "failed to list role permissions", query, roleID)
}

// CreateAssignment inserts assignment and sets its ID
func (s *SQLStore) CreateAssignment(ctx context.Context, assignment *RoleAssignment) error {
	query := `
		INSERT INTO role_assignments (user_id, role_id, project_id, assigned_by, assigned_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := s.conn().QueryRowContext(ctx, query,
		assignment.UserID, assignment.RoleID, nullInt64(assignment.ProjectID),
		nullInt64(assignment.AssignedBy), assignment.AssignedAt,
	).Scan(&assignment.ID)
	if err != nil {
		return apperrors.FromStorage("failed to assign role", err)
	}
	return nil
}

// FindAssignment returns the exact (user, role, project) assignment or a not-found error
func (s *SQLStore) FindAssignment(ctx context.Context, userID, roleID int64, projectID *int64) (*RoleAssignment, error) {
	query := `
		SELECT id, user_id, role_id, project_id, assigned_by, assigned_at
		FROM role_assignments
		WHERE user_id = $1 AND role_id = $2 AND project_id IS NULL
	`
	args := []interface{}{userID, roleID}
	if projectID != nil {
		query = `
			SELECT id, user_id, role_id, project_id, assigned_by, assigned_at
			FROM role_assignments
			WHERE user_id = $1 AND role_id = $2 AND project_id = $3
		`
		args = append(args, *projectID)
	}

	assignment, err := scanAssignment(s.conn().QueryRowContext(ctx, query+` ORDER BY id LIMIT 1`, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("role assignment", fmt.Sprintf("user=%d role=%d", userID, roleID))
	}
	if err != nil {
		return nil, apperrors.Dependency("failed to find role assignment", err)
	}
	return assignment, nil
}

// DeleteAssignment removes an assignment by id
func (s *SQLStore) DeleteAssignment(ctx context.Context, id int64) error {
	result, err := s.conn().ExecContext(ctx, `DELETE FROM role_assignments WHERE id = $1`, id)
	if err != nil {
		return apperrors.Dependency("failed to remove role assignment", err)
	}
	return requireAffected(result, "role assignment", id)
}

// ListAssignmentsForUser returns global assignments plus, when projectID is
// set, assignments scoped to that project.
func (s *SQLStore) ListAssignmentsForUser(ctx context.Context, userID int64, projectID *int64) ([]RoleAssignment, error) {
	query := `
		SELECT id, user_id, role_id, project_id, assigned_by, assigned_at
		FROM role_assignments
		WHERE user_id = $1 AND project_id IS NULL
		ORDER BY id
	`
	args := []interface{}{userID}
	if projectID != nil {
		query = `
			SELECT id, user_id, role_id, project_id, assigned_by, assigned_at
			FROM role_assignments
			WHERE user_id = $1 AND (project_id IS NULL OR project_id = $2)
			ORDER BY id
		`
		args = append(args, *projectID)
	}

	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Dependency("failed to list role assignments", err)
	}
	defer rows.Close()

	assignments := []RoleAssignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, apperrors.Dependency("failed to scan role assignment", err)
		}
		assignments = append(assignments, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Dependency("failed to list role assignments", err)
	}
	return assignments, nil
}

// ActiveRoleIDs filters roleIDs down to roles that still exist and are active
func (s *SQLStore) ActiveRoleIDs(ctx context.Context, roleIDs []int64) ([]int64, error) {
	if len(roleIDs) == 0 {
		return []int64{}, nil
	}
	placeholders, args := inClause(1, roleIDs)
	args = append(args, true)
	query := fmt.Sprintf(`SELECT id FROM roles WHERE id IN (%s) AND is_active = $%d ORDER BY id`, placeholders, len(args))

	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Dependency("failed to load active roles", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.Dependency("failed to scan role id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Dependency("failed to load active roles", err)
	}
	return ids, nil
}

// PermissionNamesForRoles returns the distinct active permission names granted
// by the active roles among roleIDs, in one statement.
func (s *SQLStore) PermissionNamesForRoles(ctx context.Context, roleIDs []int64) ([]string, error) {
	if len(roleIDs) == 0 {
		return []string{}, nil
	}
	placeholders, args := inClause(1, roleIDs)
	args = append(args, true)
	active := len(args)
	query := fmt.Sprintf(`
		SELECT DISTINCT p.name
		FROM role_permissions rp
		JOIN roles r ON r.id = rp.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id IN (%s) AND r.is_active = $%d AND p.is_active = $%d
		ORDER BY p.name
	`, placeholders, active, active)

	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Dependency("failed to load role permissions", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apperrors.Dependency("failed to scan permission name", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Dependency("failed to load role permissions", err)
	}
	return names, nil
}

// RolesGrantPermission reports whether any active role among roleIDs grants the active permission name
func (s *SQLStore) RolesGrantPermission(ctx context.Context, roleIDs []int64, name string) (bool, error) {
	if len(roleIDs) == 0 {
		return false, nil
	}
	placeholders, args := inClause(1, roleIDs)
	args = append(args, true, name)
	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM role_permissions rp
		JOIN roles r ON r.id = rp.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id IN (%s) AND r.is_active = $%d AND p.is_active = $%d AND p.name = $%d
	`, placeholders, len(args)-1, len(args)-1, len(args))

	var count int
	if err := s.conn().QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, apperrors.Dependency("failed to check permission", err)
	}
	return count > 0, nil
}

// GetSeedMarker returns the recorded version for key, or "" when never seeded
func (s *SQLStore) GetSeedMarker(ctx context.Context, key string) (string, error) {
	var version string
	err := s.conn().QueryRowContext(ctx, `SELECT version FROM seed_markers WHERE key = $1`, key).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", apperrors.Dependency("failed to read seed marker", err)
	}
	return version, nil
}

// SetSeedMarker records that key was seeded at version
func (s *SQLStore) SetSeedMarker(ctx context.Context, key, version string, now time.Time) error {
	query := `
		INSERT INTO seed_markers (key, version, seeded_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET version = excluded.version, seeded_at = excluded.seeded_at
	`
	if _, err := s.conn().ExecContext(ctx, query, key, version, now); err != nil {
		return apperrors.Dependency("failed to write seed marker", err)
	}
	return nil
}

func (s *SQLStore) queryPermissions(ctx context.Context, op, query string, args ...interface{}) ([]Permission, error) {
	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Dependency(op, err)
	}
	defer rows.Close()

	perms := []Permission{}
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, apperrors.Dependency("failed to scan permission", err)
		}
		perms = append(perms, *perm)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Dependency(op, err)
	}
	return perms, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPermission(row scanner) (*Permission, error) {
	var perm Permission
	err := row.Scan(&perm.ID, &perm.Name, &perm.Domain, &perm.Action, &perm.Description, &perm.IsActive, &perm.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &perm, nil
}

func scanRole(row scanner) (*Role, error) {
	var (
		role       Role
		roleType   string
		hospitalID sql.NullInt64
		createdBy  sql.NullInt64
	)
	err := row.Scan(
		&role.ID, &role.Name, &role.DisplayName, &role.Description, &roleType,
		&hospitalID, &role.IsActive, &createdBy, &role.CreatedAt, &role.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	role.RoleType = RoleType(roleType)
	role.HospitalID = int64Ptr(hospitalID)
	role.CreatedBy = int64Ptr(createdBy)
	return &role, nil
}

func scanAssignment(row scanner) (*RoleAssignment, error) {
	var (
		a          RoleAssignment
		projectID  sql.NullInt64
		assignedBy sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.RoleID, &projectID, &assignedBy, &a.AssignedAt); err != nil {
		return nil, err
	}
	a.ProjectID = int64Ptr(projectID)
	a.AssignedBy = int64Ptr(assignedBy)
	return &a, nil
}

// inClause renders "$start, $start+1, ..." for ids
func inClause(start int, ids []int64) (string, []interface{}) {
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", start+i)
		args[i] = id
	}
	return strings.Join(placeholders, ", "), args
}

func where(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func requireAffected(result sql.Result, resource string, id interface{}) error {
	n, err := result.RowsAffected()
	if err != nil {
		return apperrors.Dependency("failed to get rows affected", err)
	}
	if n == 0 {
		return apperrors.NotFound(resource, id)
	}
	return nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}
