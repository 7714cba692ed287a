package rbac

import (
	"fmt"
	"strings"
	"time"
)

// RoleType distinguishes seeded roles from operator-defined ones
type RoleType string

const (
	RoleTypeBase   RoleType = "base"
	RoleTypeCustom RoleType = "custom"
)

// Valid reports whether t is a known role type
func (t RoleType) Valid() bool {
	return t == RoleTypeBase || t == RoleTypeCustom
}

// Base role names
const (
	RoleAdmin         = "admin"
	RoleConsultant    = "consultant"
	RoleHospitalStaff = "hospital_staff"
)

// PermissionManageRBAC is required for every role, permission-link and assignment mutation
const PermissionManageRBAC = "rbac:manage"

// PermissionManageInvitations is required to trigger maintenance on invitations
const PermissionManageInvitations = "invitations:manage"

// Permission is a "domain:action" grant
type Permission struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Domain      string    `json:"domain"`
	Action      string    `json:"action"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// PermissionName builds the canonical "domain:action" name
func PermissionName(domain, action string) string {
	return fmt.Sprintf("%s:%s", domain, action)
}

// ParsePermissionName splits "domain:action"
func ParsePermissionName(name string) (domain, action string, err error) {
	parts := strings.SplitN(name, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid permission name %q: expected domain:action", name)
	}
	return parts[0], parts[1], nil
}

// Role is a named set of permissions
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description,omitempty"`
	RoleType    RoleType  `json:"role_type"`
	HospitalID  *int64    `json:"hospital_id,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedBy   *int64    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsBase reports whether the role is seeded and therefore undeletable
func (r *Role) IsBase() bool {
	return r.RoleType == RoleTypeBase
}

// RolePermission links a role to a permission
type RolePermission struct {
	ID           int64     `json:"id"`
	RoleID       int64     `json:"role_id"`
	PermissionID int64     `json:"permission_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// RoleAssignment grants a role to a user, globally when ProjectID is nil
type RoleAssignment struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	RoleID     int64     `json:"role_id"`
	ProjectID  *int64    `json:"project_id,omitempty"`
	AssignedBy *int64    `json:"assigned_by,omitempty"`
	AssignedAt time.Time `json:"assigned_at"`
}

// IsGlobal reports whether the assignment applies to every project
func (a *RoleAssignment) IsGlobal() bool {
	return a.ProjectID == nil
}

// AppliesTo reports whether the assignment contributes to a query for projectID
func (a *RoleAssignment) AppliesTo(projectID *int64) bool {
	if a.ProjectID == nil {
		return true
	}
	return projectID != nil && *a.ProjectID == *projectID
}

// RoleFilter narrows ListRoles. Nil fields do not filter.
type RoleFilter struct {
	RoleType   *RoleType
	HospitalID *int64
	IsActive   *bool
}

// PermissionFilter narrows ListPermissions. Nil fields do not filter.
type PermissionFilter struct {
	Domain   *string
	IsActive *bool
}

// CreateRoleRequest is the operator input for a new custom role
type CreateRoleRequest struct {
	Name        string `json:"name" validate:"required,max=100,rolename"`
	DisplayName string `json:"display_name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=1000"`
	HospitalID  *int64 `json:"hospital_id" validate:"omitempty,gt=0"`
	// RoleType is accepted for compatibility and ignored; created roles are always custom
	RoleType RoleType `json:"role_type,omitempty"`
}

// UpdateRoleRequest is a partial update; nil fields are left unchanged
type UpdateRoleRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=100,rolename"`
	DisplayName *string `json:"display_name" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
	HospitalID  *int64  `json:"hospital_id" validate:"omitempty,gt=0"`
	IsActive    *bool   `json:"is_active"`
}
