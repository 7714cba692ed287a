package rbac

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/ehrops/pkg/apperrors"
	"github.com/platinummonkey/ehrops/pkg/audit"
	"github.com/platinummonkey/ehrops/pkg/observability"
	"github.com/platinummonkey/ehrops/pkg/validation"
)

// Service exposes operator operations on roles, permission links and assignments.
// Every mutation requires the acting user to hold rbac:manage.
type Service struct {
	store    Storage
	resolver *Resolver
	audit    audit.Logger
	logger   *observability.Logger
	now      func() time.Time
}

// NewService creates a new RBAC service. auditLog and logger may be nil.
func NewService(store Storage, resolver *Resolver, auditLog audit.Logger, logger *observability.Logger) *Service {
	if auditLog == nil {
		auditLog = audit.NoopLogger{}
	}
	return &Service{
		store:    store,
		resolver: resolver,
		audit:    auditLog,
		logger:   observability.OrNop(logger),
		now:      time.Now,
	}
}

// WithClock overrides the time source
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// ListRoles lists roles matching filter
func (s *Service) ListRoles(ctx context.Context, filter RoleFilter) ([]Role, error) {
	if filter.RoleType != nil && !filter.RoleType.Valid() {
		return nil, apperrors.Validationf("invalid role type %q", *filter.RoleType)
	}
	return s.store.ListRoles(ctx, filter)
}

// GetRole returns a role by id
func (s *Service) GetRole(ctx context.Context, id int64) (*Role, error) {
	return s.store.GetRole(ctx, id)
}

// ListPermissions lists permissions matching filter
func (s *Service) ListPermissions(ctx context.Context, filter PermissionFilter) ([]Permission, error) {
	return s.store.ListPermissions(ctx, filter)
}

// ListRolePermissions returns the permissions currently linked to a role
func (s *Service) ListRolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	if _, err := s.store.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.store.ListRolePermissions(ctx, roleID)
}

// CreateRole creates a custom role. Any requested role type is ignored.
func (s *Service) CreateRole(ctx context.Context, actorID int64, req CreateRoleRequest) (*Role, error) {
	if err := s.authorize(ctx, actorID); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if err := s.ensureNameFree(ctx, req.Name); err != nil {
		return nil, err
	}

	now := s.clock()
	role := &Role{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Description: req.Description,
		RoleType:    RoleTypeCustom,
		HospitalID:  req.HospitalID,
		IsActive:    true,
		CreatedBy:   &actorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateRole(ctx, role); err != nil {
		return nil, err
	}

	s.record(ctx, actorID, audit.EventTypeRoleCreate, audit.ResourceTypeRole, role.ID,
		fmt.Sprintf("role %s created", role.Name), nil)
	return role, nil
}

// UpdateRole applies a partial update. Base roles keep their name because
// seeding matches them by name.
func (s *Service) UpdateRole(ctx context.Context, actorID, id int64, req UpdateRoleRequest) (*Role, error) {
	if err := s.authorize(ctx, actorID); err != nil {
		return nil, err
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	role, err := s.store.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}

	changed := map[string]interface{}{}
	if req.Name != nil && *req.Name != role.Name {
		if role.IsBase() {
			return nil, apperrors.Conflict("cannot rename base role")
		}
		if err := s.ensureNameFree(ctx, *req.Name); err != nil {
			return nil, err
		}
		role.Name = *req.Name
		changed["name"] = role.Name
	}
	if req.DisplayName != nil {
		role.DisplayName = strings.TrimSpace(*req.DisplayName)
		changed["display_name"] = role.DisplayName
	}
	if req.Description != nil {
		role.Description = *req.Description
		changed["description"] = role.Description
	}
	if req.HospitalID != nil {
		role.HospitalID = req.HospitalID
		changed["hospital_id"] = *role.HospitalID
	}
	if req.IsActive != nil {
		role.IsActive = *req.IsActive
		changed["is_active"] = role.IsActive
	}
	role.UpdatedAt = s.clock()

	if err := s.store.UpdateRole(ctx, role); err != nil {
		return nil, err
	}

	s.record(ctx, actorID, audit.EventTypeRoleUpdate, audit.ResourceTypeRole, role.ID,
		fmt.Sprintf("role %s updated", role.Name), changed)
	return role, nil
}

// DeleteRole removes a custom role together with its links and assignments
func (s *Service) DeleteRole(ctx context.Context, actorID, id int64) error {
	if err := s.authorize(ctx, actorID); err != nil {
		return err
	}

	role, err := s.store.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if role.IsBase() {
		return apperrors.Conflict("cannot delete base role")
	}

	if err := s.store.DeleteRole(ctx, id); err != nil {
		return err
	}

	s.record(ctx, actorID, audit.EventTypeRoleDelete, audit.ResourceTypeRole, id,
		fmt.Sprintf("role %s deleted", role.Name), nil)
	return nil
}

// SetRolePermissions replaces the complete permission set of a role. Every id is
// checked before anything is written.
func (s *Service) SetRolePermissions(ctx context.Context, actorID, roleID int64, permissionIDs []int64) ([]RolePermission, error) {
	if err := s.authorize(ctx, actorID); err != nil {
		return nil, err
	}

	if _, err := s.store.GetRole(ctx, roleID); err != nil {
		return nil, err
	}

	ids := dedupeIDs(permissionIDs)
	found, err := s.store.GetPermissionsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(found) != len(ids) {
		return nil, apperrors.Validationf("unknown permission ids: %v", missingIDs(ids, found))
	}

	links, err := s.store.ReplaceRolePermissions(ctx, roleID, ids, s.clock())
	if err != nil {
		return nil, err
	}

	s.record(ctx, actorID, audit.EventTypePermissionsSet, audit.ResourceTypeRole, roleID,
		"role permissions replaced", map[string]interface{}{"permission_ids": ids})
	return links, nil
}

// AssignRoleToUser grants a role globally (projectID nil) or for one project.
// Repeating an existing grant returns the stored assignment.
func (s *Service) AssignRoleToUser(ctx context.Context, actorID, userID, roleID int64, projectID *int64) (*RoleAssignment, error) {
	if err := s.authorize(ctx, actorID); err != nil {
		return nil, err
	}
	return s.assign(ctx, &actorID, userID, roleID, projectID)
}

// BootstrapAdmin grants the admin base role globally without an authorization
// check. It exists for first-run setup from the operator CLI.
func (s *Service) BootstrapAdmin(ctx context.Context, userID int64) (*RoleAssignment, error) {
	role, err := s.store.GetRoleByName(ctx, RoleAdmin)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.Conflict("admin role is not seeded yet")
		}
		return nil, err
	}
	return s.assign(ctx, nil, userID, role.ID, nil)
}

// RemoveRoleFromUser deletes the exact (user, role, project) assignment
func (s *Service) RemoveRoleFromUser(ctx context.Context, actorID, userID, roleID int64, projectID *int64) error {
	if err := s.authorize(ctx, actorID); err != nil {
		return err
	}

	existing, err := s.store.FindAssignment(ctx, userID, roleID, projectID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteAssignment(ctx, existing.ID); err != nil {
		return err
	}

	s.record(ctx, actorID, audit.EventTypeRoleUnassign, audit.ResourceTypeAssignment, existing.ID,
		fmt.Sprintf("role %d removed from user %d", roleID, userID), scopeMetadata(userID, projectID))
	return nil
}

func (s *Service) assign(ctx context.Context, actorID *int64, userID, roleID int64, projectID *int64) (*RoleAssignment, error) {
	if userID <= 0 {
		return nil, apperrors.Validation("user_id must be positive")
	}
	if projectID != nil && *projectID <= 0 {
		return nil, apperrors.Validation("project_id must be positive")
	}
	if _, err := s.store.GetRole(ctx, roleID); err != nil {
		return nil, err
	}

	existing, err := s.store.FindAssignment(ctx, userID, roleID, projectID)
	if err == nil {
		return existing, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, err
	}

	assignment := &RoleAssignment{
		UserID:     userID,
		RoleID:     roleID,
		ProjectID:  projectID,
		AssignedBy: actorID,
		AssignedAt: s.clock(),
	}
	if err := s.store.CreateAssignment(ctx, assignment); err != nil {
		return nil, err
	}

	var actor int64
	if actorID != nil {
		actor = *actorID
	}
	s.record(ctx, actor, audit.EventTypeRoleAssign, audit.ResourceTypeAssignment, assignment.ID,
		fmt.Sprintf("role %d assigned to user %d", roleID, userID), scopeMetadata(userID, projectID))
	return assignment, nil
}

func (s *Service) authorize(ctx context.Context, actorID int64) error {
	if s.resolver == nil {
		return apperrors.Forbidden("no permission checker configured")
	}
	return s.resolver.Require(ctx, actorID, PermissionManageRBAC, nil)
}

func (s *Service) ensureNameFree(ctx context.Context, name string) error {
	_, err := s.store.GetRoleByName(ctx, name)
	if err == nil {
		return apperrors.Conflict(fmt.Sprintf("role %s already exists", name))
	}
	if apperrors.IsNotFound(err) {
		return nil
	}
	return err
}

func (s *Service) record(ctx context.Context, actorID int64, eventType audit.EventType, resource audit.ResourceType, id int64, message string, metadata map[string]interface{}) {
	event := &audit.Event{
		EventType:    eventType,
		ResourceType: resource,
		ResourceID:   strconv.FormatInt(id, 10),
		Message:      message,
		Metadata:     metadata,
	}
	if actorID > 0 {
		event.ActorID = &actorID
	}
	audit.Record(ctx, s.audit, s.logger, event)
}

func scopeMetadata(userID int64, projectID *int64) map[string]interface{} {
	meta := map[string]interface{}{"user_id": userID}
	if projectID != nil {
		meta["project_id"] = *projectID
	}
	return meta
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func missingIDs(want []int64, found []Permission) []int64 {
	have := make(map[int64]bool, len(found))
	for _, p := range found {
		have[p.ID] = true
	}
	var missing []int64
	for _, id := range want {
		if !have[id] {
			missing = append(missing, id)
		}
	}
	return missing
}
