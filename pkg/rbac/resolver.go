package rbac

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/ehrops/pkg/apperrors"
	"github.com/platinummonkey/ehrops/pkg/observability"
)

// Checker answers permission questions about users
type Checker interface {
	GetEffectivePermissions(ctx context.Context, userID int64, projectID *int64) ([]string, error)
	HasPermission(ctx context.Context, userID int64, permission string, projectID *int64) (bool, error)
}

// Resolver computes effective permissions from current persisted state
type Resolver struct {
	store   Storage
	metrics *observability.Metrics
}

// NewResolver creates a resolver over store. metrics may be nil.
func NewResolver(store Storage, metrics *observability.Metrics) *Resolver {
	return &Resolver{store: store, metrics: metrics}
}

var _ Checker = (*Resolver)(nil)

// GetEffectivePermissions returns the sorted union of permission names granted
// to userID through global assignments and assignments scoped to projectID.
// A user without assignments gets an empty set.
func (r *Resolver) GetEffectivePermissions(ctx context.Context, userID int64, projectID *int64) (perms []string, err error) {
	ctx, span := observability.StartSpan(ctx, "rbac.GetEffectivePermissions", scopeAttrs(userID, projectID)...)
	start := time.Now()
	defer func() {
		r.metrics.ObserveOperation("get_effective_permissions", start, err)
		observability.EndSpan(span, err)
	}()

	roleIDs, err := r.applicableRoleIDs(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	if len(roleIDs) == 0 {
		return []string{}, nil
	}

	names, err := r.store.PermissionNamesForRoles(ctx, roleIDs)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("permission_count", len(names)))
	return dedupeSorted(names), nil
}

// HasPermission reports whether userID holds permission in the given scope.
// It asks storage a targeted question instead of loading the full set.
func (r *Resolver) HasPermission(ctx context.Context, userID int64, permission string, projectID *int64) (granted bool, err error) {
	attrs := append(scopeAttrs(userID, projectID), attribute.String("permission", permission))
	ctx, span := observability.StartSpan(ctx, "rbac.HasPermission", attrs...)
	start := time.Now()
	defer func() {
		r.metrics.ObserveOperation("has_permission", start, err)
		if err == nil {
			r.metrics.RecordPermissionCheck(granted)
		}
		observability.EndSpan(span, err)
	}()

	roleIDs, err := r.applicableRoleIDs(ctx, userID, projectID)
	if err != nil {
		return false, err
	}
	if len(roleIDs) == 0 {
		return false, nil
	}

	return r.store.RolesGrantPermission(ctx, roleIDs, permission)
}

// Require returns an authorization error unless userID holds permission
func (r *Resolver) Require(ctx context.Context, userID int64, permission string, projectID *int64) error {
	ok, err := r.HasPermission(ctx, userID, permission, projectID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.Forbidden(fmt.Sprintf("user %d lacks permission %s", userID, permission))
	}
	return nil
}

// applicableRoleIDs loads the user's assignments for the scope and keeps the
// distinct ids of roles that are still active. Rows scoped to another project
// are discarded even if storage returns them.
func (r *Resolver) applicableRoleIDs(ctx context.Context, userID int64, projectID *int64) ([]int64, error) {
	assignments, err := r.store.ListAssignmentsForUser(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool, len(assignments))
	roleIDs := make([]int64, 0, len(assignments))
	for i := range assignments {
		a := &assignments[i]
		if !a.AppliesTo(projectID) || seen[a.RoleID] {
			continue
		}
		seen[a.RoleID] = true
		roleIDs = append(roleIDs, a.RoleID)
	}
	if len(roleIDs) == 0 {
		return roleIDs, nil
	}

	return r.store.ActiveRoleIDs(ctx, roleIDs)
}

func scopeAttrs(userID int64, projectID *int64) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.Int64("user_id", userID)}
	if projectID != nil {
		attrs = append(attrs, attribute.Int64("project_id", *projectID))
	}
	return attrs
}

func dedupeSorted(names []string) []string {
	set := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := set[n]; ok {
			continue
		}
		set[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
