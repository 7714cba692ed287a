package simulation

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/ehrops/pkg/access"
	"github.com/platinummonkey/ehrops/pkg/apperrors"
	"github.com/platinummonkey/ehrops/pkg/observability"
	"github.com/platinummonkey/ehrops/pkg/rbac"
	"github.com/platinummonkey/ehrops/pkg/validation"
)

const (
	defaultCacheSize = 64
	defaultCacheTTL  = 30 * time.Second
)

// leadershipRoles are the implementation-leadership role names that preview
// with the hospital_leadership key. Only simulation reads this list.
var leadershipRoles = map[string]bool{
	"hospital_leadership":     true,
	"executive_sponsor":       true,
	"implementation_director": true,
	"cio":                     true,
	"cmio":                    true,
	"cno":                     true,
}

// IsLeadershipRole reports whether name previews as hospital leadership
func IsLeadershipRole(name string) bool {
	return leadershipRoles[name]
}

// RoleSource reads roles and their permissions
type RoleSource interface {
	GetRoleByName(ctx context.Context, name string) (*rbac.Role, error)
	ListRolePermissions(ctx context.Context, roleID int64) ([]rbac.Permission, error)
}

// RestrictionSource evaluates the access-rule catalog for a subject
type RestrictionSource interface {
	RestrictionsForSubject(ctx context.Context, subject access.Subject) (access.Restrictions, error)
}

// Result is what a role would see
type Result struct {
	Role         string              `json:"role"`
	IsLeadership bool                `json:"is_leadership"`
	Permissions  []string            `json:"permissions"`
	Restrictions access.Restrictions `json:"restrictions"`
}

// Options configures a Simulator
type Options struct {
	// Production disables simulation entirely
	Production bool
	CacheSize  int
	CacheTTL   time.Duration
	Logger     *observability.Logger
	Metrics    *observability.Metrics
}

// Simulator previews the permissions and restrictions of a role by name
type Simulator struct {
	roles        RoleSource
	restrictions RestrictionSource
	production   bool
	cache        *expirable.LRU[string, *Result]
	logger       *observability.Logger
	metrics      *observability.Metrics
}

// NewSimulator creates a simulator
func NewSimulator(roles RoleSource, restrictions RestrictionSource, opts Options) *Simulator {
	size := opts.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Simulator{
		roles:        roles,
		restrictions: restrictions,
		production:   opts.Production,
		cache:        expirable.NewLRU[string, *Result](size, nil, ttl),
		logger:       observability.OrNop(opts.Logger),
		metrics:      opts.Metrics,
	}
}

// Enabled reports whether Simulate may be called
func (s *Simulator) Enabled() bool {
	return !s.production
}

// Simulate returns what roleName would be granted and restricted from. Unknown
// and inactive roles simulate with no permissions.
func (s *Simulator) Simulate(ctx context.Context, roleName string) (*Result, error) {
	if s.production {
		s.metrics.RecordSimulation("refused")
		return nil, apperrors.Forbidden("role simulation is disabled in production")
	}

	name := strings.ToLower(strings.TrimSpace(roleName))
	if !validation.IsRoleName(name) {
		return nil, apperrors.Validationf("invalid role name %q", roleName)
	}

	if cached, ok := s.cache.Get(name); ok {
		s.metrics.RecordSimulation("cached")
		return cached.clone(), nil
	}

	perms, err := s.permissions(ctx, name)
	if err != nil {
		s.metrics.RecordSimulation("failed")
		return nil, err
	}

	isLeadership := IsLeadershipRole(name)
	restrictions, err := s.restrictions.RestrictionsForSubject(ctx, access.SubjectForRole(&name, isLeadership, nil))
	if err != nil {
		s.metrics.RecordSimulation("failed")
		return nil, err
	}

	result := &Result{
		Role:         name,
		IsLeadership: isLeadership,
		Permissions:  perms,
		Restrictions: restrictions,
	}
	s.cache.Add(name, result.clone())
	s.metrics.RecordSimulation("computed")

	s.logger.WithFields(map[string]interface{}{
		"role":          name,
		"is_leadership": isLeadership,
		"permissions":   len(perms),
	}).Debug("Simulated role")
	return result, nil
}

// Purge drops every cached result. Call it after roles, role permissions or
// access rules change.
func (s *Simulator) Purge() {
	s.cache.Purge()
}

// clone returns a deep copy so callers never share the cached value
func (r *Result) clone() *Result {
	c := *r
	c.Permissions = slices.Clone(r.Permissions)
	c.Restrictions.RestrictedPages = slices.Clone(r.Restrictions.RestrictedPages)
	c.Restrictions.RestrictedFeatures = slices.Clone(r.Restrictions.RestrictedFeatures)
	c.Restrictions.RestrictedAPIs = slices.Clone(r.Restrictions.RestrictedAPIs)
	c.Restrictions.Messages = maps.Clone(r.Restrictions.Messages)
	return &c
}

func (s *Simulator) permissions(ctx context.Context, name string) ([]string, error) {
	role, err := s.roles.GetRoleByName(ctx, name)
	if apperrors.IsNotFound(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	if !role.IsActive {
		return []string{}, nil
	}

	perms, err := s.roles.ListRolePermissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(perms))
	for _, p := range perms {
		if p.IsActive {
			names = append(names, p.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}
