package simulation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/ehrops/pkg/access"
	"github.com/platinummonkey/ehrops/pkg/apperrors"
	"github.com/platinummonkey/ehrops/pkg/directory"
	"github.com/platinummonkey/ehrops/pkg/observability"
	"github.com/platinummonkey/ehrops/pkg/rbac"
	"github.com/platinummonkey/ehrops/pkg/testutil"
)

type allowAll struct{}

func (allowAll) Require(ctx context.Context, userID int64, permission string, projectID *int64) error {
	return nil
}

type fixture struct {
	store   *rbac.SQLStore
	access  *access.Service
	metrics *observability.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	store := rbac.NewStore(db)
	catalog, err := rbac.DefaultCatalog()
	require.NoError(t, err)
	_, err = rbac.NewSeeder(store, catalog, nil, nil, nil, nil).SeedBaseRolesAndPermissions(context.Background())
	require.NoError(t, err)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	svc := access.NewService(access.NewRuleStore(db), access.NewDeriver(directory.NewSQLDirectory(db)), allowAll{}, nil, nil)

	ctx := context.Background()
	for _, req := range []access.CreateRuleRequest{
		{ResourceType: access.ResourceTypePage, ResourceKey: "/admin", AllowedRoles: []string{"admin"}},
		{ResourceType: access.ResourceTypeFeature, ResourceKey: "exec_dashboard", AllowedRoles: []string{"hospital_leadership", "admin"}},
		{ResourceType: access.ResourceTypePage, ResourceKey: "/timesheets", AllowedRoles: []string{"consultant", "admin"}},
	} {
		_, err := svc.CreateRule(ctx, 1, req)
		require.NoError(t, err)
	}
	return &fixture{store: store, access: svc, metrics: metrics}
}

func (f *fixture) simulator(production bool) *Simulator {
	return NewSimulator(f.store, f.access, Options{Production: production, Metrics: f.metrics})
}

func TestSimulator_Simulate(t *testing.T) {
	f := newFixture(t)
	sim := f.simulator(false)
	ctx := context.Background()

	t.Run("consultant", func(t *testing.T) {
		result, err := sim.Simulate(ctx, "Consultant")
		require.NoError(t, err)
		assert.Equal(t, "consultant", result.Role)
		assert.False(t, result.IsLeadership)
		assert.Contains(t, result.Permissions, "timesheets:submit")
		assert.NotContains(t, result.Permissions, rbac.PermissionManageRBAC)
		assert.Equal(t, []string{"/admin"}, result.Restrictions.RestrictedPages)
		assert.Equal(t, []string{"exec_dashboard"}, result.Restrictions.RestrictedFeatures)
	})

	t.Run("leadership role name", func(t *testing.T) {
		result, err := sim.Simulate(ctx, "implementation_director")
		require.NoError(t, err)
		assert.True(t, result.IsLeadership)
		assert.Empty(t, result.Permissions, "no such role is stored")
		assert.Empty(t, result.Restrictions.RestrictedFeatures)
		assert.Equal(t, []string{"/admin", "/timesheets"}, result.Restrictions.RestrictedPages)
	})

	t.Run("hospital staff is not leadership", func(t *testing.T) {
		result, err := sim.Simulate(ctx, rbac.RoleHospitalStaff)
		require.NoError(t, err)
		assert.False(t, result.IsLeadership)
		assert.Contains(t, result.Permissions, "reports:view")
		assert.Equal(t, []string{"exec_dashboard"}, result.Restrictions.RestrictedFeatures)
	})

	t.Run("admin", func(t *testing.T) {
		result, err := sim.Simulate(ctx, rbac.RoleAdmin)
		require.NoError(t, err)
		assert.Contains(t, result.Permissions, rbac.PermissionManageRBAC)
		assert.Empty(t, result.Restrictions.RestrictedPages)
	})

	t.Run("invalid name", func(t *testing.T) {
		_, err := sim.Simulate(ctx, "drop table")
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestSimulator_InactiveRoleHasNoPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	role, err := f.store.GetRoleByName(ctx, rbac.RoleConsultant)
	require.NoError(t, err)
	role.IsActive = false
	role.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, f.store.UpdateRole(ctx, role))

	result, err := f.simulator(false).Simulate(ctx, rbac.RoleConsultant)
	require.NoError(t, err)
	assert.Empty(t, result.Permissions)
}

func TestSimulator_RefusedInProduction(t *testing.T) {
	f := newFixture(t)
	sim := f.simulator(true)
	assert.False(t, sim.Enabled())

	_, err := sim.Simulate(context.Background(), rbac.RoleConsultant)
	assert.True(t, apperrors.IsForbidden(err))
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.SimulationsTotal.WithLabelValues("refused")))
}

type countingRoles struct {
	RoleSource
	lookups int
}

func (c *countingRoles) GetRoleByName(ctx context.Context, name string) (*rbac.Role, error) {
	c.lookups++
	return c.RoleSource.GetRoleByName(ctx, name)
}

func TestSimulator_CachesResults(t *testing.T) {
	f := newFixture(t)
	roles := &countingRoles{RoleSource: f.store}
	sim := NewSimulator(roles, f.access, Options{CacheTTL: time.Minute, Metrics: f.metrics})
	ctx := context.Background()

	first, err := sim.Simulate(ctx, rbac.RoleConsultant)
	require.NoError(t, err)
	second, err := sim.Simulate(ctx, " consultant ")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NotSame(t, first, second)
	assert.Equal(t, 1, roles.lookups)
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.SimulationsTotal.WithLabelValues("cached")))

	require.NotEmpty(t, second.Permissions)
	want := append([]string(nil), second.Permissions...)
	second.Permissions[0] = "tampered:edit"
	second.Permissions = append(second.Permissions, "extra:view")
	second.Restrictions.RestrictedPages = append(second.Restrictions.RestrictedPages, "/tampered")
	third, err := sim.Simulate(ctx, rbac.RoleConsultant)
	require.NoError(t, err)
	assert.Equal(t, want, third.Permissions)
	assert.NotContains(t, third.Restrictions.RestrictedPages, "/tampered")
	assert.Equal(t, 1, roles.lookups)

	sim.Purge()
	_, err = sim.Simulate(ctx, rbac.RoleConsultant)
	require.NoError(t, err)
	assert.Equal(t, 2, roles.lookups)
}

type failingRestrictions struct{}

func (failingRestrictions) RestrictionsForSubject(ctx context.Context, subject access.Subject) (access.Restrictions, error) {
	return access.Restrictions{}, apperrors.Dependency("failed to list access rules", errors.New("connection refused"))
}

func TestSimulator_DependencyFailureIsNotCached(t *testing.T) {
	f := newFixture(t)
	sim := NewSimulator(f.store, failingRestrictions{}, Options{Metrics: f.metrics})

	_, err := sim.Simulate(context.Background(), rbac.RoleConsultant)
	assert.True(t, apperrors.IsDependency(err))
	assert.Equal(t, 0, sim.cache.Len())
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.SimulationsTotal.WithLabelValues("failed")))
}
