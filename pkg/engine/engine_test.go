package engine

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/ehrops/pkg/access"
	"github.com/platinummonkey/ehrops/pkg/apperrors"
	"github.com/platinummonkey/ehrops/pkg/config"
	"github.com/platinummonkey/ehrops/pkg/directory"
	"github.com/platinummonkey/ehrops/pkg/invitations"
	"github.com/platinummonkey/ehrops/pkg/observability"
	"github.com/platinummonkey/ehrops/pkg/rbac"
	"github.com/platinummonkey/ehrops/pkg/testutil"
)

var now = time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, cfg *config.Config) (*Engine, *sql.DB) {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	e, err := New(Options{
		DB:      db,
		Config:  cfg,
		Metrics: observability.NewMetrics(prometheus.NewRegistry()),
		Clock:   func() time.Time { return now },
	})
	require.NoError(t, err)
	return e, db
}

func TestNew_RequiresDB(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestNew_InvalidMailRelay(t *testing.T) {
	cfg := &config.Config{Environment: config.EnvDevelopment}
	cfg.Invitations.WebhookURL = "not a url"
	_, err := New(Options{DB: testutil.NewSQLiteDB(t), Config: cfg})
	assert.Error(t, err)
}

func TestEngine_AuthorizationFlow(t *testing.T) {
	e, db := newEngine(t, nil)
	ctx := context.Background()

	result := e.Initialize(ctx)
	require.NotNil(t, result)
	assert.Equal(t, rbac.SeedStatusSeeded, result.Status)
	assert.Equal(t, rbac.SeedStatusUpToDate, e.Initialize(ctx).Status)

	roles, err := e.ListRoles(ctx, rbac.RoleFilter{})
	require.NoError(t, err)
	assert.Len(t, roles, 3)

	adminID := testutil.InsertUser(t, db, "ops@example.com", "admin", "active")
	_, err = e.RBAC.BootstrapAdmin(ctx, adminID)
	require.NoError(t, err)

	staff := testutil.InsertUser(t, db, "nurse@example.com", "consultant", "active")
	staffRole, err := e.Store.GetRoleByName(ctx, rbac.RoleHospitalStaff)
	require.NoError(t, err)
	project := int64(12)
	_, err = e.AssignRoleToUser(ctx, adminID, staff, staffRole.ID, &project)
	require.NoError(t, err)

	ok, err := e.HasPermission(ctx, staff, "reports:view", &project)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.HasPermission(ctx, staff, "reports:view", nil)
	require.NoError(t, err)
	assert.False(t, ok, "project scoped role does not apply globally")

	perms, err := e.GetEffectivePermissions(ctx, adminID, nil)
	require.NoError(t, err)
	assert.Contains(t, perms, rbac.PermissionManageInvitations)

	require.NoError(t, e.RemoveRoleFromUser(ctx, adminID, staff, staffRole.ID, &project))
	perms, err = e.GetEffectivePermissions(ctx, staff, &project)
	require.NoError(t, err)
	assert.Empty(t, perms)

	err = e.DeleteRole(ctx, adminID, staffRole.ID)
	assert.True(t, apperrors.IsConflict(err))
}

func TestEngine_InvitationLifecycle(t *testing.T) {
	e, db := newEngine(t, nil)
	ctx := context.Background()
	e.Initialize(ctx)

	adminID := testutil.InsertUser(t, db, "ops@example.com", "admin", "active")
	_, err := e.RBAC.BootstrapAdmin(ctx, adminID)
	require.NoError(t, err)

	inv, err := e.CreateInvitation(ctx, invitations.CreateRequest{
		Email: "new@example.com", Role: invitations.RoleConsultant, InvitedByUserID: adminID, ExpiresInDays: 7,
	})
	require.NoError(t, err)
	assert.Equal(t, invitations.StatusPending, inv.Status)

	_, err = e.CreateInvitation(ctx, invitations.CreateRequest{
		Email: "new@example.com", Role: invitations.RoleConsultant, InvitedByUserID: adminID,
	})
	assert.True(t, apperrors.IsConflict(err))

	outsider := testutil.InsertUser(t, db, "outsider@example.com", "consultant", "active")
	_, err = e.CreateInvitation(ctx, invitations.CreateRequest{
		Email: "other@example.com", Role: invitations.RoleConsultant, InvitedByUserID: outsider,
	})
	assert.True(t, apperrors.IsForbidden(err), "inviting requires invitations:manage")

	newUser := testutil.InsertUser(t, db, "new@example.com", "consultant", "pending")
	_, err = e.AcceptInvitation(ctx, inv.Token, newUser)
	require.NoError(t, err)

	user, err := e.GetUserByEmail(ctx, "NEW@example.com")
	require.NoError(t, err)
	assert.Equal(t, directory.AccessStatusActive, user.AccessStatus)

	_, err = e.RevokeInvitation(ctx, inv.ID, adminID, "left the engagement")
	require.NoError(t, err)
	user, err = e.GetUserByEmail(ctx, "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, directory.AccessStatusRevoked, user.AccessStatus)

	view, err := e.Access.DeriveUserView(ctx, newUser)
	require.NoError(t, err)
	assert.Equal(t, access.LevelGuest, view.Level)

	_, err = e.ResendInvitation(ctx, inv.ID, adminID)
	assert.True(t, apperrors.IsConflict(err))

	n, err := e.ExpireOldInvitations(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	var audited int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM audit_events WHERE resource_type = $1`, "invitation").Scan(&audited))
	assert.Equal(t, 3, audited)
}

func TestEngine_RestrictionsAndSimulation(t *testing.T) {
	e, db := newEngine(t, nil)
	ctx := context.Background()
	e.Initialize(ctx)

	adminID := testutil.InsertUser(t, db, "ops@example.com", "admin", "active")
	_, err := e.RBAC.BootstrapAdmin(ctx, adminID)
	require.NoError(t, err)

	_, err = e.Access.CreateRule(ctx, adminID, access.CreateRuleRequest{
		ResourceType: access.ResourceTypePage, ResourceKey: "/billing", AllowedRoles: []string{"admin"},
	})
	require.NoError(t, err)

	rules, err := e.GetAllAccessRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	guest, err := e.RestrictionsForUser(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"/billing"}, guest.Restrictions.RestrictedPages)

	result, err := e.Simulate(ctx, rbac.RoleConsultant)
	require.NoError(t, err)
	assert.Equal(t, []string{"/billing"}, result.Restrictions.RestrictedPages)
	assert.NotEmpty(t, result.Permissions)
}

func TestEngine_SimulationFollowsMutations(t *testing.T) {
	e, db := newEngine(t, nil)
	ctx := context.Background()
	e.Initialize(ctx)

	adminID := testutil.InsertUser(t, db, "ops@example.com", "admin", "active")
	_, err := e.RBAC.BootstrapAdmin(ctx, adminID)
	require.NoError(t, err)

	before, err := e.Simulate(ctx, rbac.RoleConsultant)
	require.NoError(t, err)
	assert.Greater(t, len(before.Permissions), 1)
	assert.Empty(t, before.Restrictions.RestrictedPages)

	consultant, err := e.Store.GetRoleByName(ctx, rbac.RoleConsultant)
	require.NoError(t, err)
	reports, err := e.Store.GetPermissionByName(ctx, "reports:view")
	require.NoError(t, err)
	_, err = e.SetRolePermissions(ctx, adminID, consultant.ID, []int64{reports.ID})
	require.NoError(t, err)

	after, err := e.Simulate(ctx, rbac.RoleConsultant)
	require.NoError(t, err)
	assert.Equal(t, []string{"reports:view"}, after.Permissions)

	rule, err := e.CreateAccessRule(ctx, adminID, access.CreateRuleRequest{
		ResourceType: access.ResourceTypePage, ResourceKey: "/payroll", AllowedRoles: []string{"admin"},
	})
	require.NoError(t, err)
	after, err = e.Simulate(ctx, rbac.RoleConsultant)
	require.NoError(t, err)
	assert.Equal(t, []string{"/payroll"}, after.Restrictions.RestrictedPages)

	require.NoError(t, e.DeleteAccessRule(ctx, adminID, rule.ID))
	after, err = e.Simulate(ctx, rbac.RoleConsultant)
	require.NoError(t, err)
	assert.Empty(t, after.Restrictions.RestrictedPages)
}

func TestEngine_SimulationRefusedInProduction(t *testing.T) {
	e, _ := newEngine(t, &config.Config{Environment: config.EnvProduction})
	_, err := e.Simulate(context.Background(), rbac.RoleConsultant)
	assert.True(t, apperrors.IsForbidden(err))
}

func TestEngine_SeedUsesRedisLock(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cfg := &config.Config{Environment: config.EnvDevelopment}
	cfg.Redis.SeedLockTTL = time.Minute
	e, err := New(Options{DB: testutil.NewSQLiteDB(t), Redis: client, Config: cfg})
	require.NoError(t, err)

	result := e.Initialize(context.Background())
	assert.Equal(t, rbac.SeedStatusSeeded, result.Status)
	assert.Empty(t, mr.Keys(), "lock is released after seeding")
}

func TestEngine_InitializeSurvivesStorageFailure(t *testing.T) {
	e, db := newEngine(t, nil)
	require.NoError(t, db.Close())

	result := e.Initialize(context.Background())
	require.NotNil(t, result)
	assert.Equal(t, rbac.SeedStatusFailed, result.Status)
}

func TestEngine_AsyncNotifications(t *testing.T) {
	cfg := &config.Config{Environment: config.EnvDevelopment}
	cfg.Invitations.AsyncNotify = true
	e, db := newEngine(t, cfg)
	ctx := context.Background()
	e.Initialize(ctx)

	adminID := testutil.InsertUser(t, db, "ops@example.com", "admin", "active")
	_, err := e.RBAC.BootstrapAdmin(ctx, adminID)
	require.NoError(t, err)

	_, err = e.CreateInvitation(ctx, invitations.CreateRequest{
		Email: "async@example.com", Role: invitations.RoleHospitalStaff, InvitedByUserID: adminID,
	})
	require.NoError(t, err)
	assert.NoError(t, e.Close(5*time.Second))
}
