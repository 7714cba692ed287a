package rbac

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/ehrops/pkg/apperrors"
	"github.com/platinummonkey/ehrops/pkg/testutil"
)

func TestStore_Permissions(t *testing.T) {
	store := NewStore(testutil.NewSQLiteDB(t))
	ctx := context.Background()

	for _, name := range []string{"projects:view", "projects:edit", "invoices:view"} {
		domain, action, err := ParsePermissionName(name)
		require.NoError(t, err)
		require.NoError(t, store.CreatePermission(ctx, &Permission{
			Name: name, Domain: domain, Action: action, IsActive: name != "projects:edit", CreatedAt: fixedNow,
		}))
	}

	perm, err := store.GetPermissionByName(ctx, "projects:view")
	require.NoError(t, err)
	assert.Equal(t, "projects", perm.Domain)
	assert.Equal(t, "view", perm.Action)
	assert.True(t, perm.CreatedAt.Equal(fixedNow))

	_, err = store.GetPermissionByName(ctx, "nope:nope")
	assert.True(t, apperrors.IsNotFound(err))

	domain := "projects"
	perms, err := store.ListPermissions(ctx, PermissionFilter{Domain: &domain})
	require.NoError(t, err)
	assert.Len(t, perms, 2)

	active := true
	perms, err = store.ListPermissions(ctx, PermissionFilter{Domain: &domain, IsActive: &active})
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, "projects:view", perms[0].Name)

	byID, err := store.GetPermissionsByIDs(ctx, []int64{perm.ID, 12345})
	require.NoError(t, err)
	require.Len(t, byID, 1)
	assert.Equal(t, perm.ID, byID[0].ID)

	empty, err := store.GetPermissionsByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_ReplaceRolePermissions(t *testing.T) {
	store := NewStore(testutil.NewSQLiteDB(t))
	ctx := context.Background()

	var ids []int64
	for _, name := range []string{"a:one", "a:two", "a:three"} {
		domain, action, _ := ParsePermissionName(name)
		p := &Permission{Name: name, Domain: domain, Action: action, IsActive: true, CreatedAt: fixedNow}
		require.NoError(t, store.CreatePermission(ctx, p))
		ids = append(ids, p.ID)
	}
	role := &Role{Name: "r", DisplayName: "R", RoleType: RoleTypeCustom, IsActive: true, CreatedAt: fixedNow, UpdatedAt: fixedNow}
	require.NoError(t, store.CreateRole(ctx, role))

	_, err := store.ReplaceRolePermissions(ctx, role.ID, ids[:2], fixedNow)
	require.NoError(t, err)
	links, err := store.ReplaceRolePermissions(ctx, role.ID, ids[1:], fixedNow.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, links, 2)

	perms, err := store.ListRolePermissions(ctx, role.ID)
	require.NoError(t, err)
	names := []string{}
	for _, p := range perms {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"a:three", "a:two"}, names)

	names, err = store.PermissionNamesForRoles(ctx, []int64{role.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"a:three", "a:two"}, names)

	ok, err := store.RolesGrantPermission(ctx, []int64{role.ID}, "a:one")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.RolesGrantPermission(ctx, []int64{role.ID}, "a:two")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_AddRolePermissions(t *testing.T) {
	store := NewStore(testutil.NewSQLiteDB(t))
	ctx := context.Background()

	var ids []int64
	for _, name := range []string{"a:one", "a:two", "a:three"} {
		domain, action, _ := ParsePermissionName(name)
		p := &Permission{Name: name, Domain: domain, Action: action, IsActive: true, CreatedAt: fixedNow}
		require.NoError(t, store.CreatePermission(ctx, p))
		ids = append(ids, p.ID)
	}
	role := &Role{Name: "r", DisplayName: "R", RoleType: RoleTypeBase, IsActive: true, CreatedAt: fixedNow, UpdatedAt: fixedNow}
	require.NoError(t, store.CreateRole(ctx, role))

	n, err := store.AddRolePermissions(ctx, role.ID, ids[:2], fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.AddRolePermissions(ctx, role.ID, ids[1:], fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	names, err := store.PermissionNamesForRoles(ctx, []int64{role.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"a:one", "a:three", "a:two"}, names)
}

func TestStore_RunInTxRollsBack(t *testing.T) {
	store := NewStore(testutil.NewSQLiteDB(t))
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.RunInTx(ctx, func(tx Storage) error {
		role := &Role{Name: "r", DisplayName: "R", RoleType: RoleTypeBase, IsActive: true, CreatedAt: fixedNow, UpdatedAt: fixedNow}
		if err := tx.CreateRole(ctx, role); err != nil {
			return err
		}
		if err := tx.SetSeedMarker(ctx, SeedMarkerKey, "v1", fixedNow); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.GetRoleByName(ctx, "r")
	assert.True(t, apperrors.IsNotFound(err))
	version, err := store.GetSeedMarker(ctx, SeedMarkerKey)
	require.NoError(t, err)
	assert.Empty(t, version)

	require.NoError(t, store.RunInTx(ctx, func(tx Storage) error {
		return tx.SetSeedMarker(ctx, SeedMarkerKey, "v2", fixedNow)
	}))
	version, err = store.GetSeedMarker(ctx, SeedMarkerKey)
	require.NoError(t, err)
	assert.Equal(t, "v2", version)
}

func TestStore_AssignmentsScope(t *testing.T) {
	store := NewStore(testutil.NewSQLiteDB(t))
	ctx := context.Background()

	role := &Role{Name: "r", DisplayName: "R", RoleType: RoleTypeCustom, IsActive: true, CreatedAt: fixedNow, UpdatedAt: fixedNow}
	require.NoError(t, store.CreateRole(ctx, role))

	for _, projectID := range []*int64{nil, int64p(1), int64p(2)} {
		require.NoError(t, store.CreateAssignment(ctx, &RoleAssignment{
			UserID: 9, RoleID: role.ID, ProjectID: projectID, AssignedAt: fixedNow,
		}))
	}

	global, err := store.ListAssignmentsForUser(ctx, 9, nil)
	require.NoError(t, err)
	require.Len(t, global, 1)
	assert.True(t, global[0].IsGlobal())

	scoped, err := store.ListAssignmentsForUser(ctx, 9, int64p(2))
	require.NoError(t, err)
	require.Len(t, scoped, 2)
	for _, a := range scoped {
		assert.True(t, a.AppliesTo(int64p(2)))
	}

	found, err := store.FindAssignment(ctx, 9, role.ID, int64p(1))
	require.NoError(t, err)
	require.NotNil(t, found.ProjectID)
	assert.Equal(t, int64(1), *found.ProjectID)

	_, err = store.FindAssignment(ctx, 9, role.ID, int64p(3))
	assert.True(t, apperrors.IsNotFound(err))

	require.NoError(t, store.DeleteAssignment(ctx, found.ID))
	assert.True(t, apperrors.IsNotFound(store.DeleteAssignment(ctx, found.ID)))
}

func TestStore_ActiveRoleIDs(t *testing.T) {
	store := NewStore(testutil.NewSQLiteDB(t))
	ctx := context.Background()

	active := &Role{Name: "on", DisplayName: "On", RoleType: RoleTypeCustom, IsActive: true, CreatedAt: fixedNow, UpdatedAt: fixedNow}
	inactive := &Role{Name: "off", DisplayName: "Off", RoleType: RoleTypeCustom, IsActive: false, CreatedAt: fixedNow, UpdatedAt: fixedNow}
	require.NoError(t, store.CreateRole(ctx, active))
	require.NoError(t, store.CreateRole(ctx, inactive))

	ids, err := store.ActiveRoleIDs(ctx, []int64{active.ID, inactive.ID, 777})
	require.NoError(t, err)
	assert.Equal(t, []int64{active.ID}, ids)
}

func TestStore_SeedMarker(t *testing.T) {
	store := NewStore(testutil.NewSQLiteDB(t))
	ctx := context.Background()

	version, err := store.GetSeedMarker(ctx, SeedMarkerKey)
	require.NoError(t, err)
	assert.Empty(t, version)

	require.NoError(t, store.SetSeedMarker(ctx, SeedMarkerKey, "1", fixedNow))
	require.NoError(t, store.SetSeedMarker(ctx, SeedMarkerKey, "2", fixedNow))

	version, err = store.GetSeedMarker(ctx, SeedMarkerKey)
	require.NoError(t, err)
	assert.Equal(t, "2", version)
}

func TestStore_UpdateMissingRole(t *testing.T) {
	store := NewStore(testutil.NewSQLiteDB(t))
	err := store.UpdateRole(context.Background(), &Role{ID: 404, Name: "x", UpdatedAt: fixedNow})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestStore_DriverErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("unique violation is a conflict", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("INSERT INTO roles").WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key"})

		err = NewStore(db).CreateRole(ctx, &Role{Name: "dup", RoleType: RoleTypeCustom})
		assert.True(t, apperrors.IsConflict(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("connection failure is a dependency error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT (.+) FROM roles").WillReturnError(errors.New("connection reset by peer"))

		_, err = NewStore(db).ListRoles(ctx, RoleFilter{})
		assert.True(t, apperrors.IsDependency(err))
		assert.ErrorContains(t, err, "connection reset by peer")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed delete rolls back", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM role_permissions").WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec("DELETE FROM role_assignments").WithArgs(int64(5)).WillReturnError(errors.New("lock timeout"))
		mock.ExpectRollback()

		err = NewStore(db).DeleteRole(ctx, 5)
		assert.True(t, apperrors.IsDependency(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
