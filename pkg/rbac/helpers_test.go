package rbac

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/ehrops/pkg/audit"
	"github.com/platinummonkey/ehrops/pkg/testutil"
)

const testAdminID int64 = 1

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	db       *sql.DB
	store    *SQLStore
	resolver *Resolver
	service  *Service
	seeder   *Seeder
}

// newTestEnv seeds the base catalog into a fresh database and grants admin to testAdminID
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewSQLiteDB(t)
	store := NewStore(db)
	resolver := NewResolver(store, nil)

	auditLog, err := audit.NewDBLogger(db)
	require.NoError(t, err)

	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	env := &testEnv{
		db:       db,
		store:    store,
		resolver: resolver,
		service:  NewService(store, resolver, auditLog, nil).WithClock(func() time.Time { return fixedNow }),
		seeder:   NewSeeder(store, catalog, nil, auditLog, nil, nil),
	}

	_, err = env.seeder.SeedBaseRolesAndPermissions(context.Background())
	require.NoError(t, err)
	_, err = env.service.BootstrapAdmin(context.Background(), testAdminID)
	require.NoError(t, err)

	return env
}

func (e *testEnv) permissionID(t *testing.T, name string) int64 {
	t.Helper()
	perm, err := e.store.GetPermissionByName(context.Background(), name)
	require.NoError(t, err)
	return perm.ID
}

func (e *testEnv) role(t *testing.T, name string) *Role {
	t.Helper()
	role, err := e.store.GetRoleByName(context.Background(), name)
	require.NoError(t, err)
	return role
}

func (e *testEnv) customRole(t *testing.T, name string, permissions ...string) *Role {
	t.Helper()
	ctx := context.Background()

	role, err := e.service.CreateRole(ctx, testAdminID, CreateRoleRequest{Name: name, DisplayName: name})
	require.NoError(t, err)

	ids := make([]int64, 0, len(permissions))
	for _, p := range permissions {
		ids = append(ids, e.permissionID(t, p))
	}
	_, err = e.service.SetRolePermissions(ctx, testAdminID, role.ID, ids)
	require.NoError(t, err)
	return role
}

func (e *testEnv) countRows(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}

func int64p(v int64) *int64 { return &v }
