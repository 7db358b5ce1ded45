package rbac

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/arena/pkg/apperrors"
	"github.com/platinummonkey/arena/pkg/observability"
	"github.com/platinummonkey/arena/pkg/storage/testdb"
)

func newSeededStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	db := testdb.New(t)
	store := NewStore(db)
	_, err := Seed(context.Background(), store, DefaultSeed(), observability.NewNopLogger())
	require.NoError(t, err)
	return store, db
}

func assignRole(t *testing.T, store *Store, userID int64, roleName string) {
	t.Helper()
	ctx := context.Background()
	role, err := store.GetRoleByName(ctx, roleName)
	require.NoError(t, err)
	require.NoError(t, store.AssignRoleToUser(ctx, &UserRole{UserID: userID, RoleID: role.ID}))
}

func TestStore_UserPermissionsAreDistinctUnion(t *testing.T) {
	ctx := context.Background()
	store, db := newSeededStore(t)
	userID := testdb.InsertUser(t, db, "multi", "multi@example.com")

	assignRole(t, store, userID, RoleOrganizer)
	assignRole(t, store, userID, RoleEventAdmin)

	roles, err := store.GetUserRoleNames(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, []string{RoleEventAdmin, RoleOrganizer}, roles)

	perms, err := store.GetUserPermissionCodes(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, []string{
		PermEstablishmentsView,
		PermEventsCreate,
		PermEventsEdit,
		PermEventsManage,
		PermEventsView,
	}, perms)
}

func TestStore_UserWithoutRoles(t *testing.T) {
	ctx := context.Background()
	store, db := newSeededStore(t)
	userID := testdb.InsertUser(t, db, "lonely", "lonely@example.com")

	roles, err := store.GetUserRoleNames(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, roles)
	assert.NotNil(t, roles)

	perms, err := store.GetUserPermissionCodes(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, perms)
}

func TestStore_CreateRole(t *testing.T) {
	ctx := context.Background()
	store, _ := newSeededStore(t)

	role := &Role{Name: "  Referee ", Description: "Runs matches"}
	require.NoError(t, store.CreateRole(ctx, role))
	assert.NotZero(t, role.ID)
	assert.Equal(t, "Referee", role.Name)

	err := store.CreateRole(ctx, &Role{Name: "Referee"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))

	err = store.CreateRole(ctx, &Role{Name: "   "})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	got, err := store.GetRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, "Runs matches", got.Description)
	assert.False(t, got.IsSystemRole)
	assert.Empty(t, got.Permissions)
}

func TestStore_GrantAndRevokePermission(t *testing.T) {
	ctx := context.Background()
	store, _ := newSeededStore(t)

	role := &Role{Name: "Referee"}
	require.NoError(t, store.CreateRole(ctx, role))

	require.NoError(t, store.GrantPermission(ctx, role.ID, PermEventsView))

	err := store.GrantPermission(ctx, role.ID, PermEventsView)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict), "duplicate edge is rejected")

	err = store.GrantPermission(ctx, role.ID, "weather.control")
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	err = store.GrantPermission(ctx, 9999, PermEventsView)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	perms, err := store.GetRolePermissions(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{PermEventsView}, perms)

	require.NoError(t, store.RevokePermission(ctx, role.ID, PermEventsView))
	err = store.RevokePermission(ctx, role.ID, PermEventsView)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestStore_SystemRolesAreImmutable(t *testing.T) {
	ctx := context.Background()
	store, _ := newSeededStore(t)

	admin, err := store.GetRoleByName(ctx, RolePlatformAdmin)
	require.NoError(t, err)
	assert.True(t, admin.IsSystemRole)

	err = store.UpdateRole(ctx, &Role{ID: admin.ID, Name: "Root"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))

	err = store.DeleteRole(ctx, admin.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))
}

func TestStore_UpdateRole(t *testing.T) {
	ctx := context.Background()
	store, _ := newSeededStore(t)

	role := &Role{Name: "Referee"}
	require.NoError(t, store.CreateRole(ctx, role))

	update := &Role{ID: role.ID, Name: "Umpire", Description: "renamed"}
	require.NoError(t, store.UpdateRole(ctx, update))

	got, err := store.GetRoleByName(ctx, "Umpire")
	require.NoError(t, err)
	assert.Equal(t, role.ID, got.ID)
	assert.Equal(t, "renamed", got.Description)

	err = store.UpdateRole(ctx, &Role{ID: role.ID, Name: RoleViewer})
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))

	err = store.UpdateRole(ctx, &Role{ID: 4242, Name: "Ghost"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestStore_DeleteRoleRemovesEdges(t *testing.T) {
	ctx := context.Background()
	store, db := newSeededStore(t)
	userID := testdb.InsertUser(t, db, "ref", "ref@example.com")

	role := &Role{Name: "Referee"}
	require.NoError(t, store.CreateRole(ctx, role))
	require.NoError(t, store.GrantPermission(ctx, role.ID, PermCourtsManage))
	require.NoError(t, store.AssignRoleToUser(ctx, &UserRole{UserID: userID, RoleID: role.ID}))

	holders, err := store.GetRoleUserIDs(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{userID}, holders)

	require.NoError(t, store.DeleteRole(ctx, role.ID))

	perms, err := store.GetUserPermissionCodes(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, perms)

	_, err = store.GetRole(ctx, role.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestStore_AssignRoleToUser(t *testing.T) {
	ctx := context.Background()
	store, db := newSeededStore(t)
	grantor := testdb.InsertUser(t, db, "boss", "boss@example.com")
	userID := testdb.InsertUser(t, db, "worker", "worker@example.com")

	viewer, err := store.GetRoleByName(ctx, RoleViewer)
	require.NoError(t, err)

	ur := &UserRole{UserID: userID, RoleID: viewer.ID, GrantedBy: &grantor}
	require.NoError(t, store.AssignRoleToUser(ctx, ur))
	assert.False(t, ur.GrantedAt.IsZero())

	err = store.AssignRoleToUser(ctx, &UserRole{UserID: userID, RoleID: viewer.ID})
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))

	err = store.AssignRoleToUser(ctx, &UserRole{UserID: 777, RoleID: viewer.ID})
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	err = store.AssignRoleToUser(ctx, &UserRole{UserID: userID, RoleID: 777})
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	require.NoError(t, store.RevokeRoleFromUser(ctx, userID, viewer.ID))
	err = store.RevokeRoleFromUser(ctx, userID, viewer.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestStore_UpsertPermission(t *testing.T) {
	ctx := context.Background()
	store := NewStore(testdb.New(t))

	p := &Permission{Code: "tournaments.brackets.seed", Name: "Seed brackets", Module: "tournaments"}
	require.NoError(t, store.UpsertPermission(ctx, p))
	firstID := p.ID

	p2 := &Permission{Code: "tournaments.brackets.seed", Name: "Seed tournament brackets", Module: "tournaments"}
	require.NoError(t, store.UpsertPermission(ctx, p2))
	assert.Equal(t, firstID, p2.ID)

	got, err := store.GetPermissionByCode(ctx, "tournaments.brackets.seed")
	require.NoError(t, err)
	assert.Equal(t, "Seed tournament brackets", got.Name)

	err = store.UpsertPermission(ctx, &Permission{Code: "nodots", Name: "x", Module: "x"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestStore_InfraErrorsHaveNoKind(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	mock.ExpectQuery("SELECT DISTINCT p.code").
		WithArgs(int64(5)).
		WillReturnError(errors.New("connection reset"))

	_, err = store.GetUserPermissionCodes(context.Background(), 5)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInternal, apperrors.KindOf(err))
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GrantPermissionRowsAffected(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	now := store.now()
	mock.ExpectQuery("SELECT (.+) FROM roles WHERE id").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "is_system_role", "created_at", "updated_at"}).
			AddRow(3, "Referee", nil, false, now, now))
	mock.ExpectQuery("SELECT p.code").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"code"}))
	mock.ExpectQuery("SELECT id, code, name, description, module").
		WithArgs(PermEventsView).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "name", "description", "module"}).
			AddRow(11, PermEventsView, "View events", nil, "events"))
	mock.ExpectExec("INSERT INTO role_permissions").
		WithArgs(int64(3), int64(11), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = store.GrantPermission(context.Background(), 3, PermEventsView)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}
