package rbac

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/arena/pkg/audit"
	"github.com/platinummonkey/arena/pkg/auth"
	"github.com/platinummonkey/arena/pkg/contextkeys"
	"github.com/platinummonkey/arena/pkg/storage/testdb"
)

type handlerFixture struct {
	store    *Store
	resolver *Resolver
	router   *mux.Router
	sink     *captureAudit
	adminID  int64
	userID   int64
}

// newHandlerFixture wires the RBAC routes behind a fake authentication step
// that resolves the user named in the X-Test-User header.
func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	store, db := newSeededStore(t)
	f := &handlerFixture{
		store:    store,
		resolver: NewResolver(store, ResolverConfig{CacheTTL: time.Minute}, nil),
		sink:     &captureAudit{},
		adminID:  testdb.InsertUser(t, db, "root", "root@example.com"),
		userID:   testdb.InsertUser(t, db, "jane", "jane@x.com"),
	}
	assignRole(t, store, f.adminID, RolePlatformAdmin)

	f.router = mux.NewRouter()
	f.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := audit.WithLogger(r.Context(), f.sink)
			if raw := r.Header.Get("X-Test-User"); raw != "" {
				var id int64
				fmt.Sscan(raw, &id)
				p, err := f.resolver.Resolve(ctx, id)
				require.NoError(t, err)
				ctx = contextkeys.WithAuth(ctx, &auth.AuthContext{Principal: p})
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	NewHandlers(store, f.resolver).RegisterRoutes(f.router, NewPermissionMiddleware(nil))
	return f
}

func (f *handlerFixture) do(t *testing.T, as int64, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if as > 0 {
		req.Header.Set("X-Test-User", fmt.Sprint(as))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHandlers_ListPermissions(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, f.adminID, http.MethodGet, "/rbac/permissions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var perms []Permission
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&perms))
	assert.Len(t, perms, len(Catalog()))

	rec = f.do(t, f.userID, http.MethodGet, "/rbac/permissions", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, 0, http.MethodGet, "/rbac/permissions", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlers_RoleLifecycle(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, f.adminID, http.MethodPost, "/rbac/roles", map[string]any{
		"name":        "Referee",
		"description": "Runs matches",
		"permissions": []string{PermEventsView, PermCourtsManage},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var role Role
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&role))
	assert.Equal(t, []string{PermCourtsManage, PermEventsView}, role.Permissions)

	rec = f.do(t, f.adminID, http.MethodPost, "/rbac/roles", map[string]any{"name": "Referee"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, f.adminID, http.MethodPost, "/rbac/roles", map[string]any{"name": "Bad", "permissions": []string{"nodots"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rolePath := fmt.Sprintf("/rbac/roles/%d", role.ID)
	rec = f.do(t, f.adminID, http.MethodPut, rolePath, map[string]any{"name": "Umpire"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, f.adminID, http.MethodGet, rolePath, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&role))
	assert.Equal(t, "Umpire", role.Name)

	rec = f.do(t, f.adminID, http.MethodDelete, rolePath+"/permissions/"+PermCourtsManage, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, f.adminID, http.MethodDelete, rolePath+"/permissions/"+PermCourtsManage, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, f.adminID, http.MethodDelete, rolePath, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, f.adminID, http.MethodGet, rolePath, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, []audit.EventType{
		audit.EventTypeRoleCreate,
		audit.EventTypeRoleUpdate,
		audit.EventTypeAuthzPermissionRevoke,
		audit.EventTypeRoleDelete,
	}, f.sink.types())
}

func TestHandlers_SystemRoleGrantsAreForbidden(t *testing.T) {
	f := newHandlerFixture(t)
	viewer, err := f.store.GetRoleByName(context.Background(), RoleViewer)
	require.NoError(t, err)

	rec := f.do(t, f.adminID, http.MethodPost, fmt.Sprintf("/rbac/roles/%d/permissions", viewer.ID), map[string]any{"permission": PermEventsManage})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, f.adminID, http.MethodDelete, fmt.Sprintf("/rbac/roles/%d", viewer.ID), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlers_AssignRoleInvalidatesPrincipal(t *testing.T) {
	f := newHandlerFixture(t)
	organizer, err := f.store.GetRoleByName(context.Background(), RoleOrganizer)
	require.NoError(t, err)

	// Warm the cache with Jane's empty principal.
	rec := f.do(t, f.userID, http.MethodPost, "/rbac/check", map[string]any{"requirement": PermEventsManage})
	require.Equal(t, http.StatusOK, rec.Code)
	var check checkResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&check))
	assert.False(t, check.Allowed)

	userRoles := fmt.Sprintf("/rbac/users/%d/roles", f.userID)
	rec = f.do(t, f.adminID, http.MethodPost, userRoles, map[string]any{"role_id": organizer.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = f.do(t, f.adminID, http.MethodPost, userRoles, map[string]any{"role_id": organizer.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, f.userID, http.MethodPost, "/rbac/check", map[string]any{"requirement": PermEventsManage})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&check))
	assert.True(t, check.Allowed)
	assert.True(t, check.PermissionPolicy)
	assert.Equal(t, "allow", check.Decision)

	rec = f.do(t, f.adminID, http.MethodGet, fmt.Sprintf("/rbac/users/%d/permissions", f.userID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view auth.PrincipalView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Equal(t, []string{RoleOrganizer}, view.Roles)
	assert.Contains(t, view.Permissions, PermEventsManage)

	rec = f.do(t, f.adminID, http.MethodDelete, fmt.Sprintf("%s/%d", userRoles, organizer.ID), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, f.userID, http.MethodPost, "/rbac/check", map[string]any{"requirement": PermEventsManage})
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&check))
	assert.False(t, check.Allowed)
}

func TestHandlers_CheckValidation(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, f.userID, http.MethodPost, "/rbac/check", map[string]any{"requirement": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, f.userID, http.MethodPost, "/rbac/check", map[string]any{"unknown": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, 0, http.MethodPost, "/rbac/check", map[string]any{"requirement": "events.view"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlers_CheckDescribesCatalogPermission(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, f.userID, http.MethodPost, "/rbac/check", map[string]any{"requirement": PermEventsManage})
	require.Equal(t, http.StatusOK, rec.Code)
	var known checkResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&known))
	require.NotNil(t, known.Permission)
	assert.Equal(t, PermEventsManage, known.Permission.Code)
	assert.Equal(t, "events", known.Permission.Module)
	assert.Equal(t, "Manage events", known.Permission.Name)

	for _, requirement := range []string{"tournaments.brackets.seed", "authenticated"} {
		rec = f.do(t, f.userID, http.MethodPost, "/rbac/check", map[string]any{"requirement": requirement})
		require.Equal(t, http.StatusOK, rec.Code)
		var other checkResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&other))
		assert.Nil(t, other.Permission, requirement)
	}
}
