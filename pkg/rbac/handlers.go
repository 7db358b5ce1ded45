package rbac

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/arena/pkg/apperrors"
	"github.com/platinummonkey/arena/pkg/audit"
	"github.com/platinummonkey/arena/pkg/auth"
	"github.com/platinummonkey/arena/pkg/httputil"
	"github.com/platinummonkey/arena/pkg/middleware"
	"github.com/platinummonkey/arena/pkg/observability"
)

// PrincipalCache resolves principals and drops cached ones when the role
// graph changes. *Resolver implements it.
type PrincipalCache interface {
	Resolve(ctx context.Context, userID int64) (*auth.Principal, error)
	Invalidate(userIDs ...int64)
	InvalidateAll()
}

// Handlers provides HTTP handlers for RBAC operations
type Handlers struct {
	store      *Store
	principals PrincipalCache
}

// NewHandlers creates new RBAC handlers
func NewHandlers(store *Store, principals PrincipalCache) *Handlers {
	return &Handlers{
		store:      store,
		principals: principals,
	}
}

// RegisterRoutes registers all RBAC routes. The router is expected to sit
// behind the authentication middleware.
func (h *Handlers) RegisterRoutes(router *mux.Router, pm *PermissionMiddleware) {
	handle := func(path, method, permission string, fn http.HandlerFunc) {
		router.Handle(path, pm.Require(permission)(fn)).Methods(method)
	}

	handle("/rbac/permissions", http.MethodGet, PermRBACPermissionsView, h.ListPermissions)

	// Role management
	handle("/rbac/roles", http.MethodGet, PermRolesView, h.ListRoles)
	handle("/rbac/roles", http.MethodPost, PermRolesConfigure, h.CreateRole)
	handle("/rbac/roles/{id}", http.MethodGet, PermRolesView, h.GetRole)
	handle("/rbac/roles/{id}", http.MethodPut, PermRolesConfigure, h.UpdateRole)
	handle("/rbac/roles/{id}", http.MethodDelete, PermRolesConfigure, h.DeleteRole)
	handle("/rbac/roles/{id}/permissions", http.MethodPost, PermRolesConfigure, h.GrantRolePermission)
	handle("/rbac/roles/{id}/permissions/{code}", http.MethodDelete, PermRolesConfigure, h.RevokeRolePermission)

	// User role assignments
	handle("/rbac/users/{id}/roles", http.MethodPost, PermUsersManage, h.AssignRoleToUser)
	handle("/rbac/users/{id}/roles/{role_id}", http.MethodDelete, PermUsersManage, h.RevokeRoleFromUser)
	handle("/rbac/users/{id}/permissions", http.MethodGet, PermUsersManage, h.GetUserPermissions)

	router.Handle("/rbac/check", middleware.RequireAuthenticated(http.HandlerFunc(h.CheckPermission))).Methods(http.MethodPost)
}

// ListPermissions returns the persisted permission catalog
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.store.ListPermissions(r.Context())
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, perms)
}

// ListRoles lists all roles
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListRoles(r.Context())
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

type roleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions,omitempty"`
}

// CreateRole creates a custom role and grants it the listed permissions
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req roleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	for _, code := range req.Permissions {
		if !ValidPermissionCode(code) {
			httputil.WriteAppError(w, r, apperrors.Validation("invalid permission code %q", code))
			return
		}
	}

	role := &Role{Name: req.Name, Description: req.Description}
	if err := h.store.CreateRole(ctx, role); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	for _, code := range req.Permissions {
		if err := h.store.GrantPermission(ctx, role.ID, code); err != nil && !apperrors.IsKind(err, apperrors.KindConflict) {
			httputil.WriteAppError(w, r, err)
			return
		}
	}

	created, err := h.store.GetRole(ctx, role.ID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	audit.Record(ctx, audit.NewEvent(ctx, audit.EventTypeRoleCreate, audit.EventStatusSuccess).
		On(audit.ResourceTypeRole, strconv.FormatInt(created.ID, 10)).
		With("name", created.Name).
		With("permissions", created.Permissions))
	httputil.WriteCreated(w, created)
}

// GetRole retrieves a role with its permissions
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	role, err := h.store.GetRole(r.Context(), roleID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// UpdateRole renames or re-describes a custom role
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req roleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if len(req.Permissions) > 0 {
		httputil.WriteBadRequest(w, "use the role permissions endpoints to change grants")
		return
	}

	role := &Role{ID: roleID, Name: req.Name, Description: req.Description}
	if err := h.store.UpdateRole(ctx, role); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	// Role names are part of the principal.
	h.invalidateRole(ctx, roleID)

	audit.Record(ctx, audit.NewEvent(ctx, audit.EventTypeRoleUpdate, audit.EventStatusSuccess).
		On(audit.ResourceTypeRole, strconv.FormatInt(roleID, 10)).
		With("name", role.Name))
	httputil.WriteSuccess(w, role)
}

// DeleteRole deletes a custom role
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	holders, holdersErr := h.store.GetRoleUserIDs(ctx, roleID)
	if err := h.store.DeleteRole(ctx, roleID); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if holdersErr != nil {
		h.principals.InvalidateAll()
	} else {
		h.principals.Invalidate(holders...)
	}

	audit.Record(ctx, audit.NewEvent(ctx, audit.EventTypeRoleDelete, audit.EventStatusSuccess).
		On(audit.ResourceTypeRole, strconv.FormatInt(roleID, 10)))
	httputil.WriteNoContent(w)
}

type grantRequest struct {
	Permission string `json:"permission"`
}

// GrantRolePermission adds a permission to a custom role
func (h *Handlers) GrantRolePermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req grantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !ValidPermissionCode(req.Permission) {
		httputil.WriteAppError(w, r, apperrors.Validation("invalid permission code %q", req.Permission))
		return
	}
	if err := h.requireMutableRole(ctx, roleID); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := h.store.GrantPermission(ctx, roleID, req.Permission); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	h.invalidateRole(ctx, roleID)

	audit.Record(ctx, audit.NewEvent(ctx, audit.EventTypeAuthzPermissionGrant, audit.EventStatusSuccess).
		On(audit.ResourceTypeRole, strconv.FormatInt(roleID, 10)).
		With("permission", req.Permission))
	httputil.WriteNoContent(w)
}

// RevokeRolePermission removes a permission from a custom role
func (h *Handlers) RevokeRolePermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	code := mux.Vars(r)["code"]

	if err := h.requireMutableRole(ctx, roleID); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if err := h.store.RevokePermission(ctx, roleID, code); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	h.invalidateRole(ctx, roleID)

	audit.Record(ctx, audit.NewEvent(ctx, audit.EventTypeAuthzPermissionRevoke, audit.EventStatusSuccess).
		On(audit.ResourceTypeRole, strconv.FormatInt(roleID, 10)).
		With("permission", code))
	httputil.WriteNoContent(w)
}

type assignRequest struct {
	RoleID int64 `json:"role_id"`
}

// AssignRoleToUser assigns a role to a user
func (h *Handlers) AssignRoleToUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req assignRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.RoleID <= 0 {
		httputil.WriteAppError(w, r, apperrors.Validation("role_id is required"))
		return
	}

	ur := &UserRole{UserID: userID, RoleID: req.RoleID}
	if grantor := middleware.PrincipalFrom(ctx); grantor != nil {
		ur.GrantedBy = &grantor.UserID
	}
	if err := h.store.AssignRoleToUser(ctx, ur); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	h.principals.Invalidate(userID)

	audit.Record(ctx, audit.NewEvent(ctx, audit.EventTypeAuthzRoleAssign, audit.EventStatusSuccess).
		On(audit.ResourceTypeUser, strconv.FormatInt(userID, 10)).
		With("role_id", req.RoleID))
	httputil.WriteCreated(w, ur)
}

// RevokeRoleFromUser removes a role assignment
func (h *Handlers) RevokeRoleFromUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "role_id")
	if !ok {
		return
	}

	if err := h.store.RevokeRoleFromUser(ctx, userID, roleID); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	h.principals.Invalidate(userID)

	audit.Record(ctx, audit.NewEvent(ctx, audit.EventTypeAuthzRoleRevoke, audit.EventStatusSuccess).
		On(audit.ResourceTypeUser, strconv.FormatInt(userID, 10)).
		With("role_id", roleID))
	httputil.WriteNoContent(w)
}

// GetUserPermissions explains a user's effective roles and permissions
func (h *Handlers) GetUserPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	principal, err := h.principals.Resolve(r.Context(), userID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, principal.View())
}

type checkRequest struct {
	// Requirement is a permission code or a policy name
	Requirement string `json:"requirement"`
}

type checkResponse struct {
	Requirement      string `json:"requirement"`
	PermissionPolicy bool   `json:"permission_policy"`
	Decision         string `json:"decision"`
	Allowed          bool   `json:"allowed"`
	// Permission describes a built-in permission requirement
	Permission *Permission `json:"permission,omitempty"`
}

// CheckPermission evaluates a requirement against the caller's own principal
func (h *Handlers) CheckPermission(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Requirement == "" {
		httputil.WriteAppError(w, r, apperrors.Validation("requirement is required"))
		return
	}

	decision := EvaluatePolicy(middleware.PrincipalFrom(r.Context()), req.Requirement)
	resp := checkResponse{
		Requirement:      req.Requirement,
		PermissionPolicy: IsPermissionPolicy(req.Requirement),
		Decision:         decision.String(),
		Allowed:          decision.Allowed(),
	}
	if perm, ok := LookupPermission(req.Requirement); ok {
		resp.Permission = &perm
	}
	httputil.WriteSuccess(w, resp)
}

func (h *Handlers) requireMutableRole(ctx context.Context, roleID int64) error {
	role, err := h.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystemRole {
		return apperrors.Forbidden("cannot modify system role: %s", role.Name)
	}
	return nil
}

// invalidateRole drops cached principals of every holder of roleID, or the
// whole cache when the holders cannot be listed.
func (h *Handlers) invalidateRole(ctx context.Context, roleID int64) {
	holders, err := h.store.GetRoleUserIDs(ctx, roleID)
	if err != nil {
		observability.FromContext(ctx).WithError(err).WithField("role_id", roleID).
			Warn("failed to list role holders, invalidating all principals")
		h.principals.InvalidateAll()
		return
	}
	h.principals.Invalidate(holders...)
}
