package rbac

import (
	"sort"
	"time"
)

// Permission is a grantable capability identified by a dotted code such as
// "events.manage". Codes are opaque: the engine only compares them for
// equality, the dotted prefix is a naming convention.
type Permission struct {
	ID          int64  `json:"id" yaml:"-"`
	Code        string `json:"code" yaml:"code"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Module      string `json:"module" yaml:"module"`
}

// Role is a named bundle of permissions. System roles are seeded and cannot
// be modified through the administration surface.
type Role struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	IsSystemRole bool      `json:"is_system_role"`
	Permissions  []string  `json:"permissions,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RolePermission is a role to permission edge
type RolePermission struct {
	RoleID       int64     `json:"role_id"`
	PermissionID int64     `json:"permission_id"`
	GrantedAt    time.Time `json:"granted_at"`
}

// UserRole is a role assignment to a user
type UserRole struct {
	UserID    int64     `json:"user_id"`
	RoleID    int64     `json:"role_id"`
	GrantedBy *int64    `json:"granted_by,omitempty"`
	GrantedAt time.Time `json:"granted_at"`
}

// Permission codes
const (
	PermRBACPermissionsView = "rbac.permissions.view"
	PermRolesView           = "roles.view"
	PermRolesConfigure      = "roles.configure"
	PermUsersView           = "users.view"
	PermUsersManage         = "users.manage"
	PermEventsView          = "events.view"
	PermEventsCreate        = "events.create"
	PermEventsEdit          = "events.edit"
	PermEventsManage        = "events.manage"
	PermEstablishmentsView  = "establishments.view"
	PermEstablishmentsEdit  = "establishments.manage"
	PermCourtsManage        = "courts.manage"
	PermCatalogManage       = "catalog.manage"
	PermPlatformAdmin       = "platform.admin"
)

// System role names
const (
	RolePlatformAdmin = "PlatformAdmin"
	RoleOrganizer     = "Organizer"
	RoleEventAdmin    = "EventAdmin"
	RoleViewer        = "Viewer"
)

var catalog = []Permission{
	{Code: PermRBACPermissionsView, Name: "View permission catalog", Module: "rbac", Description: "List every grantable permission"},
	{Code: PermRolesView, Name: "View roles", Module: "roles", Description: "List roles and their permissions"},
	{Code: PermRolesConfigure, Name: "Configure roles", Module: "roles", Description: "Create, edit and delete roles and their permission grants"},
	{Code: PermUsersView, Name: "View users", Module: "users"},
	{Code: PermUsersManage, Name: "Manage users", Module: "users", Description: "Assign and revoke user roles"},
	{Code: PermEventsView, Name: "View events", Module: "events"},
	{Code: PermEventsCreate, Name: "Create events", Module: "events"},
	{Code: PermEventsEdit, Name: "Edit events", Module: "events", Description: "Edit events the user organizes or administers"},
	{Code: PermEventsManage, Name: "Manage events", Module: "events", Description: "Invite and remove event admins, delete events"},
	{Code: PermEstablishmentsView, Name: "View establishments", Module: "establishments"},
	{Code: PermEstablishmentsEdit, Name: "Manage establishments", Module: "establishments"},
	{Code: PermCourtsManage, Name: "Manage courts", Module: "courts"},
	{Code: PermCatalogManage, Name: "Manage reference data", Module: "catalog", Description: "Countries, cities and categories"},
	{Code: PermPlatformAdmin, Name: "Platform administrator", Module: "platform", Description: "Access every event regardless of membership"},
}

// Catalog returns the built-in permission catalog
func Catalog() []Permission {
	out := make([]Permission, len(catalog))
	copy(out, catalog)
	return out
}

// LookupPermission returns the catalog entry for code
func LookupPermission(code string) (Permission, bool) {
	for _, p := range catalog {
		if p.Code == code {
			return p, true
		}
	}
	return Permission{}, false
}

// SystemRole is a seeded role definition
type SystemRole struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Permissions []string `yaml:"permissions"`
}

// SystemRoles returns the roles every deployment starts with
func SystemRoles() []SystemRole {
	all := make([]string, 0, len(catalog))
	for _, p := range catalog {
		all = append(all, p.Code)
	}
	sort.Strings(all)

	return []SystemRole{
		{
			Name:        RolePlatformAdmin,
			Description: "Full access to the platform",
			Permissions: all,
		},
		{
			Name:        RoleOrganizer,
			Description: "Creates and runs events",
			Permissions: []string{PermEventsView, PermEventsCreate, PermEventsEdit, PermEventsManage, PermEstablishmentsView},
		},
		{
			Name:        RoleEventAdmin,
			Description: "Helps run events they were invited to",
			Permissions: []string{PermEventsView, PermEventsEdit, PermEstablishmentsView},
		},
		{
			Name:        RoleViewer,
			Description: "Read-only access",
			Permissions: []string{PermEventsView, PermEstablishmentsView},
		},
	}
}
