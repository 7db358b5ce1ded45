package auth

import (
	"sort"
	"time"
)

// User represents an account that can authenticate against the platform
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Principal is the resolved identity of an authenticated user: the user id,
// the names of every role the user holds, and the distinct union of the
// permission codes those roles grant. It is built per request and passed
// explicitly to every authorization decision.
type Principal struct {
	UserID      int64
	roles       map[string]struct{}
	permissions map[string]struct{}
}

// NewPrincipal builds a principal, collapsing duplicate role names and
// permission codes.
func NewPrincipal(userID int64, roles, permissions []string) *Principal {
	p := &Principal{
		UserID:      userID,
		roles:       make(map[string]struct{}, len(roles)),
		permissions: make(map[string]struct{}, len(permissions)),
	}
	for _, r := range roles {
		p.roles[r] = struct{}{}
	}
	for _, code := range permissions {
		p.permissions[code] = struct{}{}
	}
	return p
}

// HasPermission reports whether code is in the permission set. Codes are
// compared for exact equality.
func (p *Principal) HasPermission(code string) bool {
	if p == nil || code == "" {
		return false
	}
	_, ok := p.permissions[code]
	return ok
}

// HasRole reports whether the principal holds the named role
func (p *Principal) HasRole(name string) bool {
	if p == nil {
		return false
	}
	_, ok := p.roles[name]
	return ok
}

// Roles returns the role names in sorted order
func (p *Principal) Roles() []string {
	if p == nil {
		return []string{}
	}
	return sortedKeys(p.roles)
}

// Permissions returns the permission codes in sorted order
func (p *Principal) Permissions() []string {
	if p == nil {
		return []string{}
	}
	return sortedKeys(p.permissions)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// PrincipalView is the JSON shape of a principal
type PrincipalView struct {
	UserID      int64    `json:"user_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// View converts the principal for serialization
func (p *Principal) View() PrincipalView {
	v := PrincipalView{Roles: p.Roles(), Permissions: p.Permissions()}
	if p != nil {
		v.UserID = p.UserID
	}
	return v
}

// AuthContext contains authentication information for a request
type AuthContext struct {
	Claims    *Claims
	Principal *Principal
}

// UserID returns the authenticated user id, or 0 if there is none
func (a *AuthContext) UserID() int64 {
	if a == nil || a.Principal == nil {
		return 0
	}
	return a.Principal.UserID
}
