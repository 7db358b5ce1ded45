package rbac

import (
	"regexp"
	"strings"

	"github.com/platinummonkey/arena/pkg/auth"
)

// Decision is the outcome of an authorization check
type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// Allowed reports whether d is Allow
func (d Decision) Allowed() bool {
	return d == Allow
}

// PolicyDelimiter marks a policy name as a permission requirement
const PolicyDelimiter = "."

var permissionCode = regexp.MustCompile(`^[A-Za-z0-9_-]+(\.[A-Za-z0-9_-]+)+$`)

// ValidPermissionCode reports whether code is a well-formed dotted code
func ValidPermissionCode(code string) bool {
	return permissionCode.MatchString(code)
}

// Decide allows iff required is in the principal's permission set. There is
// no wildcard or hierarchy matching. An empty or malformed requirement is
// always denied, as is a nil principal.
func Decide(p *auth.Principal, required string) Decision {
	if p == nil || !ValidPermissionCode(required) {
		return Deny
	}
	if p.HasPermission(required) {
		return Allow
	}
	return Deny
}

// IsPermissionPolicy reports whether a declared policy name should be
// evaluated as a permission requirement. Any name containing the delimiter
// qualifies, whether or not it appears in the catalog.
func IsPermissionPolicy(name string) bool {
	return strings.Contains(name, PolicyDelimiter)
}

// EvaluatePolicy evaluates a policy name declared at a call site. Permission
// shaped names are checked with Decide; anything else falls back to
// requiring an authenticated principal.
func EvaluatePolicy(p *auth.Principal, name string) Decision {
	if IsPermissionPolicy(name) {
		return Decide(p, name)
	}
	if p == nil {
		return Deny
	}
	return Allow
}
