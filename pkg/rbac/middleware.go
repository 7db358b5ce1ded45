package rbac

import (
	"net/http"

	"github.com/platinummonkey/arena/pkg/audit"
	"github.com/platinummonkey/arena/pkg/auth"
	"github.com/platinummonkey/arena/pkg/httputil"
	"github.com/platinummonkey/arena/pkg/middleware"
	"github.com/platinummonkey/arena/pkg/observability"
)

const (
	decisionKindPermission = "permission"
	decisionKindPolicy     = "policy"
)

// PermissionMiddleware gates routes on the permission set of the request's
// principal. Requirements are plain strings declared at the route; nothing is
// registered up front.
type PermissionMiddleware struct {
	metrics *observability.Metrics
}

// NewPermissionMiddleware creates a new permission middleware
func NewPermissionMiddleware(metrics *observability.Metrics) *PermissionMiddleware {
	return &PermissionMiddleware{metrics: metrics}
}

// Require allows the request only if the principal holds code.
//
//	router.Handle("/rbac/roles", pm.Require("roles.view")(h)).Methods("GET")
func (pm *PermissionMiddleware) Require(code string) func(http.Handler) http.Handler {
	return pm.gate(decisionKindPermission, code, func(p *auth.Principal) Decision {
		return Decide(p, code)
	})
}

// Policy evaluates a named policy. Dotted names are permission requirements;
// any other name only requires an authenticated principal.
func (pm *PermissionMiddleware) Policy(name string) func(http.Handler) http.Handler {
	return pm.gate(decisionKindPolicy, name, func(p *auth.Principal) Decision {
		return EvaluatePolicy(p, name)
	})
}

func (pm *PermissionMiddleware) gate(kind, requirement string, decide func(*auth.Principal) Decision) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principal := middleware.PrincipalFrom(ctx)
			if principal == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			decision := decide(principal)
			pm.metrics.RecordDecision(kind, decision.Allowed())
			if !decision.Allowed() {
				observability.FromContext(ctx).WithFields(map[string]interface{}{
					"requirement": requirement,
					"route":       observability.RouteLabel(r),
				}).Info("authorization denied")
				audit.Record(ctx, audit.NewEvent(ctx, audit.EventTypeAuthzAccessDenied, audit.EventStatusDenied).
					On(audit.ResourceTypeEndpoint, r.Method+" "+observability.RouteLabel(r)).
					With("requirement", requirement))
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
