package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/arena/pkg/audit"
	"github.com/platinummonkey/arena/pkg/auth"
	"github.com/platinummonkey/arena/pkg/contextkeys"
	"github.com/platinummonkey/arena/pkg/observability"
)

type captureAudit struct {
	mu     sync.Mutex
	events []*audit.AuditEvent
}

func (c *captureAudit) Log(ctx context.Context, event *audit.AuditEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureAudit) Close() error { return nil }

func (c *captureAudit) types() []audit.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]audit.EventType, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.EventType)
	}
	return out
}

func requestAs(p *auth.Principal, sink audit.Logger, method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	ctx := req.Context()
	if p != nil {
		ctx = contextkeys.WithAuth(ctx, &auth.AuthContext{Principal: p})
	}
	if sink != nil {
		ctx = audit.WithLogger(ctx, sink)
	}
	return req.WithContext(ctx)
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestPermissionMiddleware_Require(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	pm := NewPermissionMiddleware(metrics)
	eventAdmin := auth.NewPrincipal(2, []string{RoleEventAdmin}, []string{PermEventsView})
	platformAdmin := auth.NewPrincipal(3, []string{RolePlatformAdmin}, []string{PermEventsView, PermEventsManage})

	tests := []struct {
		name      string
		principal *auth.Principal
		want      int
	}{
		{"unauthenticated", nil, http.StatusUnauthorized},
		{"missing permission", eventAdmin, http.StatusForbidden},
		{"has permission", platformAdmin, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			pm.Require(PermEventsManage)(okHandler).ServeHTTP(rec, requestAs(tt.principal, nil, http.MethodDelete, "/events/x"))
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AuthzDecisionsTotal.WithLabelValues("permission", "allow")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AuthzDecisionsTotal.WithLabelValues("permission", "deny")))
}

func TestPermissionMiddleware_DenialIsAudited(t *testing.T) {
	sink := &captureAudit{}
	pm := NewPermissionMiddleware(nil)
	p := auth.NewPrincipal(2, nil, []string{PermEventsView})

	rec := httptest.NewRecorder()
	pm.Require(PermRolesConfigure)(okHandler).ServeHTTP(rec, requestAs(p, sink, http.MethodPost, "/rbac/roles"))

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, []audit.EventType{audit.EventTypeAuthzAccessDenied}, sink.types())
	assert.Equal(t, audit.EventStatusDenied, sink.events[0].Status)
	assert.Equal(t, PermRolesConfigure, sink.events[0].Metadata["requirement"])
}

func TestPermissionMiddleware_Policy(t *testing.T) {
	pm := NewPermissionMiddleware(nil)
	p := auth.NewPrincipal(2, nil, []string{"tournaments.brackets.seed"})

	tests := []struct {
		name      string
		policy    string
		principal *auth.Principal
		want      int
	}{
		{"unregistered dotted policy granted", "tournaments.brackets.seed", p, http.StatusOK},
		{"unregistered dotted policy denied", "tournaments.brackets.delete", p, http.StatusForbidden},
		{"plain policy needs authentication only", "Authenticated", p, http.StatusOK},
		{"plain policy without principal", "Authenticated", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			pm.Policy(tt.policy)(okHandler).ServeHTTP(rec, requestAs(tt.principal, nil, http.MethodGet, "/"))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
