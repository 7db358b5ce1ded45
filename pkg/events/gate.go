package events

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/platinummonkey/arena/pkg/audit"
	"github.com/platinummonkey/arena/pkg/auth"
	"github.com/platinummonkey/arena/pkg/contextkeys"
	"github.com/platinummonkey/arena/pkg/httputil"
	"github.com/platinummonkey/arena/pkg/middleware"
	"github.com/platinummonkey/arena/pkg/observability"
)

// EventLoader loads events by public id
type EventLoader interface {
	GetEventByPublicID(ctx context.Context, publicID uuid.UUID) (*Event, error)
}

// Gate performs the per-event access check that complements the coarse
// permission check on each route.
//
// A missing event is reported as ErrEventNotFound and an inaccessible one as
// ErrAccessDenied, so callers can tell the two apart.
type Gate struct {
	events           EventLoader
	bypassPermission string
	metrics          *observability.Metrics
}

// NewGate creates an access gate. Principals holding bypassPermission may
// access every event; an empty value disables the bypass.
func NewGate(events EventLoader, bypassPermission string, metrics *observability.Metrics) *Gate {
	return &Gate{
		events:           events,
		bypassPermission: bypassPermission,
		metrics:          metrics,
	}
}

// CanAccess reports whether p is the organizer or an admin of event, or
// holds the bypass permission.
func (g *Gate) CanAccess(p *auth.Principal, event *Event) bool {
	if p == nil || event == nil {
		return false
	}
	if g.bypassPermission != "" && p.HasPermission(g.bypassPermission) {
		return true
	}
	return event.HasAccess(p.UserID)
}

// RequireAccess loads the event and checks CanAccess
func (g *Gate) RequireAccess(ctx context.Context, publicID uuid.UUID, p *auth.Principal) (*Event, error) {
	event, err := g.events.GetEventByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}
	allowed := g.CanAccess(p, event)
	g.metrics.RecordDecision("event_access", allowed)
	if !allowed {
		g.denied(ctx, event, "event_access")
		return nil, ErrAccessDenied
	}
	return event, nil
}

// RequireOrganizer loads the event and checks that p organizes it. Admins and
// the platform bypass do not satisfy this check.
func (g *Gate) RequireOrganizer(ctx context.Context, publicID uuid.UUID, p *auth.Principal) (*Event, error) {
	event, err := g.events.GetEventByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}
	allowed := p != nil && event.IsOrganizer(p.UserID)
	g.metrics.RecordDecision("event_organizer", allowed)
	if !allowed {
		g.denied(ctx, event, "event_organizer")
		return nil, ErrOrganizerOnly
	}
	return event, nil
}

func (g *Gate) denied(ctx context.Context, event *Event, check string) {
	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"event_id": event.ID,
		"check":    check,
	}).Info("event access denied")
	audit.Record(ctx, audit.NewEvent(ctx, audit.EventTypeAuthzAccessDenied, audit.EventStatusDenied).
		On(audit.ResourceTypeEvent, event.PublicID.String()).
		With("check", check))
}

// Middleware loads the event named by the {param} path variable, checks
// access and stores it in the request context.
func (g *Gate) Middleware(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			publicID, err := httputil.ParsePathUUID(r, param)
			if err != nil {
				// Malformed ids cannot name an event.
				httputil.WriteAppError(w, r, ErrEventNotFound)
				return
			}
			event, err := g.RequireAccess(r.Context(), publicID, middleware.PrincipalFrom(r.Context()))
			if err != nil {
				httputil.WriteAppError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(contextkeys.WithEvent(r.Context(), event)))
		})
	}
}

// EventFromContext returns the event stored by Gate.Middleware
func EventFromContext(ctx context.Context) *Event {
	event, _ := ctx.Value(contextkeys.EventKey).(*Event)
	return event
}
