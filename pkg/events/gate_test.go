package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/arena/pkg/auth"
	"github.com/platinummonkey/arena/pkg/contextkeys"
	"github.com/platinummonkey/arena/pkg/observability"
	"github.com/platinummonkey/arena/pkg/storage/testdb"
)

// staticEvents serves a fixed set of events
type staticEvents map[uuid.UUID]*Event

func (s staticEvents) GetEventByPublicID(ctx context.Context, publicID uuid.UUID) (*Event, error) {
	event, ok := s[publicID]
	if !ok {
		return nil, ErrEventNotFound
	}
	return event, nil
}

func TestGate_CanAccess(t *testing.T) {
	event := &Event{OrganizerID: int64Ptr(42)}
	gate := NewGate(nil, "platform.admin", nil)

	organizer := auth.NewPrincipal(42, nil, nil)
	outsider := auth.NewPrincipal(7, nil, []string{"events.manage"})
	platform := auth.NewPrincipal(99, nil, []string{"platform.admin"})

	assert.True(t, gate.CanAccess(organizer, event))
	assert.False(t, gate.CanAccess(outsider, event), "event permissions do not grant per-event access")
	assert.True(t, gate.CanAccess(platform, event))
	assert.False(t, gate.CanAccess(nil, event))

	event.AdminIDs = []int64{7}
	assert.True(t, gate.CanAccess(outsider, event))
}

func TestGate_BypassDisabled(t *testing.T) {
	gate := NewGate(nil, "", nil)
	platform := auth.NewPrincipal(99, nil, []string{"platform.admin"})
	assert.False(t, gate.CanAccess(platform, &Event{OrganizerID: int64Ptr(1)}))
}

func TestGate_RequireAccess(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	events := staticEvents{id: {ID: 1, PublicID: id, OrganizerID: int64Ptr(42), AdminIDs: []int64{7}}}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	gate := NewGate(events, "platform.admin", metrics)

	tests := []struct {
		name      string
		publicID  uuid.UUID
		principal *auth.Principal
		wantErr   error
	}{
		{"organizer", id, auth.NewPrincipal(42, nil, nil), nil},
		{"admin", id, auth.NewPrincipal(7, nil, nil), nil},
		{"outsider", id, auth.NewPrincipal(8, nil, nil), ErrAccessDenied},
		{"missing event", uuid.New(), auth.NewPrincipal(42, nil, nil), ErrEventNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := gate.RequireAccess(ctx, tt.publicID, tt.principal)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, event)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, id, event.PublicID)
		})
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.AuthzDecisionsTotal.WithLabelValues("event_access", "allow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuthzDecisionsTotal.WithLabelValues("event_access", "deny")))
}

func TestGate_RequireOrganizer(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	events := staticEvents{id: {ID: 1, PublicID: id, OrganizerID: int64Ptr(42), AdminIDs: []int64{7}}}
	gate := NewGate(events, "platform.admin", nil)

	_, err := gate.RequireOrganizer(ctx, id, auth.NewPrincipal(42, nil, nil))
	assert.NoError(t, err)

	_, err = gate.RequireOrganizer(ctx, id, auth.NewPrincipal(7, nil, nil))
	assert.ErrorIs(t, err, ErrOrganizerOnly)

	_, err = gate.RequireOrganizer(ctx, id, auth.NewPrincipal(99, nil, []string{"platform.admin"}))
	assert.ErrorIs(t, err, ErrOrganizerOnly)

	_, err = gate.RequireOrganizer(ctx, uuid.New(), auth.NewPrincipal(42, nil, nil))
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestGate_Middleware(t *testing.T) {
	db := testdb.New(t)
	orgID := testdb.InsertUser(t, db, "organizer", "org@x.com")
	_, publicID := testdb.InsertEvent(t, db, "Spring Open", orgID)
	gate := NewGate(NewStore(db), "", nil)

	router := mux.NewRouter()
	router.Handle("/events/{public_id}", gate.Middleware("public_id")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		event := EventFromContext(r.Context())
		require.NotNil(t, event)
		w.Write([]byte(event.Name))
	})))

	serve := func(userID int64, target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		ctx := contextkeys.WithAuth(req.Context(), &auth.AuthContext{Principal: auth.NewPrincipal(userID, nil, nil)})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req.WithContext(ctx))
		return rec
	}

	rec := serve(orgID, "/events/"+publicID.String())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Spring Open", rec.Body.String())

	assert.Equal(t, http.StatusForbidden, serve(orgID+100, "/events/"+publicID.String()).Code)
	assert.Equal(t, http.StatusNotFound, serve(orgID, "/events/"+uuid.NewString()).Code)
	assert.Equal(t, http.StatusNotFound, serve(orgID, "/events/not-a-uuid").Code)
}
