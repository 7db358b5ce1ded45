package events

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/arena/pkg/httputil"
	"github.com/platinummonkey/arena/pkg/middleware"
	"github.com/platinummonkey/arena/pkg/rbac"
)

// Handlers provides HTTP handlers for event administration and invitations
type Handlers struct {
	manager *InvitationManager
}

// NewHandlers creates new event handlers
func NewHandlers(manager *InvitationManager) *Handlers {
	return &Handlers{manager: manager}
}

// RegisterRoutes registers the event and invitation routes. acceptLimit
// throttles invitation acceptance and may be nil.
func (h *Handlers) RegisterRoutes(router *mux.Router, pm *rbac.PermissionMiddleware, acceptLimit func(http.Handler) http.Handler) {
	view := pm.Require(rbac.PermEventsView)
	manage := pm.Require(rbac.PermEventsManage)

	eventAccess := h.manager.gate.Middleware("public_id")

	router.Handle("/events/{public_id}/admins", view(eventAccess(http.HandlerFunc(h.ListAdmins)))).Methods(http.MethodGet)
	router.Handle("/events/{public_id}/admins/{user_id}", manage(http.HandlerFunc(h.RemoveAdmin))).Methods(http.MethodDelete)
	router.Handle("/events/{public_id}/invitations", manage(http.HandlerFunc(h.Invite))).Methods(http.MethodPost)
	router.Handle("/events/{public_id}/invitations", manage(http.HandlerFunc(h.ListPending))).Methods(http.MethodGet)
	router.Handle("/events/{public_id}/invitations/{id}", manage(http.HandlerFunc(h.RevokeInvitation))).Methods(http.MethodDelete)
	router.Handle("/events/{public_id}", manage(http.HandlerFunc(h.DeleteEvent))).Methods(http.MethodDelete)

	var accept http.Handler = http.HandlerFunc(h.AcceptInvitation)
	if acceptLimit != nil {
		accept = acceptLimit(accept)
	}
	router.Handle("/invitations/accept", middleware.RequireAuthenticated(accept)).Methods(http.MethodPost)
	router.Handle("/invitations/{token}", middleware.RequireAuthenticated(http.HandlerFunc(h.GetInvitation))).Methods(http.MethodGet)
}

// publicID parses {public_id}; a malformed id names no event
func publicID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := httputil.ParsePathUUID(r, "public_id")
	if err != nil {
		httputil.WriteAppError(w, r, ErrEventNotFound)
		return uuid.Nil, false
	}
	return id, true
}

// ListAdmins lists the admins of the event loaded by the gate middleware
func (h *Handlers) ListAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := h.manager.AdminsOf(r.Context(), EventFromContext(r.Context()))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, admins)
}

type inviteRequest struct {
	Email string `json:"email"`
}

// Invite issues an invitation
func (h *Handlers) Invite(w http.ResponseWriter, r *http.Request) {
	id, ok := publicID(w, r)
	if !ok {
		return
	}
	var req inviteRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	result, err := h.manager.Invite(r.Context(), id, middleware.PrincipalFrom(r.Context()), req.Email)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, result)
}

// ListPending lists pending invitations
func (h *Handlers) ListPending(w http.ResponseWriter, r *http.Request) {
	id, ok := publicID(w, r)
	if !ok {
		return
	}
	invs, err := h.manager.ListPending(r.Context(), id, middleware.PrincipalFrom(r.Context()))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, invs)
}

// RevokeInvitation deletes a pending invitation
func (h *Handlers) RevokeInvitation(w http.ResponseWriter, r *http.Request) {
	id, ok := publicID(w, r)
	if !ok {
		return
	}
	invitationID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.manager.RevokeInvitation(r.Context(), id, middleware.PrincipalFrom(r.Context()), invitationID); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// RemoveAdmin revokes a user's admin access
func (h *Handlers) RemoveAdmin(w http.ResponseWriter, r *http.Request) {
	id, ok := publicID(w, r)
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	if err := h.manager.RemoveAdmin(r.Context(), id, middleware.PrincipalFrom(r.Context()), userID); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// DeleteEvent deletes an event
func (h *Handlers) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := publicID(w, r)
	if !ok {
		return
	}
	if err := h.manager.DeleteEvent(r.Context(), id, middleware.PrincipalFrom(r.Context())); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// GetInvitation previews an invitation by token
func (h *Handlers) GetInvitation(w http.ResponseWriter, r *http.Request) {
	preview, err := h.manager.GetInvitation(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, preview)
}

type acceptRequest struct {
	Token string `json:"token"`
}

// AcceptInvitation makes the caller an admin of the invitation's event
func (h *Handlers) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Token == "" {
		httputil.WriteBadRequest(w, "token is required")
		return
	}

	admin, err := h.manager.Accept(r.Context(), req.Token, middleware.PrincipalFrom(r.Context()))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, admin)
}
