package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/platinummonkey/arena/pkg/apperrors"
	"github.com/platinummonkey/arena/pkg/audit"
	"github.com/platinummonkey/arena/pkg/auth"
	"github.com/platinummonkey/arena/pkg/observability"
)

const tracerName = "github.com/platinummonkey/arena/pkg/events"

// DefaultInvitationTTL is how long an invitation stays acceptable
const DefaultInvitationTTL = 7 * 24 * time.Hour

// maxTokenAttempts bounds regeneration after token collisions
const maxTokenAttempts = 5

// TokenSource generates invitation tokens
type TokenSource interface {
	GenerateToken() (string, error)
	ValidateTokenFormat(token string) error
}

// UserDirectory finds the account an invitation was issued to
type UserDirectory interface {
	GetUserByEmailTx(ctx context.Context, tx *sql.Tx, email string) (*auth.User, error)
}

// InvitationConfig controls invitation issuance
type InvitationConfig struct {
	TTL time.Duration
	// AcceptURL is the frontend page that accepts invitations. The token is
	// appended as a query parameter.
	AcceptURL string
}

// InviteResult is returned to the organizer who issued an invitation. It is
// the only place the token is ever shown.
type InviteResult struct {
	Invitation *EventInvitation `json:"invitation"`
	Token      string           `json:"token"`
	AcceptURL  string           `json:"accept_url,omitempty"`
	Warning    string           `json:"warning,omitempty"`
}

// InvitationPreview describes an invitation to its holder before accepting
type InvitationPreview struct {
	EventPublicID uuid.UUID        `json:"event_public_id"`
	EventName     string           `json:"event_name"`
	Email         string           `json:"email"`
	Status        InvitationStatus `json:"status"`
	ExpiresAt     time.Time        `json:"expires_at"`
}

// InvitationManager issues and resolves event admin invitations. Every
// operation takes the acting principal explicitly.
type InvitationManager struct {
	store    *Store
	users    UserDirectory
	gate     *Gate
	tokens   TokenSource
	notifier Notifier
	config   InvitationConfig
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewInvitationManager wires an invitation manager. A nil notifier disables
// delivery.
func NewInvitationManager(store *Store, users UserDirectory, gate *Gate, tokens TokenSource,
	notifier Notifier, config InvitationConfig, metrics *observability.Metrics) *InvitationManager {
	if config.TTL <= 0 {
		config.TTL = DefaultInvitationTTL
	}
	return &InvitationManager{
		store:    store,
		users:    users,
		gate:     gate,
		tokens:   tokens,
		notifier: notifier,
		config:   config,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Invite issues a pending invitation for email. Only the organizer may invite.
// Repeated invitations to the same address are allowed.
func (m *InvitationManager) Invite(ctx context.Context, publicID uuid.UUID, p *auth.Principal, email string) (*InviteResult, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Name != "" {
		m.metrics.RecordInvitation("invite", "invalid")
		return nil, ErrInvalidEmail
	}

	event, err := m.gate.RequireOrganizer(ctx, publicID, p)
	if err != nil {
		m.metrics.RecordInvitation("invite", outcome(err))
		return nil, err
	}

	now := m.now()
	inv := &EventInvitation{
		EventID:   event.ID,
		Email:     auth.NormalizeEmail(addr.Address),
		InvitedBy: p.UserID,
		ExpiresAt: now.Add(m.config.TTL),
		CreatedAt: now,
	}
	if err := m.insertWithFreshToken(ctx, inv); err != nil {
		m.metrics.RecordInvitation("invite", "error")
		return nil, err
	}

	result := &InviteResult{
		Invitation: inv,
		Token:      inv.Token,
		AcceptURL:  AcceptURL(m.config.AcceptURL, inv.Token),
	}

	logger := observability.FromContext(ctx).WithFields(map[string]interface{}{
		"event_id":      event.ID,
		"invitation_id": inv.ID,
		"invited_by":    p.UserID,
	})

	if m.notifier != nil {
		notice := InvitationNotice{
			InvitationID:  inv.ID,
			Email:         inv.Email,
			Token:         inv.Token,
			AcceptURL:     result.AcceptURL,
			EventPublicID: event.PublicID,
			EventName:     event.Name,
			InvitedBy:     p.UserID,
			ExpiresAt:     inv.ExpiresAt,
		}
		if err := m.notifier.NotifyInvitation(ctx, notice); err != nil {
			logger.WithError(err).Warn("invitation created but notification failed")
			m.metrics.RecordNotificationFailure()
			result.Warning = "invitation created but the invitee could not be notified; share the accept link manually"
		}
	}

	m.metrics.RecordInvitation("invite", "success")
	audit.Record(ctx, audit.NewEvent(ctx, audit.EventTypeInvitationCreate, audit.EventStatusSuccess).
		On(audit.ResourceTypeInvitation, strconv.FormatInt(inv.ID, 10)).
		With("event_id", event.PublicID.String()).
		With("email", inv.Email))
	logger.Info("invitation created")

	return result, nil
}

// insertWithFreshToken generates tokens until one is unused
func (m *InvitationManager) insertWithFreshToken(ctx context.Context, inv *EventInvitation) error {
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token, err := m.tokens.GenerateToken()
		if err != nil {
			return fmt.Errorf("failed to generate invitation token: %w", err)
		}
		inv.Token = token
		inserted, err := m.store.insertInvitation(ctx, inv)
		if err != nil {
			return err
		}
		if inserted {
			return nil
		}
		observability.FromContext(ctx).WithField("attempt", attempt+1).Warn("invitation token collision, regenerating")
	}
	return fmt.Errorf("failed to allocate a unique invitation token after %d attempts", maxTokenAttempts)
}

// ListPending returns invitations that are neither accepted nor expired.
// Only the organizer may list them.
func (m *InvitationManager) ListPending(ctx context.Context, publicID uuid.UUID, p *auth.Principal) ([]*EventInvitation, error) {
	event, err := m.gate.RequireOrganizer(ctx, publicID, p)
	if err != nil {
		return nil, err
	}

	invs, err := m.store.ListUnacceptedInvitations(ctx, event.ID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	pending := make([]*EventInvitation, 0, len(invs))
	for _, inv := range invs {
		if inv.IsValid(now) {
			pending = append(pending, inv)
		}
	}
	return pending, nil
}

// GetInvitation previews the invitation behind token
func (m *InvitationManager) GetInvitation(ctx context.Context, token string) (*InvitationPreview, error) {
	if m.tokens.ValidateTokenFormat(token) != nil {
		return nil, ErrInvitationNotFound
	}
	inv, err := m.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	event, err := m.store.getEventByID(ctx, inv.EventID)
	if err != nil {
		return nil, err
	}
	return &InvitationPreview{
		EventPublicID: event.PublicID,
		EventName:     event.Name,
		Email:         inv.Email,
		Status:        inv.Status(m.now()),
		ExpiresAt:     inv.ExpiresAt,
	}, nil
}

// Accept consumes the invitation behind token and makes the invited account
// an admin of the event. Consuming the invitation and creating the admin are
// one transaction: either both happen or neither does. A token is accepted
// at most once, even under concurrent attempts.
//
// When p is not nil it must be the invited account.
func (m *InvitationManager) Accept(ctx context.Context, token string, p *auth.Principal) (*EventAdmin, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "events.AcceptInvitation")
	defer span.End()

	admin, inv, err := m.accept(ctx, token, p)
	result := outcome(err)
	m.metrics.RecordInvitation("accept", result)
	span.SetAttributes(attribute.String("invitation.outcome", result))
	if inv != nil {
		span.SetAttributes(attribute.Int64("invitation.id", inv.ID), attribute.Int64("event.id", inv.EventID))
	}

	logger := observability.FromContext(ctx).WithField("token", auth.Redact(token))
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindInternal {
			span.RecordError(err)
			span.SetStatus(codes.Error, "accept failed")
			logger.WithError(err).Error("invitation acceptance failed")
		} else {
			logger.WithError(err).Info("invitation acceptance rejected")
		}
		auditEvent := audit.NewEvent(ctx, audit.EventTypeInvitationAccept, audit.EventStatusFailure).Failed(err)
		if inv != nil {
			auditEvent.On(audit.ResourceTypeInvitation, strconv.FormatInt(inv.ID, 10))
		}
		audit.Record(ctx, auditEvent)
		return nil, err
	}

	audit.Record(ctx, audit.NewEvent(ctx, audit.EventTypeInvitationAccept, audit.EventStatusSuccess).
		On(audit.ResourceTypeInvitation, strconv.FormatInt(inv.ID, 10)).
		With("event_id", admin.EventID).
		With("admin_user_id", admin.UserID))
	logger.WithFields(map[string]interface{}{
		"event_id":      admin.EventID,
		"user_id":       admin.UserID,
		"invitation_id": inv.ID,
	}).Info("invitation accepted")
	return admin, nil
}

func (m *InvitationManager) accept(ctx context.Context, token string, p *auth.Principal) (*EventAdmin, *EventInvitation, error) {
	if m.tokens.ValidateTokenFormat(token) != nil {
		return nil, nil, ErrInvitationNotFound
	}

	tx, err := m.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	inv, err := getInvitationByToken(ctx, tx, token)
	if err != nil {
		return nil, nil, err
	}

	now := m.now()
	if inv.IsAccepted() {
		return nil, inv, ErrInvitationAccepted
	}
	if inv.IsExpired(now) {
		return nil, inv, ErrInvitationExpired
	}

	user, err := m.users.GetUserByEmailTx(ctx, tx, inv.Email)
	if apperrors.IsKind(err, apperrors.KindNotFound) {
		return nil, inv, ErrNoAccount
	}
	if err != nil {
		return nil, inv, err
	}
	if p != nil && p.UserID != user.ID {
		return nil, inv, ErrWrongAccount
	}

	consumed, err := markAccepted(ctx, tx, inv.ID, user.ID, now)
	if err != nil {
		return nil, inv, err
	}
	if !consumed {
		return nil, inv, ErrInvitationAccepted
	}

	admin := &EventAdmin{
		EventID:   inv.EventID,
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: now,
	}
	if err := insertAdmin(ctx, tx, admin); err != nil {
		return nil, inv, err
	}

	if err := tx.Commit(); err != nil {
		return nil, inv, fmt.Errorf("failed to commit acceptance: %w", err)
	}
	inv.AcceptedAt = &now
	inv.AcceptedBy = &user.ID
	return admin, inv, nil
}

// RevokeInvitation deletes a pending invitation. Accepted invitations are
// history and cannot be revoked; remove the admin instead.
func (m *InvitationManager) RevokeInvitation(ctx context.Context, publicID uuid.UUID, p *auth.Principal, invitationID int64) error {
	event, err := m.gate.RequireOrganizer(ctx, publicID, p)
	if err != nil {
		return err
	}

	inv, err := m.store.GetInvitation(ctx, event.ID, invitationID)
	if err != nil {
		return err
	}
	if inv.IsAccepted() {
		return ErrInvitationAccepted
	}

	deleted, err := m.store.DeletePendingInvitation(ctx, event.ID, invitationID)
	if err != nil {
		return err
	}
	if !deleted {
		// Accepted between the read and the delete.
		return ErrInvitationAccepted
	}

	m.metrics.RecordInvitation("revoke", "success")
	audit.Record(ctx, audit.NewEvent(ctx, audit.EventTypeInvitationRevoke, audit.EventStatusSuccess).
		On(audit.ResourceTypeInvitation, strconv.FormatInt(invitationID, 10)).
		With("event_id", event.PublicID.String()))
	return nil
}

// ListAdmins returns the admins of an event to anyone with access to it
func (m *InvitationManager) ListAdmins(ctx context.Context, publicID uuid.UUID, p *auth.Principal) ([]EventAdmin, error) {
	event, err := m.gate.RequireAccess(ctx, publicID, p)
	if err != nil {
		return nil, err
	}
	return m.AdminsOf(ctx, event)
}

// AdminsOf lists the admins of an event the caller was already granted
// access to, as by Gate.Middleware.
func (m *InvitationManager) AdminsOf(ctx context.Context, event *Event) ([]EventAdmin, error) {
	if event == nil {
		return nil, ErrEventNotFound
	}
	return m.store.ListAdmins(ctx, event.ID)
}

// RemoveAdmin revokes userID's admin access. Only the organizer may remove
// admins; a user who is not an admin yields ErrAdminNotFound.
func (m *InvitationManager) RemoveAdmin(ctx context.Context, publicID uuid.UUID, p *auth.Principal, userID int64) error {
	event, err := m.gate.RequireOrganizer(ctx, publicID, p)
	if err != nil {
		return err
	}
	if err := m.store.DeleteAdmin(ctx, event.ID, userID); err != nil {
		return err
	}

	audit.Record(ctx, audit.NewEvent(ctx, audit.EventTypeAdminRemove, audit.EventStatusSuccess).
		On(audit.ResourceTypeEvent, event.PublicID.String()).
		With("admin_user_id", userID))
	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"event_id": event.ID,
		"user_id":  userID,
	}).Info("event admin removed")
	return nil
}

// DeleteEvent deletes the event with its admins and invitations. Only the
// organizer may delete it.
func (m *InvitationManager) DeleteEvent(ctx context.Context, publicID uuid.UUID, p *auth.Principal) error {
	event, err := m.gate.RequireOrganizer(ctx, publicID, p)
	if err != nil {
		return err
	}
	if err := m.store.DeleteEvent(ctx, event.ID); err != nil {
		return err
	}
	audit.Record(ctx, audit.NewEvent(ctx, audit.EventTypeEventDelete, audit.EventStatusSuccess).
		On(audit.ResourceTypeEvent, event.PublicID.String()))
	return nil
}

// outcome labels err for metrics
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	switch {
	case errors.Is(err, ErrInvitationExpired):
		return "expired"
	case errors.Is(err, ErrInvitationAccepted), errors.Is(err, ErrAlreadyAdmin):
		return "conflict"
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindNotFound:
		return "not_found"
	case apperrors.KindForbidden:
		return "forbidden"
	case apperrors.KindValidation:
		return "invalid"
	}
	return "error"
}
