package events

import (
	"time"

	"github.com/google/uuid"
)

// Event is a tournament or venue event. Access is held by its organizer and
// by every user in its admin set.
type Event struct {
	ID          int64     `json:"id"`
	PublicID    uuid.UUID `json:"public_id"`
	Name        string    `json:"name"`
	OrganizerID *int64    `json:"organizer_id,omitempty"`
	AdminIDs    []int64   `json:"admin_ids"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsOrganizer reports whether userID owns the event
func (e *Event) IsOrganizer(userID int64) bool {
	return e != nil && e.OrganizerID != nil && *e.OrganizerID == userID
}

// IsAdmin reports whether userID is in the admin set
func (e *Event) IsAdmin(userID int64) bool {
	if e == nil {
		return false
	}
	for _, id := range e.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// HasAccess is true for the organizer and for admins. It is resource scoped
// and independent of the user's permission codes.
func (e *Event) HasAccess(userID int64) bool {
	return e.IsOrganizer(userID) || e.IsAdmin(userID)
}

// EventAdmin is a user granted access to an event through an invitation.
// (EventID, UserID) is unique.
type EventAdmin struct {
	ID        int64     `json:"id"`
	EventID   int64     `json:"event_id"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// InvitationStatus is derived from the invitation's timestamps at read time
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"
)

// EventInvitation offers admin access to whoever owns Email. The token is
// secret and never serialized.
type EventInvitation struct {
	ID         int64      `json:"id"`
	EventID    int64      `json:"event_id"`
	Email      string     `json:"email"`
	Token      string     `json:"-"`
	InvitedBy  int64      `json:"invited_by"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	AcceptedBy *int64     `json:"accepted_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsExpired reports now > ExpiresAt
func (i *EventInvitation) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// IsAccepted reports whether the invitation was consumed
func (i *EventInvitation) IsAccepted() bool {
	return i.AcceptedAt != nil
}

// IsValid is true while the invitation can still be accepted
func (i *EventInvitation) IsValid(now time.Time) bool {
	return !i.IsExpired(now) && !i.IsAccepted()
}

// Status reports the lifecycle state at now. Acceptance wins over expiry.
func (i *EventInvitation) Status(now time.Time) InvitationStatus {
	switch {
	case i.IsAccepted():
		return InvitationAccepted
	case i.IsExpired(now):
		return InvitationExpired
	default:
		return InvitationPending
	}
}
