package events

import "github.com/platinummonkey/arena/pkg/apperrors"

// Classified outcomes. Each is an *apperrors.Error, so callers can switch on
// apperrors.KindOf or compare with errors.Is.
var (
	ErrEventNotFound      = apperrors.NotFound("event not found")
	ErrAdminNotFound      = apperrors.NotFound("user is not an admin of this event")
	ErrInvitationNotFound = apperrors.NotFound("invitation not found")

	ErrAccessDenied  = apperrors.Forbidden("no access to this event")
	ErrOrganizerOnly = apperrors.Forbidden("only the event organizer can do this")
	ErrWrongAccount  = apperrors.Forbidden("invitation was issued to a different account")

	ErrInvitationAccepted = apperrors.Conflict("invitation has already been accepted")
	ErrAlreadyAdmin       = apperrors.Conflict("user is already an admin of this event")

	ErrInvitationExpired = apperrors.Validation("invitation has expired")
	ErrNoAccount         = apperrors.Validation("no account matches the invited email")
	ErrInvalidEmail      = apperrors.Validation("a valid email address is required")
)
