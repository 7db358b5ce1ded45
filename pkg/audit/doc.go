// Package audit records security-relevant decisions and mutations: access
// denials, role and permission changes, and the event invitation lifecycle.
//
// Handlers build events with NewEvent and hand them to Record, which writes
// through the Logger stored on the request context:
//
//	audit.Record(ctx, audit.NewEvent(ctx, audit.EventTypeInvitationAccept, audit.EventStatusSuccess).
//		On(audit.ResourceTypeEvent, event.PublicID.String()).
//		With("invitation_id", inv.ID))
//
// SlogLogger emits events as structured log lines, DBLogger persists them to
// audit_events, and MultiLogger fans out to both.
package audit
