// Package events guards event-scoped operations and manages event admin
// invitations.
//
// Access to an event is held by its organizer and by its admins. Gate checks
// that membership per request; it is layered on top of the coarse permission
// check, never a replacement for it. A missing event yields ErrEventNotFound
// and an inaccessible one ErrAccessDenied, which does reveal whether an event
// exists.
//
// Invitations move from pending to accepted, or lapse once their expiry has
// passed. Expiry is never stored: it is derived from ExpiresAt on every read.
// Accepting consumes the invitation and creates the admin in one transaction,
// and only the first of several concurrent accepts succeeds.
//
//	mgr := events.NewInvitationManager(store, users, gate, auth.NewTokenGenerator(),
//		events.NewLogNotifier(logger), events.InvitationConfig{TTL: 7 * 24 * time.Hour}, metrics)
//	res, err := mgr.Invite(ctx, eventID, organizer, "jane@example.com")
//	admin, err := mgr.Accept(ctx, res.Token, jane)
//
// Only the organizer may invite, list pending invitations, revoke them,
// remove admins, or delete the event.
package events
