package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/arena/pkg/apperrors"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store handles event, admin and invitation persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new event store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying handle for callers that need a transaction
func (s *Store) DB() *sql.DB {
	return s.db
}

// CreateEvent inserts an event and assigns its ids
func (s *Store) CreateEvent(ctx context.Context, event *Event) error {
	event.Name = strings.TrimSpace(event.Name)
	if event.Name == "" {
		return apperrors.Validation("event name is required")
	}
	if event.PublicID == uuid.Nil {
		event.PublicID = uuid.New()
	}

	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO events (public_id, name, organizer_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, event.PublicID, event.Name, event.OrganizerID, now, now).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	event.CreatedAt, event.UpdatedAt = now, now
	event.AdminIDs = []int64{}
	return nil
}

// GetEventByPublicID loads an event and its admin set
func (s *Store) GetEventByPublicID(ctx context.Context, publicID uuid.UUID) (*Event, error) {
	return s.getEvent(ctx, `public_id = $1`, publicID)
}

func (s *Store) getEventByID(ctx context.Context, id int64) (*Event, error) {
	return s.getEvent(ctx, `id = $1`, id)
}

func (s *Store) getEvent(ctx context.Context, where string, arg any) (*Event, error) {
	var event Event
	var organizerID sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, public_id, name, organizer_id, created_at, updated_at
		FROM events
		WHERE `+where, arg).Scan(&event.ID, &event.PublicID, &event.Name, &organizerID, &event.CreatedAt, &event.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if organizerID.Valid {
		event.OrganizerID = &organizerID.Int64
	}

	event.AdminIDs, err = s.adminIDs(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *Store) adminIDs(ctx context.Context, eventID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM event_admins WHERE event_id = $1 ORDER BY user_id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query event admins: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan admin id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListAdmins returns the admins of an event with their account details
func (s *Store) ListAdmins(ctx context.Context, eventID int64) ([]EventAdmin, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ea.id, ea.event_id, ea.user_id, u.username, u.email, ea.created_at
		FROM event_admins ea
		JOIN users u ON u.id = ea.user_id
		WHERE ea.event_id = $1
		ORDER BY ea.created_at, ea.id
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list event admins: %w", err)
	}
	defer rows.Close()

	admins := []EventAdmin{}
	for rows.Next() {
		var a EventAdmin
		if err := rows.Scan(&a.ID, &a.EventID, &a.UserID, &a.Username, &a.Email, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event admin: %w", err)
		}
		admins = append(admins, a)
	}
	return admins, rows.Err()
}

// insertAdmin adds an (event, user) edge. An existing edge is reported as
// ErrAlreadyAdmin, never overwritten.
func insertAdmin(ctx context.Context, q dbtx, admin *EventAdmin) error {
	err := q.QueryRowContext(ctx, `
		INSERT INTO event_admins (event_id, user_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id, user_id) DO NOTHING
		RETURNING id
	`, admin.EventID, admin.UserID, admin.CreatedAt).Scan(&admin.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAlreadyAdmin
	}
	if err != nil {
		return fmt.Errorf("failed to insert event admin: %w", err)
	}
	return nil
}

// DeleteAdmin removes an (event, user) edge
func (s *Store) DeleteAdmin(ctx context.Context, eventID, userID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM event_admins WHERE event_id = $1 AND user_id = $2`, eventID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete event admin: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return ErrAdminNotFound
	}
	return nil
}

// insertInvitation stores inv unless its token is already taken, in which
// case it returns false and leaves inv.ID unset.
func (s *Store) insertInvitation(ctx context.Context, inv *EventInvitation) (bool, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO event_invitations (event_id, email, token, invited_by, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (token) DO NOTHING
		RETURNING id
	`, inv.EventID, inv.Email, inv.Token, inv.InvitedBy, inv.ExpiresAt, inv.CreatedAt).Scan(&inv.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert invitation: %w", err)
	}
	return true, nil
}

const invitationColumns = `id, event_id, email, token, invited_by, expires_at, accepted_at, accepted_by, created_at`

func scanInvitation(scanner interface{ Scan(...any) error }) (*EventInvitation, error) {
	var inv EventInvitation
	var acceptedAt sql.NullTime
	var acceptedBy sql.NullInt64
	if err := scanner.Scan(&inv.ID, &inv.EventID, &inv.Email, &inv.Token, &inv.InvitedBy,
		&inv.ExpiresAt, &acceptedAt, &acceptedBy, &inv.CreatedAt); err != nil {
		return nil, err
	}
	if acceptedAt.Valid {
		inv.AcceptedAt = &acceptedAt.Time
	}
	if acceptedBy.Valid {
		inv.AcceptedBy = &acceptedBy.Int64
	}
	return &inv, nil
}

func getInvitationByToken(ctx context.Context, q dbtx, token string) (*EventInvitation, error) {
	inv, err := scanInvitation(q.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM event_invitations WHERE token = $1`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return inv, nil
}

// GetInvitationByToken looks an invitation up by exact token match
func (s *Store) GetInvitationByToken(ctx context.Context, token string) (*EventInvitation, error) {
	return getInvitationByToken(ctx, s.db, token)
}

// GetInvitation loads an invitation of eventID by id
func (s *Store) GetInvitation(ctx context.Context, eventID, invitationID int64) (*EventInvitation, error) {
	inv, err := scanInvitation(s.db.QueryRowContext(ctx,
		`SELECT `+invitationColumns+` FROM event_invitations WHERE id = $1 AND event_id = $2`, invitationID, eventID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return inv, nil
}

// ListUnacceptedInvitations returns every invitation of eventID that has not
// been accepted, expired ones included.
func (s *Store) ListUnacceptedInvitations(ctx context.Context, eventID int64) ([]*EventInvitation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+invitationColumns+`
		FROM event_invitations
		WHERE event_id = $1 AND accepted_at IS NULL
		ORDER BY created_at, id
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	invs := []*EventInvitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invs = append(invs, inv)
	}
	return invs, rows.Err()
}

// markAccepted consumes the invitation. It only succeeds for the first
// caller: a concurrent or repeated accept matches no row.
func markAccepted(ctx context.Context, q dbtx, invitationID, userID int64, at time.Time) (bool, error) {
	result, err := q.ExecContext(ctx, `
		UPDATE event_invitations
		SET accepted_at = $1, accepted_by = $2
		WHERE id = $3 AND accepted_at IS NULL
	`, at, userID, invitationID)
	if err != nil {
		return false, fmt.Errorf("failed to accept invitation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return affected == 1, nil
}

// DeletePendingInvitation deletes an unaccepted invitation
func (s *Store) DeletePendingInvitation(ctx context.Context, eventID, invitationID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM event_invitations
		WHERE id = $1 AND event_id = $2 AND accepted_at IS NULL
	`, invitationID, eventID)
	if err != nil {
		return false, fmt.Errorf("failed to delete invitation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return affected == 1, nil
}

// DeleteEvent removes an event with its admins and invitations
func (s *Store) DeleteEvent(ctx context.Context, eventID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM event_invitations WHERE event_id = $1`,
		`DELETE FROM event_admins WHERE event_id = $1`,
		`DELETE FROM events WHERE id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, q, eventID); err != nil {
			return fmt.Errorf("failed to delete event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event deletion: %w", err)
	}
	return nil
}
