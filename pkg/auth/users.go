package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/arena/pkg/apperrors"
)

// UserStore reads accounts. Account management itself lives outside the
// access-control core; the core only needs to resolve users by id and email.
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a new user store
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, username, email, full_name, is_active, created_at, updated_at`

// GetUser retrieves a user by id
func (s *UserStore) GetUser(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("user not found: %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email, ignoring case
func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return getUserByEmail(ctx, s.db, email)
}

// GetUserByEmailTx is GetUserByEmail inside an open transaction
func (s *UserStore) GetUserByEmailTx(ctx context.Context, tx *sql.Tx, email string) (*User, error) {
	return getUserByEmail(ctx, tx, email)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getUserByEmail(ctx context.Context, q queryRower, email string) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, apperrors.Validation("email is required")
	}
	row := q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = $1`, email)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("no account for email %s", email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// CreateUser inserts an account. Used by seeding and tests.
func (s *UserStore) CreateUser(ctx context.Context, user *User) error {
	now := time.Now().UTC()
	user.Email = NormalizeEmail(user.Email)
	user.CreatedAt, user.UpdatedAt = now, now
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, full_name, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, user.Username, user.Email, user.FullName, user.IsActive, now, now).Scan(&user.ID)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func scanUser(row *sql.Row) (*User, error) {
	var user User
	var fullName sql.NullString
	if err := row.Scan(&user.ID, &user.Username, &user.Email, &fullName, &user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return nil, err
	}
	user.FullName = fullName.String
	return &user, nil
}

// NormalizeEmail trims and lowercases an address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
