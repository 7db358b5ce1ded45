package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultLeeway absorbs clock skew between issuer and verifier
const DefaultLeeway = 30 * time.Second

// Claims is the payload of a bearer credential. Roles and permissions are
// carried for clients; authorization always re-resolves them from storage.
type Claims struct {
	Email       string   `json:"email,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// UserID parses the subject as a numeric user id
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid subject %q", c.Subject)
	}
	return id, nil
}

// ClaimsVerifier verifies HS256 bearer credentials and issues them for
// development tooling.
type ClaimsVerifier struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// NewClaimsVerifier creates a verifier for the given shared secret and issuer
func NewClaimsVerifier(secret, issuer string) (*ClaimsVerifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &ClaimsVerifier{
		secret: []byte(secret),
		issuer: issuer,
		leeway: DefaultLeeway,
		now:    time.Now,
	}, nil
}

// WithClock replaces the verifier's time source
func (v *ClaimsVerifier) WithClock(now func() time.Time) *ClaimsVerifier {
	v.now = now
	return v
}

// Verify parses and validates a raw credential
func (v *ClaimsVerifier) Verify(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to verify credential: %w", err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid credential claims")
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}

// Sign issues a credential for the user valid for ttl
func (v *ClaimsVerifier) Sign(user *User, roles, permissions []string, ttl time.Duration) (string, error) {
	if user == nil || user.ID <= 0 {
		return "", errors.New("user is required")
	}
	now := v.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email:       user.Email,
		Roles:       roles,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(v.secret)
}
