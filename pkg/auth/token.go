package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	// InvitationTokenPrefix identifies invitation tokens
	InvitationTokenPrefix = "inv_"
	// TokenLength is the number of random bytes (32 bytes = 256 bits)
	TokenLength = 32
)

// TokenGenerator produces opaque, unguessable tokens
type TokenGenerator struct {
	prefix string
}

// NewTokenGenerator creates a token generator for invitation tokens
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{prefix: InvitationTokenPrefix}
}

// GenerateToken creates a new token
// Format: inv_<base64url(32 random bytes)>
func (tg *TokenGenerator) GenerateToken() (string, error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return tg.prefix + base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

// ValidateTokenFormat checks if a token has the correct format
func (tg *TokenGenerator) ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, tg.prefix) {
		return fmt.Errorf("token must start with %q", tg.prefix)
	}

	encodedPart := strings.TrimPrefix(token, tg.prefix)
	if len(encodedPart) == 0 {
		return fmt.Errorf("token is too short")
	}

	decoded, err := base64.RawURLEncoding.DecodeString(encodedPart)
	if err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}
	if len(decoded) != TokenLength {
		return fmt.Errorf("token has %d bytes, want %d", len(decoded), TokenLength)
	}

	return nil
}

// Redact returns a short, loggable form of a token
func Redact(token string) string {
	if len(token) <= len(InvitationTokenPrefix)+6 {
		return "***"
	}
	return token[:len(InvitationTokenPrefix)+6] + "..."
}
