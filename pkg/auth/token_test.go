package auth

import (
	"strings"
	"testing"
)

func TestTokenGenerator_GenerateToken(t *testing.T) {
	tg := NewTokenGenerator()

	token, err := tg.GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	if !strings.HasPrefix(token, InvitationTokenPrefix) {
		t.Errorf("Token should start with %q, got %q", InvitationTokenPrefix, token)
	}

	// 32 bytes base64url without padding = 43 chars
	if got, want := len(token), len(InvitationTokenPrefix)+43; got != want {
		t.Errorf("Token length = %d, want %d", got, want)
	}

	if err := tg.ValidateTokenFormat(token); err != nil {
		t.Errorf("ValidateTokenFormat() on generated token error = %v", err)
	}
}

func TestTokenGenerator_GenerateToken_Uniqueness(t *testing.T) {
	tg := NewTokenGenerator()

	tokens := make(map[string]bool)
	for i := 0; i < 200; i++ {
		token, err := tg.GenerateToken()
		if err != nil {
			t.Fatalf("GenerateToken() error = %v", err)
		}
		if tokens[token] {
			t.Fatalf("Duplicate token generated: %s", token)
		}
		tokens[token] = true
	}
}

func TestTokenGenerator_ValidateTokenFormat(t *testing.T) {
	tg := NewTokenGenerator()

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"missing prefix", "abc", true},
		{"prefix only", InvitationTokenPrefix, true},
		{"bad encoding", InvitationTokenPrefix + "!!!", true},
		{"short payload", InvitationTokenPrefix + "YWJj", true},
		{"valid", InvitationTokenPrefix + strings.Repeat("A", 43), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tg.ValidateTokenFormat(tt.token)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTokenFormat(%q) error = %v, wantErr %v", tt.token, err, tt.wantErr)
			}
		})
	}
}

func TestRedact(t *testing.T) {
	if got := Redact("inv_abcdefghijkl"); got != "inv_abcdef..." {
		t.Errorf("Redact() = %q", got)
	}
	if got := Redact("inv_ab"); got != "***" {
		t.Errorf("Redact() short = %q", got)
	}
}
