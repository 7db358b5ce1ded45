package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/arena/pkg/auth"
	"github.com/platinummonkey/arena/pkg/contextkeys"
)

type stubResolver struct {
	principals map[int64]*auth.Principal
	err        error
	calls      int
}

func (s *stubResolver) Resolve(ctx context.Context, userID int64) (*auth.Principal, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if p, ok := s.principals[userID]; ok {
		return p, nil
	}
	return auth.NewPrincipal(userID, nil, nil), nil
}

// withPrincipal sets auth context in request for testing
func withPrincipal(r *http.Request, p *auth.Principal) *http.Request {
	ctx := contextkeys.WithAuth(r.Context(), &auth.AuthContext{Principal: p})
	return r.WithContext(ctx)
}

func newVerifier(t *testing.T) *auth.ClaimsVerifier {
	t.Helper()
	v, err := auth.NewClaimsVerifier("test-secret", "arena")
	require.NoError(t, err)
	return v
}

func signFor(t *testing.T, v *auth.ClaimsVerifier, userID int64) string {
	t.Helper()
	token, err := v.Sign(&auth.User{ID: userID, Email: "u@example.com"}, []string{"Viewer"}, nil, time.Hour)
	require.NoError(t, err)
	return token
}

func captureHandler(seen **auth.AuthContext) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = GetAuthContext(r)
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	verifier := newVerifier(t)
	resolver := &stubResolver{principals: map[int64]*auth.Principal{
		7: auth.NewPrincipal(7, []string{"EventAdmin"}, []string{"events.view"}),
	}}
	m := NewAuthMiddleware(verifier, resolver, false)

	var seen *auth.AuthContext
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signFor(t, verifier, 7))
	rec := httptest.NewRecorder()
	m.Handler(captureHandler(&seen)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, int64(7), seen.UserID())
	assert.True(t, seen.Principal.HasPermission("events.view"))
	// Permissions come from the resolver, not from the credential.
	assert.False(t, seen.Principal.HasRole("Viewer"))
	assert.Equal(t, 1, resolver.calls)
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	m := NewAuthMiddleware(newVerifier(t), &stubResolver{}, false)

	var seen *auth.AuthContext
	rec := httptest.NewRecorder()
	m.Handler(captureHandler(&seen)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, seen)
}

func TestAuthMiddleware_OptionalWithoutHeader(t *testing.T) {
	m := NewAuthMiddleware(newVerifier(t), &stubResolver{}, true)

	var seen *auth.AuthContext
	rec := httptest.NewRecorder()
	m.Handler(captureHandler(&seen)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, seen)
}

func TestAuthMiddleware_RejectsBadCredentials(t *testing.T) {
	verifier := newVerifier(t)
	other, err := auth.NewClaimsVerifier("other-secret", "arena")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"wrong scheme", "Basic abc"},
		{"no token", "Bearer "},
		{"garbage", "Bearer not-a-jwt"},
		{"wrong secret", "Bearer " + signFor(t, other, 7)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &stubResolver{}
			m := NewAuthMiddleware(verifier, resolver, true)

			var seen *auth.AuthContext
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()
			m.Handler(captureHandler(&seen)).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Nil(t, seen)
			assert.Zero(t, resolver.calls)
		})
	}
}

func TestAuthMiddleware_ResolverFailure(t *testing.T) {
	verifier := newVerifier(t)
	m := NewAuthMiddleware(verifier, &stubResolver{err: errors.New("db down")}, false)

	var seen *auth.AuthContext
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signFor(t, verifier, 7))
	rec := httptest.NewRecorder()
	m.Handler(captureHandler(&seen)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Nil(t, seen)
}

func TestRequireAuthenticated(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	rec := httptest.NewRecorder()
	RequireAuthenticated(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := withPrincipal(httptest.NewRequest(http.MethodGet, "/", nil), auth.NewPrincipal(3, nil, nil))
	RequireAuthenticated(ok).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPrincipalFrom(t *testing.T) {
	assert.Nil(t, PrincipalFrom(context.Background()))

	p := auth.NewPrincipal(9, nil, []string{"events.view"})
	ctx := contextkeys.WithAuth(context.Background(), &auth.AuthContext{Principal: p})
	assert.Same(t, p, PrincipalFrom(ctx))
}
