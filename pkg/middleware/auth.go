package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/platinummonkey/arena/pkg/auth"
	"github.com/platinummonkey/arena/pkg/contextkeys"
	"github.com/platinummonkey/arena/pkg/httputil"
	"github.com/platinummonkey/arena/pkg/observability"
)

// CredentialVerifier turns a raw bearer credential into verified claims.
type CredentialVerifier interface {
	Verify(raw string) (*auth.Claims, error)
}

// PrincipalResolver loads the roles and permissions of an authenticated user.
type PrincipalResolver interface {
	Resolve(ctx context.Context, userID int64) (*auth.Principal, error)
}

// AuthMiddleware authenticates bearer credentials and attaches an
// *auth.AuthContext to the request.
type AuthMiddleware struct {
	verifier CredentialVerifier
	resolver PrincipalResolver
	optional bool // If true, allow requests without auth
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(verifier CredentialVerifier, resolver PrincipalResolver, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		resolver: resolver,
		optional: optional,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Format: "Bearer <token>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		scheme, raw, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		claims, err := m.verifier.Verify(strings.TrimSpace(raw))
		if err != nil {
			observability.FromContext(r.Context()).WithError(err).Debug("rejected bearer credential")
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		principal, err := m.resolver.Resolve(r.Context(), userID)
		if err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}

		ctx := contextkeys.WithAuth(r.Context(), &auth.AuthContext{Claims: claims, Principal: principal})
		ctx = contextkeys.WithUserID(ctx, strconv.FormatInt(userID, 10))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAuthContext extracts auth context from request
func GetAuthContext(r *http.Request) *auth.AuthContext {
	return AuthContextFrom(r.Context())
}

// AuthContextFrom extracts the auth context from ctx.
func AuthContextFrom(ctx context.Context) *auth.AuthContext {
	authCtx, ok := ctx.Value(contextkeys.AuthKey).(*auth.AuthContext)
	if !ok {
		return nil
	}
	return authCtx
}

// PrincipalFrom returns the resolved principal stored in ctx, or nil.
func PrincipalFrom(ctx context.Context) *auth.Principal {
	authCtx := AuthContextFrom(ctx)
	if authCtx == nil {
		return nil
	}
	return authCtx.Principal
}

// RequireAuthenticated rejects requests that carry no principal.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFrom(r.Context()) == nil {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
