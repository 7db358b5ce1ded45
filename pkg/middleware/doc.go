// Package middleware provides HTTP middleware for authentication and rate limiting.
//
// # Authentication
//
// AuthMiddleware verifies the bearer credential, resolves the caller's
// principal from storage and stores an *auth.AuthContext on the request:
//
//	authn := middleware.NewAuthMiddleware(verifier, resolver, false)
//	router.Use(authn.Handler)
//
// Handlers read the principal back with PrincipalFrom(r.Context()) and pass it
// explicitly to authorization-sensitive calls.
//
// # Rate limiting
//
// RateLimitMiddleware keeps token buckets in process memory, keyed by user id
// for authenticated callers and client IP otherwise. DistributedRateLimitMiddleware
// keeps fixed-window counters in Redis so that limits hold across instances; it is
// applied to invitation acceptance and fails open when Redis is unreachable.
package middleware
