// Package auth models authenticated identity for the arena platform.
//
// Credential verification is delegated to ClaimsVerifier, which validates
// HS256 bearer tokens and yields the subject user id. Everything downstream
// works with a Principal: the user id plus the role names and the distinct
// set of permission codes granted by those roles. Principals are resolved by
// the rbac package and passed explicitly into authorization decisions.
//
// TokenGenerator produces the opaque invitation tokens used by the events
// package:
//
//	gen := auth.NewTokenGenerator()
//	token, err := gen.GenerateToken() // inv_<base64url(32 random bytes)>
//
// UserStore resolves accounts by id and by email; invitation acceptance uses
// the email lookup to find the account an invitation was addressed to.
package auth
