// ABOUTME: Package documentation for the auth package
// ABOUTME: Describes bearer-token identity and conversation entitlement

// Package auth provides request authentication and conversation entitlement.
//
// Identity comes from HS256-signed bearer JWTs (the "sub" claim is the user
// id). When no JWT secret is configured the server runs single-tenant and
// every request carries the anonymous identity. Entitlement is ownership:
// a conversation with an owner is private to that owner, one without is open.
package auth
