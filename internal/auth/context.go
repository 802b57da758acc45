// ABOUTME: Identity propagation through request contexts
// ABOUTME: Provides WithIdentity/FromContext for handlers downstream of the middleware

package auth

import (
	"context"
)

// Identity holds the authenticated caller extracted from a request. In
// single-tenant mode there is exactly one implicit caller and Anonymous is
// set; UserID is empty then.
type Identity struct {
	UserID    string
	Anonymous bool
}

// identityKey is the key type for storing Identity in context.Context.
type identityKey struct{}

// WithIdentity returns a new context with the Identity attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext retrieves the Identity from the context, returning nil if not present.
func FromContext(ctx context.Context) *Identity {
	val := ctx.Value(identityKey{})
	if val == nil {
		return nil
	}
	id, ok := val.(*Identity)
	if !ok {
		return nil
	}
	return id
}
