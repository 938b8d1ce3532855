// Package identity derives the request-scoped caller identity from the
// Authorization header.
//
// Extraction never fails a request: a missing header, a non-bearer scheme or a
// token that does not verify all yield the anonymous identity. Operations that
// need a caller decide for themselves how to reject an anonymous one.
package identity

import (
	"context"
)

// Identity is the caller of one request. The zero value is anonymous.
type Identity struct {
	UserID  string
	Token   string
	IsAdmin bool
}

// Anonymous returns the identity of an unauthenticated caller
func Anonymous() Identity {
	return Identity{}
}

// IsAnonymous reports whether no user was resolved from the request
func (i Identity) IsAnonymous() bool {
	return i.UserID == "" && i.Token == ""
}

// HasToken reports whether the caller presented a verified bearer token
func (i Identity) HasToken() bool {
	return i.Token != ""
}

type contextKey int

const (
	identityKey contextKey = iota
	clientAddrKey
)

// WithIdentity returns a copy of ctx carrying id
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext returns the identity stored in ctx, or Anonymous
func FromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(identityKey).(Identity); ok {
		return id
	}
	return Anonymous()
}

// WithClientAddr returns a copy of ctx carrying the caller's network address
func WithClientAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, clientAddrKey, addr)
}

// ClientAddr returns the caller's network address stored in ctx, or ""
func ClientAddr(ctx context.Context) string {
	addr, _ := ctx.Value(clientAddrKey).(string)
	return addr
}
