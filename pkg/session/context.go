package session

import (
	"context"
	"errors"
)

// ErrMissingSessionContext is returned when an operation requires a session
// context but none is present on the context.Context.
var ErrMissingSessionContext = errors.New("missing session context")

// contextKey is a private type for context keys to avoid collisions
type contextKey int

const (
	// sessionContextKey is the key for storing a session.Context in a context.Context
	sessionContextKey contextKey = iota
)

// ContextWithSession adds a full session.Context to a context.Context.
func ContextWithSession(ctx context.Context, sessCtx Context) context.Context {
	return context.WithValue(ctx, sessionContextKey, sessCtx)
}

// ContextWithSessionID adds a session ID (with no user) to a context.Context.
func ContextWithSessionID(ctx context.Context, sessionID ID) context.Context {
	return context.WithValue(ctx, sessionContextKey, Context{SessionID: sessionID})
}

// GetSessionContext retrieves the session.Context from a context.Context.
// If no session.Context is found, it returns a zero-valued Context and false.
func GetSessionContext(ctx context.Context) (Context, bool) {
	sessCtx, ok := ctx.Value(sessionContextKey).(Context)
	return sessCtx, ok
}

// MustGetSessionContext retrieves the session.Context from a context.Context.
// Panics if no session.Context is found, so only use when you are sure one exists.
func MustGetSessionContext(ctx context.Context) Context {
	sessCtx, ok := GetSessionContext(ctx)
	if !ok {
		panic("session.Context not found in context.Context")
	}
	return sessCtx
}
