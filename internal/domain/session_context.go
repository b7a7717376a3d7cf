package domain

import (
	"context"
	"errors"
)

type contextKey string

const sessionContextKey contextKey = "kratos_echo_session"

// ErrNoSession is returned when no session is attached to the context.
var ErrNoSession = errors.New("no session in context")

// WithSession attaches a session to the given context.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// SessionFromContext retrieves the session from the given context.
func SessionFromContext(ctx context.Context) (*Session, error) {
	s, ok := ctx.Value(sessionContextKey).(*Session)
	if !ok || s == nil {
		return nil, ErrNoSession
	}
	return s, nil
}
