package auth

import (
	"context"
	"errors"
)

// ErrNoSession is returned when a request carries no authenticated session.
var ErrNoSession = errors.New("no authenticated session")

// Session is the identity of the caller, passed explicitly to every
// component that needs it.
type Session struct {
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
}

// Valid reports whether the session identifies a user.
func (s Session) Valid() bool {
	return s.UserID != ""
}

type sessionKey struct{}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext extracts the session placed by WithSession.
func FromContext(ctx context.Context) (Session, error) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	if !ok || !s.Valid() {
		return Session{}, ErrNoSession
	}
	return s, nil
}
