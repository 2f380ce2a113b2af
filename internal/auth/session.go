// Package auth resolves the user a write is made for. Session management
// itself lives outside this service.
package auth

import (
	"context"
	"strings"
)

// Session identifies the authenticated actor.
type Session struct {
	UserID string
}

// SessionProvider returns the current session, if any.
type SessionProvider interface {
	Session(ctx context.Context) (Session, bool)
}

type ctxKey struct{}

// WithSession attaches s to ctx.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session attached by WithSession.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	return s, ok && s.UserID != ""
}

// Static serves a fixed user, falling back to it when the context carries
// no session. An empty user id means nobody is signed in.
type Static struct {
	userID string
}

func NewStatic(userID string) *Static {
	return &Static{userID: strings.TrimSpace(userID)}
}

func (s *Static) Session(ctx context.Context) (Session, bool) {
	if sess, ok := FromContext(ctx); ok {
		return sess, true
	}
	if s.userID == "" {
		return Session{}, false
	}
	return Session{UserID: s.userID}, true
}
