package auth

import (
	"context"
	"slices"
	"time"
)

// Session is the authenticated caller of a single request. It is created by
// the auth middleware and travels with the request context.
type Session struct {
	UserID    string
	Username  string
	Type      TokenType
	ExpiresAt time.Time
}

func (s *Session) HasType(types ...TokenType) bool {
	return s != nil && slices.Contains(types, s.Type)
}

type sessionKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}
