// Package session keeps the identity of a logged-in member between requests.
// Handlers resolve a bearer token to a Session and pass its fields explicitly
// into every library operation.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"lendinglibrary/internal/models"
)

// ErrNoSession is returned for unknown, expired or deleted tokens.
var ErrNoSession = errors.New("no such session")

type Session struct {
	Token     string            `json:"token"`
	MemberID  uint              `json:"member_id"`
	Username  string            `json:"username"`
	Role      models.MemberRole `json:"role"`
	CreatedAt time.Time         `json:"created_at"`
}

func (s Session) IsAdmin() bool {
	return s.Role == models.MemberRoleAdmin
}

// New opens a session for member with a fresh random token.
func New(member *models.Member, now time.Time) Session {
	return Session{
		Token:     uuid.NewString(),
		MemberID:  member.ID,
		Username:  member.Username,
		Role:      member.Role,
		CreatedAt: now.UTC(),
	}
}

type Store interface {
	Save(ctx context.Context, s Session) error
	Get(ctx context.Context, token string) (Session, error)
	Delete(ctx context.Context, token string) error
}

type ctxKey struct{}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored by WithSession.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	return s, ok
}
