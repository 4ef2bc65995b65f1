package session

import (
	"errors"
	"time"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is one ledger row: the single currently-valid login for a
// (user, role) pair. TokenHash is a fingerprint of the bearer token, the
// raw token is never persisted.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Role      string    `json:"role"`
	TokenHash string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s Session) IsExpired(ref time.Time) bool {
	return !ref.Before(s.ExpiresAt)
}
