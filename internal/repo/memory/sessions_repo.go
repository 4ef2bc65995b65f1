package memory

import (
	"context"
	"sync"
	"time"

	"github.com/casahub/casahub/internal/domain/session"
)

// SessionsRepo is an in-process ledger with the same contract as the
// postgres one. Used by handler tests and the invariant tests; the map is
// keyed by (user, role) so a replace can never leave two rows behind.
type SessionsRepo struct {
	mu         sync.RWMutex
	byIdentity map[string]session.Session // key: userID + "|" + role
	byHash     map[string]string          // token hash -> identity key
}

func NewSessionsRepo() *SessionsRepo {
	return &SessionsRepo{
		byIdentity: make(map[string]session.Session),
		byHash:     make(map[string]string),
	}
}

func identityKey(userID, role string) string {
	return userID + "|" + role
}

func (r *SessionsRepo) FindActive(_ context.Context, userID, role string) ([]session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byIdentity[identityKey(userID, role)]

	if !ok {
		return nil, nil
	}

	return []session.Session{s}, nil
}

func (r *SessionsRepo) Replace(_ context.Context, s session.Session) error {
	key := identityKey(s.UserID, s.Role)

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byIdentity[key]; ok {
		delete(r.byHash, prev.TokenHash)
	}

	r.byIdentity[key] = s
	r.byHash[s.TokenHash] = key

	return nil
}

func (r *SessionsRepo) FindByTokenHash(_ context.Context, tokenHash string) (session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key, ok := r.byHash[tokenHash]

	if !ok {
		return session.Session{}, session.ErrSessionNotFound
	}

	return r.byIdentity[key], nil
}

func (r *SessionsRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, s := range r.byIdentity {
		if s.ID == id {
			delete(r.byIdentity, key)
			delete(r.byHash, s.TokenHash)
			return nil
		}
	}

	// idempotent: already gone
	return nil
}

func (r *SessionsRepo) DeleteExpired(_ context.Context) (int64, error) {
	now := time.Now().UTC()
	var removed int64

	r.mu.Lock()
	defer r.mu.Unlock()

	for key, s := range r.byIdentity {
		if s.IsExpired(now) {
			delete(r.byIdentity, key)
			delete(r.byHash, s.TokenHash)
			removed++
		}
	}

	return removed, nil
}

// Count reports the number of ledger rows; test helper.
func (r *SessionsRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byIdentity)
}
