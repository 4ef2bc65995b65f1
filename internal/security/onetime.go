package security

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

type Purpose string

const (
	PurposeConfirmEmail  Purpose = "confirm_email"
	PurposeResetPassword Purpose = "reset_password"
)

const (
	ConfirmTokenTTL = 24 * time.Hour
	ResetTokenTTL   = 30 * time.Minute
)

var ErrTokenInvalid = errors.New("token invalid or already used")

// TokenStore is the little KV surface the one-time token flow needs.
// Take must remove the value in the same step it reads it — that is what
// makes the tokens single use under concurrent presentation.
type TokenStore interface {
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Take(ctx context.Context, key string) (string, error) // ErrTokenInvalid when absent
}

// OneTimeTokens issues purpose-bound opaque capability strings (email
// confirmation, password reset). Only a fingerprint of the token is stored,
// the raw value travels in the emailed link.
type OneTimeTokens struct {
	store TokenStore
}

func NewOneTimeTokens(store TokenStore) *OneTimeTokens {
	return &OneTimeTokens{store: store}
}

func (t *OneTimeTokens) Issue(ctx context.Context, purpose Purpose, userID, role string, ttl time.Duration) (string, error) {
	raw := make([]byte, 32)

	_, err := rand.Read(raw)

	if err != nil {
		return "", err
	}

	token := hex.EncodeToString(raw)

	err = t.store.Put(ctx, tokenKey(purpose, token), userID+"|"+role, ttl)

	if err != nil {
		return "", err
	}

	return token, nil
}

// Consume validates and invalidates in one step. A second presentation of
// the same token fails, as does a token bound to a different identity.
func (t *OneTimeTokens) Consume(ctx context.Context, purpose Purpose, token, userID, role string) error {
	if token == "" {
		return ErrTokenInvalid
	}

	bound, err := t.store.Take(ctx, tokenKey(purpose, token))

	if err != nil {
		return err
	}

	if bound != userID+"|"+role {
		return ErrTokenInvalid
	}

	return nil
}

func tokenKey(purpose Purpose, token string) string {
	sum := sha256.Sum256([]byte(token))
	return "otp:" + string(purpose) + ":" + hex.EncodeToString(sum[:])
}
