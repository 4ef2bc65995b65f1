package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/casahub/casahub/internal/domain/job"
)

// Job types carried through the outbox. The worker dispatches on these.
const (
	TypeConfirmationEmail  = "email.confirmation"
	TypePasswordResetEmail = "email.password_reset"
	TypeSessionsCleanup    = "sessions.cleanup"
)

type ConfirmationEmailPayload struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Link   string `json:"link"`
}

type PasswordResetEmailPayload struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Link   string `json:"link"`
}

func NewConfirmationEmail(p ConfirmationEmailPayload) (job.CreateRequest, error) {
	raw, err := json.Marshal(p)

	if err != nil {
		return job.CreateRequest{}, fmt.Errorf("marshal confirmation payload: %w", err)
	}

	// one pending confirmation per user at a time
	key := TypeConfirmationEmail + ":" + p.UserID

	return job.CreateRequest{
		Type:           TypeConfirmationEmail,
		Payload:        raw,
		IdempotencyKey: &key,
	}, nil
}

func NewPasswordResetEmail(p PasswordResetEmailPayload) (job.CreateRequest, error) {
	raw, err := json.Marshal(p)

	if err != nil {
		return job.CreateRequest{}, fmt.Errorf("marshal reset payload: %w", err)
	}

	return job.CreateRequest{
		Type:    TypePasswordResetEmail,
		Payload: raw,
	}, nil
}

func NewSessionsCleanup() job.CreateRequest {
	return job.CreateRequest{
		Type:    TypeSessionsCleanup,
		Payload: json.RawMessage(`{}`),
	}
}

func DecodeConfirmationEmail(raw json.RawMessage) (ConfirmationEmailPayload, error) {
	var p ConfirmationEmailPayload

	err := json.Unmarshal(raw, &p)

	if err != nil {
		return ConfirmationEmailPayload{}, fmt.Errorf("decode confirmation payload: %w", err)
	}

	return p, nil
}

func DecodePasswordResetEmail(raw json.RawMessage) (PasswordResetEmailPayload, error) {
	var p PasswordResetEmailPayload

	err := json.Unmarshal(raw, &p)

	if err != nil {
		return PasswordResetEmailPayload{}, fmt.Errorf("decode reset payload: %w", err)
	}

	return p, nil
}
