package notifications

import "context"

// Notifier sends the transactional mail the auth flows depend on. The
// worker renders job payloads into these calls.
type Notifier interface {
	SendConfirmationEmail(ctx context.Context, to, name, link string) error
	SendPasswordResetEmail(ctx context.Context, to, name, link string) error
}
