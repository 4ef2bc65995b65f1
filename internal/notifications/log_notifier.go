package notifications

import (
	"context"
	"log/slog"
)

// LogNotifier stands in when no mail provider is configured (dev, tests).
// The link lands in the logs, which is exactly what you want locally.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendConfirmationEmail(ctx context.Context, to, name, link string) error {
	n.log.InfoContext(ctx, "confirmation email (log only)", "to", to, "name", name, "link", link)
	return nil
}

func (n *LogNotifier) SendPasswordResetEmail(ctx context.Context, to, name, link string) error {
	n.log.InfoContext(ctx, "password reset email (log only)", "to", to, "name", name, "link", link)
	return nil
}
