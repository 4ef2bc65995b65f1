package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/mailgun/mailgun-go/v4"
)

const sendTimeout = 15 * time.Second

type MailgunNotifier struct {
	mg     *mailgun.MailgunImpl
	sender string
}

func NewMailgunNotifier(domain, apiKey, sender string) *MailgunNotifier {
	return &MailgunNotifier{
		mg:     mailgun.NewMailgun(domain, apiKey),
		sender: sender,
	}
}

func (n *MailgunNotifier) SendConfirmationEmail(ctx context.Context, to, name, link string) error {
	subject := "Confirm your email address"

	body := fmt.Sprintf(
		"Hi %s,\n\nWelcome! Please confirm your email address by opening the link below:\n\n%s\n\nThe link is valid for 24 hours.\n",
		name, link,
	)

	return n.send(ctx, to, subject, body)
}

func (n *MailgunNotifier) SendPasswordResetEmail(ctx context.Context, to, name, link string) error {
	subject := "Reset your password"

	body := fmt.Sprintf(
		"Hi %s,\n\nA password reset was requested for your account. Open the link below to choose a new password:\n\n%s\n\nThe link is valid for 30 minutes. If you didn't ask for this, you can ignore this email.\n",
		name, link,
	)

	return n.send(ctx, to, subject, body)
}

func (n *MailgunNotifier) send(ctx context.Context, to, subject, body string) error {
	sctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	msg := n.mg.NewMessage(n.sender, subject, body, to)

	_, _, err := n.mg.Send(sctx, msg)

	if err != nil {
		return fmt.Errorf("mailgun send: %w", err)
	}

	return nil
}
