package twofactor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dmitrymomot/twofactor/pkg/broadcast"
	"github.com/dmitrymomot/twofactor/pkg/email"
	"github.com/dmitrymomot/twofactor/pkg/email/templates"
	"github.com/dmitrymomot/twofactor/pkg/logger"
)

const notSelfAction = "If this was not you, reset your password and contact support immediately."

// Notifier mails the account owner about security events.
type Notifier struct {
	sender   email.EmailSender
	accounts AccountDirectory
	log      *slog.Logger
}

func NewNotifier(sender email.EmailSender, accounts AccountDirectory, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Notifier{
		sender:   sender,
		accounts: accounts,
		log:      log.With(logger.Component("twofactor.notifier")),
	}
}

// Run delivers events from sub until ctx is done or the subscription is closed.
// Delivery errors are logged and do not stop the loop.
func (n *Notifier) Run(ctx context.Context, sub broadcast.Subscriber[SecurityEvent]) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Receive():
			if !ok {
				return
			}
			if err := n.Notify(ctx, msg.Data); err != nil {
				n.log.ErrorContext(ctx, "security alert not sent",
					logger.Event(string(msg.Data.Type)),
					logger.AccountID(msg.Data.AccountID),
					logger.Error(err),
				)
			}
		}
	}
}

// Notify sends one alert for ev. Event types without an alert are ignored.
func (n *Notifier) Notify(ctx context.Context, ev SecurityEvent) error {
	alert, subject, ok := alertFor(ev)
	if !ok {
		return nil
	}

	acc, err := n.accounts.GetAccountByID(ctx, ev.AccountID)
	if err != nil {
		return fmt.Errorf("lookup account: %w", err)
	}
	body, err := templates.Render(ctx, templates.SecurityAlertEmail(alert))
	if err != nil {
		return fmt.Errorf("render alert: %w", err)
	}

	return n.sender.SendEmail(ctx, email.SendEmailParams{
		SendTo:   acc.Email,
		Subject:  subject,
		BodyHTML: body,
		Tag:      string(ev.Type),
	})
}

func alertFor(ev SecurityEvent) (templates.SecurityAlert, string, bool) {
	a := templates.SecurityAlert{OccurredAt: ev.OccurredAt, Action: notSelfAction}
	switch ev.Type {
	case EventEnabled:
		a.Title = "Two-factor authentication enabled"
		a.Summary = "Two-factor authentication was turned on for your account."
	case EventDisabled:
		a.Title = "Two-factor authentication disabled"
		a.Summary = "Two-factor authentication was turned off for your account."
	case EventBackupCodesRegenerated:
		a.Title = "New backup codes generated"
		a.Summary = "A new set of backup codes was generated. Your previous codes no longer work."
	case EventBackupCodeUsed:
		a.Title = "Backup code used to sign in"
		a.Summary = fmt.Sprintf("A backup code was used to sign in. %d backup codes remain.", ev.Remaining)
	case EventLockedOut:
		a.Title = "Sign-in temporarily locked"
		a.Summary = fmt.Sprintf("Too many incorrect two-factor codes were entered. Verification is locked for %s.", ev.RetryAfter.Round(time.Second))
	default:
		return a, "", false
	}
	return a, a.Title, true
}
