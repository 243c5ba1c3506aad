package email

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// EmailSender represents an interface for sending emails.
type EmailSender interface {
	SendEmail(ctx context.Context, params SendEmailParams) error
}

// SendEmailParams represents the parameters for sending an email.
type SendEmailParams struct {
	SendTo   string `json:"send_to"`       // Email address of the recipient
	Subject  string `json:"subject"`       // Subject of the email
	BodyHTML string `json:"body_html"`     // HTML body of the email
	Tag      string `json:"tag,omitempty"` // Optional
}

func (p SendEmailParams) Validate() error {
	var errs []error
	if err := validAddress(p.SendTo); err != nil {
		errs = append(errs, fmt.Errorf("send_to: %w", err))
	}
	if strings.TrimSpace(p.Subject) == "" {
		errs = append(errs, errors.New("subject is required"))
	}
	if strings.TrimSpace(p.BodyHTML) == "" {
		errs = append(errs, errors.New("body_html is required"))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidParams}, errs...)...)
	}
	return nil
}

// NewSender returns a Postmark sender when tokens are configured and a DevSender otherwise.
func NewSender(cfg Config) (EmailSender, error) {
	if cfg.postmarkEnabled() {
		return NewPostmarkClient(cfg)
	}
	return NewDevSender(cfg.DevDir), nil
}

func validAddress(addr string) error {
	if addr == "" {
		return errors.New("address is required")
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return err
	}
	// Display names are not accepted: the field must be a bare address.
	if parsed.Address != addr {
		return fmt.Errorf("%q is not a bare address", addr)
	}
	return nil
}
