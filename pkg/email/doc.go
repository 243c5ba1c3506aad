// Package email sends transactional mail through Postmark, or writes it to disk in
// development.
//
// NewSender picks the implementation from Config: Postmark when tokens are set,
// DevSender otherwise. Every sender validates SendEmailParams before sending and
// wraps delivery failures in ErrFailedToSendEmail.
//
//	sender, err := email.NewSender(cfg)
//	if err != nil {
//		return err
//	}
//	body, err := templates.Render(ctx, templates.SecurityAlertEmail(alert))
//	if err != nil {
//		return err
//	}
//	err = sender.SendEmail(ctx, email.SendEmailParams{
//		SendTo:   "user@example.com",
//		Subject:  alert.Title,
//		BodyHTML: body,
//		Tag:      "twofactor-disabled",
//	})
package email
