package email

// Config holds email service configuration.
// Without Postmark tokens NewSender falls back to the development sender that
// writes messages to DevDir.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL" envDefault:"security@localhost"`
	SupportEmail         string `env:"SUPPORT_EMAIL" envDefault:"support@localhost"`
	DevDir               string `env:"EMAIL_DEV_DIR" envDefault:"./tmp/emails"`
}

func (c Config) postmarkEnabled() bool {
	return c.PostmarkServerToken != "" || c.PostmarkAccountToken != ""
}
