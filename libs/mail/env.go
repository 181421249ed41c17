package mail

import "github.com/masterparty/platform/libs/config"

// ConfigFromEnv reads MAIL_PROVIDER, MAIL_FROM_*, SMTP_* and BREVO_* variables.
func ConfigFromEnv() Config {
	return Config{
		Provider: config.String("MAIL_PROVIDER", "noop"),
		From: From{
			Name:  config.String("MAIL_FROM_NAME", DefaultFrom.Name),
			Email: config.String("MAIL_FROM_EMAIL", DefaultFrom.Email),
		},
		SMTPHost:     config.String("SMTP_HOST", "mailpit"),
		SMTPPort:     config.String("SMTP_PORT", "1025"),
		BrevoAPIKey:  config.String("BREVO_API_KEY", ""),
		BrevoBaseURL: config.String("BREVO_BASE_URL", DefaultBrevoBaseURL),
	}
}
