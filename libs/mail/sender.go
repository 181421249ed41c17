package mail

import (
	"context"
	"errors"
	"strings"
)

// Message is a rendered transactional email.
type Message struct {
	To      string
	ToName  string
	Subject string
	HTML    string
	Text    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
	ProviderID() string
}

// From identifies the sender shown to recipients.
type From struct {
	Name  string
	Email string
}

var DefaultFrom = From{Name: "Master Party", Email: "contacto@masterparty.mx"}

var ErrNoRecipient = errors.New("mail: recipient is required")

type Config struct {
	Provider string
	From     From

	SMTPHost string
	SMTPPort string

	BrevoAPIKey  string
	BrevoBaseURL string
}

// NewFromConfig picks a sender by provider name: smtp, brevo or noop.
func NewFromConfig(cfg Config) (Sender, error) {
	if strings.TrimSpace(cfg.From.Email) == "" {
		cfg.From = DefaultFrom
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "noop":
		return NewNoopSender(), nil
	case "smtp":
		return NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.From), nil
	case "brevo":
		if strings.TrimSpace(cfg.BrevoAPIKey) == "" {
			return nil, errors.New("mail: BREVO_API_KEY is required for the brevo provider")
		}
		return NewBrevoSender(cfg.BrevoBaseURL, cfg.BrevoAPIKey, cfg.From), nil
	default:
		return nil, errors.New("mail: unknown provider " + cfg.Provider)
	}
}

type NoopSender struct{}

func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

func (s *NoopSender) ProviderID() string {
	return "noop"
}

func (s *NoopSender) Send(_ context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return ErrNoRecipient
	}
	return nil
}
