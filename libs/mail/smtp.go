package mail

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
)

// SMTPSender sends email via unauthenticated SMTP (Mailpit-compatible).
type SMTPSender struct {
	addr string
	from From
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(host string, port string, from From) *SMTPSender {
	host = strings.TrimSpace(host)
	port = strings.TrimSpace(port)
	if strings.TrimSpace(from.Email) == "" {
		from = DefaultFrom
	}
	return &SMTPSender{
		addr: fmt.Sprintf("%s:%s", host, port),
		from: from,
		send: smtp.SendMail,
	}
}

func (s *SMTPSender) ProviderID() string {
	return "smtp"
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.send(s.addr, nil, s.from.Email, []string{msg.To}, buildMessage(s.from, msg))
}

func buildMessage(from From, msg Message) []byte {
	contentType := "text/plain"
	body := msg.Text
	if msg.HTML != "" {
		contentType = "text/html"
		body = msg.HTML
	}
	to := msg.To
	if msg.ToName != "" {
		to = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", msg.ToName), msg.To)
	}
	// Minimal RFC 5322 message; enough for Mailpit and most SMTP relays.
	return []byte(fmt.Sprintf(
		"From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: %s; charset=utf-8\r\n\r\n%s\r\n",
		mime.QEncoding.Encode("utf-8", from.Name),
		from.Email,
		to,
		mime.QEncoding.Encode("utf-8", msg.Subject),
		contentType,
		body,
	))
}
