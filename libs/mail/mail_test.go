package mail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
)

func TestLeadWaitlist(t *testing.T) {
	msg, err := LeadWaitlist("ana@example.com")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if msg.Subject != LeadWaitlistSubject {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	if !strings.Contains(msg.HTML, "#8B5CF6") || !strings.Contains(msg.HTML, "¡Estás en la lista!") {
		t.Fatalf("unexpected html: %s", msg.HTML)
	}
	if msg.Text == "" {
		t.Fatal("expected text alternative")
	}
}

func TestBookingTemplatesEscapeInput(t *testing.T) {
	msg, err := BookingRequested("vendor@example.com", BookingDetails{
		ServiceName:  "<script>x</script>",
		BusinessName: "Salón Luna",
		PackageName:  "Básico",
		BookingDate:  "2030-05-01",
		TimeSlots:    []string{"10:00", "10:30", "11:00"},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(msg.HTML, "<script>") {
		t.Fatal("expected service name to be escaped")
	}
	if !strings.Contains(msg.Text, "2030-05-01 de 10:00 a 11:30") {
		t.Fatalf("unexpected text: %s", msg.Text)
	}
}

func TestSlotEnd(t *testing.T) {
	cases := map[string]string{"10:00": "10:30", "10:30": "11:00", "23:30": "00:00", "bad": "bad"}
	for in, want := range cases {
		if got := slotEnd(in); got != want {
			t.Fatalf("slotEnd(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBrevoSender(t *testing.T) {
	var got brevoRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/smtp/email" || r.Header.Get("api-key") != "k-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sender := NewBrevoSender(srv.URL, "k-1", DefaultFrom)
	if err := sender.Send(context.Background(), Message{To: "ana@example.com", Subject: "hola", HTML: "<p>hola</p>"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.Sender.Email != "contacto@masterparty.mx" || len(got.To) != 1 || got.To[0].Email != "ana@example.com" {
		t.Fatalf("unexpected payload: %+v", got)
	}

	bad := NewBrevoSender(srv.URL, "wrong", DefaultFrom)
	err := bad.Send(context.Background(), Message{To: "ana@example.com"})
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestSMTPSenderBuildsMessage(t *testing.T) {
	s := NewSMTPSender("mailpit", "1025", DefaultFrom)
	var raw []byte
	var rcpt []string
	s.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		if addr != "mailpit:1025" || from != "contacto@masterparty.mx" {
			t.Fatalf("unexpected envelope %s %s", addr, from)
		}
		rcpt = to
		raw = msg
		return nil
	}
	if err := s.Send(context.Background(), Message{To: "ana@example.com", Subject: "Hola", HTML: "<p>x</p>"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(rcpt) != 1 || rcpt[0] != "ana@example.com" {
		t.Fatalf("unexpected recipients %v", rcpt)
	}
	if !strings.Contains(string(raw), "Content-Type: text/html; charset=utf-8") {
		t.Fatalf("expected html content type: %s", raw)
	}
	if err := s.Send(context.Background(), Message{}); err != ErrNoRecipient {
		t.Fatalf("expected ErrNoRecipient, got %v", err)
	}
}

func TestNewFromConfig(t *testing.T) {
	cases := []struct {
		provider string
		want     string
		wantErr  bool
	}{
		{"", "noop", false},
		{"SMTP", "smtp", false},
		{"brevo", "", true},
		{"carrier-pigeon", "", true},
	}
	for _, tc := range cases {
		s, err := NewFromConfig(Config{Provider: tc.provider})
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.provider)
			}
			continue
		}
		if err != nil || s.ProviderID() != tc.want {
			t.Fatalf("%q: got %v, %v", tc.provider, s, err)
		}
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("MAIL_PROVIDER", "brevo")
	t.Setenv("BREVO_API_KEY", "k-2")
	t.Setenv("MAIL_FROM_EMAIL", "")
	cfg := ConfigFromEnv()
	if cfg.Provider != "brevo" || cfg.BrevoAPIKey != "k-2" || cfg.From.Email != DefaultFrom.Email {
		t.Fatalf("unexpected config %+v", cfg)
	}
	s, err := NewFromConfig(cfg)
	if err != nil || s.ProviderID() != "brevo" {
		t.Fatalf("expected brevo sender, got %v, %v", s, err)
	}
}
