package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v5"
	"github.com/masterparty/platform/libs/mail"
	"github.com/masterparty/platform/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

type fakeSender struct {
	mu       sync.Mutex
	failures int
	sent     []mail.Message
	attempts int
}

func (f *fakeSender) ProviderID() string { return "fake" }

func (f *fakeSender) Send(_ context.Context, msg mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failures > 0 {
		f.failures--
		return errors.New("relay unavailable")
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeStore struct {
	records []storage.Notification
	err     error
}

func (f *fakeStore) Record(_ context.Context, n storage.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, n)
	return nil
}

const payload = `{"booking_id":"b-1","service_name":"Salón Luna","business_name":"Luna Eventos","package_name":"Básico",` +
	`"booking_date":"2030-06-02","time_slots":["18:00","18:30"],"vendor_email":"vendor@example.mx","client_email":"client@example.mx"}`

func message(topic, value string) kafka.Message {
	return kafka.Message{
		Topic: topic,
		Value: []byte(value),
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte("evt-" + topic)},
			{Key: "event_type", Value: []byte(topic)},
		},
	}
}

func newDispatcher(sender mail.Sender, store Store) *Dispatcher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(sender, store, logger, Options{Backoff: &backoff.ZeroBackOff{}})
}

func TestHandleRoutesRecipients(t *testing.T) {
	tests := []struct {
		topic     string
		recipient string
		subject   string
	}{
		{TopicRequested, "vendor@example.mx", "Nueva solicitud de reserva"},
		{TopicAccepted, "client@example.mx", "aceptada"},
		{TopicRejected, "client@example.mx", "no fue aceptada"},
		{TopicCanceled, "vendor@example.mx", "Reserva cancelada"},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			sender := &fakeSender{}
			store := &fakeStore{}
			if err := newDispatcher(sender, store).Handle(context.Background(), message(tt.topic, payload)); err != nil {
				t.Fatalf("handle: %v", err)
			}
			if len(sender.sent) != 1 || sender.sent[0].To != tt.recipient {
				t.Fatalf("expected mail to %s, got %+v", tt.recipient, sender.sent)
			}
			if !strings.Contains(sender.sent[0].Subject, tt.subject) {
				t.Fatalf("unexpected subject %q", sender.sent[0].Subject)
			}
			if !strings.Contains(sender.sent[0].HTML, "18:00 a 19:00") {
				t.Fatalf("expected slot range in body")
			}
			rec := store.records[0]
			if rec.Status != storage.StatusSent || rec.ProviderID != "fake" || rec.EventID != "evt-"+tt.topic || rec.BookingID != "b-1" {
				t.Fatalf("unexpected record %+v", rec)
			}
		})
	}
}

func TestHandleRetriesTransientFailures(t *testing.T) {
	sender := &fakeSender{failures: 2}
	store := &fakeStore{}
	if err := newDispatcher(sender, store).Handle(context.Background(), message(TopicAccepted, payload)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if sender.attempts != 3 || len(sender.sent) != 1 {
		t.Fatalf("expected success on third attempt, got %d attempts", sender.attempts)
	}
	if store.records[0].Status != storage.StatusSent {
		t.Fatalf("expected sent, got %+v", store.records[0])
	}
}

func TestHandleRecordsFailures(t *testing.T) {
	sender := &fakeSender{failures: 10}
	store := &fakeStore{}
	if err := newDispatcher(sender, store).Handle(context.Background(), message(TopicAccepted, payload)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	rec := store.records[0]
	if rec.Status != storage.StatusFailed || !strings.Contains(rec.Error, "relay unavailable") {
		t.Fatalf("expected failed record, got %+v", rec)
	}
	if sender.attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", sender.attempts)
	}
}

func TestHandleMissingRecipientIsNotRetried(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeStore{}
	noVendor := strings.Replace(payload, "vendor@example.mx", "", 1)
	if err := newDispatcher(sender, store).Handle(context.Background(), message(TopicRequested, noVendor)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if sender.attempts != 0 {
		t.Fatalf("sender must not be called without a recipient")
	}
	if store.records[0].Status != storage.StatusFailed {
		t.Fatalf("expected failed record, got %+v", store.records[0])
	}
}

func TestHandleDropsMalformedEvents(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeStore{}
	d := newDispatcher(sender, store)
	for _, value := range []string{"{", `{"service_name":"x"}`} {
		if err := d.Handle(context.Background(), message(TopicRequested, value)); err != nil {
			t.Fatalf("malformed event should be dropped, got %v", err)
		}
	}
	if len(store.records) != 0 || sender.attempts != 0 {
		t.Fatalf("nothing should be sent or recorded")
	}
}

func TestHandleReturnsStoreErrors(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	if err := newDispatcher(&fakeSender{}, store).Handle(context.Background(), message(TopicAccepted, payload)); err == nil {
		t.Fatalf("expected store error")
	}
}
