// Package dispatch turns booking events into transactional emails.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/masterparty/platform/libs/kafkax"
	"github.com/masterparty/platform/libs/mail"
	"github.com/masterparty/platform/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

const (
	TopicRequested = "booking.requested.v1"
	TopicAccepted  = "booking.accepted.v1"
	TopicRejected  = "booking.rejected.v1"
	TopicCanceled  = "booking.canceled.v1"
)

// Topics lists every booking event that produces an email.
var Topics = []string{TopicRequested, TopicAccepted, TopicRejected, TopicCanceled}

const channelEmail = "email"

type Store interface {
	Record(ctx context.Context, n storage.Notification) error
}

type bookingEvent struct {
	BookingID    string   `json:"booking_id"`
	ServiceName  string   `json:"service_name"`
	BusinessName string   `json:"business_name"`
	PackageName  string   `json:"package_name"`
	BookingDate  string   `json:"booking_date"`
	TimeSlots    []string `json:"time_slots"`
	VendorEmail  string   `json:"vendor_email"`
	ClientEmail  string   `json:"client_email"`
}

func (e bookingEvent) details() mail.BookingDetails {
	return mail.BookingDetails{
		BookingID:    e.BookingID,
		ServiceName:  e.ServiceName,
		BusinessName: e.BusinessName,
		PackageName:  e.PackageName,
		BookingDate:  e.BookingDate,
		TimeSlots:    e.TimeSlots,
	}
}

// compose picks the recipient and template for an event type. Requests and
// cancellations go to the vendor; decisions go to the client.
func compose(eventType string, e bookingEvent) (mail.Message, error) {
	switch eventType {
	case TopicRequested:
		return mail.BookingRequested(e.VendorEmail, e.details())
	case TopicAccepted:
		return mail.BookingAccepted(e.ClientEmail, e.details())
	case TopicRejected:
		return mail.BookingRejected(e.ClientEmail, e.details())
	case TopicCanceled:
		return mail.BookingCanceled(e.VendorEmail, e.details())
	default:
		return mail.Message{}, fmt.Errorf("no template for %s", eventType)
	}
}

type Options struct {
	SendTimeout time.Duration
	MaxAttempts uint
	// Backoff overrides the retry schedule; tests use a zero backoff.
	Backoff backoff.BackOff
}

type Dispatcher struct {
	sender mail.Sender
	store  Store
	logger *slog.Logger
	opts   Options
}

func New(sender mail.Sender, store Store, logger *slog.Logger, opts Options) *Dispatcher {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	return &Dispatcher{sender: sender, store: store, logger: logger, opts: opts}
}

// Handle is the kafkax.Handler for booking topics. Malformed events are
// dropped; delivery failures are recorded, not returned.
func (d *Dispatcher) Handle(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)

	var evt bookingEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil || evt.BookingID == "" {
		d.logger.Error("invalid booking event", "err", err, "event_id", meta.EventID, "topic", msg.Topic)
		return nil
	}

	n := storage.Notification{
		EventID:   meta.EventID,
		EventType: meta.EventType,
		BookingID: evt.BookingID,
		Channel:   channelEmail,
		Status:    storage.StatusSent,
	}
	message, err := compose(meta.EventType, evt)
	if err == nil {
		n.Recipient = strings.TrimSpace(message.To)
		n.Subject = message.Subject
		err = d.send(ctx, message)
	}
	if err != nil {
		n.Status = storage.StatusFailed
		n.Error = err.Error()
		d.logger.Error("booking email failed", "err", err, "booking_id", evt.BookingID, "event_type", meta.EventType)
	} else {
		n.ProviderID = d.sender.ProviderID()
	}

	if err := d.store.Record(ctx, n); err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	d.logger.Info("booking notification processed",
		"booking_id", evt.BookingID,
		"event_type", meta.EventType,
		"status", n.Status,
	)
	return nil
}

func (d *Dispatcher) send(ctx context.Context, msg mail.Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return mail.ErrNoRecipient
	}
	b := d.opts.Backoff
	if b == nil {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = 500 * time.Millisecond
		b = exp
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		sendCtx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
		defer cancel()
		err := d.sender.Send(sendCtx, msg)
		if errors.Is(err, mail.ErrNoRecipient) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(d.opts.MaxAttempts))
	return err
}
