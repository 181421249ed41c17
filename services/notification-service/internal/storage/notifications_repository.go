package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/masterparty/platform/libs/db"
	"github.com/masterparty/platform/libs/outbox"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"

	EventSent   = "notification.sent.v1"
	EventFailed = "notification.failed.v1"
)

type Notification struct {
	ID         int64     `json:"id"`
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	BookingID  string    `json:"booking_id"`
	Channel    string    `json:"channel"`
	Recipient  string    `json:"recipient"`
	Subject    string    `json:"subject"`
	Status     string    `json:"status"`
	ProviderID string    `json:"provider_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{pool: pool, outbox: outboxRepo}
}

// Record stores a delivery attempt and its notification.sent.v1 or
// notification.failed.v1 event in one transaction.
func (r *Repository) Record(ctx context.Context, n Notification) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.QueryRow(ctx, `
		INSERT INTO notifications (event_id, event_type, booking_id, channel, recipient, subject, status, provider_id, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''))
		RETURNING id, created_at
	`, n.EventID, n.EventType, n.BookingID, n.Channel, n.Recipient, n.Subject, n.Status, n.ProviderID, n.Error).Scan(&n.ID, &n.CreatedAt); err != nil {
		return err
	}

	eventType := EventSent
	body := map[string]any{
		"notification_id": n.ID,
		"booking_id":      n.BookingID,
		"source_event":    n.EventType,
		"channel":         n.Channel,
		"recipient":       n.Recipient,
	}
	if n.Status == StatusFailed {
		eventType = EventFailed
		body["error_reason"] = n.Error
		body["failed_at"] = n.CreatedAt.UTC().Format(time.RFC3339)
	} else {
		body["provider_id"] = n.ProviderID
		body["sent_at"] = n.CreatedAt.UTC().Format(time.RFC3339)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	if err := r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "notification",
		AggregateID:   n.BookingID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// List returns recent attempts, newest first, optionally for one booking.
func (r *Repository) List(ctx context.Context, bookingID string, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_id, event_type, booking_id, channel, recipient, subject, status,
			COALESCE(provider_id, ''), COALESCE(error, ''), created_at
		FROM notifications
		WHERE $1 = '' OR booking_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, bookingID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.EventID, &n.EventType, &n.BookingID, &n.Channel, &n.Recipient, &n.Subject,
			&n.Status, &n.ProviderID, &n.Error, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
