package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/masterparty/platform/libs/db"
	"github.com/masterparty/platform/libs/outbox"
	"github.com/masterparty/platform/libs/slots"
	"github.com/masterparty/platform/services/booking-service/internal/booking"
	"github.com/masterparty/platform/services/booking-service/internal/model"
)

type BookingRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewBookingRepository(pool *db.Pool, outboxRepo *outbox.Repository) *BookingRepository {
	return &BookingRepository{pool: pool, outbox: outboxRepo}
}

const bookingColumns = `id::text, service_id, service_name, business_name, vendor_id, vendor_email,
	client_id, client_email, package, booking_date, time_slots, status, created_at, updated_at`

// Create stores b with its slots and the booking.requested.v1 event in one transaction. With an
// idempotency key, a repeated request returns the booking created the first time and replayed=true.
func (r *BookingRepository) Create(ctx context.Context, b model.Booking, idempotencyKey string) (model.Booking, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Booking{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if idempotencyKey != "" {
		bookingID, err := r.lockIdempotencyKey(ctx, tx, b.ClientID, idempotencyKey)
		if err != nil {
			return model.Booking{}, false, err
		}
		if bookingID != "" {
			existing, err := r.get(ctx, tx, bookingID, false)
			if err != nil {
				return model.Booking{}, false, err
			}
			return existing, true, tx.Commit(ctx)
		}
	}

	date, err := slots.ParseDate(b.BookingDate)
	if err != nil {
		return model.Booking{}, false, err
	}
	pkg, err := json.Marshal(b.Package)
	if err != nil {
		return model.Booking{}, false, err
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO bookings
			(service_id, service_name, business_name, vendor_id, vendor_email, client_id, client_email,
			 package, booking_date, time_slots, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		RETURNING id::text
	`, b.ServiceID, b.ServiceName, b.BusinessName, b.VendorID, b.VendorEmail, b.ClientID, b.ClientEmail,
		pkg, date, b.TimeSlots, string(b.Status), b.CreatedAt).Scan(&b.ID)
	if err != nil {
		return model.Booking{}, false, err
	}

	batch := &pgx.Batch{}
	for _, s := range b.TimeSlots {
		batch.Queue(`
			INSERT INTO booking_slots (booking_id, service_id, booking_date, slot)
			VALUES ($1, $2, $3, $4)
		`, b.ID, b.ServiceID, date, s)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		if IsConflict(err) {
			return model.Booking{}, false, booking.ErrSlotTaken
		}
		return model.Booking{}, false, err
	}

	if err := r.insertEvent(ctx, tx, b); err != nil {
		return model.Booking{}, false, err
	}
	if idempotencyKey != "" {
		if _, err := tx.Exec(ctx, `
			UPDATE booking_idempotency_keys
			SET booking_id = $3, updated_at = now()
			WHERE client_id = $1 AND idempotency_key = $2
		`, b.ClientID, idempotencyKey, b.ID); err != nil {
			return model.Booking{}, false, err
		}
	}
	return b, false, tx.Commit(ctx)
}

// lockIdempotencyKey claims key for clientID and returns the booking it already produced, if any.
func (r *BookingRepository) lockIdempotencyKey(ctx context.Context, tx pgx.Tx, clientID, key string) (string, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (client_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (client_id, idempotency_key) DO NOTHING
	`, clientID, key); err != nil {
		return "", err
	}
	var bookingID string
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(booking_id::text, '')
		FROM booking_idempotency_keys
		WHERE client_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, clientID, key).Scan(&bookingID)
	return bookingID, err
}

func (r *BookingRepository) insertEvent(ctx context.Context, tx pgx.Tx, b model.Booking) error {
	payload, err := b.Event()
	if err != nil {
		return err
	}
	return r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     model.EventFor(b.Status),
		Payload:       payload,
	})
}

func (r *BookingRepository) Get(ctx context.Context, id string) (model.Booking, error) {
	return r.get(ctx, r.pool, id, false)
}

// Transition locks the booking and asks decide for its next status. When decide returns the
// current status nothing is written and changed is false. Leaving a holding status frees the slots.
func (r *BookingRepository) Transition(ctx context.Context, id string, decide func(model.Booking) (model.Status, error)) (model.Booking, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Booking{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, err := r.get(ctx, tx, id, true)
	if err != nil {
		return model.Booking{}, false, err
	}
	next, err := decide(b)
	if err != nil {
		return model.Booking{}, false, err
	}
	if next == b.Status {
		return b, false, tx.Commit(ctx)
	}

	if err := tx.QueryRow(ctx, `
		UPDATE bookings SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, b.ID, string(next)).Scan(&b.UpdatedAt); err != nil {
		return model.Booking{}, false, err
	}
	if b.Status.Holds() && !next.Holds() {
		if _, err := tx.Exec(ctx, `UPDATE booking_slots SET active = false WHERE booking_id = $1`, b.ID); err != nil {
			return model.Booking{}, false, err
		}
	}
	b.Status = next
	if err := r.insertEvent(ctx, tx, b); err != nil {
		return model.Booking{}, false, err
	}
	return b, true, tx.Commit(ctx)
}

func (r *BookingRepository) ListByClient(ctx context.Context, clientID string, limit int) ([]model.Booking, error) {
	return r.list(ctx, `WHERE client_id = $1 ORDER BY created_at DESC LIMIT $2`, clientID, clampLimit(limit))
}

// ListByVendor lists the vendor's bookings, newest first; an empty status means all of them.
func (r *BookingRepository) ListByVendor(ctx context.Context, vendorID string, status model.Status, limit int) ([]model.Booking, error) {
	if status == "" {
		return r.list(ctx, `WHERE vendor_id = $1 ORDER BY created_at DESC LIMIT $2`, vendorID, clampLimit(limit))
	}
	return r.list(ctx, `WHERE vendor_id = $1 AND status = $3 ORDER BY created_at DESC LIMIT $2`, vendorID, clampLimit(limit), string(status))
}

// HeldSlots lists the slots of date held by pending or accepted bookings.
func (r *BookingRepository) HeldSlots(ctx context.Context, serviceID, date string) ([]string, error) {
	day, err := slots.ParseDate(date)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT slot FROM booking_slots
		WHERE service_id = $1 AND booking_date = $2 AND active
	`, serviceID, day)
	if err != nil {
		return nil, err
	}
	held, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	return slots.Sort(held), nil
}

func (r *BookingRepository) list(ctx context.Context, where string, args ...any) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+bookingColumns+` FROM bookings `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *BookingRepository) get(ctx context.Context, q querier, id string, forUpdate bool) (model.Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Booking{}, booking.ErrNotFound
	}
	sql := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	b, err := scanBooking(q.QueryRow(ctx, sql, id))
	if IsNotFound(err) {
		return model.Booking{}, booking.ErrNotFound
	}
	return b, err
}

func scanBooking(row pgx.Row) (model.Booking, error) {
	var (
		b      model.Booking
		pkg    []byte
		date   time.Time
		status string
	)
	if err := row.Scan(&b.ID, &b.ServiceID, &b.ServiceName, &b.BusinessName, &b.VendorID, &b.VendorEmail,
		&b.ClientID, &b.ClientEmail, &pkg, &date, &b.TimeSlots, &status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return model.Booking{}, err
	}
	if err := json.Unmarshal(pkg, &b.Package); err != nil {
		return model.Booking{}, err
	}
	b.BookingDate = date.Format(slots.DateLayout)
	b.Status = model.Status(status)
	return b, nil
}

// IsConflict reports a unique or exclusion violation.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "23505" || pgErr.Code == "23P01")
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
