package kafkax

import (
	"context"

	"github.com/masterparty/platform/libs/db"
)

// Inbox remembers consumed event ids so redelivered messages are handled once.
type Inbox struct {
	pool *db.Pool
}

func NewInbox(pool *db.Pool) *Inbox {
	return &Inbox{pool: pool}
}

// Seen reports whether eventID was already handled.
func (i *Inbox) Seen(ctx context.Context, eventID string) (bool, error) {
	var seen bool
	err := i.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM inbox_events WHERE event_id = $1)`, eventID).Scan(&seen)
	return seen, err
}

// Record marks eventID handled. Recording it twice is not an error.
func (i *Inbox) Record(ctx context.Context, eventID string, eventType string) error {
	_, err := i.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	return err
}
