// Package audit keeps the security trail of the auth service: sign-ups,
// logins, role changes and key rotations.
package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/masterparty/platform/libs/db"
)

const (
	EventRegistered   = "user.registered"
	EventLoggedIn     = "user.logged_in"
	EventLoginFailed  = "user.login_failed"
	EventLoggedOut    = "user.logged_out"
	EventRolesChanged = "user.roles_changed"
	EventProviderRole = "user.provider_granted"
	EventKeyRotated   = "signing_key.rotated"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

type Event struct {
	ID        int64           `json:"id"`
	EventType string          `json:"event_type"`
	ActorID   string          `json:"actor_id,omitempty"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt time.Time       `json:"created_at"`
}

// Filter narrows a listing. Before pages backwards from an event id.
type Filter struct {
	ActorID   string
	EventType string
	Before    int64
	Limit     int
}

// Normalize clamps Limit into [1, MaxLimit].
func (f Filter) Normalize() Filter {
	f.ActorID = strings.TrimSpace(f.ActorID)
	f.EventType = strings.TrimSpace(f.EventType)
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Before < 0 {
		f.Before = 0
	}
	return f
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record appends one event; an empty actorID is stored as NULL.
func (r *Repository) Record(ctx context.Context, eventType string, actorID string, metadata map[string]any) error {
	raw := []byte("{}")
	if len(metadata) > 0 {
		var err error
		if raw, err = json.Marshal(metadata); err != nil {
			return err
		}
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_events (event_type, actor_id, metadata) VALUES ($1, NULLIF($2, '')::uuid, $3)`,
		eventType, actorID, raw)
	return err
}

// List returns matching events newest first.
func (r *Repository) List(ctx context.Context, f Filter) ([]Event, error) {
	f = f.Normalize()
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_type, COALESCE(actor_id::text, ''), metadata, created_at
		FROM audit_events
		WHERE ($1 = '' OR actor_id::text = $1)
		  AND ($2 = '' OR event_type = $2)
		  AND ($3 = 0 OR id < $3)
		ORDER BY id DESC
		LIMIT $4
	`, f.ActorID, f.EventType, f.Before, f.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]Event, 0, f.Limit)
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.EventType, &e.ActorID, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}
