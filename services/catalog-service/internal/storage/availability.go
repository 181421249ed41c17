package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/masterparty/platform/services/catalog-service/internal/catalog"
)

// BlockedSlots returns the blocked slots of every service owned by vendorID on date.
func (r *Repository) BlockedSlots(ctx context.Context, vendorID string, date string) (map[string][]string, error) {
	day, err := toDate(date)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT b.service_id::text, b.slot
		FROM blocked_slots b
		JOIN services s ON s.id = b.service_id
		WHERE s.vendor_id = $1 AND b.slot_date = $2
		ORDER BY b.service_id, b.slot
	`, vendorID, day)
	if err != nil {
		return nil, err
	}
	return collectBlocks(rows)
}

// ServiceBlockedSlots returns the blocked slots of one service on date.
func (r *Repository) ServiceBlockedSlots(ctx context.Context, serviceID string, date string) ([]string, error) {
	if !validID(serviceID) {
		return nil, nil
	}
	day, err := toDate(date)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT service_id::text, slot FROM blocked_slots
		WHERE service_id = $1 AND slot_date = $2
		ORDER BY slot
	`, serviceID, day)
	if err != nil {
		return nil, err
	}
	blocks, err := collectBlocks(rows)
	if err != nil {
		return nil, err
	}
	return blocks[serviceID], nil
}

func collectBlocks(rows pgx.Rows) (map[string][]string, error) {
	defer rows.Close()
	out := map[string][]string{}
	for rows.Next() {
		var id, slot string
		if err := rows.Scan(&id, &slot); err != nil {
			return nil, err
		}
		out[id] = append(out[id], slot)
	}
	return out, rows.Err()
}

// ApplyBlockRange locks the selected services, applies the range and rewrites their blocks for the date.
func (r *Repository) ApplyBlockRange(ctx context.Context, vendorID string, b catalog.BlockRange) (map[string][]string, catalog.BlockMode, error) {
	day, err := toDate(b.Date)
	if err != nil {
		return nil, "", err
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var owned int
	err = tx.QueryRow(ctx, `
		WITH locked AS (
			SELECT id FROM services WHERE id::text = ANY ($1) AND vendor_id = $2 FOR UPDATE
		)
		SELECT count(*) FROM locked
	`, b.ServiceIDs, vendorID).Scan(&owned)
	if err != nil {
		return nil, "", err
	}
	if owned != len(uniq(b.ServiceIDs)) {
		return nil, "", catalog.ErrForbidden
	}

	rows, err := tx.Query(ctx, `
		SELECT service_id::text, slot FROM blocked_slots
		WHERE service_id::text = ANY ($1) AND slot_date = $2
	`, b.ServiceIDs, day)
	if err != nil {
		return nil, "", err
	}
	current, err := collectBlocks(rows)
	if err != nil {
		return nil, "", err
	}

	next, mode, err := catalog.ApplyBlockRange(current, b)
	if err != nil {
		return nil, "", err
	}
	if err := replaceBlocks(ctx, tx, day, next); err != nil {
		return nil, "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, "", err
	}
	return next, mode, nil
}

func replaceBlocks(ctx context.Context, tx pgx.Tx, day time.Time, blocks map[string][]string) error {
	for id, slotList := range blocks {
		if _, err := tx.Exec(ctx, `DELETE FROM blocked_slots WHERE service_id = $1 AND slot_date = $2`, id, day); err != nil {
			return err
		}
		if len(slotList) == 0 {
			continue
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO blocked_slots (service_id, slot_date, slot)
			SELECT $1, $2, unnest($3::text[])
		`, id, day, slotList); err != nil {
			return err
		}
	}
	return nil
}

func uniq(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
