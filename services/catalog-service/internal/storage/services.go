package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/masterparty/platform/libs/slots"
	"github.com/masterparty/platform/services/catalog-service/internal/catalog"
)

const serviceColumns = `
	id::text, provider_id::text, vendor_id::text, business_name, name, description,
	main_category, type, is_active, base_price, packages, transfer_cost_per_km, transfer_free_km,
	latitude, longitude, image_urls, unavailable_dates, created_at, updated_at`

func scanService(row scanner) (catalog.Service, error) {
	var (
		s        catalog.Service
		packages []byte
		lat, lng *float64
		dates    []time.Time
	)
	err := row.Scan(&s.ID, &s.ProviderID, &s.VendorID, &s.BusinessName, &s.Name, &s.Description,
		&s.MainCategory, &s.Type, &s.IsActive, &s.BasePrice, &packages,
		&s.TransferFeeRule.CostPerKm, &s.TransferFeeRule.FreeKmRadius,
		&lat, &lng, &s.ImageURLs, &dates, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return catalog.Service{}, err
	}
	if err := json.Unmarshal(packages, &s.Packages); err != nil {
		return catalog.Service{}, err
	}
	if lat != nil && lng != nil {
		s.Location = &catalog.Location{Latitude: *lat, Longitude: *lng}
	}
	s.UnavailableDates = fromDates(dates)
	return s, nil
}

func locationArgs(l *catalog.Location) (any, any) {
	if l == nil {
		return nil, nil
	}
	return l.Latitude, l.Longitude
}

func (r *Repository) CreateService(ctx context.Context, s catalog.Service) error {
	packages, err := json.Marshal(s.Packages)
	if err != nil {
		return err
	}
	lat, lng := locationArgs(s.Location)
	_, err = r.pool.Exec(ctx, `
		INSERT INTO services (id, provider_id, vendor_id, business_name, name, description, main_category, type,
			is_active, base_price, packages, transfer_cost_per_km, transfer_free_km, latitude, longitude, image_urls,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17)
	`, s.ID, s.ProviderID, s.VendorID, s.BusinessName, s.Name, s.Description, s.MainCategory, s.Type,
		s.IsActive, s.BasePrice, packages, s.TransferFeeRule.CostPerKm, s.TransferFeeRule.FreeKmRadius, lat, lng, s.ImageURLs,
		s.CreatedAt)
	return err
}

func (r *Repository) UpdateService(ctx context.Context, s catalog.Service) error {
	if !validID(s.ID) {
		return catalog.ErrNotFound
	}
	packages, err := json.Marshal(s.Packages)
	if err != nil {
		return err
	}
	lat, lng := locationArgs(s.Location)
	tag, err := r.pool.Exec(ctx, `
		UPDATE services
		SET name = $3, description = $4, main_category = $5, type = $6, base_price = $7, packages = $8,
			transfer_cost_per_km = $9, transfer_free_km = $10, latitude = $11, longitude = $12,
			image_urls = $13, updated_at = $14
		WHERE id = $1 AND vendor_id = $2
	`, s.ID, s.VendorID, s.Name, s.Description, s.MainCategory, s.Type, s.BasePrice, packages,
		s.TransferFeeRule.CostPerKm, s.TransferFeeRule.FreeKmRadius, lat, lng, s.ImageURLs, s.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (r *Repository) GetService(ctx context.Context, id string) (catalog.Service, error) {
	if !validID(id) {
		return catalog.Service{}, catalog.ErrNotFound
	}
	s, err := scanService(r.pool.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
	if IsNotFound(err) {
		return catalog.Service{}, catalog.ErrNotFound
	}
	return s, err
}

func (r *Repository) SetServiceActive(ctx context.Context, id string, vendorID string, active bool) error {
	if !validID(id) {
		return catalog.ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE services SET is_active = $3, updated_at = now()
		WHERE id = $1 AND vendor_id = $2
	`, id, vendorID, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteService(ctx context.Context, id string, vendorID string) error {
	if !validID(id) {
		return catalog.ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM services WHERE id = $1 AND vendor_id = $2`, id, vendorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (r *Repository) queryServices(ctx context.Context, sql string, args ...any) ([]catalog.Service, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []catalog.Service{}
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) ListServicesByVendor(ctx context.Context, vendorID string) ([]catalog.Service, error) {
	return r.queryServices(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE vendor_id = $1
		ORDER BY created_at DESC
	`, vendorID)
}

func (r *Repository) ListActiveServicesByProvider(ctx context.Context, providerID string) ([]catalog.Service, error) {
	return r.queryServices(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE provider_id = $1 AND is_active
		ORDER BY created_at DESC
	`, providerID)
}

// SearchServices applies catalog.Filter in SQL, newest first. The WHERE clause
// mirrors catalog.Filter.Matches; keep both in step.
func (r *Repository) SearchServices(ctx context.Context, f catalog.Filter) ([]catalog.Service, error) {
	var date any
	if f.Date != "" {
		t, err := toDate(f.Date)
		if err != nil {
			return nil, err
		}
		date = t
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	return r.queryServices(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE is_active
			AND ($1 = '' OR lower(main_category) = lower($1))
			AND ($2 = '' OR lower(type) = lower($2))
			AND ($3::date IS NULL OR NOT ($3::date = ANY (unavailable_dates)))
			AND ($3::date IS NULL OR (
				SELECT count(*) FROM blocked_slots b
				WHERE b.service_id = services.id AND b.slot_date = $3::date
			) < $6)
			AND ($4 = 0 OR EXISTS (
				SELECT 1 FROM jsonb_array_elements(packages) p
				WHERE p->'capacity' IS NULL
					OR jsonb_typeof(p->'capacity') = 'null'
					OR (p->>'capacity')::int >= $4
			))
		ORDER BY created_at DESC
		LIMIT $5
	`, f.Category, f.Type, date, f.Capacity, limit, slots.PerDay)
}

// UpdateUnavailableDates locks the service row and replaces its dates with fn's result.
func (r *Repository) UpdateUnavailableDates(ctx context.Context, id string, vendorID string, fn func([]string) ([]string, error)) ([]string, error) {
	if !validID(id) {
		return nil, catalog.ErrNotFound
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current []time.Time
	err = tx.QueryRow(ctx, `
		SELECT unavailable_dates FROM services WHERE id = $1 AND vendor_id = $2 FOR UPDATE
	`, id, vendorID).Scan(&current)
	if IsNotFound(err) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	next, err := fn(fromDates(current))
	if err != nil {
		return nil, err
	}
	dates, err := toDates(next)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE services SET unavailable_dates = $2, updated_at = now() WHERE id = $1
	`, id, dates); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return next, nil
}
