package storage

import (
	"context"
	"encoding/json"

	"github.com/masterparty/platform/libs/outbox"
	"github.com/masterparty/platform/services/catalog-service/internal/catalog"
)

const EventProviderCreated = "catalog.provider.created.v1"

const providerColumns = `
	id::text, owner_user_id::text, business_name, business_name_normalized, slug,
	phone_number, contact_email, instagram_url, facebook_url, tiktok_url, website_url,
	created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanProvider(row scanner) (catalog.Provider, error) {
	var p catalog.Provider
	err := row.Scan(&p.ID, &p.OwnerUserID, &p.BusinessName, &p.BusinessNameNormalized, &p.Slug,
		&p.PhoneNumber, &p.ContactEmail, &p.InstagramURL, &p.FacebookURL, &p.TiktokURL, &p.WebsiteURL,
		&p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func providerConflict(err error) error {
	name, ok := uniqueViolation(err)
	if !ok {
		return err
	}
	if name == "providers_owner_user_id_key" {
		return catalog.ErrAlreadyProvider
	}
	return catalog.ErrBusinessNameTaken
}

// CreateProvider stores p and enqueues catalog.provider.created.v1 in the same transaction.
func (r *Repository) CreateProvider(ctx context.Context, p catalog.Provider) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO providers (id, owner_user_id, business_name, business_name_normalized, slug,
			phone_number, contact_email, instagram_url, facebook_url, tiktok_url, website_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
	`, p.ID, p.OwnerUserID, p.BusinessName, p.BusinessNameNormalized, p.Slug,
		p.PhoneNumber, p.ContactEmail, p.InstagramURL, p.FacebookURL, p.TiktokURL, p.WebsiteURL, p.CreatedAt)
	if err != nil {
		return providerConflict(err)
	}

	payload, err := json.Marshal(map[string]any{
		"provider_id":   p.ID,
		"owner_user_id": p.OwnerUserID,
		"business_name": p.BusinessName,
		"slug":          p.Slug,
		"created_at":    p.CreatedAt,
	})
	if err != nil {
		return err
	}
	if err := r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "provider",
		AggregateID:   p.ID,
		EventType:     EventProviderCreated,
		Payload:       payload,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) GetProviderByOwner(ctx context.Context, ownerUserID string) (catalog.Provider, error) {
	p, err := scanProvider(r.pool.QueryRow(ctx, `SELECT `+providerColumns+` FROM providers WHERE owner_user_id = $1`, ownerUserID))
	if IsNotFound(err) {
		return catalog.Provider{}, catalog.ErrNotFound
	}
	return p, err
}

func (r *Repository) GetProviderBySlug(ctx context.Context, slug string) (catalog.Provider, error) {
	p, err := scanProvider(r.pool.QueryRow(ctx, `SELECT `+providerColumns+` FROM providers WHERE slug = $1`, slug))
	if IsNotFound(err) {
		return catalog.Provider{}, catalog.ErrNotFound
	}
	return p, err
}

func (r *Repository) GetProvider(ctx context.Context, id string) (catalog.Provider, error) {
	if !validID(id) {
		return catalog.Provider{}, catalog.ErrNotFound
	}
	p, err := scanProvider(r.pool.QueryRow(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = $1`, id))
	if IsNotFound(err) {
		return catalog.Provider{}, catalog.ErrNotFound
	}
	return p, err
}

// UpdateProvider saves p and refreshes the business name copied onto its services.
func (r *Repository) UpdateProvider(ctx context.Context, p catalog.Provider) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE providers
		SET business_name = $2, business_name_normalized = $3, slug = $4,
			phone_number = $5, contact_email = $6, instagram_url = $7, facebook_url = $8,
			tiktok_url = $9, website_url = $10, updated_at = $11
		WHERE id = $1
	`, p.ID, p.BusinessName, p.BusinessNameNormalized, p.Slug,
		p.PhoneNumber, p.ContactEmail, p.InstagramURL, p.FacebookURL, p.TiktokURL, p.WebsiteURL, p.UpdatedAt)
	if err != nil {
		return providerConflict(err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	if _, err := tx.Exec(ctx, `UPDATE services SET business_name = $2 WHERE provider_id = $1`, p.ID, p.BusinessName); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
