package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/masterparty/platform/libs/db"
	"github.com/masterparty/platform/services/lead-service/internal/leads"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Exists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM provider_leads WHERE email = $1)`, email).Scan(&exists)
	return exists, err
}

func (r *Repository) Insert(ctx context.Context, lead leads.Lead) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO provider_leads (id, email, region, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4)
	`, lead.ID, lead.Email, lead.Region, lead.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return leads.ErrDuplicate
	}
	return err
}

func (r *Repository) List(ctx context.Context, limit int) ([]leads.Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, email, COALESCE(region, ''), created_at
		FROM provider_leads
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []leads.Lead{}
	for rows.Next() {
		var l leads.Lead
		if err := rows.Scan(&l.ID, &l.Email, &l.Region, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
