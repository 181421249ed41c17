package storage

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/masterparty/platform/libs/auth"
	"github.com/masterparty/platform/libs/db"
	"github.com/masterparty/platform/libs/outbox"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already registered")
)

const EventUserCreated = "auth.user.created.v1"

type User struct {
	ID           string    `json:"user_id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Roles        []string  `json:"roles"`
	ProviderID   string    `json:"provider_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type UserRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewUserRepository(pool *db.Pool, outboxRepo *outbox.Repository) *UserRepository {
	return &UserRepository{pool: pool, outbox: outboxRepo}
}

// NormalizeEmail is the form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts user and its auth.user.created.v1 event in one transaction.
func (r *UserRepository) Create(ctx context.Context, user User) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO users (id, email, display_name, password_hash, roles, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID, user.Email, user.DisplayName, user.PasswordHash, user.Roles, user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrEmailTaken
		}
		return err
	}

	payload, err := json.Marshal(map[string]any{
		"user_id":      user.ID,
		"email":        user.Email,
		"display_name": user.DisplayName,
		"roles":        user.Roles,
		"created_at":   user.CreatedAt.UTC(),
	})
	if err != nil {
		return err
	}
	if err := r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "user",
		AggregateID:   user.ID,
		EventType:     EventUserCreated,
		Payload:       payload,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const userColumns = `id::text, email, display_name, password_hash, roles, COALESCE(provider_id::text, ''), created_at`

func scanUser(row pgx.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.Roles, &user.ProviderID, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return user, err
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, NormalizeEmail(email)))
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id::text = $1`, id))
}

// GrantProvider adds the provider role and remembers which storefront the user owns.
func (r *UserRepository) GrantProvider(ctx context.Context, userID, providerID string) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		UPDATE users
		SET roles = CASE WHEN $2 = ANY(roles) THEN roles ELSE array_append(roles, $2) END,
			provider_id = $3,
			updated_at = now()
		WHERE id::text = $1
		RETURNING `+userColumns,
		userID, auth.RoleProvider, providerID))
}

// SetRoles replaces the user's roles. The client role is always kept.
func (r *UserRepository) SetRoles(ctx context.Context, userID string, roles []string) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		UPDATE users SET roles = $2, updated_at = now()
		WHERE id::text = $1
		RETURNING `+userColumns,
		userID, NormalizeRoles(roles)))
}

var knownRoles = []string{auth.RoleClient, auth.RoleProvider, auth.RoleAdmin}

var ErrUnknownRole = errors.New("unknown role")

// ValidateRoles rejects anything outside cliente, prestador and admin.
func ValidateRoles(roles []string) error {
	for _, role := range roles {
		if !slices.Contains(knownRoles, strings.TrimSpace(role)) {
			return ErrUnknownRole
		}
	}
	return nil
}

// NormalizeRoles trims, deduplicates and orders roles, always including cliente.
func NormalizeRoles(roles []string) []string {
	out := []string{auth.RoleClient}
	for _, known := range knownRoles[1:] {
		for _, role := range roles {
			if strings.TrimSpace(role) == known {
				out = append(out, known)
				break
			}
		}
	}
	return out
}
