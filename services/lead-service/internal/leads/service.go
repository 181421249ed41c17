// Package leads captures providers who join the waitlist before launch.
package leads

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/masterparty/platform/libs/mail"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidEmail = errors.New("invalid email")
	// ErrDuplicate is returned by a Store when the email is already registered.
	ErrDuplicate = errors.New("lead already exists")
)

var emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)

type Lead struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Region    string    `json:"region,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Store interface {
	Exists(ctx context.Context, email string) (bool, error)
	Insert(ctx context.Context, lead Lead) error
	List(ctx context.Context, limit int) ([]Lead, error)
}

type Outcome int

const (
	Created Outcome = iota + 1
	Existing
)

type Service struct {
	store    Store
	sender   mail.Sender
	throttle Throttle
	logger   *slog.Logger
	now      func() time.Time
}

// Throttle caps how many confirmation emails a single address receives.
type Throttle interface {
	Allow(ctx context.Context, key string) (bool, error)
}

func NewService(store Store, sender mail.Sender, throttle Throttle, logger *slog.Logger) *Service {
	return &Service{store: store, sender: sender, throttle: throttle, logger: logger, now: time.Now}
}

// NormalizeEmail lowercases and trims email, then checks it looks like an address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !emailPattern.MatchString(email) {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// Register records a new lead and sends the waitlist confirmation. Known
// addresses only get the confirmation again.
func (s *Service) Register(ctx context.Context, email string, region string) (Outcome, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return 0, err
	}

	exists, err := s.store.Exists(ctx, email)
	if err != nil {
		return 0, err
	}
	if exists {
		if err := s.confirm(ctx, email); err != nil {
			return 0, err
		}
		return Existing, nil
	}

	lead := Lead{
		ID:        uuid.NewString(),
		Email:     email,
		Region:    strings.TrimSpace(region),
		CreatedAt: s.now().UTC(),
	}
	var duplicate bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := s.store.Insert(gctx, lead)
		if errors.Is(err, ErrDuplicate) {
			duplicate = true
			return nil
		}
		return err
	})
	g.Go(func() error {
		return s.confirm(gctx, email)
	})
	if err := g.Wait(); err != nil {
		return 0, err
	}
	if duplicate {
		return Existing, nil
	}
	return Created, nil
}

func (s *Service) confirm(ctx context.Context, email string) error {
	if s.throttle != nil {
		ok, err := s.throttle.Allow(ctx, email)
		if err != nil {
			s.logger.Warn("lead throttle unavailable", "err", err)
		} else if !ok {
			s.logger.Info("lead confirmation throttled", "email", email)
			return nil
		}
	}
	msg, err := mail.LeadWaitlist(email)
	if err != nil {
		return err
	}
	return s.sender.Send(ctx, msg)
}

// List returns the newest leads. A missing limit means 100; larger ones are capped at 500.
func (s *Service) List(ctx context.Context, limit int) ([]Lead, error) {
	switch {
	case limit <= 0:
		limit = 100
	case limit > 500:
		limit = 500
	}
	return s.store.List(ctx, limit)
}
