// Package catalog holds the provider storefront, service and availability rules.
package catalog

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrBusinessNameTaken = errors.New("business name already taken")
	ErrAlreadyProvider   = errors.New("user already has a provider profile")
	ErrNameRequired      = errors.New("business_name is required")
	ErrInvalidSlugName   = errors.New("business_name must contain letters or digits")
)

type Provider struct {
	ID                     string    `json:"id"`
	OwnerUserID            string    `json:"owner_user_id,omitempty"`
	BusinessName           string    `json:"business_name"`
	BusinessNameNormalized string    `json:"-"`
	Slug                   string    `json:"slug"`
	PhoneNumber            string    `json:"phone_number,omitempty"`
	ContactEmail           string    `json:"contact_email,omitempty"`
	InstagramURL           string    `json:"instagram_url,omitempty"`
	FacebookURL            string    `json:"facebook_url,omitempty"`
	TiktokURL              string    `json:"tiktok_url,omitempty"`
	WebsiteURL             string    `json:"website_url,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// ProviderInput is the editable part of a provider profile.
type ProviderInput struct {
	BusinessName string `json:"business_name"`
	PhoneNumber  string `json:"phone_number"`
	ContactEmail string `json:"contact_email"`
	InstagramURL string `json:"instagram_url"`
	FacebookURL  string `json:"facebook_url"`
	TiktokURL    string `json:"tiktok_url"`
	WebsiteURL   string `json:"website_url"`
}

var (
	slugStrip      = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugWhitespace = regexp.MustCompile(`\s+`)
)

const maxSlugLen = 50

// Slugify turns a business name into its storefront path segment.
func Slugify(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, "&", "and")
	s = slugStrip.ReplaceAllString(s, "")
	s = slugWhitespace.ReplaceAllString(s, "-")
	if len(s) > maxSlugLen {
		s = s[:maxSlugLen]
	}
	return s
}

// NormalizeURL prefixes https:// when the value has no http(s) scheme.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return raw
	}
	return "https://" + raw
}

// NewProvider validates in and derives the normalized name, slug and URLs.
func NewProvider(id string, ownerUserID string, in ProviderInput, now time.Time) (Provider, error) {
	p := Provider{ID: id, OwnerUserID: ownerUserID, CreatedAt: now, UpdatedAt: now}
	if err := p.Apply(in, now); err != nil {
		return Provider{}, err
	}
	return p, nil
}

// Apply overwrites the editable fields of p.
func (p *Provider) Apply(in ProviderInput, now time.Time) error {
	name := strings.TrimSpace(in.BusinessName)
	if name == "" {
		return ErrNameRequired
	}
	slug := strings.Trim(Slugify(name), "-")
	if slug == "" {
		return ErrInvalidSlugName
	}
	p.BusinessName = name
	p.BusinessNameNormalized = strings.ToLower(name)
	p.Slug = Slugify(name)
	p.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	p.ContactEmail = strings.ToLower(strings.TrimSpace(in.ContactEmail))
	p.InstagramURL = NormalizeURL(in.InstagramURL)
	p.FacebookURL = NormalizeURL(in.FacebookURL)
	p.TiktokURL = NormalizeURL(in.TiktokURL)
	p.WebsiteURL = NormalizeURL(in.WebsiteURL)
	p.UpdatedAt = now
	return nil
}
