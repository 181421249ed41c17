package catalog

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const MaxPackages = 5

var (
	ErrNameMissing      = errors.New("name is required")
	ErrNoPackages       = errors.New("at least one package with name and price is required")
	ErrTooManyPackages  = errors.New("at most 5 packages are allowed")
	ErrInvalidDuration  = errors.New("package duration_hours must be a positive multiple of 0.5")
	ErrInvalidCapacity  = errors.New("package capacity must be positive")
	ErrNegativePrice    = errors.New("package price cannot be negative")
	ErrNoImages         = errors.New("at least one image url is required")
	ErrInvalidLocation  = errors.New("location is out of range")
	ErrInvalidFeeRule   = errors.New("transfer_fee_rule values cannot be negative")
	ErrUnknownCategory  = errors.New("unknown category or type")
	ErrCategoryRequired = errors.New("main_category and type are required")
)

type Package struct {
	Name          string          `json:"name"`
	DurationHours float64         `json:"duration_hours"`
	Capacity      *int            `json:"capacity,omitempty"`
	Price         decimal.Decimal `json:"price"`
}

type TransferFeeRule struct {
	CostPerKm    decimal.Decimal `json:"cost_per_km"`
	FreeKmRadius decimal.Decimal `json:"free_km_radius"`
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Service struct {
	ID               string          `json:"id"`
	ProviderID       string          `json:"provider_id"`
	VendorID         string          `json:"vendor_id"`
	BusinessName     string          `json:"business_name"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	MainCategory     string          `json:"main_category"`
	Type             string          `json:"type"`
	IsActive         bool            `json:"is_active"`
	BasePrice        decimal.Decimal `json:"base_price"`
	Packages         []Package       `json:"packages"`
	TransferFeeRule  TransferFeeRule `json:"transfer_fee_rule"`
	Location         *Location       `json:"location,omitempty"`
	ImageURLs        []string        `json:"image_urls"`
	UnavailableDates []string        `json:"unavailable_dates"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// PackageInput mirrors Package with optional fields so incomplete rows can be dropped.
type PackageInput struct {
	Name          string           `json:"name"`
	DurationHours float64          `json:"duration_hours"`
	Capacity      *int             `json:"capacity"`
	Price         *decimal.Decimal `json:"price"`
}

type ServiceInput struct {
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	MainCategory    string           `json:"main_category"`
	Type            string           `json:"type"`
	Packages        []PackageInput   `json:"packages"`
	TransferFeeRule *TransferFeeRule `json:"transfer_fee_rule"`
	Location        *Location        `json:"location"`
	ImageURLs       []string         `json:"image_urls"`
}

// CleanPackages drops packages without a name or price and validates the rest.
func CleanPackages(in []PackageInput) ([]Package, error) {
	out := make([]Package, 0, len(in))
	for _, p := range in {
		name := strings.TrimSpace(p.Name)
		if name == "" || p.Price == nil {
			continue
		}
		if p.Price.IsNegative() {
			return nil, ErrNegativePrice
		}
		if p.DurationHours <= 0 || math.Abs(p.DurationHours*2-math.Round(p.DurationHours*2)) > 1e-9 {
			return nil, ErrInvalidDuration
		}
		if p.Capacity != nil && *p.Capacity <= 0 {
			return nil, ErrInvalidCapacity
		}
		out = append(out, Package{
			Name:          name,
			DurationHours: p.DurationHours,
			Capacity:      p.Capacity,
			Price:         p.Price.Round(2),
		})
	}
	if len(out) == 0 {
		return nil, ErrNoPackages
	}
	if len(out) > MaxPackages {
		return nil, ErrTooManyPackages
	}
	return out, nil
}

// Apply validates in against the category tree and overwrites the editable fields of s.
func (s *Service) Apply(in ServiceInput, tree CategoryTree, now time.Time) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return ErrNameMissing
	}
	mainCategory := strings.TrimSpace(in.MainCategory)
	typ := strings.TrimSpace(in.Type)
	if mainCategory == "" || typ == "" {
		return ErrCategoryRequired
	}
	if !tree.Has(mainCategory, typ) {
		return ErrUnknownCategory
	}
	packages, err := CleanPackages(in.Packages)
	if err != nil {
		return err
	}
	var images []string
	for _, u := range in.ImageURLs {
		if u = strings.TrimSpace(u); u != "" {
			images = append(images, u)
		}
	}
	if len(images) == 0 {
		return ErrNoImages
	}
	rule := TransferFeeRule{CostPerKm: decimal.Zero, FreeKmRadius: decimal.Zero}
	if in.TransferFeeRule != nil {
		if in.TransferFeeRule.CostPerKm.IsNegative() || in.TransferFeeRule.FreeKmRadius.IsNegative() {
			return ErrInvalidFeeRule
		}
		rule = *in.TransferFeeRule
	}
	if in.Location != nil {
		if math.Abs(in.Location.Latitude) > 90 || math.Abs(in.Location.Longitude) > 180 {
			return ErrInvalidLocation
		}
	}

	s.Name = name
	s.Description = strings.TrimSpace(in.Description)
	s.MainCategory = mainCategory
	s.Type = typ
	s.Packages = packages
	s.BasePrice = packages[0].Price
	s.TransferFeeRule = rule
	s.Location = in.Location
	s.ImageURLs = images
	s.UpdatedAt = now
	return nil
}

// FindPackage looks a package up by name, case-insensitively.
func (s Service) FindPackage(name string) (Package, bool) {
	name = strings.TrimSpace(name)
	for _, p := range s.Packages {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Package{}, false
}
