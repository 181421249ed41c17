// Package scheduling fetches what booking-service needs to know about a service on a date.
package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/masterparty/platform/libs/httpx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var ErrServiceNotFound = errors.New("service not found")

type Package struct {
	Name          string          `json:"name"`
	DurationHours float64         `json:"duration_hours"`
	Capacity      *int            `json:"capacity,omitempty"`
	Price         decimal.Decimal `json:"price"`
}

// DayContext is the catalog view of one service on one date.
type DayContext struct {
	ServiceID    string    `json:"service_id"`
	ProviderID   string    `json:"provider_id"`
	VendorID     string    `json:"vendor_id"`
	VendorEmail  string    `json:"vendor_email"`
	ServiceName  string    `json:"service_name"`
	BusinessName string    `json:"business_name"`
	IsActive     bool      `json:"is_active"`
	Packages     []Package `json:"packages"`
	Date         string    `json:"date"`
	Unavailable  bool      `json:"unavailable"`
	BlockedSlots []string  `json:"blocked_slots"`
}

// FindPackage looks a package up by name, case-insensitively.
func (c DayContext) FindPackage(name string) (Package, bool) {
	name = strings.TrimSpace(name)
	for _, p := range c.Packages {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Package{}, false
}

type Provider interface {
	DayContext(ctx context.Context, serviceID string, date string) (DayContext, error)
}

type httpProvider struct {
	baseURL string
	http    *http.Client
}

// NewProvider talks to catalog-service at baseURL.
func NewProvider(baseURL string) Provider {
	return &httpProvider{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &http.Client{
			Timeout:   5 * time.Second,
			Transport: httpx.RequestIDTransport{Base: otelhttp.NewTransport(http.DefaultTransport)},
		},
	}
}

func (p *httpProvider) DayContext(ctx context.Context, serviceID string, date string) (DayContext, error) {
	endpoint := fmt.Sprintf("%s/internal/v1/services/%s/booking-context?date=%s",
		p.baseURL, url.PathEscape(serviceID), url.QueryEscape(date))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return DayContext{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := p.http.Do(req)
	if err != nil {
		return DayContext{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return DayContext{}, ErrServiceNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return DayContext{}, fmt.Errorf("catalog returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out DayContext
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return DayContext{}, err
	}
	return out, nil
}
