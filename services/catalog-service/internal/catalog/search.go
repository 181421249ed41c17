package catalog

import (
	"slices"
	"strconv"
	"strings"

	"github.com/masterparty/platform/libs/slots"
)

// Filter narrows active services for search and storefront listings.
type Filter struct {
	Category string
	Type     string
	Date     string
	Capacity int
	Limit    int
	// Blocked holds the blocked slots per service id on Date.
	Blocked map[string][]string
}

// ParseFilter reads category, type, date, capacity and limit query values.
func ParseFilter(get func(string) string) (Filter, error) {
	f := Filter{
		Category: strings.TrimSpace(get("category")),
		Type:     strings.TrimSpace(get("type")),
		Date:     strings.TrimSpace(get("date")),
		Limit:    50,
	}
	if f.Date != "" {
		if _, err := slots.ParseDate(f.Date); err != nil {
			return Filter{}, err
		}
	}
	if v := strings.TrimSpace(get("capacity")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Filter{}, ErrInvalidCapacity
		}
		f.Capacity = n
	}
	if v := strings.TrimSpace(get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil && n > 0 && n <= 200 {
			f.Limit = n
		}
	}
	return f, nil
}

// Matches applies every filter rule to s. Inactive services never match.
// storage.SearchServices repeats these rules in SQL; keep both in step.
func (f Filter) Matches(s Service) bool {
	if !s.IsActive {
		return false
	}
	if f.Category != "" && !strings.EqualFold(s.MainCategory, f.Category) {
		return false
	}
	if f.Type != "" && !strings.EqualFold(s.Type, f.Type) {
		return false
	}
	if f.Date != "" && slices.Contains(s.UnavailableDates, f.Date) {
		return false
	}
	if f.Date != "" && FullyBlocked(f.Blocked[s.ID]) {
		return false
	}
	if f.Capacity > 0 && !hasCapacity(s.Packages, f.Capacity) {
		return false
	}
	return true
}

// FullyBlocked reports whether blocked covers every slot of the day.
func FullyBlocked(blocked []string) bool {
	return len(slots.Sort(blocked)) >= slots.PerDay
}

// hasCapacity reports whether some package fits n guests. Packages without a capacity fit anyone.
func hasCapacity(packages []Package, n int) bool {
	for _, p := range packages {
		if p.Capacity == nil || *p.Capacity >= n {
			return true
		}
	}
	return false
}

// Apply filters services in order and stops at the limit.
func (f Filter) Apply(services []Service) []Service {
	out := make([]Service, 0, len(services))
	for _, s := range services {
		if !f.Matches(s) {
			continue
		}
		out = append(out, s)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}
