package catalog

import (
	"errors"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/masterparty/platform/libs/slots"
)

var (
	ErrNoServicesSelected = errors.New("select at least one service")
	ErrInvalidMode        = errors.New("mode must be block or unblock")
)

type BlockMode string

const (
	ModeBlock   BlockMode = "block"
	ModeUnblock BlockMode = "unblock"
)

// NormalizeDates validates, deduplicates and sorts unavailable dates. Past dates are rejected.
func NormalizeDates(dates []string, now time.Time) ([]string, error) {
	seen := make(map[string]struct{}, len(dates))
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		d = strings.TrimSpace(d)
		if err := slots.NotPast(d, now); err != nil {
			return nil, err
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}

// ToggleDate removes date when present, otherwise adds it. Only adding requires a future date.
func ToggleDate(dates []string, date string, now time.Time) ([]string, bool, error) {
	date = strings.TrimSpace(date)
	if _, err := slots.ParseDate(date); err != nil {
		return nil, false, err
	}
	if i := slices.Index(dates, date); i >= 0 {
		out := slices.Delete(slices.Clone(dates), i, i+1)
		return out, false, nil
	}
	if err := slots.NotPast(date, now); err != nil {
		return nil, false, err
	}
	out := append(slices.Clone(dates), date)
	sort.Strings(out)
	return out, true, nil
}

// BlockRange is a vendor's drag selection over the slot grid of one date.
type BlockRange struct {
	Date       string    `json:"date"`
	ServiceIDs []string  `json:"service_ids"`
	Start      string    `json:"start"`
	End        string    `json:"end"`
	Mode       BlockMode `json:"mode,omitempty"`
}

// ResolveMode picks unblock when the start slot is already blocked for any selected service.
func (b BlockRange) ResolveMode(blocked map[string][]string) BlockMode {
	if b.Mode != "" {
		return b.Mode
	}
	for _, id := range b.ServiceIDs {
		if slices.Contains(blocked[id], b.Start) {
			return ModeUnblock
		}
	}
	return ModeBlock
}

func (b BlockRange) Validate(now time.Time) error {
	if len(b.ServiceIDs) == 0 {
		return ErrNoServicesSelected
	}
	if _, err := slots.ParseDate(b.Date); err != nil {
		return err
	}
	if b.Mode != "" && b.Mode != ModeBlock && b.Mode != ModeUnblock {
		return ErrInvalidMode
	}
	if _, err := slots.Between(b.Start, b.End); err != nil {
		return err
	}
	return nil
}

// ApplyBlockRange returns the blocked slots per selected service after applying b to current.
// Services missing from current start with no blocked slots.
func ApplyBlockRange(current map[string][]string, b BlockRange) (map[string][]string, BlockMode, error) {
	rng, err := slots.Between(b.Start, b.End)
	if err != nil {
		return nil, "", err
	}
	mode := b.ResolveMode(current)
	out := make(map[string][]string, len(b.ServiceIDs))
	for _, id := range b.ServiceIDs {
		existing := current[id]
		var next []string
		switch mode {
		case ModeUnblock:
			for _, s := range existing {
				if !slices.Contains(rng, s) {
					next = append(next, s)
				}
			}
		default:
			next = append(slices.Clone(existing), rng...)
		}
		out[id] = slots.Sort(next)
	}
	return out, mode, nil
}
