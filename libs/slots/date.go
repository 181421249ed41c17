package slots

import (
	"errors"
	"time"
)

const DateLayout = "2006-01-02"

var (
	ErrInvalidDate = errors.New("date must be YYYY-MM-DD")
	ErrPastDate    = errors.New("date is in the past")
)

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// Today is the current UTC calendar date.
func Today(now time.Time) string {
	return now.UTC().Format(DateLayout)
}

// FirstBookable is the index of the first slot of date that has not started yet: 0 for future
// dates, PerDay when the whole date is past.
func FirstBookable(date string, now time.Time) int {
	today := Today(now)
	switch {
	case date < today:
		return PerDay
	case date > today:
		return 0
	}
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	const slotLength = 30 * time.Minute
	return int((now.Sub(midnight) + slotLength - 1) / slotLength)
}

// NotPast validates s and rejects dates before today (UTC).
func NotPast(s string, now time.Time) error {
	if _, err := ParseDate(s); err != nil {
		return err
	}
	// YYYY-MM-DD compares lexically in date order.
	if s < Today(now) {
		return ErrPastDate
	}
	return nil
}
