// Package slots implements the 30-minute booking grid shared by catalog and booking.
package slots

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// PerDay is the number of 30-minute slots between 00:00 and 23:30.
const PerDay = 48

var (
	ErrInvalidSlot     = errors.New("slot must be HH:MM on the 30-minute grid")
	ErrInvalidDuration = errors.New("duration must be positive")
	ErrCrossesMidnight = errors.New("slots cannot cross midnight")
	ErrNotContiguous   = errors.New("slots must be consecutive")
)

// Index returns the grid position of slot, 0 for 00:00 through 47 for 23:30.
func Index(slot string) (int, error) {
	if len(slot) != 5 || slot[2] != ':' {
		return 0, ErrInvalidSlot
	}
	t, err := time.Parse("15:04", slot)
	if err != nil {
		return 0, ErrInvalidSlot
	}
	if t.Minute() != 0 && t.Minute() != 30 {
		return 0, ErrInvalidSlot
	}
	return t.Hour()*2 + t.Minute()/30, nil
}

func FromIndex(i int) string {
	return fmt.Sprintf("%02d:%02d", i/2, (i%2)*30)
}

func Valid(slot string) bool {
	_, err := Index(slot)
	return err == nil
}

// Grid lists every slot of a day.
func Grid() []string {
	out := make([]string, PerDay)
	for i := range out {
		out[i] = FromIndex(i)
	}
	return out
}

// SlotsForDuration rounds hours up to whole 30-minute slots.
func SlotsForDuration(hours float64) (int, error) {
	if hours <= 0 || math.IsNaN(hours) || math.IsInf(hours, 0) {
		return 0, ErrInvalidDuration
	}
	return int(math.Ceil(hours*2 - 1e-9)), nil
}

// ExpandRange returns n consecutive slots starting at start.
func ExpandRange(start string, n int) ([]string, error) {
	i, err := Index(start)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, ErrInvalidDuration
	}
	if i+n > PerDay {
		return nil, ErrCrossesMidnight
	}
	out := make([]string, n)
	for k := range out {
		out[k] = FromIndex(i + k)
	}
	return out, nil
}

// Between returns the inclusive range of slots between a and b, in either order.
func Between(a, b string) ([]string, error) {
	ia, err := Index(a)
	if err != nil {
		return nil, err
	}
	ib, err := Index(b)
	if err != nil {
		return nil, err
	}
	if ia > ib {
		ia, ib = ib, ia
	}
	return ExpandRange(FromIndex(ia), ib-ia+1)
}

// Contiguous reports an error unless slots are valid, ordered and adjacent.
func Contiguous(slots []string) error {
	if len(slots) == 0 {
		return ErrInvalidDuration
	}
	prev := -1
	for _, s := range slots {
		i, err := Index(s)
		if err != nil {
			return err
		}
		if prev >= 0 && i != prev+1 {
			return ErrNotContiguous
		}
		prev = i
	}
	return nil
}

// Sort orders slots by grid position and removes duplicates and invalid entries.
func Sort(in []string) []string {
	seen := make(map[int]struct{}, len(in))
	idx := make([]int, 0, len(in))
	for _, s := range in {
		i, err := Index(s)
		if err != nil {
			continue
		}
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		idx = append(idx, i)
	}
	sort.Ints(idx)
	out := make([]string, len(idx))
	for k, i := range idx {
		out[k] = FromIndex(i)
	}
	return out
}
