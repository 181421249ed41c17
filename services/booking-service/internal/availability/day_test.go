package availability

import (
	"slices"
	"testing"
	"time"
)

func freeSlots(d Day) []string {
	var out []string
	for _, s := range d.Slots {
		if s.Free {
			out = append(out, s.Slot)
		}
	}
	return out
}

func TestComputeFutureDay(t *testing.T) {
	now := time.Date(2030, 6, 1, 15, 0, 0, 0, time.UTC)
	day := Compute("svc", "2030-06-02", false, []string{"01:00", "02:00", "bogus"}, 2, now)

	if len(day.Slots) != 48 {
		t.Fatalf("expected 48 slots, got %d", len(day.Slots))
	}
	if got := len(freeSlots(day)); got != 46 {
		t.Fatalf("expected 46 free slots, got %d", got)
	}
	// 00:30 cannot start a 1h booking because 01:00 is busy; 01:30 neither because 02:00 is.
	if slices.Contains(day.StartSlots, "00:30") || slices.Contains(day.StartSlots, "01:30") {
		t.Fatalf("unexpected start slots %v", day.StartSlots[:4])
	}
	if day.StartSlots[0] != "00:00" || day.StartSlots[1] != "02:30" {
		t.Fatalf("unexpected first start slots %v", day.StartSlots[:2])
	}
	if last := day.StartSlots[len(day.StartSlots)-1]; last != "23:00" {
		t.Fatalf("booking must not cross midnight, last start %s", last)
	}
}

func TestComputeToday(t *testing.T) {
	now := time.Date(2030, 6, 1, 9, 10, 0, 0, time.UTC)
	day := Compute("svc", "2030-06-01", false, nil, 1, now)
	free := freeSlots(day)
	if free[0] != "09:30" {
		t.Fatalf("expected first free slot 09:30, got %s", free[0])
	}

	now = time.Date(2030, 6, 1, 9, 30, 0, 0, time.UTC)
	day = Compute("svc", "2030-06-01", false, nil, 0, now)
	if day.StartSlots[0] != "09:30" {
		t.Fatalf("a slot starting now is still bookable, got %s", day.StartSlots[0])
	}
}

func TestComputeClosedDays(t *testing.T) {
	now := time.Date(2030, 6, 1, 9, 0, 0, 0, time.UTC)
	for name, day := range map[string]Day{
		"past":        Compute("svc", "2030-05-31", false, nil, 1, now),
		"unavailable": Compute("svc", "2030-06-05", true, nil, 1, now),
	} {
		if len(freeSlots(day)) != 0 || len(day.StartSlots) != 0 {
			t.Fatalf("%s: expected no free slots", name)
		}
		if day.StartSlots == nil {
			t.Fatalf("%s: start slots must encode as an empty list", name)
		}
	}
}
