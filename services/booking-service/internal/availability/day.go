// Package availability computes which slots of a day a client can still book.
package availability

import (
	"time"

	"github.com/masterparty/platform/libs/slots"
)

type SlotState struct {
	Slot string `json:"slot"`
	Free bool   `json:"free"`
}

type Day struct {
	ServiceID   string      `json:"service_id"`
	Date        string      `json:"date"`
	Unavailable bool        `json:"unavailable"`
	Slots       []SlotState `json:"slots"`
	// StartSlots are the slots where a booking of the requested length fits entirely on free slots.
	StartSlots []string `json:"start_slots"`
}

// Compute marks every grid slot of date as free or busy. busy holds vendor blocks and held
// bookings. On the current day, slots that already started are busy. length is in slots; values
// below one mean a single slot.
func Compute(serviceID, date string, unavailable bool, busy []string, length int, now time.Time) Day {
	day := Day{
		ServiceID:   serviceID,
		Date:        date,
		Unavailable: unavailable,
		Slots:       make([]SlotState, slots.PerDay),
		StartSlots:  []string{},
	}
	if length < 1 {
		length = 1
	}

	free := make([]bool, slots.PerDay)
	if !unavailable {
		first := slots.FirstBookable(date, now)
		for i := first; i < slots.PerDay; i++ {
			free[i] = true
		}
		for _, s := range busy {
			if i, err := slots.Index(s); err == nil {
				free[i] = false
			}
		}
	}

	for i := range day.Slots {
		day.Slots[i] = SlotState{Slot: slots.FromIndex(i), Free: free[i]}
	}
	for i := 0; i+length <= slots.PerDay; i++ {
		if fits(free, i, length) {
			day.StartSlots = append(day.StartSlots, slots.FromIndex(i))
		}
	}
	return day
}

func fits(free []bool, start, length int) bool {
	for i := start; i < start+length; i++ {
		if !free[i] {
			return false
		}
	}
	return true
}
