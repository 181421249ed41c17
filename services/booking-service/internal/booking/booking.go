// Package booking holds the rules for requesting bookings and moving them between statuses.
package booking

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/masterparty/platform/libs/slots"
	"github.com/masterparty/platform/services/booking-service/internal/model"
	"github.com/masterparty/platform/services/booking-service/internal/scheduling"
)

var (
	ErrMissingFields     = errors.New("service_id, package_name and booking_date are required")
	ErrServiceInactive   = errors.New("service is not accepting bookings")
	ErrUnknownPackage    = errors.New("unknown package")
	ErrSlotsMismatch     = errors.New("time_slots do not match the package duration")
	ErrDateUnavailable   = errors.New("date is unavailable")
	ErrSlotBlocked       = errors.New("time slot is blocked by the provider")
	ErrSlotStarted       = errors.New("time slot has already started")
	ErrSlotTaken         = errors.New("time slot already booked")
	ErrNotFound          = errors.New("booking not found")
	ErrInvalidTransition = errors.New("booking cannot change from its current status")
)

type CreateRequest struct {
	ServiceID   string   `json:"service_id"`
	PackageName string   `json:"package_name"`
	BookingDate string   `json:"booking_date"`
	StartSlot   string   `json:"start_slot"`
	TimeSlots   []string `json:"time_slots"`
}

// Validate checks the fields that need no catalog lookup.
func (r *CreateRequest) Validate(now time.Time) error {
	r.ServiceID = strings.TrimSpace(r.ServiceID)
	r.PackageName = strings.TrimSpace(r.PackageName)
	r.BookingDate = strings.TrimSpace(r.BookingDate)
	r.StartSlot = strings.TrimSpace(r.StartSlot)
	if r.ServiceID == "" || r.PackageName == "" || r.BookingDate == "" {
		return ErrMissingFields
	}
	if r.StartSlot == "" && len(r.TimeSlots) == 0 {
		return slots.ErrInvalidSlot
	}
	return slots.NotPast(r.BookingDate, now)
}

// requestedSlots expands start_slot to the package length, or checks explicit time_slots against it.
func (r CreateRequest) requestedSlots(durationHours float64) ([]string, error) {
	n, err := slots.SlotsForDuration(durationHours)
	if err != nil {
		return nil, err
	}
	if len(r.TimeSlots) == 0 {
		return slots.ExpandRange(r.StartSlot, n)
	}
	for _, s := range r.TimeSlots {
		if !slots.Valid(s) {
			return nil, slots.ErrInvalidSlot
		}
	}
	sorted := slots.Sort(r.TimeSlots)
	if err := slots.Contiguous(sorted); err != nil {
		return nil, err
	}
	if len(sorted) != len(r.TimeSlots) || len(sorted) != n {
		return nil, ErrSlotsMismatch
	}
	return sorted, nil
}

// Client is who is asking for the booking.
type Client struct {
	ID    string
	Email string
}

// New checks r against the catalog view of the day and builds a pending booking. Slots held by
// other bookings are not checked here; the store rejects them atomically.
func New(r CreateRequest, day scheduling.DayContext, client Client, now time.Time) (model.Booking, error) {
	if !day.IsActive {
		return model.Booking{}, ErrServiceInactive
	}
	pkg, ok := day.FindPackage(r.PackageName)
	if !ok {
		return model.Booking{}, ErrUnknownPackage
	}
	if day.Unavailable {
		return model.Booking{}, ErrDateUnavailable
	}
	requested, err := r.requestedSlots(pkg.DurationHours)
	if err != nil {
		return model.Booking{}, err
	}
	if first, _ := slots.Index(requested[0]); first < slots.FirstBookable(r.BookingDate, now) {
		return model.Booking{}, ErrSlotStarted
	}
	for _, s := range requested {
		if slices.Contains(day.BlockedSlots, s) {
			return model.Booking{}, ErrSlotBlocked
		}
	}
	return model.Booking{
		ServiceID:    day.ServiceID,
		ServiceName:  day.ServiceName,
		BusinessName: day.BusinessName,
		VendorID:     day.VendorID,
		VendorEmail:  day.VendorEmail,
		ClientID:     client.ID,
		ClientEmail:  strings.ToLower(strings.TrimSpace(client.Email)),
		Package: model.PackageSnapshot{
			Name:          pkg.Name,
			DurationHours: pkg.DurationHours,
			Capacity:      pkg.Capacity,
			Price:         pkg.Price,
		},
		BookingDate: r.BookingDate,
		TimeSlots:   requested,
		Status:      model.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Next validates moving b to target. Returning b.Status means there is nothing to do.
func Next(b model.Booking, target model.Status) (model.Status, error) {
	if b.Status == target && target == model.StatusCanceledByClient {
		return b.Status, nil
	}
	switch target {
	case model.StatusAccepted, model.StatusRejected, model.StatusCanceledByClient:
		if b.Status != model.StatusPending {
			return "", ErrInvalidTransition
		}
		return target, nil
	default:
		return "", ErrInvalidTransition
	}
}
