package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending          Status = "pending"
	StatusAccepted         Status = "accepted"
	StatusRejected         Status = "rejected"
	StatusCanceledByClient Status = "canceled_by_client"
)

// Holds reports whether a booking in s keeps its slots reserved.
func (s Status) Holds() bool {
	return s == StatusPending || s == StatusAccepted
}

const (
	EventRequested = "booking.requested.v1"
	EventAccepted  = "booking.accepted.v1"
	EventRejected  = "booking.rejected.v1"
	EventCanceled  = "booking.canceled.v1"
)

// EventFor maps the status a booking just entered to the event announcing it.
func EventFor(s Status) string {
	switch s {
	case StatusAccepted:
		return EventAccepted
	case StatusRejected:
		return EventRejected
	case StatusCanceledByClient:
		return EventCanceled
	default:
		return EventRequested
	}
}

// PackageSnapshot is the package as it was when the booking was requested.
type PackageSnapshot struct {
	Name          string          `json:"name"`
	DurationHours float64         `json:"duration_hours"`
	Capacity      *int            `json:"capacity,omitempty"`
	Price         decimal.Decimal `json:"price"`
}

type Booking struct {
	ID           string          `json:"id"`
	ServiceID    string          `json:"service_id"`
	ServiceName  string          `json:"service_name"`
	BusinessName string          `json:"business_name"`
	VendorID     string          `json:"vendor_id"`
	VendorEmail  string          `json:"-"`
	ClientID     string          `json:"client_id"`
	ClientEmail  string          `json:"client_email"`
	Package      PackageSnapshot `json:"package"`
	BookingDate  string          `json:"booking_date"`
	TimeSlots    []string        `json:"time_slots"`
	Status       Status          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// EventPayload is the body of every booking.*.v1 message.
type EventPayload struct {
	BookingID    string   `json:"booking_id"`
	Status       Status   `json:"status"`
	ServiceID    string   `json:"service_id"`
	ServiceName  string   `json:"service_name"`
	BusinessName string   `json:"business_name"`
	PackageName  string   `json:"package_name"`
	BookingDate  string   `json:"booking_date"`
	TimeSlots    []string `json:"time_slots"`
	VendorID     string   `json:"vendor_id"`
	VendorEmail  string   `json:"vendor_email"`
	ClientID     string   `json:"client_id"`
	ClientEmail  string   `json:"client_email"`
	OccurredAt   string   `json:"occurred_at"`
}

func (b Booking) Event() ([]byte, error) {
	return json.Marshal(EventPayload{
		BookingID:    b.ID,
		Status:       b.Status,
		ServiceID:    b.ServiceID,
		ServiceName:  b.ServiceName,
		BusinessName: b.BusinessName,
		PackageName:  b.Package.Name,
		BookingDate:  b.BookingDate,
		TimeSlots:    b.TimeSlots,
		VendorID:     b.VendorID,
		VendorEmail:  b.VendorEmail,
		ClientID:     b.ClientID,
		ClientEmail:  b.ClientEmail,
		OccurredAt:   b.UpdatedAt.UTC().Format(time.RFC3339),
	})
}
