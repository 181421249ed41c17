package handlers

import (
	"net/http"
	"slices"
	"strings"

	"github.com/masterparty/platform/libs/httpx"
	"github.com/masterparty/platform/libs/slots"
	"github.com/masterparty/platform/services/catalog-service/internal/catalog"
)

// BookingContext is everything booking-service needs to validate a request for one date.
type BookingContext struct {
	ServiceID    string            `json:"service_id"`
	ProviderID   string            `json:"provider_id"`
	VendorID     string            `json:"vendor_id"`
	VendorEmail  string            `json:"vendor_email"`
	ServiceName  string            `json:"service_name"`
	BusinessName string            `json:"business_name"`
	IsActive     bool              `json:"is_active"`
	Packages     []catalog.Package `json:"packages"`
	Date         string            `json:"date"`
	Unavailable  bool              `json:"unavailable"`
	BlockedSlots []string          `json:"blocked_slots"`
}

func (h *Handler) BookingContext(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if _, err := slots.ParseDate(date); err != nil {
		h.writeError(w, err, "invalid date")
		return
	}
	s, err := h.store.GetService(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err, "failed to load service")
		return
	}
	p, err := h.store.GetProvider(r.Context(), s.ProviderID)
	if err != nil {
		h.writeError(w, err, "failed to load provider")
		return
	}
	blocked, err := h.store.ServiceBlockedSlots(r.Context(), s.ID, date)
	if err != nil {
		h.writeError(w, err, "failed to load blocked slots")
		return
	}
	if blocked == nil {
		blocked = []string{}
	}
	httpx.WriteJSON(w, http.StatusOK, BookingContext{
		ServiceID:    s.ID,
		ProviderID:   s.ProviderID,
		VendorID:     s.VendorID,
		VendorEmail:  p.ContactEmail,
		ServiceName:  s.Name,
		BusinessName: s.BusinessName,
		IsActive:     s.IsActive,
		Packages:     s.Packages,
		Date:         date,
		Unavailable:  slices.Contains(s.UnavailableDates, date),
		BlockedSlots: blocked,
	})
}
