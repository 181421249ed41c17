package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/masterparty/platform/libs/auth"
	"github.com/masterparty/platform/libs/httpx"
	"github.com/masterparty/platform/libs/slots"
	"github.com/masterparty/platform/services/booking-service/internal/availability"
	"github.com/masterparty/platform/services/booking-service/internal/booking"
	"github.com/masterparty/platform/services/booking-service/internal/model"
	"github.com/masterparty/platform/services/booking-service/internal/scheduling"
)

type Store interface {
	Create(ctx context.Context, b model.Booking, idempotencyKey string) (model.Booking, bool, error)
	Get(ctx context.Context, id string) (model.Booking, error)
	Transition(ctx context.Context, id string, decide func(model.Booking) (model.Status, error)) (model.Booking, bool, error)
	ListByClient(ctx context.Context, clientID string, limit int) ([]model.Booking, error)
	ListByVendor(ctx context.Context, vendorID string, status model.Status, limit int) ([]model.Booking, error)
	HeldSlots(ctx context.Context, serviceID, date string) ([]string, error)
}

type BookingHandler struct {
	store      Store
	scheduling scheduling.Provider
	logger     *slog.Logger
	now        func() time.Time
}

func NewBookingHandler(store Store, schedulingProvider scheduling.Provider, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		store:      store,
		scheduling: schedulingProvider,
		logger:     logger,
		now:        time.Now,
	}
}

func (h *BookingHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/bookings", h.Create)
	mux.HandleFunc("GET /api/v1/bookings/mine", h.ListMine)
	mux.HandleFunc("GET /api/v1/bookings/{id}", h.Get)
	mux.HandleFunc("POST /api/v1/bookings/{id}/cancel", h.Cancel)
	mux.HandleFunc("GET /api/v1/vendor/bookings", h.ListVendor)
	mux.HandleFunc("POST /api/v1/vendor/bookings/{id}/accept", h.Accept)
	mux.HandleFunc("POST /api/v1/vendor/bookings/{id}/reject", h.Reject)
	mux.HandleFunc("GET /api/v1/public/services/{id}/availability", h.DayAvailability)
}

func (h *BookingHandler) writeError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, scheduling.ErrServiceNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, booking.ErrServiceInactive):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, booking.ErrDateUnavailable),
		errors.Is(err, booking.ErrSlotBlocked),
		errors.Is(err, booking.ErrSlotTaken),
		errors.Is(err, booking.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, booking.ErrMissingFields),
		errors.Is(err, booking.ErrUnknownPackage),
		errors.Is(err, booking.ErrSlotsMismatch),
		errors.Is(err, slots.ErrInvalidDate),
		errors.Is(err, slots.ErrPastDate),
		errors.Is(err, booking.ErrSlotStarted),
		errors.Is(err, slots.ErrInvalidSlot),
		errors.Is(err, slots.ErrInvalidDuration),
		errors.Is(err, slots.ErrCrossesMidnight),
		errors.Is(err, slots.ErrNotContiguous):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error(msg, "err", err)
		http.Error(w, msg, http.StatusInternalServerError)
	}
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, auth.RoleClient)
	if !ok {
		return
	}
	var req booking.CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	now := h.now().UTC()
	if err := req.Validate(now); err != nil {
		h.writeError(w, err, "invalid booking request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	day, err := h.scheduling.DayContext(ctx, req.ServiceID, req.BookingDate)
	if err != nil {
		if errors.Is(err, scheduling.ErrServiceNotFound) {
			h.writeError(w, err, "")
			return
		}
		h.logger.Error("catalog lookup failed", "err", err, "service_id", req.ServiceID)
		http.Error(w, "catalog service unavailable", http.StatusServiceUnavailable)
		return
	}

	b, err := booking.New(req, day, booking.Client{ID: id.UserID, Email: id.Email}, now)
	if err != nil {
		h.writeError(w, err, "invalid booking request")
		return
	}
	created, replayed, err := h.store.Create(r.Context(), b, strings.TrimSpace(r.Header.Get("Idempotency-Key")))
	if err != nil {
		h.writeError(w, err, "failed to create booking")
		return
	}
	if !replayed {
		h.logger.Info("booking requested", "booking_id", created.ID, "service_id", created.ServiceID, "date", created.BookingDate, "slots", len(created.TimeSlots))
	}
	httpx.WriteJSON(w, http.StatusCreated, created)
}

func (h *BookingHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	id, ok := requireUser(w, r)
	if !ok {
		return
	}
	list, err := h.store.ListByClient(r.Context(), id.UserID, queryLimit(r))
	if err != nil {
		h.writeError(w, err, "failed to list bookings")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

// Get shows a booking to its client or its vendor.
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := requireUser(w, r)
	if !ok {
		return
	}
	b, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err, "failed to load booking")
		return
	}
	if b.ClientID != id.UserID && b.VendorID != id.UserID && !id.HasRole(auth.RoleAdmin) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, b)
}

func (h *BookingHandler) ListVendor(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, auth.RoleProvider)
	if !ok {
		return
	}
	status := model.Status(strings.TrimSpace(r.URL.Query().Get("status")))
	switch status {
	case "", model.StatusPending, model.StatusAccepted, model.StatusRejected, model.StatusCanceledByClient:
	default:
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}
	list, err := h.store.ListByVendor(r.Context(), id.UserID, status, queryLimit(r))
	if err != nil {
		h.writeError(w, err, "failed to list bookings")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (h *BookingHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.vendorTransition(w, r, model.StatusAccepted)
}

func (h *BookingHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.vendorTransition(w, r, model.StatusRejected)
}

func (h *BookingHandler) vendorTransition(w http.ResponseWriter, r *http.Request, target model.Status) {
	id, ok := requireRole(w, r, auth.RoleProvider)
	if !ok {
		return
	}
	h.transition(w, r, target, func(b model.Booking) bool { return b.VendorID == id.UserID })
}

// Cancel is the client withdrawing a pending request. Repeating it is a no-op.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := requireUser(w, r)
	if !ok {
		return
	}
	h.transition(w, r, model.StatusCanceledByClient, func(b model.Booking) bool { return b.ClientID == id.UserID })
}

// transition hides bookings the caller does not own behind 404.
func (h *BookingHandler) transition(w http.ResponseWriter, r *http.Request, target model.Status, owns func(model.Booking) bool) {
	b, changed, err := h.store.Transition(r.Context(), r.PathValue("id"), func(b model.Booking) (model.Status, error) {
		if !owns(b) {
			return "", booking.ErrNotFound
		}
		return booking.Next(b, target)
	})
	if err != nil {
		h.writeError(w, err, "failed to update booking")
		return
	}
	if changed {
		h.logger.Info("booking status changed", "booking_id", b.ID, "status", b.Status)
	}
	httpx.WriteJSON(w, http.StatusOK, b)
}

// DayAvailability shows the slot grid of a date for clients picking a time.
func (h *BookingHandler) DayAvailability(w http.ResponseWriter, r *http.Request) {
	serviceID := r.PathValue("id")
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if _, err := slots.ParseDate(date); err != nil {
		h.writeError(w, err, "invalid date")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	day, err := h.scheduling.DayContext(ctx, serviceID, date)
	if err != nil {
		if errors.Is(err, scheduling.ErrServiceNotFound) {
			h.writeError(w, err, "")
			return
		}
		h.logger.Error("catalog lookup failed", "err", err, "service_id", serviceID)
		http.Error(w, "catalog service unavailable", http.StatusServiceUnavailable)
		return
	}
	if !day.IsActive {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	length := 1
	if name := strings.TrimSpace(r.URL.Query().Get("package")); name != "" {
		pkg, ok := day.FindPackage(name)
		if !ok {
			h.writeError(w, booking.ErrUnknownPackage, "")
			return
		}
		if length, err = slots.SlotsForDuration(pkg.DurationHours); err != nil {
			h.writeError(w, err, "invalid package")
			return
		}
	}

	held, err := h.store.HeldSlots(r.Context(), serviceID, date)
	if err != nil {
		h.writeError(w, err, "failed to load bookings")
		return
	}
	busy := append(held, day.BlockedSlots...)
	httpx.WriteJSON(w, http.StatusOK, availability.Compute(serviceID, date, day.Unavailable, busy, length, h.now()))
}

func requireUser(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id := auth.IdentityFromRequest(r)
	if id.UserID == "" {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return id, false
	}
	return id, true
}

func requireRole(w http.ResponseWriter, r *http.Request, role string) (auth.Identity, bool) {
	id, ok := requireUser(w, r)
	if !ok {
		return id, false
	}
	if !id.HasRole(role) && !id.HasRole(auth.RoleAdmin) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return id, false
	}
	return id, true
}

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("limit")))
	if err != nil || n <= 0 || n > 200 {
		return 50
	}
	return n
}
