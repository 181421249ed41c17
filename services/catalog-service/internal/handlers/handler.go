package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/masterparty/platform/libs/auth"
	"github.com/masterparty/platform/libs/httpx"
	"github.com/masterparty/platform/libs/slots"
	"github.com/masterparty/platform/services/catalog-service/internal/catalog"
)

type Store interface {
	CreateProvider(ctx context.Context, p catalog.Provider) error
	GetProviderByOwner(ctx context.Context, ownerUserID string) (catalog.Provider, error)
	GetProviderBySlug(ctx context.Context, slug string) (catalog.Provider, error)
	GetProvider(ctx context.Context, id string) (catalog.Provider, error)
	UpdateProvider(ctx context.Context, p catalog.Provider) error

	CreateService(ctx context.Context, s catalog.Service) error
	UpdateService(ctx context.Context, s catalog.Service) error
	GetService(ctx context.Context, id string) (catalog.Service, error)
	SetServiceActive(ctx context.Context, id string, vendorID string, active bool) error
	DeleteService(ctx context.Context, id string, vendorID string) error
	ListServicesByVendor(ctx context.Context, vendorID string) ([]catalog.Service, error)
	ListActiveServicesByProvider(ctx context.Context, providerID string) ([]catalog.Service, error)
	SearchServices(ctx context.Context, f catalog.Filter) ([]catalog.Service, error)
	UpdateUnavailableDates(ctx context.Context, id string, vendorID string, fn func([]string) ([]string, error)) ([]string, error)

	BlockedSlots(ctx context.Context, vendorID string, date string) (map[string][]string, error)
	ServiceBlockedSlots(ctx context.Context, serviceID string, date string) ([]string, error)
	ApplyBlockRange(ctx context.Context, vendorID string, b catalog.BlockRange) (map[string][]string, catalog.BlockMode, error)

	ListCategories(ctx context.Context) (catalog.CategoryTree, error)
	AddCategory(ctx context.Context, name string) error
	RenameCategory(ctx context.Context, oldName, newName string) error
	DeleteCategory(ctx context.Context, name string) error
	AddSubcategory(ctx context.Context, category, name string) error
	RenameSubcategory(ctx context.Context, category, oldName, newName string) error
	DeleteSubcategory(ctx context.Context, category, name string) error
}

type Handler struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func New(store Store, logger *slog.Logger, newID func() string) *Handler {
	return &Handler{store: store, logger: logger, now: time.Now, newID: newID}
}

// Register mounts every catalog route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/providers", h.BecomeProvider)
	mux.HandleFunc("GET /api/v1/providers/me", h.GetMyProvider)
	mux.HandleFunc("PUT /api/v1/providers/me", h.UpdateProvider)
	mux.HandleFunc("GET /api/v1/public/storefronts/{slug}", h.GetStorefront)

	mux.HandleFunc("POST /api/v1/services", h.CreateService)
	mux.HandleFunc("GET /api/v1/services", h.ListMyServices)
	mux.HandleFunc("PUT /api/v1/services/{id}", h.UpdateService)
	mux.HandleFunc("DELETE /api/v1/services/{id}", h.DeleteService)
	mux.HandleFunc("PUT /api/v1/services/{id}/active", h.SetServiceActive)
	mux.HandleFunc("PUT /api/v1/services/{id}/unavailable-dates", h.SetUnavailableDates)
	mux.HandleFunc("POST /api/v1/services/{id}/unavailable-dates/toggle", h.ToggleUnavailableDate)
	mux.HandleFunc("GET /api/v1/public/services", h.SearchServices)
	mux.HandleFunc("GET /api/v1/public/services/{id}", h.GetService)
	mux.HandleFunc("GET /api/v1/public/services/{id}/transfer-fee", h.QuoteTransferFee)

	mux.HandleFunc("GET /api/v1/availability/blocks", h.GetBlockedSlots)
	mux.HandleFunc("POST /api/v1/availability/blocks", h.ApplyBlockRange)

	mux.HandleFunc("GET /api/v1/public/categories", h.ListCategories)
	mux.HandleFunc("POST /api/v1/admin/categories", h.AddCategory)
	mux.HandleFunc("PUT /api/v1/admin/categories/{name}", h.RenameCategory)
	mux.HandleFunc("DELETE /api/v1/admin/categories/{name}", h.DeleteCategory)
	mux.HandleFunc("POST /api/v1/admin/categories/{name}/subcategories", h.AddSubcategory)
	mux.HandleFunc("PUT /api/v1/admin/categories/{name}/subcategories/{sub}", h.RenameSubcategory)
	mux.HandleFunc("DELETE /api/v1/admin/categories/{name}/subcategories/{sub}", h.DeleteSubcategory)

	mux.HandleFunc("GET /internal/v1/services/{id}/booking-context", h.BookingContext)
}

var badRequestErrs = []error{
	catalog.ErrNameRequired,
	catalog.ErrInvalidSlugName,
	catalog.ErrNameMissing,
	catalog.ErrNoPackages,
	catalog.ErrTooManyPackages,
	catalog.ErrInvalidDuration,
	catalog.ErrInvalidCapacity,
	catalog.ErrNegativePrice,
	catalog.ErrNoImages,
	catalog.ErrInvalidLocation,
	catalog.ErrInvalidFeeRule,
	catalog.ErrUnknownCategory,
	catalog.ErrCategoryRequired,
	catalog.ErrNoServicesSelected,
	catalog.ErrInvalidMode,
	catalog.ErrCategoryNameRequired,
	catalog.ErrNoLocation,
	slots.ErrInvalidDate,
	slots.ErrPastDate,
	slots.ErrInvalidSlot,
	slots.ErrCrossesMidnight,
	slots.ErrInvalidDuration,
}

// writeError maps domain errors to status codes; anything unknown is logged and reported as msg.
func (h *Handler) writeError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
		return
	case errors.Is(err, catalog.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	case errors.Is(err, catalog.ErrBusinessNameTaken),
		errors.Is(err, catalog.ErrAlreadyProvider),
		errors.Is(err, catalog.ErrCategoryExists):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	for _, target := range badRequestErrs {
		if errors.Is(err, target) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	h.logger.Error(msg, "err", err)
	http.Error(w, msg, http.StatusInternalServerError)
}

// requireUser answers 401 when the gateway did not attach an identity.
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

func decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := httpx.DecodeJSON(r, into); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return false
	}
	return true
}
