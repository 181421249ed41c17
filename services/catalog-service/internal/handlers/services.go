package handlers

import (
	"net/http"
	"strconv"

	"github.com/masterparty/platform/libs/auth"
	"github.com/masterparty/platform/libs/httpx"
	"github.com/masterparty/platform/services/catalog-service/internal/catalog"
)

func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, auth.RoleProvider)
	if !ok {
		return
	}
	var req catalog.ServiceInput
	if !decode(w, r, &req) {
		return
	}
	p, err := h.store.GetProviderByOwner(r.Context(), id.UserID)
	if err != nil {
		h.writeError(w, err, "failed to load provider")
		return
	}
	tree, err := h.store.ListCategories(r.Context())
	if err != nil {
		h.writeError(w, err, "failed to load categories")
		return
	}

	now := h.now().UTC()
	s := catalog.Service{
		ID:           h.newID(),
		ProviderID:   p.ID,
		VendorID:     id.UserID,
		BusinessName: p.BusinessName,
		IsActive:     true,
		CreatedAt:    now,
	}
	if err := s.Apply(req, tree, now); err != nil {
		h.writeError(w, err, "failed to create service")
		return
	}
	s.UnavailableDates = []string{}
	if err := h.store.CreateService(r.Context(), s); err != nil {
		h.writeError(w, err, "failed to create service")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, s)
}

func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, auth.RoleProvider)
	if !ok {
		return
	}
	var req catalog.ServiceInput
	if !decode(w, r, &req) {
		return
	}
	s, err := h.ownedService(r, id)
	if err != nil {
		h.writeError(w, err, "failed to load service")
		return
	}
	tree, err := h.store.ListCategories(r.Context())
	if err != nil {
		h.writeError(w, err, "failed to load categories")
		return
	}
	if err := s.Apply(req, tree, h.now().UTC()); err != nil {
		h.writeError(w, err, "failed to update service")
		return
	}
	if err := h.store.UpdateService(r.Context(), s); err != nil {
		h.writeError(w, err, "failed to update service")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, s)
}

// ownedService loads the path service and hides services of other vendors as not found.
func (h *Handler) ownedService(r *http.Request, id auth.Identity) (catalog.Service, error) {
	s, err := h.store.GetService(r.Context(), r.PathValue("id"))
	if err != nil {
		return catalog.Service{}, err
	}
	if s.VendorID != id.UserID && !id.HasRole(auth.RoleAdmin) {
		return catalog.Service{}, catalog.ErrNotFound
	}
	return s, nil
}

func (h *Handler) SetServiceActive(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, auth.RoleProvider)
	if !ok {
		return
	}
	var req struct {
		IsActive *bool `json:"is_active"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.IsActive == nil {
		http.Error(w, "is_active is required", http.StatusBadRequest)
		return
	}
	s, err := h.ownedService(r, id)
	if err != nil {
		h.writeError(w, err, "failed to load service")
		return
	}
	if err := h.store.SetServiceActive(r.Context(), s.ID, s.VendorID, *req.IsActive); err != nil {
		h.writeError(w, err, "failed to update service")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteService(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, auth.RoleProvider)
	if !ok {
		return
	}
	s, err := h.ownedService(r, id)
	if err != nil {
		h.writeError(w, err, "failed to load service")
		return
	}
	if err := h.store.DeleteService(r.Context(), s.ID, s.VendorID); err != nil {
		h.writeError(w, err, "failed to delete service")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListMyServices(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, auth.RoleProvider)
	if !ok {
		return
	}
	services, err := h.store.ListServicesByVendor(r.Context(), id.UserID)
	if err != nil {
		h.writeError(w, err, "failed to list services")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, services)
}

func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.GetService(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err, "failed to load service")
		return
	}
	if !s.IsActive {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, s)
}

func (h *Handler) SearchServices(w http.ResponseWriter, r *http.Request) {
	filter, err := catalog.ParseFilter(r.URL.Query().Get)
	if err != nil {
		h.writeError(w, err, "invalid filter")
		return
	}
	services, err := h.store.SearchServices(r.Context(), filter)
	if err != nil {
		h.writeError(w, err, "failed to search services")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, services)
}

func (h *Handler) QuoteTransferFee(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if errLat != nil || errLng != nil {
		http.Error(w, "lat and lng are required", http.StatusBadRequest)
		return
	}
	s, err := h.store.GetService(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err, "failed to load service")
		return
	}
	quote, err := catalog.QuoteTransferFee(s, catalog.Location{Latitude: lat, Longitude: lng})
	if err != nil {
		h.writeError(w, err, "failed to quote transfer fee")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, quote)
}
