package handlers

import (
	"net/http"
	"strings"

	"github.com/masterparty/platform/libs/httpx"
	"github.com/masterparty/platform/services/catalog-service/internal/catalog"
)

func (h *Handler) BecomeProvider(w http.ResponseWriter, r *http.Request) {
	id, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req catalog.ProviderInput
	if !decode(w, r, &req) {
		return
	}
	if req.ContactEmail == "" {
		req.ContactEmail = id.Email
	}

	p, err := catalog.NewProvider(h.newID(), id.UserID, req, h.now().UTC())
	if err != nil {
		h.writeError(w, err, "failed to create provider")
		return
	}
	if err := h.store.CreateProvider(r.Context(), p); err != nil {
		h.writeError(w, err, "failed to create provider")
		return
	}
	h.logger.Info("provider created", "provider_id", p.ID, "slug", p.Slug, "user_id", id.UserID)
	httpx.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) GetMyProvider(w http.ResponseWriter, r *http.Request) {
	id, ok := requireUser(w, r)
	if !ok {
		return
	}
	p, err := h.store.GetProviderByOwner(r.Context(), id.UserID)
	if err != nil {
		h.writeError(w, err, "failed to load provider")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) UpdateProvider(w http.ResponseWriter, r *http.Request) {
	id, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req catalog.ProviderInput
	if !decode(w, r, &req) {
		return
	}
	p, err := h.store.GetProviderByOwner(r.Context(), id.UserID)
	if err != nil {
		h.writeError(w, err, "failed to load provider")
		return
	}
	if err := p.Apply(req, h.now().UTC()); err != nil {
		h.writeError(w, err, "failed to update provider")
		return
	}
	if err := h.store.UpdateProvider(r.Context(), p); err != nil {
		h.writeError(w, err, "failed to update provider")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

type storefront struct {
	Provider catalog.Provider  `json:"provider"`
	Services []catalog.Service `json:"services"`
}

// GetStorefront is the public page of a provider with its active services.
func (h *Handler) GetStorefront(w http.ResponseWriter, r *http.Request) {
	slug := strings.ToLower(strings.TrimSpace(r.PathValue("slug")))
	filter, err := catalog.ParseFilter(r.URL.Query().Get)
	if err != nil {
		h.writeError(w, err, "invalid filter")
		return
	}
	filter.Limit = 0

	p, err := h.store.GetProviderBySlug(r.Context(), slug)
	if err != nil {
		h.writeError(w, err, "failed to load storefront")
		return
	}
	services, err := h.store.ListActiveServicesByProvider(r.Context(), p.ID)
	if err != nil {
		h.writeError(w, err, "failed to load storefront")
		return
	}
	if filter.Date != "" {
		// Blocks are kept per vendor, and the vendor is the storefront owner.
		filter.Blocked, err = h.store.BlockedSlots(r.Context(), p.OwnerUserID, filter.Date)
		if err != nil {
			h.writeError(w, err, "failed to load storefront")
			return
		}
	}
	p.OwnerUserID = ""
	httpx.WriteJSON(w, http.StatusOK, storefront{Provider: p, Services: filter.Apply(services)})
}
