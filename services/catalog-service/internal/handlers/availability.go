package handlers

import (
	"net/http"
	"strings"

	"github.com/masterparty/platform/libs/auth"
	"github.com/masterparty/platform/libs/httpx"
	"github.com/masterparty/platform/libs/slots"
	"github.com/masterparty/platform/services/catalog-service/internal/catalog"
)

func (h *Handler) SetUnavailableDates(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, auth.RoleProvider)
	if !ok {
		return
	}
	var req struct {
		Dates []string `json:"dates"`
	}
	if !decode(w, r, &req) {
		return
	}
	dates, err := catalog.NormalizeDates(req.Dates, h.now())
	if err != nil {
		h.writeError(w, err, "invalid dates")
		return
	}
	s, err := h.ownedService(r, id)
	if err != nil {
		h.writeError(w, err, "failed to load service")
		return
	}
	saved, err := h.store.UpdateUnavailableDates(r.Context(), s.ID, s.VendorID, func([]string) ([]string, error) {
		return dates, nil
	})
	if err != nil {
		h.writeError(w, err, "failed to save unavailable dates")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"unavailable_dates": saved})
}

func (h *Handler) ToggleUnavailableDate(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, auth.RoleProvider)
	if !ok {
		return
	}
	var req struct {
		Date string `json:"date"`
	}
	if !decode(w, r, &req) {
		return
	}
	s, err := h.ownedService(r, id)
	if err != nil {
		h.writeError(w, err, "failed to load service")
		return
	}
	var unavailable bool
	saved, err := h.store.UpdateUnavailableDates(r.Context(), s.ID, s.VendorID, func(current []string) ([]string, error) {
		next, added, err := catalog.ToggleDate(current, req.Date, h.now())
		unavailable = added
		return next, err
	})
	if err != nil {
		h.writeError(w, err, "failed to toggle date")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"date":              strings.TrimSpace(req.Date),
		"unavailable":       unavailable,
		"unavailable_dates": saved,
	})
}

func (h *Handler) GetBlockedSlots(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, auth.RoleProvider)
	if !ok {
		return
	}
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if _, err := slots.ParseDate(date); err != nil {
		h.writeError(w, err, "invalid date")
		return
	}
	blocks, err := h.store.BlockedSlots(r.Context(), id.UserID, date)
	if err != nil {
		h.writeError(w, err, "failed to load blocked slots")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"date": date, "blocked_slots": blocks})
}

func (h *Handler) ApplyBlockRange(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, auth.RoleProvider)
	if !ok {
		return
	}
	var req catalog.BlockRange
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(h.now()); err != nil {
		h.writeError(w, err, "invalid block range")
		return
	}
	blocks, mode, err := h.store.ApplyBlockRange(r.Context(), id.UserID, req)
	if err != nil {
		h.writeError(w, err, "failed to apply block range")
		return
	}
	h.logger.Info("block range applied", "user_id", id.UserID, "date", req.Date, "mode", mode, "services", len(blocks))
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"date": req.Date, "mode": mode, "blocked_slots": blocks})
}
