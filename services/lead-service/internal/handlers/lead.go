package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/masterparty/platform/libs/auth"
	"github.com/masterparty/platform/libs/httpx"
	"github.com/masterparty/platform/services/lead-service/internal/leads"
)

// Public response messages of the waitlist endpoint.
const (
	MsgCreated      = "¡Gracias! Te avisaremos cuando lancemos el acceso beta."
	MsgExisting     = "¡Ya estabas en la lista! Te hemos enviado un recordatorio."
	MsgInvalidEmail = "Por favor, proporciona un correo electrónico válido."
	MsgFailed       = "Ocurrió un error al registrar tu correo. Inténtalo de nuevo."
)

type LeadService interface {
	Register(ctx context.Context, email string, region string) (leads.Outcome, error)
	List(ctx context.Context, limit int) ([]leads.Lead, error)
}

type Handler struct {
	svc    LeadService
	logger *slog.Logger
}

func New(svc LeadService, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) AddProviderLead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Email  string `json:"email"`
		Region string `json:"region"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": MsgInvalidEmail})
		return
	}

	outcome, err := h.svc.Register(r.Context(), req.Email, req.Region)
	switch {
	case errors.Is(err, leads.ErrInvalidEmail):
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": MsgInvalidEmail})
	case err != nil:
		h.logger.Error("failed to register provider lead", "err", err)
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": MsgFailed})
	case outcome == leads.Created:
		httpx.WriteJSON(w, http.StatusCreated, map[string]string{"success": MsgCreated})
	default:
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"success": MsgExisting})
	}
}

func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !auth.IdentityFromRequest(r).HasRole(auth.RoleAdmin) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	items, err := h.svc.List(r.Context(), limit)
	if err != nil {
		http.Error(w, "failed to list leads", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}
