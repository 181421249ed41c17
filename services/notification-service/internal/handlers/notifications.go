package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/masterparty/platform/libs/auth"
	"github.com/masterparty/platform/libs/httpx"
	"github.com/masterparty/platform/services/notification-service/internal/storage"
)

type Lister interface {
	List(ctx context.Context, bookingID string, limit int) ([]storage.Notification, error)
}

type Handler struct {
	store  Lister
	logger *slog.Logger
}

func New(store Lister, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/admin/notifications", h.List)
}

// List shows delivery attempts to admins, optionally filtered by booking_id.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromRequest(r)
	if id.UserID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !id.HasRole(auth.RoleAdmin) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	items, err := h.store.List(r.Context(), r.URL.Query().Get("booking_id"), limit)
	if err != nil {
		h.logger.Error("list notifications failed", "err", err)
		http.Error(w, "failed to list notifications", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}
