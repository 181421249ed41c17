package handlers

import (
	"net/http"

	"github.com/masterparty/platform/libs/auth"
	"github.com/masterparty/platform/libs/httpx"
	"github.com/masterparty/platform/services/catalog-service/internal/catalog"
)

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	tree, err := h.store.ListCategories(r.Context())
	if err != nil {
		h.writeError(w, err, "failed to list categories")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tree)
}

// decodeName reads {"name": ...} and cleans it.
func decodeName(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req struct {
		Name string `json:"name"`
	}
	if !decode(w, r, &req) {
		return "", false
	}
	name, err := catalog.CleanCategoryName(req.Name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return name, true
}

func (h *Handler) AddCategory(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, auth.RoleAdmin); !ok {
		return
	}
	name, ok := decodeName(w, r)
	if !ok {
		return
	}
	if err := h.store.AddCategory(r.Context(), name); err != nil {
		h.writeError(w, err, "failed to add category")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, catalog.Category{Name: name, Subcategories: []string{}})
}

func (h *Handler) RenameCategory(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, auth.RoleAdmin); !ok {
		return
	}
	name, ok := decodeName(w, r)
	if !ok {
		return
	}
	if err := h.store.RenameCategory(r.Context(), r.PathValue("name"), name); err != nil {
		h.writeError(w, err, "failed to rename category")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, auth.RoleAdmin); !ok {
		return
	}
	if err := h.store.DeleteCategory(r.Context(), r.PathValue("name")); err != nil {
		h.writeError(w, err, "failed to delete category")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AddSubcategory(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, auth.RoleAdmin); !ok {
		return
	}
	name, ok := decodeName(w, r)
	if !ok {
		return
	}
	if err := h.store.AddSubcategory(r.Context(), r.PathValue("name"), name); err != nil {
		h.writeError(w, err, "failed to add subcategory")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]string{"category": r.PathValue("name"), "name": name})
}

func (h *Handler) RenameSubcategory(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, auth.RoleAdmin); !ok {
		return
	}
	name, ok := decodeName(w, r)
	if !ok {
		return
	}
	if err := h.store.RenameSubcategory(r.Context(), r.PathValue("name"), r.PathValue("sub"), name); err != nil {
		h.writeError(w, err, "failed to rename subcategory")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteSubcategory(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, auth.RoleAdmin); !ok {
		return
	}
	if err := h.store.DeleteSubcategory(r.Context(), r.PathValue("name"), r.PathValue("sub")); err != nil {
		h.writeError(w, err, "failed to delete subcategory")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
