package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mesapos/mesa-backend/internal/catalog/service"
	"github.com/mesapos/mesa-backend/pkg/httputil"
	"github.com/mesapos/mesa-backend/pkg/logger"
)

// Handler exposes menu management endpoints.
type Handler struct {
	service *service.Service
	logger  *logger.Logger
}

// New creates a catalog handler.
func New(svc *service.Service, log *logger.Logger) *Handler {
	return &Handler{service: svc, logger: log}
}

// CreateFamily adds a family.
func (h *Handler) CreateFamily(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name" validate:"required,min=1,max=120"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	family, err := h.service.CreateFamily(r.Context(), req.Name)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.Created(w, family)
}

// ListFamilies lists families.
func (h *Handler) ListFamilies(w http.ResponseWriter, r *http.Request) {
	families, err := h.service.ListFamilies(r.Context())
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, families)
}

// CreateSubfamily adds a subfamily.
func (h *Handler) CreateSubfamily(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name" validate:"required,min=1,max=120"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	subfamily, err := h.service.CreateSubfamily(r.Context(), chi.URLParam(r, "familyId"), req.Name)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.Created(w, subfamily)
}

// ListSubfamilies lists a family's subfamilies.
func (h *Handler) ListSubfamilies(w http.ResponseWriter, r *http.Request) {
	subfamilies, err := h.service.ListSubfamilies(r.Context(), chi.URLParam(r, "familyId"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, subfamilies)
}

// CreateItem adds an item.
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req service.CreateItemRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	item, err := h.service.CreateItem(r.Context(), &req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.Created(w, item)
}

// GetItem loads one item.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, item)
}

// ListItems lists the menu. ?available=true filters to sellable items.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	availableOnly := r.URL.Query().Get("available") == "true"
	items, err := h.service.ListItems(r.Context(), availableOnly)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, items)
}

// UpdateItem changes an item.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateItemRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	item, err := h.service.UpdateItem(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, item)
}

// SetItemAvailability toggles availability.
func (h *Handler) SetItemAvailability(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Available *bool `json:"available" validate:"required"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := h.service.SetItemAvailability(r.Context(), chi.URLParam(r, "id"), *req.Available); err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.NoContent(w)
}
