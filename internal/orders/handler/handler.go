package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mesapos/mesa-backend/internal/orders/service"
	"github.com/mesapos/mesa-backend/pkg/httputil"
	"github.com/mesapos/mesa-backend/pkg/logger"
)

// Handler exposes the order engine endpoints.
type Handler struct {
	service *service.Service
	logger  *logger.Logger
}

// New creates an orders handler.
func New(svc *service.Service, log *logger.Logger) *Handler {
	return &Handler{service: svc, logger: log}
}

// Create opens an order.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	order, err := h.service.Create(r.Context(), &req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.Created(w, order)
}

// Get loads an order with lines and discounts.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, order)
}

// List returns a site's orders (?site_id=&status=).
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.List(r.Context(), r.URL.Query().Get("site_id"), r.URL.Query().Get("status"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, orders)
}

// AddLine appends an item to an open order.
func (h *Handler) AddLine(w http.ResponseWriter, r *http.Request) {
	var req service.AddLineRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	line, err := h.service.AddLine(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.Created(w, line)
}

// UpdateLine rewrites a pending line.
func (h *Handler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateLineRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	line, err := h.service.UpdateLine(r.Context(), chi.URLParam(r, "lineId"), &req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, line)
}

// Confirm sends pending lines to the kitchen.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Confirm(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, order)
}

// VoidLine voids one line.
func (h *Handler) VoidLine(w http.ResponseWriter, r *http.Request) {
	var req service.VoidLineRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := h.service.VoidLine(r.Context(), chi.URLParam(r, "lineId"), &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.NoContent(w)
}

// ApplyDiscount records a discount.
func (h *Handler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	var req service.DiscountRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	order, err := h.service.ApplyDiscount(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, order)
}

// Transfer reseats an order at another table.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ToTableID string `json:"to_table_id" validate:"required,uuid"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	order, err := h.service.TransferOrder(r.Context(), chi.URLParam(r, "id"), req.ToTableID)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, order)
}

// TransferTable moves all open orders between tables.
func (h *Handler) TransferTable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FromTableID string `json:"from_table_id" validate:"required,uuid"`
		ToTableID   string `json:"to_table_id" validate:"required,uuid"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := h.service.TransferTable(r.Context(), req.FromTableID, req.ToTableID); err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.NoContent(w)
}

// Close finishes a paid order.
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Close(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, order)
}

// Void cancels an unpaid order.
func (h *Handler) Void(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Void(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, order)
}
