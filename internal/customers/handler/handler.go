package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mesapos/mesa-backend/internal/customers/service"
	"github.com/mesapos/mesa-backend/pkg/errors"
	"github.com/mesapos/mesa-backend/pkg/httputil"
	"github.com/mesapos/mesa-backend/pkg/logger"
)

// Handler exposes customer endpoints.
type Handler struct {
	service *service.Service
	logger  *logger.Logger
}

// New creates a customers handler.
func New(svc *service.Service, log *logger.Logger) *Handler {
	return &Handler{service: svc, logger: log}
}

// Create registers a customer.
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
	customer, err := h.service.Create(r.Context(), &req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.Created(w, customer)
}

// Get loads one customer.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	customer, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, customer)
}

// Search finds customers by full phone or suffix fragment (?phone=).
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	phone := r.URL.Query().Get("phone")
	if phone == "" {
		httputil.Error(w, r, errors.ValidationMsg("phone query parameter required"))
		return
	}
	customers, err := h.service.Search(r.Context(), phone)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, customers)
}

// Update changes customer details.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	customer, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, customer)
}

// OrderHistory lists a customer's past orders.
func (h *Handler) OrderHistory(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.OrderHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, orders)
}
