package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mesapos/mesa-backend/internal/billing/service"
	"github.com/mesapos/mesa-backend/pkg/httputil"
	"github.com/mesapos/mesa-backend/pkg/logger"
)

// Handler exposes the billing endpoints.
type Handler struct {
	service *service.Service
	logger  *logger.Logger
}

// New creates a billing handler.
func New(svc *service.Service, log *logger.Logger) *Handler {
	return &Handler{service: svc, logger: log}
}

// ProcessPayment settles (part of) an order.
func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	var req service.PaymentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	result, err := h.service.ProcessPayment(r.Context(), &req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	if result.Replayed {
		httputil.JSON(w, http.StatusOK, result)
		return
	}
	httputil.Created(w, result)
}

// VoidPayment reverses a completed payment.
func (h *Handler) VoidPayment(w http.ResponseWriter, r *http.Request) {
	var req service.VoidPaymentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	payment, err := h.service.VoidPayment(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, payment)
}

// ListPayments returns an order's payment history.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.service.ListPayments(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, payments)
}

// GenerateFiscalDocument issues a numbered fiscal document.
func (h *Handler) GenerateFiscalDocument(w http.ResponseWriter, r *http.Request) {
	var req service.FiscalRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	doc, err := h.service.GenerateFiscalDocument(r.Context(), &req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.Created(w, doc)
}

// VoidFiscalDocument voids a document and issues the credit note.
func (h *Handler) VoidFiscalDocument(w http.ResponseWriter, r *http.Request) {
	creditNote, err := h.service.VoidFiscalDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.Created(w, creditNote)
}

// ListFiscalDocuments returns an order's fiscal documents.
func (h *Handler) ListFiscalDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.ListFiscalDocuments(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, docs)
}

// SplitBill partitions an order's outstanding balance.
func (h *Handler) SplitBill(w http.ResponseWriter, r *http.Request) {
	var req service.SplitRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	splits, err := h.service.SplitBill(r.Context(), chi.URLParam(r, "orderId"), &req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.Created(w, splits)
}

// ListSplits returns an order's split partition.
func (h *Handler) ListSplits(w http.ResponseWriter, r *http.Request) {
	splits, err := h.service.ListSplits(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, splits)
}

// PrintSubtotal renders the bill preview.
func (h *Handler) PrintSubtotal(w http.ResponseWriter, r *http.Request) {
	subtotal, err := h.service.PrintSubtotal(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, subtotal)
}
