package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mesapos/mesa-backend/internal/printing/service"
	"github.com/mesapos/mesa-backend/pkg/httputil"
	"github.com/mesapos/mesa-backend/pkg/logger"
)

// Handler exposes the printing endpoints.
type Handler struct {
	service *service.Service
	logger  *logger.Logger
}

// New creates a printing handler.
func New(svc *service.Service, log *logger.Logger) *Handler {
	return &Handler{service: svc, logger: log}
}

// CreatePrinter adds a printer to a site.
func (h *Handler) CreatePrinter(w http.ResponseWriter, r *http.Request) {
	var req service.PrinterRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	printer, err := h.service.CreatePrinter(r.Context(), &req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.Created(w, printer)
}

// ListPrinters returns a site's printers (?site_id=).
func (h *Handler) ListPrinters(w http.ResponseWriter, r *http.Request) {
	printers, err := h.service.ListPrinters(r.Context(), r.URL.Query().Get("site_id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, printers)
}

// SetPrinterStatus reconfigures a printer's routing status.
func (h *Handler) SetPrinterStatus(w http.ResponseWriter, r *http.Request) {
	var req service.StatusRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	printer, err := h.service.SetPrinterStatus(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, printer)
}

// SetRoute binds a category to a printer.
func (h *Handler) SetRoute(w http.ResponseWriter, r *http.Request) {
	var req service.RouteRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	route, err := h.service.SetRoute(r.Context(), &req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, route)
}

// ListRoutes returns a site's routing table (?site_id=).
func (h *Handler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := h.service.ListRoutes(r.Context(), r.URL.Query().Get("site_id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, routes)
}

// ListJobs returns an order's print jobs.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobsForOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, jobs)
}

// Reprint re-sends an order's slips to a chosen printer.
func (h *Handler) Reprint(w http.ResponseWriter, r *http.Request) {
	var req service.ReprintRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	jobs, err := h.service.Reprint(r.Context(), chi.URLParam(r, "orderId"), &req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.Created(w, jobs)
}
