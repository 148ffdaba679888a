package handler

import (
	"net/http"
	"strconv"

	"github.com/mesapos/mesa-backend/internal/saft/service"
	"github.com/mesapos/mesa-backend/pkg/httputil"
	"github.com/mesapos/mesa-backend/pkg/logger"
)

// Handler exposes the SAF-T export endpoints.
type Handler struct {
	service *service.Service
	logger  *logger.Logger
}

// New creates a SAF-T handler.
func New(svc *service.Service, log *logger.Logger) *Handler {
	return &Handler{service: svc, logger: log}
}

// Export streams the audit file for ?from=&to= (inclusive dates).
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	req := service.ExportRequest{
		From: r.URL.Query().Get("from"),
		To:   r.URL.Query().Get("to"),
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	data, err := h.service.Export(r.Context(), &req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="saft-`+req.From+`-`+req.To+`.xml"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// AuditTrail lists the tenant's recent audit entries (?limit=).
func (h *Handler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.AuditTrail(r.Context(), limit)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, entries)
}
