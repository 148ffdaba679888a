package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mesapos/mesa-backend/internal/diningroom/service"
	"github.com/mesapos/mesa-backend/pkg/httputil"
	"github.com/mesapos/mesa-backend/pkg/logger"
)

// Handler exposes floor management endpoints.
type Handler struct {
	service *service.Service
	logger  *logger.Logger
}

// New creates a dining room handler.
func New(svc *service.Service, log *logger.Logger) *Handler {
	return &Handler{service: svc, logger: log}
}

// CreateTable adds a table to a site.
func (h *Handler) CreateTable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SiteID      string `json:"site_id" validate:"required,uuid"`
		TableNumber int    `json:"table_number" validate:"required,min=1"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	table, err := h.service.CreateTable(r.Context(), req.SiteID, req.TableNumber)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.Created(w, table)
}

// ListTables returns the floor of a site (?site_id=).
func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.service.ListTables(r.Context(), r.URL.Query().Get("site_id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, tables)
}

// GetTable loads one table.
func (h *Handler) GetTable(w http.ResponseWriter, r *http.Request) {
	table, err := h.service.GetTable(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, table)
}

// SetTableStatus transitions a table (reserve, block, free).
func (h *Handler) SetTableStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status  string `json:"status" validate:"required,oneof=AVAILABLE OCCUPIED RESERVED BLOCKED"`
		Version int64  `json:"version" validate:"required,min=1"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	table, err := h.service.SetTableStatus(r.Context(), chi.URLParam(r, "id"), req.Status, req.Version)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, table)
}

// AddBlacklistEntry bans a table or card.
func (h *Handler) AddBlacklistEntry(w http.ResponseWriter, r *http.Request) {
	var req service.BlacklistRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	entry, err := h.service.AddBlacklistEntry(r.Context(), &req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.Created(w, entry)
}

// RemoveBlacklistEntry lifts a ban.
func (h *Handler) RemoveBlacklistEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemoveBlacklistEntry(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.NoContent(w)
}

// ListBlacklist returns all bans.
func (h *Handler) ListBlacklist(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ListBlacklist(r.Context())
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, entries)
}
