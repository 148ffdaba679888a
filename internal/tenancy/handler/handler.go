package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mesapos/mesa-backend/internal/tenancy/service"
	"github.com/mesapos/mesa-backend/pkg/httputil"
	"github.com/mesapos/mesa-backend/pkg/logger"
)

// Handler exposes tenant, site and staff administration endpoints.
type Handler struct {
	service *service.Service
	logger  *logger.Logger
}

// New creates a tenancy handler.
func New(svc *service.Service, log *logger.Logger) *Handler {
	return &Handler{service: svc, logger: log}
}

// CreateTenant provisions a tenant. Super-admin only.
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req service.CreateTenantRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	t, err := h.service.CreateTenant(r.Context(), &req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.Created(w, t)
}

// ListTenants lists all tenants. Super-admin only.
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.service.ListTenants(r.Context())
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, tenants)
}

// SetTenantStatus suspends, cancels or reactivates a tenant.
func (h *Handler) SetTenantStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status" validate:"required"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := h.service.SetTenantStatus(r.Context(), chi.URLParam(r, "id"), req.Status); err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.NoContent(w)
}

// CreateSite adds a location to the caller's tenant.
func (h *Handler) CreateSite(w http.ResponseWriter, r *http.Request) {
	var req service.CreateSiteRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	site, err := h.service.CreateSite(r.Context(), &req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.Created(w, site)
}

// ListSites lists the caller's sites.
func (h *Handler) ListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := h.service.ListSites(r.Context())
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, sites)
}

// CreateUser adds a staff account.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req service.CreateUserRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	user, err := h.service.CreateUser(r.Context(), &req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.Created(w, user)
}

// ListUsers lists the caller's staff.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, users)
}

// SetUserStatus activates or deactivates a staff account.
func (h *Handler) SetUserStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status  string `json:"status" validate:"required"`
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
	if err := h.service.SetUserStatus(r.Context(), chi.URLParam(r, "id"), req.Status, req.Version); err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.NoContent(w)
}
