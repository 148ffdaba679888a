package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mesapos/mesa-backend/internal/cashier/service"
	"github.com/mesapos/mesa-backend/pkg/httputil"
	"github.com/mesapos/mesa-backend/pkg/logger"
)

// Handler exposes the cashier endpoints.
type Handler struct {
	service *service.Service
	logger  *logger.Logger
}

// New creates a cashier handler.
func New(svc *service.Service, log *logger.Logger) *Handler {
	return &Handler{service: svc, logger: log}
}

// CreateRegister adds a till to a site.
func (h *Handler) CreateRegister(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	register, err := h.service.CreateRegister(r.Context(), &req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.Created(w, register)
}

// ListRegisters returns a site's tills (?site_id=).
func (h *Handler) ListRegisters(w http.ResponseWriter, r *http.Request) {
	registers, err := h.service.ListRegisters(r.Context(), r.URL.Query().Get("site_id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, registers)
}

// OpenSession starts a shift.
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req service.OpenSessionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	session, err := h.service.OpenSession(r.Context(), &req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.Created(w, session)
}

// GetSession loads a session with its movements.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, session)
}

// RecordMovement appends a manual deposit or withdrawal.
func (h *Handler) RecordMovement(w http.ResponseWriter, r *http.Request) {
	var req service.MovementRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	movement, err := h.service.RecordMovement(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.Created(w, movement)
}

// CloseSession ends a shift with the counted amount.
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	var req service.CloseSessionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	session, err := h.service.CloseSession(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, session)
}

// CreateClosing produces a closing report.
func (h *Handler) CreateClosing(w http.ResponseWriter, r *http.Request) {
	var req service.ClosingRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	closing, err := h.service.CreateClosing(r.Context(), &req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.Created(w, closing)
}

// ListClosings returns the tenant's closing reports (?type=).
func (h *Handler) ListClosings(w http.ResponseWriter, r *http.Request) {
	closings, err := h.service.ListClosings(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, closings)
}

// ReprintClosing regenerates a stored closing report.
func (h *Handler) ReprintClosing(w http.ResponseWriter, r *http.Request) {
	reprint, err := h.service.ReprintClosing(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, reprint)
}
