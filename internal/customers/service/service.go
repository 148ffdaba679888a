package service

import (
	"context"

	"github.com/mesapos/mesa-backend/internal/customers/domain"
	"github.com/mesapos/mesa-backend/internal/customers/repository"
	"github.com/mesapos/mesa-backend/pkg/errors"
	"github.com/mesapos/mesa-backend/pkg/logger"
	"github.com/mesapos/mesa-backend/pkg/tenant"
)

const (
	searchLimit  = 25
	historyLimit = 50
)

// Service handles customer lookup and maintenance.
type Service struct {
	repo   *repository.Repository
	logger *logger.Logger
}

// New creates a customers service.
func New(repo *repository.Repository, log *logger.Logger) *Service {
	return &Service{repo: repo, logger: log.WithComponent("customers")}
}

// CreateRequest registers a customer.
type CreateRequest struct {
	Name    string  `json:"name" validate:"required,min=1,max=120"`
	Phone   string  `json:"phone" validate:"required,min=3,max=32"`
	TaxID   *string `json:"tax_id" validate:"omitempty,max=20"`
	Address *string `json:"address" validate:"omitempty,max=300"`
}

// Create registers a customer.
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*repository.Customer, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	if domain.SanitizePhone(req.Phone) == "" {
		return nil, errors.ValidationMsg("phone must contain digits")
	}
	customer := &repository.Customer{
		TenantID: tenantID,
		Name:     req.Name,
		Phone:    req.Phone,
		TaxID:    req.TaxID,
		Address:  req.Address,
	}
	if err := s.repo.Create(ctx, customer); err != nil {
		return nil, err
	}
	return customer, nil
}

// Get loads one customer.
func (s *Service) Get(ctx context.Context, customerID string) (*repository.Customer, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	return s.repo.Get(ctx, tenantID, customerID)
}

// Search finds customers by phone. Fragments of at least MinSuffixLen
// digits match as a suffix; longer inputs also try an exact match first.
func (s *Service) Search(ctx context.Context, phone string) ([]repository.Customer, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}

	digits := domain.SanitizePhone(phone)
	if len(digits) < domain.MinSuffixLen {
		return nil, errors.ValidationMsg("phone fragment too short")
	}

	exact, err := s.repo.FindByPhone(ctx, tenantID, digits)
	if err != nil {
		return nil, err
	}
	if len(exact) > 0 {
		return exact, nil
	}
	return s.repo.FindByPhoneSuffix(ctx, tenantID, digits, searchLimit)
}

// UpdateRequest changes customer details.
type UpdateRequest struct {
	Name    string  `json:"name" validate:"required,min=1,max=120"`
	Phone   string  `json:"phone" validate:"required,min=3,max=32"`
	TaxID   *string `json:"tax_id" validate:"omitempty,max=20"`
	Address *string `json:"address" validate:"omitempty,max=300"`
}

// Update changes customer details.
func (s *Service) Update(ctx context.Context, customerID string, req *UpdateRequest) (*repository.Customer, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	customer := &repository.Customer{
		ID:       customerID,
		TenantID: tenantID,
		Name:     req.Name,
		Phone:    req.Phone,
		TaxID:    req.TaxID,
		Address:  req.Address,
	}
	if err := s.repo.Update(ctx, customer); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, tenantID, customerID)
}

// OrderHistory lists a customer's past orders.
func (s *Service) OrderHistory(ctx context.Context, customerID string) ([]repository.OrderSummary, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	if _, err := s.repo.Get(ctx, tenantID, customerID); err != nil {
		return nil, err
	}
	return s.repo.OrderHistory(ctx, tenantID, customerID, historyLimit)
}
