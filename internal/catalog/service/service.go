package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/mesapos/mesa-backend/internal/catalog/repository"
	"github.com/mesapos/mesa-backend/pkg/errors"
	"github.com/mesapos/mesa-backend/pkg/logger"
	"github.com/mesapos/mesa-backend/pkg/money"
	"github.com/mesapos/mesa-backend/pkg/tenant"
)

// Service handles menu management.
type Service struct {
	repo   *repository.Repository
	logger *logger.Logger
}

// New creates a catalog service.
func New(repo *repository.Repository, log *logger.Logger) *Service {
	return &Service{repo: repo, logger: log.WithComponent("catalog")}
}

// CreateFamily adds a top-level grouping.
func (s *Service) CreateFamily(ctx context.Context, name string) (*repository.Family, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	return s.repo.CreateFamily(ctx, tenantID, name)
}

// ListFamilies returns the tenant's families.
func (s *Service) ListFamilies(ctx context.Context) ([]repository.Family, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	return s.repo.ListFamilies(ctx, tenantID)
}

// CreateSubfamily adds a grouping under a family.
func (s *Service) CreateSubfamily(ctx context.Context, familyID, name string) (*repository.Subfamily, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	return s.repo.CreateSubfamily(ctx, tenantID, familyID, name)
}

// ListSubfamilies returns the subfamilies of a family.
func (s *Service) ListSubfamilies(ctx context.Context, familyID string) ([]repository.Subfamily, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	return s.repo.ListSubfamilies(ctx, tenantID, familyID)
}

// CreateItemRequest adds a sellable product.
type CreateItemRequest struct {
	SubfamilyID string `json:"subfamily_id" validate:"required,uuid"`
	Name        string `json:"name" validate:"required,min=1,max=120"`
	Category    string `json:"category" validate:"required,min=1,max=40"`
	BasePrice   string `json:"base_price" validate:"required"`
	Available   *bool  `json:"available"`
}

// CreateItem adds an item to the menu.
func (s *Service) CreateItem(ctx context.Context, req *CreateItemRequest) (*repository.Item, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}

	price, err := decimal.NewFromString(req.BasePrice)
	if err != nil || price.IsNegative() {
		return nil, errors.ValidationMsg("base_price must be a non-negative decimal")
	}

	available := true
	if req.Available != nil {
		available = *req.Available
	}

	item := &repository.Item{
		TenantID:    tenantID,
		SubfamilyID: req.SubfamilyID,
		Name:        req.Name,
		Category:    req.Category,
		BasePrice:   money.Round(price),
		Available:   available,
	}
	if err := s.repo.CreateItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// GetItem loads an item.
func (s *Service) GetItem(ctx context.Context, itemID string) (*repository.Item, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	return s.repo.GetItem(ctx, tenantID, itemID)
}

// ListItems returns the tenant's menu.
func (s *Service) ListItems(ctx context.Context, availableOnly bool) ([]repository.Item, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	return s.repo.ListItems(ctx, tenantID, availableOnly)
}

// UpdateItemRequest changes the mutable item fields.
type UpdateItemRequest struct {
	Name      string `json:"name" validate:"required,min=1,max=120"`
	Category  string `json:"category" validate:"required,min=1,max=40"`
	BasePrice string `json:"base_price" validate:"required"`
	Available bool   `json:"available"`
}

// UpdateItem changes an item. Price changes never affect lines already
// captured on orders; those keep their snapshot.
func (s *Service) UpdateItem(ctx context.Context, itemID string, req *UpdateItemRequest) (*repository.Item, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}

	price, err := decimal.NewFromString(req.BasePrice)
	if err != nil || price.IsNegative() {
		return nil, errors.ValidationMsg("base_price must be a non-negative decimal")
	}

	item := &repository.Item{
		ID:        itemID,
		TenantID:  tenantID,
		Name:      req.Name,
		Category:  req.Category,
		BasePrice: money.Round(price),
		Available: req.Available,
	}
	if err := s.repo.UpdateItem(ctx, item); err != nil {
		return nil, err
	}
	return s.repo.GetItem(ctx, tenantID, itemID)
}

// SetItemAvailability toggles the 86'd flag.
func (s *Service) SetItemAvailability(ctx context.Context, itemID string, available bool) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return errors.Unauthenticated("tenant context required")
	}
	return s.repo.SetItemAvailability(ctx, tenantID, itemID, available)
}
