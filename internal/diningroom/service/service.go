package service

import (
	"context"
	"strconv"

	"github.com/mesapos/mesa-backend/internal/diningroom/domain"
	"github.com/mesapos/mesa-backend/internal/diningroom/repository"
	"github.com/mesapos/mesa-backend/pkg/errors"
	"github.com/mesapos/mesa-backend/pkg/logger"
	"github.com/mesapos/mesa-backend/pkg/tenant"
)

// Service handles floor management. Order placement calls OccupyTable and
// ReleaseTable; everything else is staff-facing.
type Service struct {
	repo   *repository.Repository
	logger *logger.Logger
}

// New creates a dining room service.
func New(repo *repository.Repository, log *logger.Logger) *Service {
	return &Service{repo: repo, logger: log.WithComponent("diningroom")}
}

// CreateTable adds a table to a site.
func (s *Service) CreateTable(ctx context.Context, siteID string, number int) (*repository.Table, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	if number <= 0 {
		return nil, errors.ValidationMsg("table_number must be positive")
	}
	return s.repo.CreateTable(ctx, tenantID, siteID, number)
}

// ListTables returns the floor of a site.
func (s *Service) ListTables(ctx context.Context, siteID string) ([]repository.Table, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	return s.repo.ListTables(ctx, tenantID, siteID)
}

// GetTable loads one table.
func (s *Service) GetTable(ctx context.Context, tableID string) (*repository.Table, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	return s.repo.GetTable(ctx, tenantID, tableID)
}

// OccupyTable seats a party. Blacklisted or non-seatable tables are
// rejected with a stable reason; a concurrent occupation surfaces as
// CONFLICT through the version predicate.
func (s *Service) OccupyTable(ctx context.Context, tableID string) (*repository.Table, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}

	table, err := s.repo.GetTable(ctx, tenantID, tableID)
	if err != nil {
		return nil, err
	}

	banned, err := s.repo.IsBlacklisted(ctx, tenantID, domain.BlacklistTable, strconv.Itoa(table.TableNumber))
	if err != nil {
		return nil, err
	}
	if banned {
		return nil, errors.BusinessRule(domain.ReasonTableBlacklisted, "table is blacklisted")
	}

	if err := domain.ValidateTransition(table.Status, domain.TableOccupied); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateTableStatus(ctx, tenantID, tableID, domain.TableOccupied, table.Version); err != nil {
		return nil, err
	}
	table.Status = domain.TableOccupied
	table.Version++
	return table, nil
}

// ReleaseTable frees a table after its order closes.
func (s *Service) ReleaseTable(ctx context.Context, tableID string) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return errors.Unauthenticated("tenant context required")
	}
	table, err := s.repo.GetTable(ctx, tenantID, tableID)
	if err != nil {
		return err
	}
	if table.Status == domain.TableAvailable {
		return nil
	}
	if err := domain.ValidateTransition(table.Status, domain.TableAvailable); err != nil {
		return err
	}
	return s.repo.UpdateTableStatus(ctx, tenantID, tableID, domain.TableAvailable, table.Version)
}

// SetTableStatus is the staff-facing transition endpoint (reserve, block,
// unblock, free).
func (s *Service) SetTableStatus(ctx context.Context, tableID, status string, version int64) (*repository.Table, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	table, err := s.repo.GetTable(ctx, tenantID, tableID)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateTransition(table.Status, status); err != nil {
		return nil, err
	}
	if table.Status == domain.TableOccupied && status == domain.TableAvailable {
		open, err := s.repo.CountOpenOrdersForTable(ctx, tenantID, tableID)
		if err != nil {
			return nil, err
		}
		if open > 0 {
			return nil, errors.BusinessRule(domain.ReasonTableOccupied, "table has open orders")
		}
	}
	if err := s.repo.UpdateTableStatus(ctx, tenantID, tableID, status, version); err != nil {
		return nil, err
	}
	return s.repo.GetTable(ctx, tenantID, tableID)
}

// BlacklistRequest bans a table number or card last-four.
type BlacklistRequest struct {
	EntityType  string  `json:"entity_type" validate:"required,oneof=TABLE CARD"`
	EntityValue string  `json:"entity_value" validate:"required,min=1,max=40"`
	Reason      *string `json:"reason" validate:"omitempty,max=300"`
}

// AddBlacklistEntry bans a table or card.
func (s *Service) AddBlacklistEntry(ctx context.Context, req *BlacklistRequest) (*repository.BlacklistEntry, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	entry := &repository.BlacklistEntry{
		TenantID:    tenantID,
		EntityType:  req.EntityType,
		EntityValue: req.EntityValue,
		Reason:      req.Reason,
	}
	if err := s.repo.AddBlacklistEntry(ctx, entry); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("entity_type", entry.EntityType).
		Str("entity_value", entry.EntityValue).
		Msg("blacklist entry added")
	return entry, nil
}

// RemoveBlacklistEntry lifts a ban.
func (s *Service) RemoveBlacklistEntry(ctx context.Context, entryID string) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return errors.Unauthenticated("tenant context required")
	}
	return s.repo.RemoveBlacklistEntry(ctx, tenantID, entryID)
}

// ListBlacklist returns all bans.
func (s *Service) ListBlacklist(ctx context.Context) ([]repository.BlacklistEntry, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	return s.repo.ListBlacklist(ctx, tenantID)
}

// IsTableBlacklisted reports whether a table's number is banned. Order
// placement consults this before adding lines to a seated order.
func (s *Service) IsTableBlacklisted(ctx context.Context, tableID string) (bool, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return false, errors.Unauthenticated("tenant context required")
	}
	table, err := s.repo.GetTable(ctx, tenantID, tableID)
	if err != nil {
		return false, err
	}
	return s.repo.IsBlacklisted(ctx, tenantID, domain.BlacklistTable, strconv.Itoa(table.TableNumber))
}

// IsCardBlacklisted reports whether a card's last four digits are banned.
// Billing consults this before accepting card payments.
func (s *Service) IsCardBlacklisted(ctx context.Context, lastFour string) (bool, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return false, errors.Unauthenticated("tenant context required")
	}
	return s.repo.IsBlacklisted(ctx, tenantID, domain.BlacklistCard, lastFour)
}
