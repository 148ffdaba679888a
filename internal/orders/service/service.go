package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	catalogrepo "github.com/mesapos/mesa-backend/internal/catalog/repository"
	diningdomain "github.com/mesapos/mesa-backend/internal/diningroom/domain"
	diningrepo "github.com/mesapos/mesa-backend/internal/diningroom/repository"
	"github.com/mesapos/mesa-backend/internal/orders/domain"
	"github.com/mesapos/mesa-backend/internal/orders/events"
	"github.com/mesapos/mesa-backend/internal/orders/repository"
	"github.com/mesapos/mesa-backend/pkg/authz"
	"github.com/mesapos/mesa-backend/pkg/database"
	"github.com/mesapos/mesa-backend/pkg/errors"
	"github.com/mesapos/mesa-backend/pkg/logger"
	"github.com/mesapos/mesa-backend/pkg/tenant"
)

// ItemCatalog is the slice of the catalog the order engine needs: an
// immutable item snapshot at line-add time.
type ItemCatalog interface {
	GetItem(ctx context.Context, tenantID, itemID string) (*catalogrepo.Item, error)
}

// Floor is the slice of the dining room the order engine needs.
type Floor interface {
	GetTable(ctx context.Context, tableID string) (*diningrepo.Table, error)
	OccupyTable(ctx context.Context, tableID string) (*diningrepo.Table, error)
	ReleaseTable(ctx context.Context, tableID string) error
	IsTableBlacklisted(ctx context.Context, tableID string) (bool, error)
}

// Service is the order engine. Every operation runs in one transaction;
// events publish only after the transaction commits.
type Service struct {
	db        *database.DB
	repo      *repository.Repository
	catalog   ItemCatalog
	floor     Floor
	publisher *events.OrderEventPublisher
	logger    *logger.Logger
}

// New creates an orders service.
func New(db *database.DB, repo *repository.Repository, catalog ItemCatalog, floor Floor, publisher *events.OrderEventPublisher, log *logger.Logger) *Service {
	return &Service{
		db:        db,
		repo:      repo,
		catalog:   catalog,
		floor:     floor,
		publisher: publisher,
		logger:    log.WithComponent("orders"),
	}
}

// CreateRequest opens a new order.
type CreateRequest struct {
	SiteID     string  `json:"site_id" validate:"required,uuid"`
	OrderType  string  `json:"order_type" validate:"required,oneof=DINE_IN DELIVERY TAKEOUT"`
	TableID    *string `json:"table_id" validate:"omitempty,uuid"`
	CustomerID *string `json:"customer_id" validate:"omitempty,uuid"`
}

// Create opens an order. DINE_IN seats the table in the same transaction;
// a concurrent seating of the same table makes one caller fail with
// CONFLICT.
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*repository.Order, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}

	switch req.OrderType {
	case domain.TypeDineIn:
		if req.TableID == nil {
			return nil, errors.BusinessRule(domain.ReasonTableRequired, "dine-in orders require a table")
		}
	case domain.TypeDelivery:
		if req.CustomerID == nil {
			return nil, errors.BusinessRule(domain.ReasonCustomerRequired, "delivery orders require a customer")
		}
	}

	order := &repository.Order{
		TenantID:   tenantID,
		SiteID:     req.SiteID,
		TableID:    req.TableID,
		CustomerID: req.CustomerID,
		OrderType:  req.OrderType,
	}

	err = s.db.WithTenant(ctx, func(ctx context.Context) error {
		if req.OrderType == domain.TypeDineIn {
			if _, err := s.floor.OccupyTable(ctx, *req.TableID); err != nil {
				return err
			}
		}
		return s.repo.CreateOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Get loads an order with its lines and discounts.
func (s *Service) Get(ctx context.Context, orderID string) (*OrderView, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	order, err := s.repo.GetOrder(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	lines, err := s.repo.ListLines(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	discounts, err := s.repo.ListDiscounts(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	return &OrderView{Order: *order, Lines: lines, Discounts: discounts}, nil
}

// OrderView is an order with its children.
type OrderView struct {
	repository.Order
	Lines     []repository.Line     `json:"lines"`
	Discounts []repository.Discount `json:"discounts"`
}

// List returns a site's orders.
func (s *Service) List(ctx context.Context, siteID, status string) ([]repository.Order, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	return s.repo.ListOrders(ctx, tenantID, siteID, status)
}

// AddLineRequest appends an item position to an open order.
type AddLineRequest struct {
	ItemID    string `json:"item_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
	Modifiers string `json:"modifiers" validate:"max=500"`
	Notes     string `json:"notes" validate:"max=500"`
}

// AddLine captures the item's current price onto a new PENDING line and
// recomputes the order total. Catalog price changes after this moment do
// not touch the line.
func (s *Service) AddLine(ctx context.Context, orderID string, req *AddLineRequest) (*repository.Line, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}

	var line *repository.Line
	err = s.db.WithTenant(ctx, func(ctx context.Context) error {
		order, err := s.repo.GetOrder(ctx, tenantID, orderID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderOpen {
			return errors.BusinessRule(domain.ReasonOrderNotOpen, "lines can only be added to open orders")
		}
		if order.TableID != nil {
			banned, err := s.floor.IsTableBlacklisted(ctx, *order.TableID)
			if err != nil {
				return err
			}
			if banned {
				return errors.BusinessRule(diningdomain.ReasonTableBlacklisted, "table is blacklisted")
			}
		}

		item, err := s.catalog.GetItem(ctx, tenantID, req.ItemID)
		if err != nil {
			return err
		}
		if !item.Available {
			return errors.BusinessRule(domain.ReasonItemUnavailable, "item is not available")
		}

		line = &repository.Line{
			TenantID:  tenantID,
			OrderID:   orderID,
			ItemID:    item.ID,
			ItemName:  item.Name,
			Category:  item.Category,
			Quantity:  req.Quantity,
			UnitPrice: item.BasePrice,
			Modifiers: req.Modifiers,
			Notes:     req.Notes,
		}
		if err := s.repo.InsertLine(ctx, line); err != nil {
			return err
		}
		return s.recomputeTotal(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	return line, nil
}

// UpdateLineRequest rewrites a pending line.
type UpdateLineRequest struct {
	Quantity  int    `json:"quantity" validate:"required,min=1"`
	Modifiers string `json:"modifiers" validate:"max=500"`
	Notes     string `json:"notes" validate:"max=500"`
	Version   int64  `json:"version" validate:"required,min=1"`
}

// UpdateLine changes quantity, modifiers or notes while the line is still
// PENDING.
func (s *Service) UpdateLine(ctx context.Context, lineID string, req *UpdateLineRequest) (*repository.Line, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}

	var updated *repository.Line
	err = s.db.WithTenant(ctx, func(ctx context.Context) error {
		line, err := s.repo.GetLine(ctx, tenantID, lineID)
		if err != nil {
			return err
		}
		if line.Status != domain.LinePending {
			return errors.BusinessRule(domain.ReasonLineNotPending, "only pending lines can be edited")
		}
		order, err := s.repo.GetOrder(ctx, tenantID, line.OrderID)
		if err != nil {
			return err
		}

		line.Quantity = req.Quantity
		line.Modifiers = req.Modifiers
		line.Notes = req.Notes
		line.Version = req.Version
		if err := s.repo.UpdateLine(ctx, line); err != nil {
			return err
		}
		updated = line
		return s.recomputeTotal(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Confirm sends every pending line to the kitchen ("Pedir"): lines flip to
// CONFIRMED, one consumption is appended per line, the order moves to
// CONFIRMED, and OrderConfirmed publishes after commit.
func (s *Service) Confirm(ctx context.Context, orderID string) (*repository.Order, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}

	var (
		order       *repository.Order
		confirmed   []repository.Line
		tableNumber *int
	)
	confirmedAt := time.Now().UTC()

	err = s.db.WithTenant(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.repo.GetOrder(ctx, tenantID, orderID)
		if err != nil {
			return err
		}
		// Re-confirmation of an already confirmed order sends only the
		// newly added pending lines.
		if order.Status != domain.OrderOpen && order.Status != domain.OrderConfirmed {
			return errors.BusinessRule(domain.ReasonOrderNotOpen, "order cannot be confirmed in status "+order.Status)
		}

		confirmed, err = s.repo.ConfirmPendingLines(ctx, tenantID, orderID)
		if err != nil {
			return err
		}
		if len(confirmed) == 0 {
			return errors.BusinessRule(domain.ReasonNoPendingLines, "order has no pending lines")
		}
		if err := s.repo.InsertConsumptions(ctx, tenantID, confirmed, confirmedAt); err != nil {
			return err
		}

		order.Status = domain.OrderConfirmed
		order.ConfirmSeq++
		if err := s.repo.UpdateOrder(ctx, order); err != nil {
			return err
		}

		if order.TableID != nil {
			table, err := s.floor.GetTable(ctx, *order.TableID)
			if err != nil {
				return err
			}
			tableNumber = &table.TableNumber
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishOrderConfirmed(ctx, order, confirmed, tableNumber, confirmedAt)
	return order, nil
}

// VoidLineRequest voids a line with an audit reason.
type VoidLineRequest struct {
	Reason      string `json:"reason" validate:"required,min=1,max=300"`
	RecordWaste bool   `json:"record_waste"`
	Version     int64  `json:"version" validate:"required,min=1"`
}

// VoidLine removes a line from the bill. Once the order has been sent to
// the kitchen the VOID_AFTER_SUBTOTAL permission is required.
func (s *Service) VoidLine(ctx context.Context, lineID string, req *VoidLineRequest) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return errors.Unauthenticated("tenant context required")
	}

	var voided *repository.Line
	when := time.Now().UTC()

	err = s.db.WithTenant(ctx, func(ctx context.Context) error {
		line, err := s.repo.GetLine(ctx, tenantID, lineID)
		if err != nil {
			return err
		}
		if line.Status == domain.LineVoided {
			return errors.BusinessRule(domain.ReasonLineAlreadyVoided, "line is already voided")
		}
		order, err := s.repo.GetOrder(ctx, tenantID, line.OrderID)
		if err != nil {
			return err
		}
		if order.ConfirmSeq > 0 {
			if err := authz.RequirePermission(actorFromContext(ctx), authz.PermVoidAfterSubtotal); err != nil {
				return err
			}
		}
		if !domain.CanTransitionLine(line.Status, domain.LineVoided) {
			return errors.BusinessRule(domain.ReasonInvalidTransition, "line cannot be voided from "+line.Status)
		}

		if err := s.repo.VoidLine(ctx, tenantID, lineID, req.Reason, req.Version, when); err != nil {
			return err
		}
		if err := s.repo.VoidConsumptionsForLine(ctx, tenantID, lineID, when); err != nil {
			return err
		}
		voided = line
		return s.recomputeTotal(ctx, order)
	})
	if err != nil {
		return err
	}

	s.publisher.PublishOrderLineVoided(ctx, voided, req.Reason, when)
	return nil
}

// DiscountRequest applies a reduction to an order or one line.
type DiscountRequest struct {
	LineID       *string `json:"line_id" validate:"omitempty,uuid"`
	DiscountType string  `json:"discount_type" validate:"required,oneof=PERCENTAGE FIXED_AMOUNT"`
	Amount       string  `json:"amount" validate:"required"`
	Reason       string  `json:"reason" validate:"max=300"`
}

// ApplyDiscount records a discount and recomputes the total. Requires the
// APPLY_DISCOUNT permission. Fixed amounts are clamped to what they apply
// to; percentages must fall in [0,100].
func (s *Service) ApplyDiscount(ctx context.Context, orderID string, req *DiscountRequest) (*repository.Order, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	if err := authz.RequirePermission(actorFromContext(ctx), authz.PermApplyDiscount); err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return nil, errors.ValidationMsg("amount must be a decimal")
	}
	if err := domain.ValidateDiscount(req.DiscountType, amount); err != nil {
		return nil, err
	}

	var order *repository.Order
	err = s.db.WithTenant(ctx, func(ctx context.Context) error {
		order, err = s.repo.GetOrder(ctx, tenantID, orderID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderOpen && order.Status != domain.OrderConfirmed {
			return errors.BusinessRule(domain.ReasonOrderNotOpen, "discounts only apply before payment")
		}

		if req.DiscountType == domain.DiscountFixedAmount {
			base := order.TotalAmount
			if req.LineID != nil {
				line, err := s.repo.GetLine(ctx, tenantID, *req.LineID)
				if err != nil {
					return err
				}
				base = domain.LineAmounts{Quantity: line.Quantity, UnitPrice: line.UnitPrice}.Total()
			}
			if amount.GreaterThan(base) {
				amount = base
			}
		}

		userID := tenant.UserID(ctx)
		discount := &repository.Discount{
			TenantID:     tenantID,
			OrderID:      orderID,
			LineID:       req.LineID,
			DiscountType: req.DiscountType,
			Amount:       amount,
			Reason:       req.Reason,
			AppliedBy:    userID,
		}
		if err := s.repo.InsertDiscount(ctx, discount); err != nil {
			return err
		}
		return s.recomputeTotal(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// TransferOrder reseats one order at another table.
func (s *Service) TransferOrder(ctx context.Context, orderID, toTableID string) (*repository.Order, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}

	var order *repository.Order
	err = s.db.WithTenant(ctx, func(ctx context.Context) error {
		order, err = s.repo.GetOrder(ctx, tenantID, orderID)
		if err != nil {
			return err
		}
		if order.Status == domain.OrderClosed || order.Status == domain.OrderVoided {
			return errors.BusinessRule(domain.ReasonInvalidTransition, "terminal orders cannot be transferred")
		}
		if order.TableID == nil {
			return errors.BusinessRule(domain.ReasonTableRequired, "order is not seated at a table")
		}
		fromTableID := *order.TableID
		if fromTableID == toTableID {
			return nil
		}

		if err := s.seatTransferTarget(ctx, fromTableID, toTableID); err != nil {
			return err
		}

		order.TableID = &toTableID
		if err := s.repo.UpdateOrder(ctx, order); err != nil {
			return err
		}
		return s.releaseIfEmpty(ctx, tenantID, fromTableID)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// TransferTable moves every open order from one table to another in a
// single transaction and refreshes both table statuses.
func (s *Service) TransferTable(ctx context.Context, fromTableID, toTableID string) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return errors.Unauthenticated("tenant context required")
	}
	if fromTableID == toTableID {
		return errors.ValidationMsg("source and destination table are the same")
	}

	return s.db.WithTenant(ctx, func(ctx context.Context) error {
		if err := s.seatTransferTarget(ctx, fromTableID, toTableID); err != nil {
			return err
		}
		moved, err := s.repo.ReassignTable(ctx, tenantID, fromTableID, toTableID)
		if err != nil {
			return err
		}
		if moved == 0 {
			return errors.BusinessRule(domain.ReasonOrderNotOpen, "source table has no open orders")
		}
		return s.floor.ReleaseTable(ctx, fromTableID)
	})
}

// Close finishes a PAID order and frees its table.
func (s *Service) Close(ctx context.Context, orderID string) (*repository.Order, error) {
	return s.transition(ctx, orderID, domain.OrderPaid, domain.OrderClosed, domain.ReasonOrderNotPaid)
}

// Void cancels an order that has not been paid and frees its table.
func (s *Service) Void(ctx context.Context, orderID string) (*repository.Order, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}

	var order *repository.Order
	err = s.db.WithTenant(ctx, func(ctx context.Context) error {
		order, err = s.repo.GetOrder(ctx, tenantID, orderID)
		if err != nil {
			return err
		}
		if err := domain.ValidateOrderTransition(order.Status, domain.OrderVoided); err != nil {
			return err
		}
		now := time.Now().UTC()
		order.Status = domain.OrderVoided
		order.ClosedAt = &now
		if err := s.repo.UpdateOrder(ctx, order); err != nil {
			return err
		}
		if order.TableID != nil {
			return s.releaseIfEmpty(ctx, tenantID, *order.TableID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) transition(ctx context.Context, orderID, from, to, reason string) (*repository.Order, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}

	var order *repository.Order
	err = s.db.WithTenant(ctx, func(ctx context.Context) error {
		order, err = s.repo.GetOrder(ctx, tenantID, orderID)
		if err != nil {
			return err
		}
		if order.Status != from {
			return errors.BusinessRule(reason, "order is in status "+order.Status)
		}
		now := time.Now().UTC()
		order.Status = to
		order.ClosedAt = &now
		if err := s.repo.UpdateOrder(ctx, order); err != nil {
			return err
		}
		if order.TableID != nil {
			return s.releaseIfEmpty(ctx, tenantID, *order.TableID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// recomputeTotal reloads lines and discounts and writes the derived total
// onto the order row. Runs inside the caller's transaction.
func (s *Service) recomputeTotal(ctx context.Context, order *repository.Order) error {
	lines, err := s.repo.ListLines(ctx, order.TenantID, order.ID)
	if err != nil {
		return err
	}
	discounts, err := s.repo.ListDiscounts(ctx, order.TenantID, order.ID)
	if err != nil {
		return err
	}
	order.TotalAmount = domain.ComputeTotal(repository.LineAmounts(lines), repository.DiscountSpecs(discounts))
	return s.repo.UpdateOrder(ctx, order)
}

// seatTransferTarget vets the destination of a transfer and seats it.
// Transfers only land on AVAILABLE or OCCUPIED tables, and fail when
// either end of the move is blacklisted.
func (s *Service) seatTransferTarget(ctx context.Context, fromTableID, toTableID string) error {
	dest, err := s.floor.GetTable(ctx, toTableID)
	if err != nil {
		return err
	}
	if dest.Status != diningdomain.TableAvailable && dest.Status != diningdomain.TableOccupied {
		return errors.BusinessRule(diningdomain.ReasonTableNotAvailable, "destination table is "+dest.Status)
	}
	for _, tableID := range []string{fromTableID, toTableID} {
		banned, err := s.floor.IsTableBlacklisted(ctx, tableID)
		if err != nil {
			return err
		}
		if banned {
			return errors.BusinessRule(diningdomain.ReasonTableBlacklisted, "table is blacklisted")
		}
	}
	if dest.Status == diningdomain.TableOccupied {
		return nil
	}
	_, err = s.floor.OccupyTable(ctx, toTableID)
	return err
}

// releaseIfEmpty frees a table once its last open order is gone.
func (s *Service) releaseIfEmpty(ctx context.Context, tenantID, tableID string) error {
	open, err := s.repo.CountOpenForTable(ctx, tenantID, tableID)
	if err != nil {
		return err
	}
	if open > 0 {
		return nil
	}
	return s.floor.ReleaseTable(ctx, tableID)
}

// actorFromContext rebuilds the caller for permission checks. Tokens are
// only issued to ACTIVE users, so the status here reflects issue time;
// deactivation takes effect at the next refresh.
func actorFromContext(ctx context.Context) authz.Actor {
	principal, _ := tenant.FromContext(ctx)
	return authz.Actor{
		UserID: principal.UserID,
		Role:   principal.Role,
		Status: authz.StatusActive,
	}
}
