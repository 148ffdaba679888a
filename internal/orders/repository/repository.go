package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mesapos/mesa-backend/internal/orders/domain"
	"github.com/mesapos/mesa-backend/pkg/database"
	"github.com/mesapos/mesa-backend/pkg/errors"
)

// Order is the aggregate root of a guest check.
type Order struct {
	ID          string          `db:"id" json:"id"`
	TenantID    string          `db:"tenant_id" json:"tenant_id"`
	SiteID      string          `db:"site_id" json:"site_id"`
	TableID     *string         `db:"table_id" json:"table_id,omitempty"`
	CustomerID  *string         `db:"customer_id" json:"customer_id,omitempty"`
	OrderType   string          `db:"order_type" json:"order_type"`
	Status      string          `db:"status" json:"status"`
	TotalAmount decimal.Decimal `db:"total_amount" json:"total_amount"`
	ConfirmSeq  int             `db:"confirm_seq" json:"confirm_seq"`
	Version     int64           `db:"version" json:"version"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
	ClosedAt    *time.Time      `db:"closed_at" json:"closed_at,omitempty"`
}

// Line is one item position on an order. UnitPrice is the catalog price
// captured when the line was added; later price changes never touch it.
type Line struct {
	ID         string          `db:"id" json:"id"`
	TenantID   string          `db:"tenant_id" json:"tenant_id"`
	OrderID    string          `db:"order_id" json:"order_id"`
	ItemID     string          `db:"item_id" json:"item_id"`
	ItemName   string          `db:"item_name" json:"item_name"`
	Category   string          `db:"category" json:"category"`
	Quantity   int             `db:"quantity" json:"quantity"`
	UnitPrice  decimal.Decimal `db:"unit_price" json:"unit_price"`
	Modifiers  string          `db:"modifiers" json:"modifiers"`
	Notes      string          `db:"notes" json:"notes"`
	Status     string          `db:"status" json:"status"`
	Version    int64           `db:"version" json:"version"`
	VoidReason *string         `db:"void_reason" json:"void_reason,omitempty"`
	VoidedAt   *time.Time      `db:"voided_at" json:"voided_at,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// Consumption is the append-only audit record of a confirmed line.
type Consumption struct {
	ID          string     `db:"id" json:"id"`
	TenantID    string     `db:"tenant_id" json:"tenant_id"`
	OrderID     string     `db:"order_id" json:"order_id"`
	LineID      string     `db:"line_id" json:"line_id"`
	ItemID      string     `db:"item_id" json:"item_id"`
	Quantity    int        `db:"quantity" json:"quantity"`
	ConfirmedAt time.Time  `db:"confirmed_at" json:"confirmed_at"`
	VoidedAt    *time.Time `db:"voided_at" json:"voided_at,omitempty"`
}

// Discount is a recorded reduction with its applying user.
type Discount struct {
	ID           string          `db:"id" json:"id"`
	TenantID     string          `db:"tenant_id" json:"tenant_id"`
	OrderID      string          `db:"order_id" json:"order_id"`
	LineID       *string         `db:"line_id" json:"line_id,omitempty"`
	DiscountType string          `db:"discount_type" json:"discount_type"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	Reason       string          `db:"reason" json:"reason"`
	AppliedBy    string          `db:"applied_by" json:"applied_by"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// Repository provides order aggregate storage.
type Repository struct {
	db *database.DB
}

// New creates an orders repository.
func New(db *database.DB) *Repository {
	return &Repository{db: db}
}

// CreateOrder inserts an order in OPEN with total zero.
func (r *Repository) CreateOrder(ctx context.Context, order *Order) error {
	order.ID = uuid.New().String()
	err := r.db.GetContext(ctx, order, `
		INSERT INTO orders (id, tenant_id, site_id, table_id, customer_id, order_type, status, total_amount)
		VALUES ($1, $2, $3, $4, $5, $6, 'OPEN', 0)
		RETURNING id, tenant_id, site_id, table_id, customer_id, order_type, status,
		          total_amount, confirm_seq, version, created_at, updated_at, closed_at`,
		order.ID, order.TenantID, order.SiteID, order.TableID, order.CustomerID, order.OrderType)
	if err != nil {
		return database.MapPQError(err)
	}
	return nil
}

// GetOrder loads an order scoped to the tenant.
func (r *Repository) GetOrder(ctx context.Context, tenantID, orderID string) (*Order, error) {
	var order Order
	err := r.db.GetContext(ctx, &order, `
		SELECT id, tenant_id, site_id, table_id, customer_id, order_type, status,
		       total_amount, confirm_seq, version, created_at, updated_at, closed_at
		FROM orders WHERE tenant_id = $1 AND id = $2`,
		tenantID, orderID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("order")
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders returns a site's orders, optionally filtered by status.
func (r *Repository) ListOrders(ctx context.Context, tenantID, siteID, status string) ([]Order, error) {
	orders := []Order{}
	query := `
		SELECT id, tenant_id, site_id, table_id, customer_id, order_type, status,
		       total_amount, confirm_seq, version, created_at, updated_at, closed_at
		FROM orders WHERE tenant_id = $1 AND site_id = $2`
	args := []interface{}{tenantID, siteID}
	if status != "" {
		query += ` AND status = $3`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`
	err := r.db.SelectContext(ctx, &orders, query, args...)
	return orders, err
}

// UpdateOrder writes status, total and confirm_seq predicated on version.
func (r *Repository) UpdateOrder(ctx context.Context, order *Order) error {
	query := `
		UPDATE orders
		SET status = $3, total_amount = $4, confirm_seq = $5, table_id = $6,
		    closed_at = $7, version = version + 1, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND version = $8`
	res, err := r.db.ExecContext(ctx, query,
		order.TenantID, order.ID, order.Status, order.TotalAmount, order.ConfirmSeq,
		order.TableID, order.ClosedAt, order.Version)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Conflict("order was modified by another request")
	}
	order.Version++
	return nil
}

// CountOpenForTable returns the number of non-terminal orders at a table.
func (r *Repository) CountOpenForTable(ctx context.Context, tenantID, tableID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM orders
		WHERE tenant_id = $1 AND table_id = $2 AND status NOT IN ('CLOSED', 'VOIDED')`,
		tenantID, tableID)
	return count, err
}

// ReassignTable moves every non-terminal order from one table to another
// in a single statement. Used by table transfer.
func (r *Repository) ReassignTable(ctx context.Context, tenantID, fromTableID, toTableID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET table_id = $3, version = version + 1, updated_at = now()
		WHERE tenant_id = $1 AND table_id = $2 AND status NOT IN ('CLOSED', 'VOIDED')`,
		tenantID, fromTableID, toTableID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// InsertLine adds a line in PENDING.
func (r *Repository) InsertLine(ctx context.Context, line *Line) error {
	line.ID = uuid.New().String()
	err := r.db.GetContext(ctx, line, `
		INSERT INTO order_lines (id, tenant_id, order_id, item_id, item_name, category,
		                         quantity, unit_price, modifiers, notes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'PENDING')
		RETURNING id, tenant_id, order_id, item_id, item_name, category, quantity,
		          unit_price, modifiers, notes, status, version, void_reason, voided_at,
		          created_at, updated_at`,
		line.ID, line.TenantID, line.OrderID, line.ItemID, line.ItemName, line.Category,
		line.Quantity, line.UnitPrice, line.Modifiers, line.Notes)
	if err != nil {
		return database.MapPQError(err)
	}
	return nil
}

// GetLine loads a line scoped to the tenant.
func (r *Repository) GetLine(ctx context.Context, tenantID, lineID string) (*Line, error) {
	var line Line
	err := r.db.GetContext(ctx, &line, `
		SELECT id, tenant_id, order_id, item_id, item_name, category, quantity,
		       unit_price, modifiers, notes, status, version, void_reason, voided_at,
		       created_at, updated_at
		FROM order_lines WHERE tenant_id = $1 AND id = $2`,
		tenantID, lineID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("order line")
	}
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// ListLines returns the lines of an order in insertion order.
func (r *Repository) ListLines(ctx context.Context, tenantID, orderID string) ([]Line, error) {
	lines := []Line{}
	err := r.db.SelectContext(ctx, &lines, `
		SELECT id, tenant_id, order_id, item_id, item_name, category, quantity,
		       unit_price, modifiers, notes, status, version, void_reason, voided_at,
		       created_at, updated_at
		FROM order_lines WHERE tenant_id = $1 AND order_id = $2
		ORDER BY created_at`,
		tenantID, orderID)
	return lines, err
}

// UpdateLine rewrites a PENDING line's quantity, modifiers and notes.
func (r *Repository) UpdateLine(ctx context.Context, line *Line) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE order_lines
		SET quantity = $3, modifiers = $4, notes = $5, version = version + 1, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND status = 'PENDING' AND version = $6`,
		line.TenantID, line.ID, line.Quantity, line.Modifiers, line.Notes, line.Version)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Conflict("line was modified by another request")
	}
	line.Version++
	return nil
}

// ConfirmPendingLines flips every PENDING line of the order to CONFIRMED
// and returns the lines transitioned.
func (r *Repository) ConfirmPendingLines(ctx context.Context, tenantID, orderID string) ([]Line, error) {
	lines := []Line{}
	err := r.db.SelectContext(ctx, &lines, `
		UPDATE order_lines
		SET status = 'CONFIRMED', version = version + 1, updated_at = now()
		WHERE tenant_id = $1 AND order_id = $2 AND status = 'PENDING'
		RETURNING id, tenant_id, order_id, item_id, item_name, category, quantity,
		          unit_price, modifiers, notes, status, version, void_reason, voided_at,
		          created_at, updated_at`,
		tenantID, orderID)
	return lines, err
}

// VoidLine marks a line VOIDED with its reason, predicated on version.
func (r *Repository) VoidLine(ctx context.Context, tenantID, lineID, reason string, version int64, when time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE order_lines
		SET status = 'VOIDED', void_reason = $3, voided_at = $4,
		    version = version + 1, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND version = $5`,
		tenantID, lineID, reason, when, version)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Conflict("line was modified by another request")
	}
	return nil
}

// InsertConsumptions appends one consumption per confirmed line, all
// stamped with the same confirmation time.
func (r *Repository) InsertConsumptions(ctx context.Context, tenantID string, lines []Line, confirmedAt time.Time) error {
	for _, line := range lines {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO consumptions (id, tenant_id, order_id, line_id, item_id, quantity, confirmed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.New().String(), tenantID, line.OrderID, line.ID, line.ItemID, line.Quantity, confirmedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

// VoidConsumptionsForLine stamps voided_at on the line's consumptions.
func (r *Repository) VoidConsumptionsForLine(ctx context.Context, tenantID, lineID string, when time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE consumptions SET voided_at = $3
		WHERE tenant_id = $1 AND line_id = $2 AND voided_at IS NULL`,
		tenantID, lineID, when)
	return err
}

// ListConsumptions returns the consumptions of an order.
func (r *Repository) ListConsumptions(ctx context.Context, tenantID, orderID string) ([]Consumption, error) {
	consumptions := []Consumption{}
	err := r.db.SelectContext(ctx, &consumptions, `
		SELECT id, tenant_id, order_id, line_id, item_id, quantity, confirmed_at, voided_at
		FROM consumptions WHERE tenant_id = $1 AND order_id = $2
		ORDER BY confirmed_at`,
		tenantID, orderID)
	return consumptions, err
}

// InsertDiscount records a discount with its applying user.
func (r *Repository) InsertDiscount(ctx context.Context, d *Discount) error {
	d.ID = uuid.New().String()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO discounts (id, tenant_id, order_id, line_id, discount_type, amount, reason, applied_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.TenantID, d.OrderID, d.LineID, d.DiscountType, d.Amount, d.Reason, d.AppliedBy)
	if err != nil {
		return database.MapPQError(err)
	}
	return nil
}

// ListDiscounts returns the discounts of an order.
func (r *Repository) ListDiscounts(ctx context.Context, tenantID, orderID string) ([]Discount, error) {
	discounts := []Discount{}
	err := r.db.SelectContext(ctx, &discounts, `
		SELECT id, tenant_id, order_id, line_id, discount_type, amount, reason, applied_by, created_at
		FROM discounts WHERE tenant_id = $1 AND order_id = $2
		ORDER BY created_at`,
		tenantID, orderID)
	return discounts, err
}

// LineAmounts converts stored lines for total arithmetic.
func LineAmounts(lines []Line) []domain.LineAmounts {
	out := make([]domain.LineAmounts, 0, len(lines))
	for _, l := range lines {
		out = append(out, domain.LineAmounts{
			ID:        l.ID,
			Status:    l.Status,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	return out
}

// DiscountSpecs converts stored discounts for total arithmetic.
func DiscountSpecs(discounts []Discount) []domain.DiscountSpec {
	out := make([]domain.DiscountSpec, 0, len(discounts))
	for _, d := range discounts {
		spec := domain.DiscountSpec{Type: d.DiscountType, Amount: d.Amount}
		if d.LineID != nil {
			spec.LineID = *d.LineID
		}
		out = append(out, spec)
	}
	return out
}
