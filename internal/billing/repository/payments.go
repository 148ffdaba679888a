package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mesapos/mesa-backend/pkg/database"
	"github.com/mesapos/mesa-backend/pkg/errors"
)

// Payment is one settlement attempt against an order.
type Payment struct {
	ID                    string          `db:"id" json:"id"`
	TenantID              string          `db:"tenant_id" json:"tenant_id"`
	SiteID                string          `db:"site_id" json:"site_id"`
	OrderID               string          `db:"order_id" json:"order_id"`
	IdempotencyKey        string          `db:"idempotency_key" json:"idempotency_key"`
	Amount                decimal.Decimal `db:"amount" json:"amount"`
	ChangeAmount          decimal.Decimal `db:"change_amount" json:"change_amount"`
	Method                string          `db:"method" json:"method"`
	Status                string          `db:"status" json:"status"`
	TerminalTransactionID *string         `db:"terminal_transaction_id" json:"terminal_transaction_id,omitempty"`
	CardLastFour          *string         `db:"card_last_four" json:"card_last_four,omitempty"`
	FailureReason         *string         `db:"failure_reason" json:"failure_reason,omitempty"`
	Version               int64           `db:"version" json:"version"`
	CreatedAt             time.Time       `db:"created_at" json:"created_at"`
	CompletedAt           *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}

// Split is one part of a split bill, settleable independently.
type Split struct {
	ID          string          `db:"id" json:"id"`
	TenantID    string          `db:"tenant_id" json:"tenant_id"`
	OrderID     string          `db:"order_id" json:"order_id"`
	SplitNumber int             `db:"split_number" json:"split_number"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Status      string          `db:"status" json:"status"`
	PaymentID   *string         `db:"payment_id" json:"payment_id,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

const paymentColumns = `id, tenant_id, site_id, order_id, idempotency_key, amount, change_amount,
	method, status, terminal_transaction_id, card_last_four, failure_reason,
	version, created_at, completed_at`

// PaymentRepository provides payment and split storage.
type PaymentRepository struct {
	db *database.DB
}

// NewPaymentRepository creates a payment repository.
func NewPaymentRepository(db *database.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// FindByIdempotencyKey returns the payment previously recorded for the
// key, or nil when the key is unseen.
func (r *PaymentRepository) FindByIdempotencyKey(ctx context.Context, tenantID, key string) (*Payment, error) {
	var p Payment
	err := r.db.GetContext(ctx, &p, `
		SELECT `+paymentColumns+`
		FROM payments WHERE tenant_id = $1 AND idempotency_key = $2`,
		tenantID, key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Get loads one payment.
func (r *PaymentRepository) Get(ctx context.Context, tenantID, paymentID string) (*Payment, error) {
	var p Payment
	err := r.db.GetContext(ctx, &p, `
		SELECT `+paymentColumns+`
		FROM payments WHERE tenant_id = $1 AND id = $2`,
		tenantID, paymentID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("payment")
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Insert writes a new payment row. A concurrent insert of the same
// idempotency key surfaces as CONFLICT via the unique index.
func (r *PaymentRepository) Insert(ctx context.Context, p *Payment) error {
	p.ID = uuid.New().String()
	err := r.db.GetContext(ctx, p, `
		INSERT INTO payments (id, tenant_id, site_id, order_id, idempotency_key, amount,
		                      change_amount, method, status, terminal_transaction_id,
		                      card_last_four, failure_reason, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+paymentColumns,
		p.ID, p.TenantID, p.SiteID, p.OrderID, p.IdempotencyKey, p.Amount,
		p.ChangeAmount, p.Method, p.Status, p.TerminalTransactionID,
		p.CardLastFour, p.FailureReason, p.CompletedAt)
	if err != nil {
		return database.MapPQError(err)
	}
	return nil
}

// UpdateStatus moves a payment between statuses, predicated on version.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, tenantID, paymentID, status string, version int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $3, version = version + 1
		WHERE tenant_id = $1 AND id = $2 AND version = $4`,
		tenantID, paymentID, status, version)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Conflict("payment was modified by another request")
	}
	return nil
}

// SumCompleted returns the completed settlement total of an order.
func (r *PaymentRepository) SumCompleted(ctx context.Context, tenantID, orderID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(amount), 0) FROM payments
		WHERE tenant_id = $1 AND order_id = $2 AND status = 'COMPLETED'`,
		tenantID, orderID)
	return sum, err
}

// ListForOrder returns an order's payments, oldest first.
func (r *PaymentRepository) ListForOrder(ctx context.Context, tenantID, orderID string) ([]Payment, error) {
	payments := []Payment{}
	err := r.db.SelectContext(ctx, &payments, `
		SELECT `+paymentColumns+`
		FROM payments WHERE tenant_id = $1 AND order_id = $2
		ORDER BY created_at`,
		tenantID, orderID)
	return payments, err
}

// InsertSplits writes the split partition for an order.
func (r *PaymentRepository) InsertSplits(ctx context.Context, splits []Split) error {
	for i := range splits {
		splits[i].ID = uuid.New().String()
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO payment_splits (id, tenant_id, order_id, split_number, amount, status)
			VALUES ($1, $2, $3, $4, $5, 'PENDING')`,
			splits[i].ID, splits[i].TenantID, splits[i].OrderID, splits[i].SplitNumber, splits[i].Amount)
		if err != nil {
			return database.MapPQError(err)
		}
	}
	return nil
}

// ListSplits returns an order's splits in split order.
func (r *PaymentRepository) ListSplits(ctx context.Context, tenantID, orderID string) ([]Split, error) {
	splits := []Split{}
	err := r.db.SelectContext(ctx, &splits, `
		SELECT id, tenant_id, order_id, split_number, amount, status, payment_id, created_at
		FROM payment_splits WHERE tenant_id = $1 AND order_id = $2
		ORDER BY split_number`,
		tenantID, orderID)
	return splits, err
}

// CountSplits returns the number of splits recorded for an order.
func (r *PaymentRepository) CountSplits(ctx context.Context, tenantID, orderID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM payment_splits WHERE tenant_id = $1 AND order_id = $2`,
		tenantID, orderID)
	return count, err
}

// SettleNextSplit marks the lowest pending split paid by the payment.
func (r *PaymentRepository) SettleNextSplit(ctx context.Context, tenantID, orderID, paymentID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payment_splits
		SET status = 'PAID', payment_id = $3
		WHERE id = (
			SELECT id FROM payment_splits
			WHERE tenant_id = $1 AND order_id = $2 AND status = 'PENDING'
			ORDER BY split_number LIMIT 1
		)`,
		tenantID, orderID, paymentID)
	return err
}
