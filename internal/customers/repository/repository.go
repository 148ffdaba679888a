package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/mesapos/mesa-backend/internal/customers/domain"
	"github.com/mesapos/mesa-backend/pkg/database"
	"github.com/mesapos/mesa-backend/pkg/errors"
)

// Customer is a delivery/takeout contact.
type Customer struct {
	ID            string    `db:"id" json:"id"`
	TenantID      string    `db:"tenant_id" json:"tenant_id"`
	Name          string    `db:"name" json:"name"`
	Phone         string    `db:"phone" json:"phone"`
	PhoneReversed string    `db:"phone_reversed" json:"-"`
	TaxID         *string   `db:"tax_id" json:"tax_id,omitempty"`
	Address       *string   `db:"address" json:"address,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// OrderSummary is one past order of a customer.
type OrderSummary struct {
	ID          string    `db:"id" json:"id"`
	OrderType   string    `db:"order_type" json:"order_type"`
	Status      string    `db:"status" json:"status"`
	TotalAmount string    `db:"total_amount" json:"total_amount"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Repository provides customer storage.
type Repository struct {
	db *database.DB
}

// New creates a customers repository.
func New(db *database.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a customer. Phone is stored sanitized plus reversed.
func (r *Repository) Create(ctx context.Context, c *Customer) error {
	c.ID = uuid.New().String()
	c.Phone = domain.SanitizePhone(c.Phone)
	c.PhoneReversed = domain.ReversePhone(c.Phone)
	err := r.db.GetContext(ctx, c, `
		INSERT INTO customers (id, tenant_id, name, phone, phone_reversed, tax_id, address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, tenant_id, name, phone, phone_reversed, tax_id, address, created_at, updated_at`,
		c.ID, c.TenantID, c.Name, c.Phone, c.PhoneReversed, c.TaxID, c.Address)
	if err != nil {
		return database.MapPQError(err)
	}
	return nil
}

// Get loads a customer scoped to the tenant.
func (r *Repository) Get(ctx context.Context, tenantID, customerID string) (*Customer, error) {
	var c Customer
	err := r.db.GetContext(ctx, &c, `
		SELECT id, tenant_id, name, phone, phone_reversed, tax_id, address, created_at, updated_at
		FROM customers WHERE tenant_id = $1 AND id = $2`,
		tenantID, customerID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("customer")
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindByPhone returns customers matching a full phone number exactly.
func (r *Repository) FindByPhone(ctx context.Context, tenantID, phone string) ([]Customer, error) {
	customers := []Customer{}
	err := r.db.SelectContext(ctx, &customers, `
		SELECT id, tenant_id, name, phone, phone_reversed, tax_id, address, created_at, updated_at
		FROM customers WHERE tenant_id = $1 AND phone = $2
		ORDER BY name`,
		tenantID, domain.SanitizePhone(phone))
	return customers, err
}

// FindByPhoneSuffix returns customers whose phone ends with the fragment.
// The reversed column makes this a prefix LIKE, which the pattern index
// serves without a full scan.
func (r *Repository) FindByPhoneSuffix(ctx context.Context, tenantID, suffix string, limit int) ([]Customer, error) {
	customers := []Customer{}
	err := r.db.SelectContext(ctx, &customers, `
		SELECT id, tenant_id, name, phone, phone_reversed, tax_id, address, created_at, updated_at
		FROM customers
		WHERE tenant_id = $1 AND phone_reversed LIKE $2 || '%'
		ORDER BY name LIMIT $3`,
		tenantID, domain.ReversePhone(suffix), limit)
	return customers, err
}

// Update changes the mutable customer fields.
func (r *Repository) Update(ctx context.Context, c *Customer) error {
	c.Phone = domain.SanitizePhone(c.Phone)
	c.PhoneReversed = domain.ReversePhone(c.Phone)
	res, err := r.db.ExecContext(ctx, `
		UPDATE customers
		SET name = $3, phone = $4, phone_reversed = $5, tax_id = $6, address = $7, updated_at = now()
		WHERE tenant_id = $1 AND id = $2`,
		c.TenantID, c.ID, c.Name, c.Phone, c.PhoneReversed, c.TaxID, c.Address)
	if err != nil {
		return database.MapPQError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("customer")
	}
	return nil
}

// OrderHistory lists a customer's past orders, newest first.
func (r *Repository) OrderHistory(ctx context.Context, tenantID, customerID string, limit int) ([]OrderSummary, error) {
	orders := []OrderSummary{}
	err := r.db.SelectContext(ctx, &orders, `
		SELECT id, order_type, status, total_amount::text AS total_amount, created_at
		FROM orders
		WHERE tenant_id = $1 AND customer_id = $2
		ORDER BY created_at DESC LIMIT $3`,
		tenantID, customerID, limit)
	return orders, err
}
