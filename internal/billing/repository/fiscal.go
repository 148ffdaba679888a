package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mesapos/mesa-backend/pkg/database"
	"github.com/mesapos/mesa-backend/pkg/errors"
)

// FiscalDocument is a numbered legal document over an order.
type FiscalDocument struct {
	ID             string          `db:"id" json:"id"`
	TenantID       string          `db:"tenant_id" json:"tenant_id"`
	SiteID         string          `db:"site_id" json:"site_id"`
	OrderID        string          `db:"order_id" json:"order_id"`
	DocumentType   string          `db:"document_type" json:"document_type"`
	DocumentNumber int64           `db:"document_number" json:"document_number"`
	CustomerTaxID  *string         `db:"customer_tax_id" json:"customer_tax_id,omitempty"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
	Voided         bool            `db:"voided" json:"voided"`
	IssuedAt       time.Time       `db:"issued_at" json:"issued_at"`
}

// FiscalRepository stores fiscal documents with gap-free numbering.
type FiscalRepository struct {
	db *database.DB
}

// NewFiscalRepository creates a fiscal document repository.
func NewFiscalRepository(db *database.DB) *FiscalRepository {
	return &FiscalRepository{db: db}
}

// NextDocumentNumber reserves the next number in the (tenant, site, type)
// series. Must run inside a transaction: the advisory lock serializes
// concurrent issuers until commit, so the sequence has no gaps.
func (r *FiscalRepository) NextDocumentNumber(ctx context.Context, tenantID, siteID, documentType string) (int64, error) {
	key := fmt.Sprintf("fiscal:%s:%s:%s", tenantID, siteID, documentType)
	if err := r.db.AdvisoryLock(ctx, key); err != nil {
		return 0, err
	}
	var next int64
	err := r.db.GetContext(ctx, &next, `
		SELECT COALESCE(MAX(document_number), 0) + 1 FROM fiscal_documents
		WHERE tenant_id = $1 AND site_id = $2 AND document_type = $3`,
		tenantID, siteID, documentType)
	return next, err
}

// Insert writes a fiscal document.
func (r *FiscalRepository) Insert(ctx context.Context, d *FiscalDocument) error {
	d.ID = uuid.New().String()
	err := r.db.GetContext(ctx, d, `
		INSERT INTO fiscal_documents (id, tenant_id, site_id, order_id, document_type,
		                              document_number, customer_tax_id, total_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, tenant_id, site_id, order_id, document_type, document_number,
		          customer_tax_id, total_amount, voided, issued_at`,
		d.ID, d.TenantID, d.SiteID, d.OrderID, d.DocumentType,
		d.DocumentNumber, d.CustomerTaxID, d.TotalAmount)
	if err != nil {
		return database.MapPQError(err)
	}
	return nil
}

// Get loads one document.
func (r *FiscalRepository) Get(ctx context.Context, tenantID, documentID string) (*FiscalDocument, error) {
	var d FiscalDocument
	err := r.db.GetContext(ctx, &d, `
		SELECT id, tenant_id, site_id, order_id, document_type, document_number,
		       customer_tax_id, total_amount, voided, issued_at
		FROM fiscal_documents WHERE tenant_id = $1 AND id = $2`,
		tenantID, documentID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("fiscal document")
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// MarkVoided flags a document voided. The row itself never disappears,
// the number stays in the sequence.
func (r *FiscalRepository) MarkVoided(ctx context.Context, tenantID, documentID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE fiscal_documents SET voided = TRUE
		WHERE tenant_id = $1 AND id = $2 AND voided = FALSE`,
		tenantID, documentID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Conflict("document already voided")
	}
	return nil
}

// ListForOrder returns an order's documents, oldest first.
func (r *FiscalRepository) ListForOrder(ctx context.Context, tenantID, orderID string) ([]FiscalDocument, error) {
	docs := []FiscalDocument{}
	err := r.db.SelectContext(ctx, &docs, `
		SELECT id, tenant_id, site_id, order_id, document_type, document_number,
		       customer_tax_id, total_amount, voided, issued_at
		FROM fiscal_documents WHERE tenant_id = $1 AND order_id = $2
		ORDER BY issued_at`,
		tenantID, orderID)
	return docs, err
}

// ListInRange returns the documents issued in [from, to), the export
// window for accounting extracts.
func (r *FiscalRepository) ListInRange(ctx context.Context, tenantID string, from, to time.Time) ([]FiscalDocument, error) {
	docs := []FiscalDocument{}
	err := r.db.SelectContext(ctx, &docs, `
		SELECT id, tenant_id, site_id, order_id, document_type, document_number,
		       customer_tax_id, total_amount, voided, issued_at
		FROM fiscal_documents
		WHERE tenant_id = $1 AND issued_at >= $2 AND issued_at < $3
		ORDER BY document_type, document_number`,
		tenantID, from, to)
	return docs, err
}
