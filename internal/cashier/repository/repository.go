// Package repository stores cash registers, sessions, movements and
// closing reports. Movements are append-only; sessions carry optimistic
// versions.
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

// Register is a physical till at a site.
type Register struct {
	ID        string    `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	SiteID    string    `db:"site_id" json:"site_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Session is one operator shift on a register.
type Session struct {
	ID             string           `db:"id" json:"id"`
	TenantID       string           `db:"tenant_id" json:"tenant_id"`
	SiteID         string           `db:"site_id" json:"site_id"`
	RegisterID     string           `db:"register_id" json:"register_id"`
	OpenedBy       string           `db:"opened_by" json:"opened_by"`
	ClosedBy       *string          `db:"closed_by" json:"closed_by,omitempty"`
	OpeningAmount  decimal.Decimal  `db:"opening_amount" json:"opening_amount"`
	ExpectedAmount *decimal.Decimal `db:"expected_amount" json:"expected_amount,omitempty"`
	ActualAmount   *decimal.Decimal `db:"actual_amount" json:"actual_amount,omitempty"`
	Variance       *decimal.Decimal `db:"variance" json:"variance,omitempty"`
	Status         string           `db:"status" json:"status"`
	Version        int64            `db:"version" json:"version"`
	OpenedAt       time.Time        `db:"opened_at" json:"opened_at"`
	ClosedAt       *time.Time       `db:"closed_at" json:"closed_at,omitempty"`
}

// Movement is one append-only cash entry inside a session.
type Movement struct {
	ID           string          `db:"id" json:"id"`
	TenantID     string          `db:"tenant_id" json:"tenant_id"`
	SessionID    string          `db:"session_id" json:"session_id"`
	MovementType string          `db:"movement_type" json:"movement_type"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	PaymentID    *string         `db:"payment_id" json:"payment_id,omitempty"`
	Reference    string          `db:"reference" json:"reference"`
	PerformedBy  *string         `db:"performed_by" json:"performed_by,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// Closing is an immutable closing report over a period.
type Closing struct {
	ID            string          `db:"id" json:"id"`
	TenantID      string          `db:"tenant_id" json:"tenant_id"`
	SiteID        *string         `db:"site_id" json:"site_id,omitempty"`
	RegisterID    *string         `db:"register_id" json:"register_id,omitempty"`
	ClosingType   string          `db:"closing_type" json:"closing_type"`
	PeriodStart   time.Time       `db:"period_start" json:"period_start"`
	PeriodEnd     time.Time       `db:"period_end" json:"period_end"`
	TotalSales    decimal.Decimal `db:"total_sales" json:"total_sales"`
	TotalRefunds  decimal.Decimal `db:"total_refunds" json:"total_refunds"`
	TotalVariance decimal.Decimal `db:"total_variance" json:"total_variance"`
	SessionCount  int             `db:"session_count" json:"session_count"`
	CreatedBy     string          `db:"created_by" json:"created_by"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

const sessionColumns = `id, tenant_id, site_id, register_id, opened_by, closed_by,
	opening_amount, expected_amount, actual_amount, variance,
	status, version, opened_at, closed_at`

// Repository provides cashier storage.
type Repository struct {
	db *database.DB
}

// New creates a cashier repository.
func New(db *database.DB) *Repository {
	return &Repository{db: db}
}

// CreateRegister adds a till to a site.
func (r *Repository) CreateRegister(ctx context.Context, reg *Register) error {
	reg.ID = uuid.New().String()
	err := r.db.GetContext(ctx, reg, `
		INSERT INTO cash_registers (id, tenant_id, site_id, name)
		VALUES ($1, $2, $3, $4)
		RETURNING id, tenant_id, site_id, name, created_at`,
		reg.ID, reg.TenantID, reg.SiteID, reg.Name)
	if err != nil {
		return database.MapPQError(err)
	}
	return nil
}

// ListRegisters returns a site's tills.
func (r *Repository) ListRegisters(ctx context.Context, tenantID, siteID string) ([]Register, error) {
	registers := []Register{}
	err := r.db.SelectContext(ctx, &registers, `
		SELECT id, tenant_id, site_id, name, created_at
		FROM cash_registers WHERE tenant_id = $1 AND site_id = $2
		ORDER BY name`,
		tenantID, siteID)
	return registers, err
}

// GetRegister loads one till.
func (r *Repository) GetRegister(ctx context.Context, tenantID, registerID string) (*Register, error) {
	var reg Register
	err := r.db.GetContext(ctx, &reg, `
		SELECT id, tenant_id, site_id, name, created_at
		FROM cash_registers WHERE tenant_id = $1 AND id = $2`,
		tenantID, registerID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("cash register")
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// InsertSession opens a session. The partial unique index on open
// sessions turns a concurrent second open into CONFLICT.
func (r *Repository) InsertSession(ctx context.Context, s *Session) error {
	s.ID = uuid.New().String()
	err := r.db.GetContext(ctx, s, `
		INSERT INTO cash_sessions (id, tenant_id, site_id, register_id, opened_by, opening_amount)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+sessionColumns,
		s.ID, s.TenantID, s.SiteID, s.RegisterID, s.OpenedBy, s.OpeningAmount)
	if err != nil {
		return database.MapPQError(err)
	}
	return nil
}

// GetSession loads one session.
func (r *Repository) GetSession(ctx context.Context, tenantID, sessionID string) (*Session, error) {
	var s Session
	err := r.db.GetContext(ctx, &s, `
		SELECT `+sessionColumns+`
		FROM cash_sessions WHERE tenant_id = $1 AND id = $2`,
		tenantID, sessionID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("cash session")
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FindOpenSession returns the register's open session, or nil when the
// register is closed.
func (r *Repository) FindOpenSession(ctx context.Context, tenantID, registerID string) (*Session, error) {
	var s Session
	err := r.db.GetContext(ctx, &s, `
		SELECT `+sessionColumns+`
		FROM cash_sessions
		WHERE tenant_id = $1 AND register_id = $2 AND status = 'OPEN'`,
		tenantID, registerID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CloseSession writes the counted totals and flips the session to
// CLOSED, predicated on version.
func (r *Repository) CloseSession(ctx context.Context, s *Session) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE cash_sessions
		SET status = 'CLOSED', closed_by = $3, expected_amount = $4, actual_amount = $5,
		    variance = $6, closed_at = $7, version = version + 1
		WHERE tenant_id = $1 AND id = $2 AND status = 'OPEN' AND version = $8`,
		s.TenantID, s.ID, s.ClosedBy, s.ExpectedAmount, s.ActualAmount,
		s.Variance, s.ClosedAt, s.Version)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Conflict("session was modified by another request")
	}
	s.Version++
	s.Status = "CLOSED"
	return nil
}

// ListSessionsInRange returns the sessions closed inside [from, to),
// optionally filtered by register or site.
func (r *Repository) ListSessionsInRange(ctx context.Context, tenantID string, siteID, registerID *string, from, to time.Time) ([]Session, error) {
	sessions := []Session{}
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT `+sessionColumns+`
		FROM cash_sessions
		WHERE tenant_id = $1 AND status = 'CLOSED'
		  AND closed_at >= $2 AND closed_at < $3
		  AND ($4::uuid IS NULL OR site_id = $4)
		  AND ($5::uuid IS NULL OR register_id = $5)
		ORDER BY closed_at`,
		tenantID, from, to, siteID, registerID)
	return sessions, err
}

// FindOpenSessionBySite returns the longest-running open session at a
// site, or nil when every register is closed. Used by the payment
// listener, which knows the site but not the register.
func (r *Repository) FindOpenSessionBySite(ctx context.Context, tenantID, siteID string) (*Session, error) {
	var s Session
	err := r.db.GetContext(ctx, &s, `
		SELECT `+sessionColumns+`
		FROM cash_sessions
		WHERE tenant_id = $1 AND site_id = $2 AND status = 'OPEN'
		ORDER BY opened_at LIMIT 1`,
		tenantID, siteID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// MovementTotals is the aggregated cash flow over a set of sessions.
type MovementTotals struct {
	TotalSales   decimal.Decimal `db:"total_sales"`
	TotalRefunds decimal.Decimal `db:"total_refunds"`
}

// SumMovementsInRange aggregates sales and refunds over the sessions
// closed inside [from, to), optionally filtered by register or site.
func (r *Repository) SumMovementsInRange(ctx context.Context, tenantID string, siteID, registerID *string, from, to time.Time) (*MovementTotals, error) {
	var totals MovementTotals
	err := r.db.GetContext(ctx, &totals, `
		SELECT COALESCE(SUM(m.amount) FILTER (WHERE m.movement_type = 'SALE'), 0)   AS total_sales,
		       COALESCE(SUM(m.amount) FILTER (WHERE m.movement_type = 'REFUND'), 0) AS total_refunds
		FROM cash_movements m
		JOIN cash_sessions s ON s.id = m.session_id
		WHERE s.tenant_id = $1 AND s.status = 'CLOSED'
		  AND s.closed_at >= $2 AND s.closed_at < $3
		  AND ($4::uuid IS NULL OR s.site_id = $4)
		  AND ($5::uuid IS NULL OR s.register_id = $5)`,
		tenantID, from, to, siteID, registerID)
	if err != nil {
		return nil, err
	}
	return &totals, nil
}

// InsertMovement appends a cash entry. The unique payment_id column makes
// the payment listener idempotent: a replayed event violates it.
func (r *Repository) InsertMovement(ctx context.Context, m *Movement) error {
	m.ID = uuid.New().String()
	err := r.db.GetContext(ctx, m, `
		INSERT INTO cash_movements (id, tenant_id, session_id, movement_type, amount,
		                            payment_id, reference, performed_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, tenant_id, session_id, movement_type, amount, payment_id,
		          reference, performed_by, created_at`,
		m.ID, m.TenantID, m.SessionID, m.MovementType, m.Amount,
		m.PaymentID, m.Reference, m.PerformedBy)
	if err != nil {
		return database.MapPQError(err)
	}
	return nil
}

// ListMovements returns a session's entries, oldest first.
func (r *Repository) ListMovements(ctx context.Context, tenantID, sessionID string) ([]Movement, error) {
	movements := []Movement{}
	err := r.db.SelectContext(ctx, &movements, `
		SELECT id, tenant_id, session_id, movement_type, amount, payment_id,
		       reference, performed_by, created_at
		FROM cash_movements WHERE tenant_id = $1 AND session_id = $2
		ORDER BY created_at`,
		tenantID, sessionID)
	return movements, err
}

// InsertClosing writes a closing report. Reports are never updated.
func (r *Repository) InsertClosing(ctx context.Context, c *Closing) error {
	c.ID = uuid.New().String()
	err := r.db.GetContext(ctx, c, `
		INSERT INTO cash_closings (id, tenant_id, site_id, register_id, closing_type,
		                           period_start, period_end, total_sales, total_refunds,
		                           total_variance, session_count, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, tenant_id, site_id, register_id, closing_type, period_start,
		          period_end, total_sales, total_refunds, total_variance,
		          session_count, created_by, created_at`,
		c.ID, c.TenantID, c.SiteID, c.RegisterID, c.ClosingType,
		c.PeriodStart, c.PeriodEnd, c.TotalSales, c.TotalRefunds,
		c.TotalVariance, c.SessionCount, c.CreatedBy)
	if err != nil {
		return database.MapPQError(err)
	}
	return nil
}

// ListClosings returns a tenant's closing reports, newest first.
func (r *Repository) ListClosings(ctx context.Context, tenantID, closingType string) ([]Closing, error) {
	closings := []Closing{}
	err := r.db.SelectContext(ctx, &closings, `
		SELECT id, tenant_id, site_id, register_id, closing_type, period_start,
		       period_end, total_sales, total_refunds, total_variance,
		       session_count, created_by, created_at
		FROM cash_closings
		WHERE tenant_id = $1 AND ($2 = '' OR closing_type = $2)
		ORDER BY created_at DESC`,
		tenantID, closingType)
	return closings, err
}

// GetClosing loads one closing report.
func (r *Repository) GetClosing(ctx context.Context, tenantID, closingID string) (*Closing, error) {
	var closing Closing
	err := r.db.GetContext(ctx, &closing, `
		SELECT id, tenant_id, site_id, register_id, closing_type, period_start,
		       period_end, total_sales, total_refunds, total_variance,
		       session_count, created_by, created_at
		FROM cash_closings WHERE tenant_id = $1 AND id = $2`,
		tenantID, closingID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("closing")
	}
	if err != nil {
		return nil, err
	}
	return &closing, nil
}
