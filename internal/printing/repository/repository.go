// Package repository stores printers, category routes and print jobs.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/mesapos/mesa-backend/pkg/database"
	"github.com/mesapos/mesa-backend/pkg/errors"
)

// Printer is a physical or logical print destination at a site.
type Printer struct {
	ID                  string    `db:"id" json:"id"`
	TenantID            string    `db:"tenant_id" json:"tenant_id"`
	SiteID              string    `db:"site_id" json:"site_id"`
	Name                string    `db:"name" json:"name"`
	Status              string    `db:"status" json:"status"`
	RedirectToPrinterID *string   `db:"redirect_to_printer_id" json:"redirect_to_printer_id,omitempty"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// Route binds an item category to a printer at a site.
type Route struct {
	ID        string `db:"id" json:"id"`
	TenantID  string `db:"tenant_id" json:"tenant_id"`
	SiteID    string `db:"site_id" json:"site_id"`
	Category  string `db:"category" json:"category"`
	PrinterID string `db:"printer_id" json:"printer_id"`
}

// Job is one rendered kitchen slip for one printer.
type Job struct {
	ID        string     `db:"id" json:"id"`
	TenantID  string     `db:"tenant_id" json:"tenant_id"`
	SiteID    string     `db:"site_id" json:"site_id"`
	OrderID   string     `db:"order_id" json:"order_id"`
	LineID    string     `db:"line_id" json:"line_id"`
	PrinterID string     `db:"printer_id" json:"printer_id"`
	DedupeKey string     `db:"dedupe_key" json:"dedupe_key"`
	Status    string     `db:"status" json:"status"`
	Content   string     `db:"content" json:"content"`
	Attempts  int        `db:"attempts" json:"attempts"`
	LastError *string    `db:"last_error" json:"last_error,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	PrintedAt *time.Time `db:"printed_at" json:"printed_at,omitempty"`
}

const printerColumns = `id, tenant_id, site_id, name, status, redirect_to_printer_id, created_at, updated_at`

const jobColumns = `id, tenant_id, site_id, order_id, line_id, printer_id, dedupe_key,
	status, content, attempts, last_error, created_at, printed_at`

// Repository provides printing storage.
type Repository struct {
	db *database.DB
}

// New creates a printing repository.
func New(db *database.DB) *Repository {
	return &Repository{db: db}
}

// CreatePrinter adds a printer.
func (r *Repository) CreatePrinter(ctx context.Context, p *Printer) error {
	p.ID = uuid.New().String()
	err := r.db.GetContext(ctx, p, `
		INSERT INTO printers (id, tenant_id, site_id, name, status, redirect_to_printer_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+printerColumns,
		p.ID, p.TenantID, p.SiteID, p.Name, p.Status, p.RedirectToPrinterID)
	if err != nil {
		return database.MapPQError(err)
	}
	return nil
}

// GetPrinter loads one printer.
func (r *Repository) GetPrinter(ctx context.Context, tenantID, printerID string) (*Printer, error) {
	var p Printer
	err := r.db.GetContext(ctx, &p, `
		SELECT `+printerColumns+`
		FROM printers WHERE tenant_id = $1 AND id = $2`,
		tenantID, printerID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("printer")
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPrinters returns a site's printers.
func (r *Repository) ListPrinters(ctx context.Context, tenantID, siteID string) ([]Printer, error) {
	printers := []Printer{}
	err := r.db.SelectContext(ctx, &printers, `
		SELECT `+printerColumns+`
		FROM printers WHERE tenant_id = $1 AND site_id = $2
		ORDER BY name`,
		tenantID, siteID)
	return printers, err
}

// UpdatePrinterStatus writes a printer's status and redirect target.
func (r *Repository) UpdatePrinterStatus(ctx context.Context, tenantID, printerID, status string, redirectTo *string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE printers
		SET status = $3, redirect_to_printer_id = $4, updated_at = now()
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, printerID, status, redirectTo)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("printer")
	}
	return nil
}

// UpsertRoute binds a category to a printer, replacing any existing
// binding for that (site, category).
func (r *Repository) UpsertRoute(ctx context.Context, route *Route) error {
	route.ID = uuid.New().String()
	err := r.db.GetContext(ctx, route, `
		INSERT INTO printer_routes (id, tenant_id, site_id, category, printer_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, site_id, category)
		DO UPDATE SET printer_id = EXCLUDED.printer_id
		RETURNING id, tenant_id, site_id, category, printer_id`,
		route.ID, route.TenantID, route.SiteID, route.Category, route.PrinterID)
	if err != nil {
		return database.MapPQError(err)
	}
	return nil
}

// FindRoute returns the printer bound to a category at a site, or nil
// when the category has no route.
func (r *Repository) FindRoute(ctx context.Context, tenantID, siteID, category string) (*Route, error) {
	var route Route
	err := r.db.GetContext(ctx, &route, `
		SELECT id, tenant_id, site_id, category, printer_id
		FROM printer_routes
		WHERE tenant_id = $1 AND site_id = $2 AND category = $3`,
		tenantID, siteID, category)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &route, nil
}

// ListRoutes returns a site's routing table.
func (r *Repository) ListRoutes(ctx context.Context, tenantID, siteID string) ([]Route, error) {
	routes := []Route{}
	err := r.db.SelectContext(ctx, &routes, `
		SELECT id, tenant_id, site_id, category, printer_id
		FROM printer_routes WHERE tenant_id = $1 AND site_id = $2
		ORDER BY category`,
		tenantID, siteID)
	return routes, err
}

// InsertJob writes a print job. A duplicate dedupe key surfaces as
// CONFLICT via the unique index.
func (r *Repository) InsertJob(ctx context.Context, j *Job) error {
	j.ID = uuid.New().String()
	err := r.db.GetContext(ctx, j, `
		INSERT INTO print_jobs (id, tenant_id, site_id, order_id, line_id, printer_id,
		                        dedupe_key, status, content)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+jobColumns,
		j.ID, j.TenantID, j.SiteID, j.OrderID, j.LineID, j.PrinterID,
		j.DedupeKey, j.Status, j.Content)
	if err != nil {
		return database.MapPQError(err)
	}
	return nil
}

// GetJob loads one job.
func (r *Repository) GetJob(ctx context.Context, tenantID, jobID string) (*Job, error) {
	var j Job
	err := r.db.GetContext(ctx, &j, `
		SELECT `+jobColumns+`
		FROM print_jobs WHERE tenant_id = $1 AND id = $2`,
		tenantID, jobID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("print job")
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// ListJobsForOrder returns an order's jobs, oldest first.
func (r *Repository) ListJobsForOrder(ctx context.Context, tenantID, orderID string) ([]Job, error) {
	jobs := []Job{}
	err := r.db.SelectContext(ctx, &jobs, `
		SELECT `+jobColumns+`
		FROM print_jobs WHERE tenant_id = $1 AND order_id = $2
		ORDER BY created_at`,
		tenantID, orderID)
	return jobs, err
}

// ListPendingJobs returns up to limit PENDING jobs across the tenant's
// sites, oldest first. The dispatcher sweep feeds on this.
func (r *Repository) ListPendingJobs(ctx context.Context, limit int) ([]Job, error) {
	jobs := []Job{}
	err := r.db.SelectContext(ctx, &jobs, `
		SELECT `+jobColumns+`
		FROM print_jobs WHERE status = 'PENDING'
		ORDER BY created_at LIMIT $1`,
		limit)
	return jobs, err
}

// MarkJob moves a job out of PENDING with the attempt outcome.
func (r *Repository) MarkJob(ctx context.Context, tenantID, jobID, status string, lastError *string, printedAt *time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE print_jobs
		SET status = $3, attempts = attempts + 1, last_error = $4, printed_at = $5
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, jobID, status, lastError, printedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("print job")
	}
	return nil
}
