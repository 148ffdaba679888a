package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/mesapos/mesa-backend/pkg/database"
	"github.com/mesapos/mesa-backend/pkg/errors"
)

// Table is a physical dining table at a site.
type Table struct {
	ID          string    `db:"id" json:"id"`
	TenantID    string    `db:"tenant_id" json:"tenant_id"`
	SiteID      string    `db:"site_id" json:"site_id"`
	TableNumber int       `db:"table_number" json:"table_number"`
	Status      string    `db:"status" json:"status"`
	Version     int64     `db:"version" json:"version"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// BlacklistEntry bans a table or a card prefix/last-four from service.
type BlacklistEntry struct {
	ID          string    `db:"id" json:"id"`
	TenantID    string    `db:"tenant_id" json:"tenant_id"`
	EntityType  string    `db:"entity_type" json:"entity_type"`
	EntityValue string    `db:"entity_value" json:"entity_value"`
	Reason      *string   `db:"reason" json:"reason,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Repository provides floor storage.
type Repository struct {
	db *database.DB
}

// New creates a dining room repository.
func New(db *database.DB) *Repository {
	return &Repository{db: db}
}

// CreateTable inserts a table.
func (r *Repository) CreateTable(ctx context.Context, tenantID, siteID string, number int) (*Table, error) {
	table := &Table{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		SiteID:      siteID,
		TableNumber: number,
	}
	err := r.db.GetContext(ctx, table, `
		INSERT INTO dining_tables (id, tenant_id, site_id, table_number)
		VALUES ($1, $2, $3, $4)
		RETURNING id, tenant_id, site_id, table_number, status, version, created_at, updated_at`,
		table.ID, table.TenantID, table.SiteID, table.TableNumber)
	if err != nil {
		return nil, database.MapPQError(err)
	}
	return table, nil
}

// GetTable loads a table scoped to the tenant.
func (r *Repository) GetTable(ctx context.Context, tenantID, tableID string) (*Table, error) {
	var table Table
	err := r.db.GetContext(ctx, &table, `
		SELECT id, tenant_id, site_id, table_number, status, version, created_at, updated_at
		FROM dining_tables WHERE tenant_id = $1 AND id = $2`,
		tenantID, tableID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("table")
	}
	if err != nil {
		return nil, err
	}
	return &table, nil
}

// ListTables returns the tables of a site ordered by number.
func (r *Repository) ListTables(ctx context.Context, tenantID, siteID string) ([]Table, error) {
	tables := []Table{}
	err := r.db.SelectContext(ctx, &tables, `
		SELECT id, tenant_id, site_id, table_number, status, version, created_at, updated_at
		FROM dining_tables WHERE tenant_id = $1 AND site_id = $2
		ORDER BY table_number`,
		tenantID, siteID)
	return tables, err
}

// UpdateTableStatus moves a table to a new status. The write is predicated
// on the version the caller read; zero rows affected means a concurrent
// writer won.
func (r *Repository) UpdateTableStatus(ctx context.Context, tenantID, tableID, status string, version int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE dining_tables
		SET status = $3, version = version + 1, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND version = $4`,
		tenantID, tableID, status, version)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Conflict("table was modified by another request")
	}
	return nil
}

// CountOpenOrdersForTable returns the number of non-terminal orders seated
// at a table. Closing a table requires zero.
func (r *Repository) CountOpenOrdersForTable(ctx context.Context, tenantID, tableID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM orders
		WHERE tenant_id = $1 AND table_id = $2 AND status NOT IN ('CLOSED', 'VOIDED')`,
		tenantID, tableID)
	return count, err
}

// AddBlacklistEntry bans a table number or card fragment.
func (r *Repository) AddBlacklistEntry(ctx context.Context, entry *BlacklistEntry) error {
	entry.ID = uuid.New().String()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO blacklist_entries (id, tenant_id, entity_type, entity_value, reason)
		VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.TenantID, entry.EntityType, entry.EntityValue, entry.Reason)
	if err != nil {
		return database.MapPQError(err)
	}
	return nil
}

// RemoveBlacklistEntry lifts a ban.
func (r *Repository) RemoveBlacklistEntry(ctx context.Context, tenantID, entryID string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM blacklist_entries WHERE tenant_id = $1 AND id = $2`,
		tenantID, entryID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("blacklist entry")
	}
	return nil
}

// ListBlacklist returns all bans of the tenant.
func (r *Repository) ListBlacklist(ctx context.Context, tenantID string) ([]BlacklistEntry, error) {
	entries := []BlacklistEntry{}
	err := r.db.SelectContext(ctx, &entries, `
		SELECT id, tenant_id, entity_type, entity_value, reason, created_at
		FROM blacklist_entries WHERE tenant_id = $1
		ORDER BY created_at DESC`,
		tenantID)
	return entries, err
}

// IsBlacklisted reports whether a value of the given type is banned.
func (r *Repository) IsBlacklisted(ctx context.Context, tenantID, entityType, value string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM blacklist_entries
			WHERE tenant_id = $1 AND entity_type = $2 AND entity_value = $3
		)`,
		tenantID, entityType, value)
	return exists, err
}
