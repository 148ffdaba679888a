package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mesapos/mesa-backend/pkg/database"
)

// AuditEntry is one row in the audit trail. Exports are regulated
// operations, every run leaves one.
type AuditEntry struct {
	ID         string    `db:"id" json:"id"`
	TenantID   string    `db:"tenant_id" json:"tenant_id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	Detail     string    `db:"detail" json:"detail"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Repository stores audit entries.
type Repository struct {
	db *database.DB
}

// New creates an audit repository.
func New(db *database.DB) *Repository {
	return &Repository{db: db}
}

// Insert appends an audit entry.
func (r *Repository) Insert(ctx context.Context, e *AuditEntry) error {
	e.ID = uuid.New().String()
	err := r.db.GetContext(ctx, e, `
		INSERT INTO audit_logs (id, tenant_id, user_id, action, resource, resource_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, tenant_id, user_id, action, resource, resource_id, detail, created_at`,
		e.ID, e.TenantID, e.UserID, e.Action, e.Resource, e.ResourceID, e.Detail)
	if err != nil {
		return database.MapPQError(err)
	}
	return nil
}

// ListForTenant returns a tenant's audit trail, newest first.
func (r *Repository) ListForTenant(ctx context.Context, tenantID string, limit int) ([]AuditEntry, error) {
	entries := []AuditEntry{}
	err := r.db.SelectContext(ctx, &entries, `
		SELECT id, tenant_id, user_id, action, resource, resource_id, detail, created_at
		FROM audit_logs WHERE tenant_id = $1
		ORDER BY created_at DESC LIMIT $2`,
		tenantID, limit)
	return entries, err
}
