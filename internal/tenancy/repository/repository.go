package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/mesapos/mesa-backend/pkg/database"
	"github.com/mesapos/mesa-backend/pkg/errors"
)

// Tenant is a restaurant business account.
type Tenant struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Plan      string    `db:"plan" json:"plan"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Site is a physical location of a tenant.
type Site struct {
	ID        string    `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	Name      string    `db:"name" json:"name"`
	Timezone  string    `db:"timezone" json:"timezone"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// StaffUser is a user row without the credential hash, for listings.
type StaffUser struct {
	ID        string    `db:"id" json:"id"`
	TenantID  *string   `db:"tenant_id" json:"tenant_id,omitempty"`
	Username  string    `db:"username" json:"username"`
	Role      string    `db:"role" json:"role"`
	Status    string    `db:"status" json:"status"`
	Version   int64     `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Repository provides tenant, site and staff storage.
type Repository struct {
	db *database.DB
}

// New creates a tenancy repository.
func New(db *database.DB) *Repository {
	return &Repository{db: db}
}

// CreateTenant inserts a new tenant.
func (r *Repository) CreateTenant(ctx context.Context, name, plan string) (*Tenant, error) {
	tenant := &Tenant{
		ID:     uuid.New().String(),
		Name:   name,
		Plan:   plan,
		Status: "ACTIVE",
	}
	err := r.db.GetContext(ctx, tenant, `
		INSERT INTO tenants (id, name, plan, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, plan, status, created_at, updated_at`,
		tenant.ID, tenant.Name, tenant.Plan, tenant.Status)
	if err != nil {
		return nil, database.MapPQError(err)
	}
	return tenant, nil
}

// GetTenant loads a tenant by id.
func (r *Repository) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	var tenant Tenant
	err := r.db.GetContext(ctx, &tenant, `
		SELECT id, name, plan, status, created_at, updated_at
		FROM tenants WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("tenant")
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// ListTenants returns all tenants, newest first.
func (r *Repository) ListTenants(ctx context.Context) ([]Tenant, error) {
	tenants := []Tenant{}
	err := r.db.SelectContext(ctx, &tenants, `
		SELECT id, name, plan, status, created_at, updated_at
		FROM tenants ORDER BY created_at DESC`)
	return tenants, err
}

// SetTenantStatus transitions a tenant between ACTIVE, SUSPENDED and CANCELLED.
func (r *Repository) SetTenantStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tenants SET status = $2, updated_at = now() WHERE id = $1`,
		id, status)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("tenant")
	}
	return nil
}

// CreateSite inserts a new site for a tenant.
func (r *Repository) CreateSite(ctx context.Context, tenantID, name, timezone string) (*Site, error) {
	site := &Site{
		ID:       uuid.New().String(),
		TenantID: tenantID,
		Name:     name,
		Timezone: timezone,
	}
	err := r.db.GetContext(ctx, site, `
		INSERT INTO sites (id, tenant_id, name, timezone)
		VALUES ($1, $2, $3, $4)
		RETURNING id, tenant_id, name, timezone, created_at`,
		site.ID, site.TenantID, site.Name, site.Timezone)
	if err != nil {
		return nil, database.MapPQError(err)
	}
	return site, nil
}

// GetSite loads a site, scoped to the tenant.
func (r *Repository) GetSite(ctx context.Context, tenantID, siteID string) (*Site, error) {
	var site Site
	err := r.db.GetContext(ctx, &site, `
		SELECT id, tenant_id, name, timezone, created_at
		FROM sites WHERE tenant_id = $1 AND id = $2`,
		tenantID, siteID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("site")
	}
	if err != nil {
		return nil, err
	}
	return &site, nil
}

// ListSites returns the sites of a tenant.
func (r *Repository) ListSites(ctx context.Context, tenantID string) ([]Site, error) {
	sites := []Site{}
	err := r.db.SelectContext(ctx, &sites, `
		SELECT id, tenant_id, name, timezone, created_at
		FROM sites WHERE tenant_id = $1 ORDER BY name`,
		tenantID)
	return sites, err
}

// CreateUser inserts a staff account. tenantID may be nil for super-admins.
func (r *Repository) CreateUser(ctx context.Context, tenantID *string, username, passwordHash, role string) (*StaffUser, error) {
	user := &StaffUser{
		ID:       uuid.New().String(),
		TenantID: tenantID,
		Username: username,
		Role:     role,
		Status:   "ACTIVE",
	}
	err := r.db.GetContext(ctx, user, `
		INSERT INTO users (id, tenant_id, username, password_hash, role, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, tenant_id, username, role, status, version, created_at, updated_at`,
		user.ID, tenantID, username, passwordHash, role, user.Status)
	if err != nil {
		return nil, database.MapPQError(err)
	}
	return user, nil
}

// ListUsers returns the staff of a tenant.
func (r *Repository) ListUsers(ctx context.Context, tenantID string) ([]StaffUser, error) {
	users := []StaffUser{}
	err := r.db.SelectContext(ctx, &users, `
		SELECT id, tenant_id, username, role, status, version, created_at, updated_at
		FROM users WHERE tenant_id = $1 ORDER BY username`,
		tenantID)
	return users, err
}

// UpdateUserStatus flips a staff account between ACTIVE and INACTIVE.
// The write is predicated on the caller's version.
func (r *Repository) UpdateUserStatus(ctx context.Context, tenantID, userID, status string, version int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET status = $3, version = version + 1, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND version = $4`,
		tenantID, userID, status, version)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Conflict("user was modified by another request")
	}
	return nil
}
