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

// Family is a top-level menu grouping.
type Family struct {
	ID       string `db:"id" json:"id"`
	TenantID string `db:"tenant_id" json:"tenant_id"`
	Name     string `db:"name" json:"name"`
}

// Subfamily is a second-level menu grouping under a family.
type Subfamily struct {
	ID       string `db:"id" json:"id"`
	TenantID string `db:"tenant_id" json:"tenant_id"`
	FamilyID string `db:"family_id" json:"family_id"`
	Name     string `db:"name" json:"name"`
}

// Item is a sellable product. Category drives kitchen print routing.
type Item struct {
	ID          string          `db:"id" json:"id"`
	TenantID    string          `db:"tenant_id" json:"tenant_id"`
	SubfamilyID string          `db:"subfamily_id" json:"subfamily_id"`
	Name        string          `db:"name" json:"name"`
	Category    string          `db:"category" json:"category"`
	BasePrice   decimal.Decimal `db:"base_price" json:"base_price"`
	Available   bool            `db:"available" json:"available"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Repository provides menu storage.
type Repository struct {
	db *database.DB
}

// New creates a catalog repository.
func New(db *database.DB) *Repository {
	return &Repository{db: db}
}

// CreateFamily inserts a family.
func (r *Repository) CreateFamily(ctx context.Context, tenantID, name string) (*Family, error) {
	f := &Family{ID: uuid.New().String(), TenantID: tenantID, Name: name}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO families (id, tenant_id, name) VALUES ($1, $2, $3)`,
		f.ID, f.TenantID, f.Name)
	if err != nil {
		return nil, database.MapPQError(err)
	}
	return f, nil
}

// ListFamilies returns the tenant's families.
func (r *Repository) ListFamilies(ctx context.Context, tenantID string) ([]Family, error) {
	families := []Family{}
	err := r.db.SelectContext(ctx, &families, `
		SELECT id, tenant_id, name FROM families
		WHERE tenant_id = $1 ORDER BY name`, tenantID)
	return families, err
}

// CreateSubfamily inserts a subfamily under an existing family.
func (r *Repository) CreateSubfamily(ctx context.Context, tenantID, familyID, name string) (*Subfamily, error) {
	sf := &Subfamily{ID: uuid.New().String(), TenantID: tenantID, FamilyID: familyID, Name: name}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subfamilies (id, tenant_id, family_id, name)
		SELECT $1, $2, $3, $4
		WHERE EXISTS (SELECT 1 FROM families WHERE tenant_id = $2 AND id = $3)`,
		sf.ID, sf.TenantID, sf.FamilyID, sf.Name)
	if err != nil {
		return nil, database.MapPQError(err)
	}
	return sf, nil
}

// ListSubfamilies returns the subfamilies of a family.
func (r *Repository) ListSubfamilies(ctx context.Context, tenantID, familyID string) ([]Subfamily, error) {
	subfamilies := []Subfamily{}
	err := r.db.SelectContext(ctx, &subfamilies, `
		SELECT id, tenant_id, family_id, name FROM subfamilies
		WHERE tenant_id = $1 AND family_id = $2 ORDER BY name`,
		tenantID, familyID)
	return subfamilies, err
}

// CreateItem inserts an item.
func (r *Repository) CreateItem(ctx context.Context, item *Item) error {
	item.ID = uuid.New().String()
	err := r.db.GetContext(ctx, item, `
		INSERT INTO items (id, tenant_id, subfamily_id, name, category, base_price, available)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, tenant_id, subfamily_id, name, category, base_price, available, created_at, updated_at`,
		item.ID, item.TenantID, item.SubfamilyID, item.Name, item.Category, item.BasePrice, item.Available)
	if err != nil {
		return database.MapPQError(err)
	}
	return nil
}

// GetItem loads an item scoped to the tenant.
func (r *Repository) GetItem(ctx context.Context, tenantID, itemID string) (*Item, error) {
	var item Item
	err := r.db.GetContext(ctx, &item, `
		SELECT id, tenant_id, subfamily_id, name, category, base_price, available, created_at, updated_at
		FROM items WHERE tenant_id = $1 AND id = $2`,
		tenantID, itemID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("item")
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListItems returns the tenant's items, optionally filtered to available.
func (r *Repository) ListItems(ctx context.Context, tenantID string, availableOnly bool) ([]Item, error) {
	items := []Item{}
	query := `
		SELECT id, tenant_id, subfamily_id, name, category, base_price, available, created_at, updated_at
		FROM items WHERE tenant_id = $1`
	if availableOnly {
		query += ` AND available`
	}
	query += ` ORDER BY name`
	err := r.db.SelectContext(ctx, &items, query, tenantID)
	return items, err
}

// UpdateItem updates the mutable item fields.
func (r *Repository) UpdateItem(ctx context.Context, item *Item) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE items
		SET name = $3, category = $4, base_price = $5, available = $6, updated_at = now()
		WHERE tenant_id = $1 AND id = $2`,
		item.TenantID, item.ID, item.Name, item.Category, item.BasePrice, item.Available)
	if err != nil {
		return database.MapPQError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("item")
	}
	return nil
}

// SetItemAvailability toggles the 86'd flag.
func (r *Repository) SetItemAvailability(ctx context.Context, tenantID, itemID string, available bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE items SET available = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, itemID, available)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("item")
	}
	return nil
}
