package repository

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/mesapos/mesa-backend/pkg/database"
	"github.com/mesapos/mesa-backend/pkg/errors"
)

// User is a credential row. TenantID is nil for super-admin accounts.
type User struct {
	ID           string    `db:"id"`
	TenantID     *string   `db:"tenant_id"`
	Username     string    `db:"username"`
	PasswordHash string    `db:"password_hash"`
	Role         string    `db:"role"`
	Status       string    `db:"status"`
	Version      int64     `db:"version"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// RefreshToken is a stored refresh token. Only the SHA-256 hash of the
// token string is persisted.
type RefreshToken struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	TokenHash string    `db:"token_hash"`
	ExpiresAt time.Time `db:"expires_at"`
	Revoked   bool      `db:"revoked"`
	CreatedAt time.Time `db:"created_at"`
}

// Repository provides credential and refresh token storage.
type Repository struct {
	db *database.DB
}

// New creates an auth repository.
func New(db *database.DB) *Repository {
	return &Repository{db: db}
}

// HashToken returns the hex SHA-256 of a refresh token string.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// FindByUsername looks up a tenant-scoped user by username.
func (r *Repository) FindByUsername(ctx context.Context, tenantID, username string) (*User, error) {
	var user User
	err := r.db.GetContext(ctx, &user, `
		SELECT id, tenant_id, username, password_hash, role, status, version, created_at, updated_at
		FROM users
		WHERE tenant_id = $1 AND username = $2`,
		tenantID, username)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("user")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindSuperAdminByUsername looks up a global (tenant-less) user.
func (r *Repository) FindSuperAdminByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	err := r.db.GetContext(ctx, &user, `
		SELECT id, tenant_id, username, password_hash, role, status, version, created_at, updated_at
		FROM users
		WHERE tenant_id IS NULL AND username = $1`,
		username)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("user")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID loads a user by primary key.
func (r *Repository) FindByID(ctx context.Context, id string) (*User, error) {
	var user User
	err := r.db.GetContext(ctx, &user, `
		SELECT id, tenant_id, username, password_hash, role, status, version, created_at, updated_at
		FROM users
		WHERE id = $1`,
		id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("user")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// StoreRefreshToken persists the hash of a newly issued refresh token.
func (r *Repository) StoreRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), userID, HashToken(token), expiresAt)
	return err
}

// GetRefreshToken loads a stored refresh token by its raw value.
func (r *Repository) GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error) {
	var rt RefreshToken
	err := r.db.GetContext(ctx, &rt, `
		SELECT id, user_id, token_hash, expires_at, revoked, created_at
		FROM refresh_tokens
		WHERE token_hash = $1`,
		HashToken(token))
	if err == sql.ErrNoRows {
		return nil, errors.Unauthenticated("unknown refresh token")
	}
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

// RevokeRefreshToken marks a stored refresh token revoked.
func (r *Repository) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE WHERE token_hash = $1`,
		HashToken(token))
	return err
}

// GetTenantStatus returns the status of a tenant (ACTIVE, SUSPENDED, CANCELLED).
func (r *Repository) GetTenantStatus(ctx context.Context, tenantID string) (string, error) {
	var status string
	err := r.db.GetContext(ctx, &status, `SELECT status FROM tenants WHERE id = $1`, tenantID)
	if err == sql.ErrNoRows {
		return "", errors.NotFound("tenant")
	}
	if err != nil {
		return "", err
	}
	return status, nil
}

// RevokeAllForUser revokes every refresh token of a user.
func (r *Repository) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1`,
		userID)
	return err
}
