package tenant

import (
	"context"
	"errors"
)

// contextKey is a private type for context keys to prevent collisions
type contextKey string

const (
	tenantIDKey contextKey = "tenant_id"
	userIDKey   contextKey = "user_id"
	roleKey     contextKey = "role"
)

var (
	// ErrNoTenantInContext is returned when tenant context is missing
	ErrNoTenantInContext = errors.New("no tenant in context")
)

// Principal identifies the authenticated caller. TenantID is empty only for
// super-admins, whose user record has no tenant.
type Principal struct {
	UserID   string
	TenantID string
	Role     string
}

// WithContext installs the full principal. Called by middleware after
// authentication; every repository read downstream is predicated on the
// tenant id set here.
func WithContext(ctx context.Context, p Principal) context.Context {
	ctx = context.WithValue(ctx, tenantIDKey, p.TenantID)
	ctx = context.WithValue(ctx, userIDKey, p.UserID)
	ctx = context.WithValue(ctx, roleKey, p.Role)
	return ctx
}

// WithTenantID adds only the tenant ID to the context. Used by event
// consumers that reconstruct tenant context from event payloads.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// TenantID extracts the tenant ID from the context.
// Returns ErrNoTenantInContext if it is not set.
func TenantID(ctx context.Context) (string, error) {
	id, ok := ctx.Value(tenantIDKey).(string)
	if !ok || id == "" {
		return "", ErrNoTenantInContext
	}
	return id, nil
}

// UserID extracts the authenticated user ID, or "" when absent.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// Role extracts the authenticated user role, or "" when absent.
func Role(ctx context.Context) string {
	role, _ := ctx.Value(roleKey).(string)
	return role
}

// FromContext rebuilds the principal from the context. The second
// return is false when no authenticated principal was installed, as in
// event consumers that carry only a tenant id.
func FromContext(ctx context.Context) (Principal, bool) {
	_, authenticated := ctx.Value(userIDKey).(string)
	tenantID, _ := ctx.Value(tenantIDKey).(string)
	return Principal{
		UserID:   UserID(ctx),
		TenantID: tenantID,
		Role:     Role(ctx),
	}, authenticated
}
