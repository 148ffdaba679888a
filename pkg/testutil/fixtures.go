package testutil

import (
	"context"

	"github.com/google/uuid"

	"github.com/mesapos/mesa-backend/pkg/tenant"
)

// Well-known fixture ids reused across suites.
var (
	TenantID = uuid.New().String()
	SiteID   = uuid.New().String()
	UserID   = uuid.New().String()
)

// TenantContext returns a context carrying the standard test principal.
func TenantContext() context.Context {
	return tenant.WithContext(context.Background(), tenant.Principal{
		UserID:   UserID,
		TenantID: TenantID,
		Role:     "MANAGER",
	})
}

// TenantContextFor returns a context carrying the given principal parts.
func TenantContextFor(tenantID, userID, role string) context.Context {
	return tenant.WithContext(context.Background(), tenant.Principal{
		UserID:   userID,
		TenantID: tenantID,
		Role:     role,
	})
}
