package database

import (
	"context"
	"fmt"

	"github.com/mesapos/mesa-backend/pkg/tenant"
)

// WithTenant executes fn within a transaction scoped to the tenant in ctx.
// The application-level tenant predicate on every query remains
// authoritative; when EnforceRLS is configured the transaction additionally
// sets the session variable Postgres row-level security policies check:
//
//	USING (tenant_id = current_setting('app.current_tenant')::uuid)
//
// SET LOCAL is transaction-scoped, so pooled connections hand back clean
// state on commit or rollback.
func (db *DB) WithTenant(ctx context.Context, fn func(context.Context) error) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	return db.Transaction(ctx, func(ctx context.Context) error {
		if db.enforceRLS {
			// SET LOCAL does not support bind parameters. tenantID is a
			// UUID extracted from a verified token, not raw user input.
			if _, err := db.ExecContext(ctx, fmt.Sprintf("SET LOCAL app.current_tenant = '%s'", tenantID)); err != nil {
				return fmt.Errorf("failed to set app.current_tenant: %w", err)
			}
		}
		return fn(ctx)
	})
}

// AdvisoryLock takes a transaction-scoped exclusive advisory lock keyed by
// the given string. Released automatically at commit or rollback. Used to
// serialize fiscal document numbering per (tenant, site, type) series.
func (db *DB) AdvisoryLock(ctx context.Context, key string) error {
	if _, err := db.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key); err != nil {
		return fmt.Errorf("failed to acquire advisory lock %q: %w", key, err)
	}
	return nil
}
