package authz_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesapos/mesa-backend/pkg/authz"
	"github.com/mesapos/mesa-backend/pkg/errors"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		name   string
		role   string
		status string
		perm   authz.Permission
		want   bool
	}{
		{"manager can void after subtotal", authz.RoleManager, authz.StatusActive, authz.PermVoidAfterSubtotal, true},
		{"manager can close cash", authz.RoleManager, authz.StatusActive, authz.PermCloseCash, true},
		{"cashier can close cash", authz.RoleCashier, authz.StatusActive, authz.PermCloseCash, true},
		{"cashier cannot void after subtotal", authz.RoleCashier, authz.StatusActive, authz.PermVoidAfterSubtotal, false},
		{"cashier cannot redirect printer", authz.RoleCashier, authz.StatusActive, authz.PermRedirectPrinter, false},
		{"waiter has no sensitive permissions", authz.RoleWaiter, authz.StatusActive, authz.PermApplyDiscount, false},
		{"kitchen staff has no sensitive permissions", authz.RoleKitchenStaff, authz.StatusActive, authz.PermReprintDocument, false},
		{"admin holds everything", authz.RoleAdmin, authz.StatusActive, authz.PermVoidInvoice, true},
		{"super admin holds everything", authz.RoleSuperAdmin, authz.StatusActive, authz.PermRedirectPrinter, true},
		{"inactive admin always fails", authz.RoleAdmin, authz.StatusInactive, authz.PermApplyDiscount, false},
		{"unknown role has nothing", "INTERN", authz.StatusActive, authz.PermApplyDiscount, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actor := authz.Actor{UserID: "u1", Role: tt.role, Status: tt.status}
			assert.Equal(t, tt.want, authz.HasPermission(actor, tt.perm))
		})
	}
}

func TestRequirePermission(t *testing.T) {
	actor := authz.Actor{UserID: "u1", Role: authz.RoleWaiter, Status: authz.StatusActive}

	err := authz.RequirePermission(actor, authz.PermCloseCash)
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "AUTHORIZATION", appErr.Code)

	manager := authz.Actor{UserID: "u2", Role: authz.RoleManager, Status: authz.StatusActive}
	assert.NoError(t, authz.RequirePermission(manager, authz.PermCloseCash))
}
