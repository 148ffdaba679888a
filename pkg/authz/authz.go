// Package authz holds the static role → permission table for sensitive
// operations. Permissions are coarse capabilities keyed by operation; the
// mapping is compiled in and identical for every tenant.
package authz

import (
	"github.com/mesapos/mesa-backend/pkg/errors"
)

// Permission is a coarse capability required by a sensitive operation.
type Permission string

const (
	PermVoidAfterSubtotal Permission = "VOID_AFTER_SUBTOTAL"
	PermApplyDiscount     Permission = "APPLY_DISCOUNT"
	PermReprintDocument   Permission = "REPRINT_DOCUMENT"
	PermRedirectPrinter   Permission = "REDIRECT_PRINTER"
	PermCloseCash         Permission = "CLOSE_CASH"
	PermVoidInvoice       Permission = "VOID_INVOICE"
)

// Role names. SUPER_ADMIN users have no tenant.
const (
	RoleSuperAdmin   = "SUPER_ADMIN"
	RoleAdmin        = "ADMIN"
	RoleManager      = "MANAGER"
	RoleCashier      = "CASHIER"
	RoleWaiter       = "WAITER"
	RoleKitchenStaff = "KITCHEN_STAFF"
)

// User statuses.
const (
	StatusActive   = "ACTIVE"
	StatusInactive = "INACTIVE"
)

var allPermissions = []Permission{
	PermVoidAfterSubtotal,
	PermApplyDiscount,
	PermReprintDocument,
	PermRedirectPrinter,
	PermCloseCash,
	PermVoidInvoice,
}

var rolePermissions = map[string][]Permission{
	RoleSuperAdmin: allPermissions,
	RoleAdmin:      allPermissions,
	RoleManager:    allPermissions,
	RoleCashier: {
		PermApplyDiscount,
		PermReprintDocument,
		PermCloseCash,
	},
	RoleWaiter:       {},
	RoleKitchenStaff: {},
}

// Actor is the minimal view of a user the checker needs.
type Actor struct {
	UserID string
	Role   string
	Status string
}

// HasPermission reports whether the actor holds the permission.
// Inactive users never hold any permission.
func HasPermission(actor Actor, perm Permission) bool {
	if actor.Status != StatusActive {
		return false
	}
	for _, p := range rolePermissions[actor.Role] {
		if p == perm {
			return true
		}
	}
	return false
}

// RequirePermission returns an AUTHORIZATION error when the actor does not
// hold the permission.
func RequirePermission(actor Actor, perm Permission) error {
	if HasPermission(actor, perm) {
		return nil
	}
	return errors.Forbidden("missing permission " + string(perm))
}

// PermissionsForRole returns the permissions granted to a role.
func PermissionsForRole(role string) []Permission {
	perms := rolePermissions[role]
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}
