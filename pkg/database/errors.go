package database

import (
	"strings"

	"github.com/lib/pq"

	"github.com/mesapos/mesa-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful
// messages. Errors that are not pq errors pass through unchanged.
func MapPQError(err error) error {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return err
	}

	switch pqErr.Code {
	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return errors.ValidationMsg("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	// Check constraint violation (23514)
	case "23514":
		return errors.ValidationMsg("data validation failed: " + pqErr.Constraint)

	default:
		return err
	}
}

// formatConstraintMessage creates a user-friendly message for unique
// constraint violations on the well-known business indexes.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "idempotency_key"):
		return "a payment with this idempotency key already exists"
	case strings.Contains(constraint, "dedupe_key"):
		return "a print job with this dedupe key already exists"
	case strings.Contains(constraint, "open_session"):
		return "register already has an open session"
	case strings.Contains(constraint, "payment_id"):
		return "a movement for this payment is already recorded"
	case strings.Contains(constraint, "document_number"):
		return "fiscal document number already issued"
	case strings.Contains(constraint, "table_number"):
		return "a table with this number already exists at this site"
	default:
		return "a record with these values already exists"
	}
}
