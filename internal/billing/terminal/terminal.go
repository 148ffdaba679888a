// Package terminal abstracts the card payment terminal.
package terminal

import (
	"context"

	"github.com/shopspring/decimal"
)

// Charge outcomes.
const (
	OutcomeApproved = "APPROVED"
	OutcomeDeclined = "DECLINED"
	OutcomeTimeout  = "TIMEOUT"
	OutcomeError    = "ERROR"
)

// ChargeResult is the terminal's answer to a charge attempt.
type ChargeResult struct {
	Outcome       string
	TransactionID string
	Reason        string
}

// Terminal is the external card terminal. TIMEOUT and ERROR outcomes are
// retryable; DECLINED is final.
type Terminal interface {
	Charge(ctx context.Context, amount decimal.Decimal, terminalID string) (*ChargeResult, error)
	Refund(ctx context.Context, transactionID string, amount decimal.Decimal) error
}
