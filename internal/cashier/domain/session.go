// Package domain holds cash drawer arithmetic.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mesapos/mesa-backend/pkg/errors"
	"github.com/mesapos/mesa-backend/pkg/money"
)

// Session statuses.
const (
	SessionOpen   = "OPEN"
	SessionClosed = "CLOSED"
)

// Movement types. OPENING and CLOSING bracket a session; SALE and REFUND
// arrive from the payment listener; DEPOSIT and WITHDRAWAL are the only
// types staff may record by hand.
const (
	MovementOpening    = "OPENING"
	MovementSale       = "SALE"
	MovementRefund     = "REFUND"
	MovementDeposit    = "DEPOSIT"
	MovementWithdrawal = "WITHDRAWAL"
	MovementClosing    = "CLOSING"
)

// Closing scopes.
const (
	ClosingSession         = "SESSION"
	ClosingRegister        = "REGISTER"
	ClosingDay             = "DAY"
	ClosingFinancialPeriod = "FINANCIAL_PERIOD"
)

// Business-rule reasons surfaced to clients.
const (
	ReasonSessionAlreadyOpen = "SESSION_ALREADY_OPEN"
	ReasonSessionNotOpen     = "SESSION_NOT_OPEN"
	ReasonManualTypeOnly     = "MANUAL_TYPE_ONLY"
)

// MovementAmount is the minimal movement view the arithmetic needs.
type MovementAmount struct {
	Type   string
	Amount decimal.Decimal
}

// ComputeExpected derives the cash the drawer should hold: the opening
// float plus everything that came in, minus everything that went out.
func ComputeExpected(opening decimal.Decimal, movements []MovementAmount) decimal.Decimal {
	expected := opening
	for _, m := range movements {
		switch m.Type {
		case MovementSale, MovementDeposit:
			expected = expected.Add(m.Amount)
		case MovementRefund, MovementWithdrawal:
			expected = expected.Sub(m.Amount)
		}
	}
	return money.Round(expected)
}

// Variance is counted minus expected: positive means surplus, negative
// means shortage.
func Variance(expected, actual decimal.Decimal) decimal.Decimal {
	return money.Round(actual.Sub(expected))
}

// ValidateManualMovement restricts hand-recorded movements to deposits
// and withdrawals of a positive amount.
func ValidateManualMovement(movementType string, amount decimal.Decimal) error {
	switch movementType {
	case MovementDeposit, MovementWithdrawal:
	default:
		return errors.BusinessRule(ReasonManualTypeOnly, "only deposits and withdrawals can be recorded manually")
	}
	if !amount.IsPositive() {
		return errors.ValidationMsg("movement amount must be positive")
	}
	return nil
}

// ClosingSlip is the report content regenerated from a stored closing.
type ClosingSlip struct {
	ClosingType   string
	PeriodStart   time.Time
	PeriodEnd     time.Time
	TotalSales    decimal.Decimal
	TotalRefunds  decimal.Decimal
	TotalVariance decimal.Decimal
	SessionCount  int
}

// Render produces the slip the till prints on a closing reprint.
func (c ClosingSlip) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "FECHO %s\n", c.ClosingType)
	fmt.Fprintf(&b, "%s .. %s\n",
		c.PeriodStart.Format("2006-01-02 15:04"), c.PeriodEnd.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "VENDAS    %s\n", c.TotalSales.StringFixed(2))
	fmt.Fprintf(&b, "REEMBOLSOS %s\n", c.TotalRefunds.StringFixed(2))
	fmt.Fprintf(&b, "DIFERENCA %s\n", c.TotalVariance.StringFixed(2))
	fmt.Fprintf(&b, "SESSOES   %d\n", c.SessionCount)
	return b.String()
}

// ValidClosingType reports whether the scope is one of the known closing
// report scopes.
func ValidClosingType(closingType string) bool {
	switch closingType {
	case ClosingSession, ClosingRegister, ClosingDay, ClosingFinancialPeriod:
		return true
	}
	return false
}
