// Package domain holds the order state machines and total arithmetic.
package domain

import (
	"github.com/shopspring/decimal"

	"github.com/mesapos/mesa-backend/pkg/errors"
	"github.com/mesapos/mesa-backend/pkg/money"
)

// Order types.
const (
	TypeDineIn   = "DINE_IN"
	TypeDelivery = "DELIVERY"
	TypeTakeout  = "TAKEOUT"
)

// Order statuses.
const (
	OrderOpen      = "OPEN"
	OrderConfirmed = "CONFIRMED"
	OrderPaid      = "PAID"
	OrderClosed    = "CLOSED"
	OrderVoided    = "VOIDED"
)

// Line statuses.
const (
	LinePending   = "PENDING"
	LineConfirmed = "CONFIRMED"
	LineVoided    = "VOIDED"
)

// Discount types.
const (
	DiscountPercentage  = "PERCENTAGE"
	DiscountFixedAmount = "FIXED_AMOUNT"
)

// Business-rule reasons surfaced to clients.
const (
	ReasonOrderNotOpen       = "ORDER_NOT_OPEN"
	ReasonOrderNotConfirmed  = "ORDER_NOT_CONFIRMED"
	ReasonOrderNotPaid       = "ORDER_NOT_PAID"
	ReasonNoPendingLines     = "NO_PENDING_LINES"
	ReasonLineNotPending     = "LINE_NOT_PENDING"
	ReasonLineAlreadyVoided  = "LINE_ALREADY_VOIDED"
	ReasonItemUnavailable    = "ITEM_UNAVAILABLE"
	ReasonTableRequired      = "TABLE_REQUIRED"
	ReasonCustomerRequired   = "CUSTOMER_REQUIRED"
	ReasonInvalidTransition  = "INVALID_TRANSITION"
	ReasonDiscountOutOfRange = "DISCOUNT_OUT_OF_RANGE"
)

var orderTransitions = map[string]map[string]bool{
	OrderOpen:      {OrderConfirmed: true, OrderVoided: true},
	OrderConfirmed: {OrderPaid: true, OrderVoided: true},
	OrderPaid:      {OrderClosed: true},
}

var lineTransitions = map[string]map[string]bool{
	LinePending:   {LineConfirmed: true, LineVoided: true},
	LineConfirmed: {LineVoided: true},
}

// CanTransitionOrder reports whether an order may move between statuses.
func CanTransitionOrder(from, to string) bool {
	return orderTransitions[from][to]
}

// CanTransitionLine reports whether a line may move between statuses.
func CanTransitionLine(from, to string) bool {
	return lineTransitions[from][to]
}

// ValidateOrderTransition returns a BUSINESS_RULE error for a forbidden move.
func ValidateOrderTransition(from, to string) error {
	if CanTransitionOrder(from, to) {
		return nil
	}
	return errors.BusinessRule(ReasonInvalidTransition, "order cannot move from "+from+" to "+to)
}

// LineAmounts is the slice of a line needed for total arithmetic.
type LineAmounts struct {
	ID        string
	Status    string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Total returns quantity times unit price, rounded for storage.
func (l LineAmounts) Total() decimal.Decimal {
	return money.Round(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
}

// DiscountSpec is the slice of a discount needed for total arithmetic.
// LineID is empty for order-level discounts.
type DiscountSpec struct {
	LineID string
	Type   string
	Amount decimal.Decimal
}

// ValidateDiscount checks range rules before a discount is recorded:
// percentages live in [0,100], fixed amounts must not be negative.
func ValidateDiscount(discountType string, amount decimal.Decimal) error {
	switch discountType {
	case DiscountPercentage:
		if amount.IsNegative() || amount.GreaterThan(decimal.NewFromInt(100)) {
			return errors.BusinessRule(ReasonDiscountOutOfRange, "percentage discount must be between 0 and 100")
		}
	case DiscountFixedAmount:
		if amount.IsNegative() {
			return errors.BusinessRule(ReasonDiscountOutOfRange, "fixed discount must not be negative")
		}
	default:
		return errors.ValidationMsg("unknown discount type")
	}
	return nil
}

// ComputeTotal derives an order's total from its lines and discounts.
// Voided lines contribute nothing. Line-level discounts are clamped to
// their line's total, order-level fixed discounts to the running subtotal;
// the result never drops below zero.
func ComputeTotal(lines []LineAmounts, discounts []DiscountSpec) decimal.Decimal {
	lineTotals := make(map[string]decimal.Decimal, len(lines))
	subtotal := decimal.Zero
	for _, line := range lines {
		if line.Status == LineVoided {
			continue
		}
		total := line.Total()
		lineTotals[line.ID] = total
		subtotal = subtotal.Add(total)
	}

	// Line discounts first, then order-level ones on the reduced subtotal.
	for _, d := range discounts {
		if d.LineID == "" {
			continue
		}
		lineTotal, ok := lineTotals[d.LineID]
		if !ok {
			continue
		}
		subtotal = subtotal.Sub(discountValue(d, lineTotal))
	}
	for _, d := range discounts {
		if d.LineID != "" {
			continue
		}
		subtotal = subtotal.Sub(discountValue(d, subtotal))
	}

	if subtotal.IsNegative() {
		return decimal.Zero
	}
	return money.Round(subtotal)
}

func discountValue(d DiscountSpec, base decimal.Decimal) decimal.Decimal {
	switch d.Type {
	case DiscountPercentage:
		return money.Percent(base, d.Amount)
	case DiscountFixedAmount:
		return money.Clamp(d.Amount, decimal.Zero, base)
	default:
		return decimal.Zero
	}
}
