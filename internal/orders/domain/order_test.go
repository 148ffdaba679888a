package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mesapos/mesa-backend/pkg/errors"
	"github.com/mesapos/mesa-backend/pkg/money"
)

func TestComputeTotal_VoidedLinesExcluded(t *testing.T) {
	lines := []LineAmounts{
		{ID: "l1", Status: LineConfirmed, Quantity: 2, UnitPrice: money.MustParse("2.50")},
		{ID: "l2", Status: LineConfirmed, Quantity: 1, UnitPrice: money.MustParse("3.00")},
		{ID: "l3", Status: LineVoided, Quantity: 5, UnitPrice: money.MustParse("9.99")},
	}
	total := ComputeTotal(lines, nil)
	assert.True(t, money.MustParse("8.00").Equal(total), "got %s", total)
}

func TestComputeTotal_LineDiscountClamped(t *testing.T) {
	lines := []LineAmounts{
		{ID: "l1", Status: LinePending, Quantity: 1, UnitPrice: money.MustParse("10.00")},
		{ID: "l2", Status: LinePending, Quantity: 1, UnitPrice: money.MustParse("5.00")},
	}
	// Fixed discount larger than the line total clamps to the line total.
	discounts := []DiscountSpec{
		{LineID: "l2", Type: DiscountFixedAmount, Amount: money.MustParse("8.00")},
	}
	total := ComputeTotal(lines, discounts)
	assert.True(t, money.MustParse("10.00").Equal(total), "got %s", total)
}

func TestComputeTotal_OrderPercentage(t *testing.T) {
	lines := []LineAmounts{
		{ID: "l1", Status: LineConfirmed, Quantity: 1, UnitPrice: money.MustParse("10.05")},
	}
	discounts := []DiscountSpec{
		{Type: DiscountPercentage, Amount: money.MustParse("10")},
	}
	// 10% of 10.05 is 1.005, rounded half-up to 1.01.
	total := ComputeTotal(lines, discounts)
	assert.True(t, money.MustParse("9.04").Equal(total), "got %s", total)
}

func TestComputeTotal_NeverNegative(t *testing.T) {
	lines := []LineAmounts{
		{ID: "l1", Status: LineConfirmed, Quantity: 1, UnitPrice: money.MustParse("5.00")},
	}
	discounts := []DiscountSpec{
		{Type: DiscountFixedAmount, Amount: money.MustParse("20.00")},
		{Type: DiscountFixedAmount, Amount: money.MustParse("20.00")},
	}
	assert.True(t, ComputeTotal(lines, discounts).IsZero())
}

func TestValidateDiscount(t *testing.T) {
	assert.NoError(t, ValidateDiscount(DiscountPercentage, money.MustParse("100")))
	assert.NoError(t, ValidateDiscount(DiscountFixedAmount, money.MustParse("0")))

	err := ValidateDiscount(DiscountPercentage, money.MustParse("101"))
	assert.Equal(t, ReasonDiscountOutOfRange, errors.ReasonOf(err))

	err = ValidateDiscount(DiscountFixedAmount, money.MustParse("-1"))
	assert.Equal(t, ReasonDiscountOutOfRange, errors.ReasonOf(err))

	err = ValidateDiscount("BOGOF", money.MustParse("1"))
	assert.Equal(t, errors.CodeValidation, errors.Code(err))
}

func TestOrderTransitions(t *testing.T) {
	assert.True(t, CanTransitionOrder(OrderOpen, OrderConfirmed))
	assert.True(t, CanTransitionOrder(OrderConfirmed, OrderPaid))
	assert.True(t, CanTransitionOrder(OrderPaid, OrderClosed))
	assert.True(t, CanTransitionOrder(OrderOpen, OrderVoided))
	assert.True(t, CanTransitionOrder(OrderConfirmed, OrderVoided))
	assert.False(t, CanTransitionOrder(OrderPaid, OrderVoided))
	assert.False(t, CanTransitionOrder(OrderClosed, OrderOpen))
	assert.False(t, CanTransitionOrder(OrderOpen, OrderPaid))
}

func TestLineTransitions(t *testing.T) {
	assert.True(t, CanTransitionLine(LinePending, LineConfirmed))
	assert.True(t, CanTransitionLine(LinePending, LineVoided))
	assert.True(t, CanTransitionLine(LineConfirmed, LineVoided))
	assert.False(t, CanTransitionLine(LineVoided, LineConfirmed))
	assert.False(t, CanTransitionLine(LineConfirmed, LinePending))
}
