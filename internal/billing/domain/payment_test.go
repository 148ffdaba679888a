package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesapos/mesa-backend/pkg/errors"
	"github.com/mesapos/mesa-backend/pkg/money"
)

func TestSettle_ExactAndPartial(t *testing.T) {
	s, err := Settle(money.MustParse("8.00"), money.MustParse("8.00"), MethodCash)
	require.NoError(t, err)
	assert.True(t, money.MustParse("8.00").Equal(s.Stored))
	assert.True(t, s.Change.IsZero())

	s, err = Settle(money.MustParse("30.00"), money.MustParse("10.00"), MethodCard)
	require.NoError(t, err)
	assert.True(t, money.MustParse("10.00").Equal(s.Stored))
}

func TestSettle_CashChange(t *testing.T) {
	// Guest hands a 20 for a 17.30 balance.
	s, err := Settle(money.MustParse("17.30"), money.MustParse("20.00"), MethodCash)
	require.NoError(t, err)
	assert.True(t, money.MustParse("17.30").Equal(s.Stored))
	assert.True(t, money.MustParse("2.70").Equal(s.Change))
}

func TestSettle_CardOverpaymentRejected(t *testing.T) {
	_, err := Settle(money.MustParse("10.00"), money.MustParse("15.00"), MethodCard)
	require.Error(t, err)
	assert.Equal(t, ReasonOverpayment, errors.ReasonOf(err))
}

func TestSettle_MixedCannotOvertender(t *testing.T) {
	_, err := Settle(money.MustParse("10.00"), money.MustParse("15.00"), MethodMixed)
	require.Error(t, err)
	assert.Equal(t, ReasonOverpayment, errors.ReasonOf(err))

	s, err := Settle(money.MustParse("10.00"), money.MustParse("10.00"), MethodMixed)
	require.NoError(t, err)
	assert.True(t, s.Change.IsZero())
}

func TestSettle_NothingOutstanding(t *testing.T) {
	_, err := Settle(money.MustParse("0.00"), money.MustParse("5.00"), MethodCash)
	require.Error(t, err)
	assert.Equal(t, ReasonNothingOutstanding, errors.ReasonOf(err))
}

func TestSettle_NonPositiveAmount(t *testing.T) {
	_, err := Settle(money.MustParse("10.00"), money.MustParse("0.00"), MethodCash)
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidation, errors.Code(err))
}

func TestValidateFiscalRequest(t *testing.T) {
	taxID := "123456789"
	empty := ""

	assert.NoError(t, ValidateFiscalRequest(DocReceipt, nil))
	assert.NoError(t, ValidateFiscalRequest(DocInvoice, &taxID))

	err := ValidateFiscalRequest(DocInvoice, nil)
	assert.Equal(t, ReasonInvoiceNeedsTaxID, errors.ReasonOf(err))
	err = ValidateFiscalRequest(DocInvoice, &empty)
	assert.Equal(t, ReasonInvoiceNeedsTaxID, errors.ReasonOf(err))

	err = ValidateFiscalRequest("QUOTE", nil)
	assert.Equal(t, errors.CodeValidation, errors.Code(err))
}
