// Package domain holds payment settlement arithmetic and fiscal rules.
package domain

import (
	"github.com/shopspring/decimal"

	"github.com/mesapos/mesa-backend/pkg/errors"
	"github.com/mesapos/mesa-backend/pkg/money"
)

// Payment methods. MIXED records a tender the till already broke down
// across cash and card; it settles like the non-cash methods, so it
// cannot overtender and never reaches the terminal.
const (
	MethodCash    = "CASH"
	MethodCard    = "CARD"
	MethodMobile  = "MOBILE"
	MethodVoucher = "VOUCHER"
	MethodMixed   = "MIXED"
)

// Payment statuses.
const (
	PaymentPending   = "PENDING"
	PaymentCompleted = "COMPLETED"
	PaymentFailed    = "FAILED"
	PaymentVoided    = "VOIDED"
)

// Fiscal document types.
const (
	DocReceipt    = "RECEIPT"
	DocInvoice    = "INVOICE"
	DocCreditNote = "CREDIT_NOTE"
)

// Business-rule reasons surfaced to clients.
const (
	ReasonOverpayment         = "OVERPAYMENT"
	ReasonOrderNotPayable     = "ORDER_NOT_PAYABLE"
	ReasonPaymentNotVoidable  = "PAYMENT_NOT_VOIDABLE"
	ReasonCardBlacklisted     = "CARD_BLACKLISTED"
	ReasonCardDeclined        = "CARD_DECLINED"
	ReasonInvoiceNeedsTaxID   = "INVOICE_REQUIRES_TAX_ID"
	ReasonNothingOutstanding  = "NOTHING_OUTSTANDING"
	ReasonSplitAlreadyExists  = "SPLIT_ALREADY_EXISTS"
	ReasonSplitCountTooSmall  = "SPLIT_COUNT_TOO_SMALL"
	ReasonDocumentVoided      = "DOCUMENT_VOIDED"
	ReasonDocumentNotVoidable = "DOCUMENT_NOT_VOIDABLE"
)

// Settlement is the resolved effect of a payment request against an
// order's outstanding balance.
type Settlement struct {
	// Stored is the amount recorded on the payment row.
	Stored decimal.Decimal
	// Change is returned to the guest; non-zero only for cash.
	Change decimal.Decimal
}

// Settle applies the partial-settlement policy: payments never push the
// completed sum past the order total. Cash absorbs the excess as change;
// any other method over-paying is a business-rule failure.
func Settle(remaining, requested decimal.Decimal, method string) (*Settlement, error) {
	if !requested.IsPositive() {
		return nil, errors.ValidationMsg("payment amount must be positive")
	}
	if !remaining.IsPositive() {
		return nil, errors.BusinessRule(ReasonNothingOutstanding, "order has no outstanding balance")
	}

	if requested.GreaterThan(remaining) {
		if method != MethodCash {
			return nil, errors.BusinessRule(ReasonOverpayment, "payment exceeds outstanding balance")
		}
		return &Settlement{
			Stored: money.Round(remaining),
			Change: money.Round(requested.Sub(remaining)),
		}, nil
	}
	return &Settlement{Stored: money.Round(requested), Change: decimal.Zero}, nil
}

// ValidateFiscalRequest enforces per-type issuance rules.
func ValidateFiscalRequest(documentType string, customerTaxID *string) error {
	switch documentType {
	case DocReceipt, DocCreditNote:
		return nil
	case DocInvoice:
		if customerTaxID == nil || *customerTaxID == "" {
			return errors.BusinessRule(ReasonInvoiceNeedsTaxID, "invoices require a customer tax id")
		}
		return nil
	default:
		return errors.ValidationMsg("unknown document type")
	}
}
