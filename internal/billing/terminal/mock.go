package terminal

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Mock is an in-process terminal for development and tests. By default
// every charge approves; the amount's cent value can force other
// outcomes, mirroring how hardware vendors' sandboxes behave:
//
//	cents ending in .13 → DECLINED
//	cents ending in .77 → TIMEOUT
//	cents ending in .99 → ERROR
type Mock struct {
	mu      sync.Mutex
	Delay   time.Duration
	charges []ChargeRecord
	refunds []RefundRecord
}

// ChargeRecord is one observed charge attempt.
type ChargeRecord struct {
	Amount     decimal.Decimal
	TerminalID string
	Outcome    string
}

// RefundRecord is one observed refund.
type RefundRecord struct {
	TransactionID string
	Amount        decimal.Decimal
}

// NewMock creates a mock terminal.
func NewMock() *Mock {
	return &Mock{}
}

// Charge simulates a card charge.
func (m *Mock) Charge(ctx context.Context, amount decimal.Decimal, terminalID string) (*ChargeResult, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	result := &ChargeResult{Outcome: OutcomeApproved, TransactionID: uuid.New().String()}
	switch {
	case strings.HasSuffix(amount.StringFixed(2), ".13"):
		result = &ChargeResult{Outcome: OutcomeDeclined, Reason: "card declined"}
	case strings.HasSuffix(amount.StringFixed(2), ".77"):
		result = &ChargeResult{Outcome: OutcomeTimeout}
	case strings.HasSuffix(amount.StringFixed(2), ".99"):
		result = &ChargeResult{Outcome: OutcomeError, Reason: "terminal fault"}
	}

	m.mu.Lock()
	m.charges = append(m.charges, ChargeRecord{Amount: amount, TerminalID: terminalID, Outcome: result.Outcome})
	m.mu.Unlock()
	return result, nil
}

// Refund simulates a refund; always succeeds.
func (m *Mock) Refund(_ context.Context, transactionID string, amount decimal.Decimal) error {
	m.mu.Lock()
	m.refunds = append(m.refunds, RefundRecord{TransactionID: transactionID, Amount: amount})
	m.mu.Unlock()
	return nil
}

// Charges returns the observed charge attempts.
func (m *Mock) Charges() []ChargeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ChargeRecord, len(m.charges))
	copy(out, m.charges)
	return out
}

// Refunds returns the observed refunds.
func (m *Mock) Refunds() []RefundRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RefundRecord, len(m.refunds))
	copy(out, m.refunds)
	return out
}
