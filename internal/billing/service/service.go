package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mesapos/mesa-backend/internal/billing/domain"
	"github.com/mesapos/mesa-backend/internal/billing/events"
	"github.com/mesapos/mesa-backend/internal/billing/repository"
	"github.com/mesapos/mesa-backend/internal/billing/terminal"
	ordersdomain "github.com/mesapos/mesa-backend/internal/orders/domain"
	ordersrepo "github.com/mesapos/mesa-backend/internal/orders/repository"
	saftrepo "github.com/mesapos/mesa-backend/internal/saft/repository"
	"github.com/mesapos/mesa-backend/pkg/authz"
	"github.com/mesapos/mesa-backend/pkg/database"
	"github.com/mesapos/mesa-backend/pkg/errors"
	"github.com/mesapos/mesa-backend/pkg/logger"
	"github.com/mesapos/mesa-backend/pkg/money"
	"github.com/mesapos/mesa-backend/pkg/tenant"
)

// OrderLedger is the slice of the order engine billing needs.
type OrderLedger interface {
	GetOrder(ctx context.Context, tenantID, orderID string) (*ordersrepo.Order, error)
	UpdateOrder(ctx context.Context, order *ordersrepo.Order) error
	ListLines(ctx context.Context, tenantID, orderID string) ([]ordersrepo.Line, error)
}

// CardRegistry answers whether a card is banned from the venue.
type CardRegistry interface {
	IsCardBlacklisted(ctx context.Context, lastFour string) (bool, error)
}

// AuditLog records compliance-relevant actions such as payment voids.
type AuditLog interface {
	Insert(ctx context.Context, entry *saftrepo.AuditEntry) error
}

// Service settles orders, issues fiscal documents and partitions bills.
type Service struct {
	db            *database.DB
	payments      *repository.PaymentRepository
	fiscal        *repository.FiscalRepository
	orders        OrderLedger
	cards         CardRegistry
	terminal      terminal.Terminal
	publisher     *events.BillingEventPublisher
	audit         AuditLog
	chargeTimeout time.Duration
	logger        *logger.Logger
}

// New creates a billing service.
func New(db *database.DB, payments *repository.PaymentRepository, fiscal *repository.FiscalRepository,
	orders OrderLedger, cards CardRegistry, term terminal.Terminal,
	publisher *events.BillingEventPublisher, audit AuditLog, chargeTimeout time.Duration, log *logger.Logger) *Service {
	if chargeTimeout <= 0 {
		chargeTimeout = 15 * time.Second
	}
	return &Service{
		db:            db,
		payments:      payments,
		fiscal:        fiscal,
		orders:        orders,
		cards:         cards,
		terminal:      term,
		publisher:     publisher,
		audit:         audit,
		chargeTimeout: chargeTimeout,
		logger:        log.WithComponent("billing"),
	}
}

// PaymentRequest asks to settle part or all of an order.
type PaymentRequest struct {
	OrderID        string `json:"order_id" validate:"required,uuid"`
	IdempotencyKey string `json:"idempotency_key" validate:"required,min=8,max=100"`
	Amount         string `json:"amount" validate:"required"`
	Method         string `json:"method" validate:"required,oneof=CASH CARD MOBILE VOUCHER MIXED"`
	CardLastFour   string `json:"card_last_four" validate:"omitempty,len=4,numeric"`
	TerminalID     string `json:"terminal_id" validate:"omitempty,max=50"`
}

// PaymentResult is what the till shows after a payment attempt.
type PaymentResult struct {
	Payment *repository.Payment `json:"payment"`
	Change  decimal.Decimal     `json:"change"`
	// Replayed is true when the idempotency key matched an earlier
	// attempt and that attempt's outcome was returned unchanged.
	Replayed bool `json:"replayed"`
}

// ProcessPayment settles an order. A repeated idempotency key returns the
// original outcome without touching the terminal or the balance. Card
// charges go to the terminal before anything is written; only approved
// charges are recorded.
func (s *Service) ProcessPayment(ctx context.Context, req *PaymentRequest) (*PaymentResult, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}

	if prior, err := s.payments.FindByIdempotencyKey(ctx, tenantID, req.IdempotencyKey); err != nil {
		return nil, err
	} else if prior != nil {
		return &PaymentResult{Payment: prior, Change: prior.ChangeAmount, Replayed: true}, nil
	}

	requested, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return nil, errors.ValidationMsg("amount must be a decimal")
	}
	requested = money.Round(requested)

	if req.Method == domain.MethodCard && req.CardLastFour != "" {
		banned, err := s.cards.IsCardBlacklisted(ctx, req.CardLastFour)
		if err != nil {
			return nil, err
		}
		if banned {
			return nil, errors.BusinessRule(domain.ReasonCardBlacklisted, "card is blacklisted")
		}
	}

	// Pre-read outside the settling transaction to compute the amount
	// the terminal must charge. The balance is re-read and re-checked
	// inside the transaction before anything is written.
	order, err := s.orders.GetOrder(ctx, tenantID, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status != ordersdomain.OrderConfirmed {
		return nil, errors.BusinessRule(domain.ReasonOrderNotPayable, "only confirmed orders can be paid")
	}
	paid, err := s.payments.SumCompleted(ctx, tenantID, req.OrderID)
	if err != nil {
		return nil, err
	}
	settlement, err := domain.Settle(order.TotalAmount.Sub(paid), requested, req.Method)
	if err != nil {
		return nil, err
	}

	payment := &repository.Payment{
		TenantID:       tenantID,
		SiteID:         order.SiteID,
		OrderID:        order.ID,
		IdempotencyKey: req.IdempotencyKey,
		Amount:         settlement.Stored,
		ChangeAmount:   settlement.Change,
		Method:         req.Method,
		Status:         domain.PaymentCompleted,
	}
	if req.CardLastFour != "" {
		payment.CardLastFour = &req.CardLastFour
	}

	if req.Method == domain.MethodCard {
		if err := s.chargeCard(ctx, payment, req.TerminalID); err != nil {
			return nil, err
		}
	}

	completedAt := time.Now().UTC()
	payment.CompletedAt = &completedAt

	err = s.db.WithTenant(ctx, func(ctx context.Context) error {
		current, err := s.orders.GetOrder(ctx, tenantID, req.OrderID)
		if err != nil {
			return err
		}
		if current.Status != ordersdomain.OrderConfirmed {
			return errors.BusinessRule(domain.ReasonOrderNotPayable, "order is no longer payable")
		}
		paidNow, err := s.payments.SumCompleted(ctx, tenantID, req.OrderID)
		if err != nil {
			return err
		}
		if paidNow.Add(payment.Amount).GreaterThan(current.TotalAmount) {
			return errors.Conflict("order balance changed, retry the payment")
		}

		if err := s.payments.Insert(ctx, payment); err != nil {
			return err
		}
		if err := s.payments.SettleNextSplit(ctx, tenantID, req.OrderID, payment.ID); err != nil {
			return err
		}

		if paidNow.Add(payment.Amount).Equal(current.TotalAmount) {
			current.Status = ordersdomain.OrderPaid
			if err := s.orders.UpdateOrder(ctx, current); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// Two tills racing on the same key both pass the pre-check; the
		// loser's insert hits the (tenant_id, idempotency_key) index.
		// That is a replay, not a failure.
		if errors.Code(err) == errors.CodeConflict {
			if prior, findErr := s.payments.FindByIdempotencyKey(ctx, tenantID, req.IdempotencyKey); findErr == nil && prior != nil {
				return &PaymentResult{Payment: prior, Change: prior.ChangeAmount, Replayed: true}, nil
			}
		}
		return nil, err
	}

	s.publisher.PublishPaymentCompleted(ctx, payment, completedAt)
	return &PaymentResult{Payment: payment, Change: payment.ChangeAmount}, nil
}

// chargeCard runs the terminal charge with its own deadline and maps the
// outcome. TIMEOUT and ERROR come back as retryable dependency failures.
func (s *Service) chargeCard(ctx context.Context, payment *repository.Payment, terminalID string) error {
	chargeCtx, cancel := context.WithTimeout(ctx, s.chargeTimeout)
	defer cancel()

	result, err := s.terminal.Charge(chargeCtx, payment.Amount, terminalID)
	if err != nil {
		return errors.Dependency("card terminal", err, true)
	}
	switch result.Outcome {
	case terminal.OutcomeApproved:
		payment.TerminalTransactionID = &result.TransactionID
		return nil
	case terminal.OutcomeDeclined:
		s.recordFailedAttempt(ctx, payment, result.Reason)
		return errors.BusinessRule(domain.ReasonCardDeclined, "card declined")
	default:
		s.recordFailedAttempt(ctx, payment, strings.ToLower(result.Outcome))
		return errors.Dependency("card terminal", fmt.Errorf("terminal outcome %s", result.Outcome), true)
	}
}

// recordFailedAttempt persists a FAILED payment row so the attempt is
// auditable and the idempotency key replays the failure. Best effort.
func (s *Service) recordFailedAttempt(ctx context.Context, payment *repository.Payment, reason string) {
	failed := *payment
	failed.Status = domain.PaymentFailed
	failed.FailureReason = &reason
	if err := s.payments.Insert(ctx, &failed); err != nil {
		s.logger.Warn().Err(err).Str("order_id", payment.OrderID).Msg("could not record failed payment attempt")
	}
}

// VoidPaymentRequest reverses a completed payment.
type VoidPaymentRequest struct {
	Reason string `json:"reason" validate:"required,min=1,max=300"`
}

// VoidPayment reverses a COMPLETED payment. Card payments are refunded at
// the terminal, cash payments get a compensating REFUND movement through
// the PaymentVoided event, and the order drops back to CONFIRMED if it
// was fully paid. Requires the VOID_INVOICE permission.
func (s *Service) VoidPayment(ctx context.Context, paymentID string, req *VoidPaymentRequest) (*repository.Payment, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	if err := authz.RequirePermission(actorFromContext(ctx), authz.PermVoidInvoice); err != nil {
		return nil, err
	}

	var payment *repository.Payment
	err = s.db.WithTenant(ctx, func(ctx context.Context) error {
		payment, err = s.payments.Get(ctx, tenantID, paymentID)
		if err != nil {
			return err
		}
		if payment.Status != domain.PaymentCompleted {
			return errors.BusinessRule(domain.ReasonPaymentNotVoidable, "only completed payments can be voided")
		}
		if err := s.payments.UpdateStatus(ctx, tenantID, paymentID, domain.PaymentVoided, payment.Version); err != nil {
			return err
		}
		payment.Status = domain.PaymentVoided
		payment.Version++

		order, err := s.orders.GetOrder(ctx, tenantID, payment.OrderID)
		if err != nil {
			return err
		}
		if order.Status == ordersdomain.OrderPaid {
			order.Status = ordersdomain.OrderConfirmed
			if err := s.orders.UpdateOrder(ctx, order); err != nil {
				return err
			}
		}

		entry := &saftrepo.AuditEntry{
			TenantID:   tenantID,
			Action:     "PAYMENT_VOID",
			Resource:   "payments",
			ResourceID: &paymentID,
			Detail:     req.Reason,
		}
		if userID := tenant.UserID(ctx); userID != "" {
			entry.UserID = &userID
		}
		return s.audit.Insert(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishPaymentVoided(ctx, payment, req.Reason, time.Now().UTC())

	if payment.Method == domain.MethodCard && payment.TerminalTransactionID != nil {
		refundCtx, cancel := context.WithTimeout(ctx, s.chargeTimeout)
		defer cancel()
		if err := s.terminal.Refund(refundCtx, *payment.TerminalTransactionID, payment.Amount); err != nil {
			s.logger.Error().Err(err).
				Str("payment_id", payment.ID).
				Str("terminal_transaction_id", *payment.TerminalTransactionID).
				Msg("terminal refund failed, needs manual follow-up")
		}
	}

	s.logger.Info().
		Str("payment_id", payment.ID).
		Str("reason", req.Reason).
		Msg("payment voided")
	return payment, nil
}

// ListPayments returns an order's payment history.
func (s *Service) ListPayments(ctx context.Context, orderID string) ([]repository.Payment, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	return s.payments.ListForOrder(ctx, tenantID, orderID)
}

// FiscalRequest asks for a numbered document over a paid order.
type FiscalRequest struct {
	OrderID       string  `json:"order_id" validate:"required,uuid"`
	DocumentType  string  `json:"document_type" validate:"required,oneof=RECEIPT INVOICE CREDIT_NOTE"`
	CustomerTaxID *string `json:"customer_tax_id" validate:"omitempty,min=5,max=20"`
}

// GenerateFiscalDocument issues the next number in the (tenant, site,
// type) series. Numbering is serialized with an advisory lock held to
// commit, so the series never has gaps.
func (s *Service) GenerateFiscalDocument(ctx context.Context, req *FiscalRequest) (*repository.FiscalDocument, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	if err := domain.ValidateFiscalRequest(req.DocumentType, req.CustomerTaxID); err != nil {
		return nil, err
	}

	var doc *repository.FiscalDocument
	err = s.db.WithTenant(ctx, func(ctx context.Context) error {
		order, err := s.orders.GetOrder(ctx, tenantID, req.OrderID)
		if err != nil {
			return err
		}
		if order.Status != ordersdomain.OrderPaid && order.Status != ordersdomain.OrderClosed {
			return errors.BusinessRule(ordersdomain.ReasonOrderNotPaid, "fiscal documents require a paid order")
		}

		number, err := s.fiscal.NextDocumentNumber(ctx, tenantID, order.SiteID, req.DocumentType)
		if err != nil {
			return err
		}
		doc = &repository.FiscalDocument{
			TenantID:       tenantID,
			SiteID:         order.SiteID,
			OrderID:        order.ID,
			DocumentType:   req.DocumentType,
			DocumentNumber: number,
			CustomerTaxID:  req.CustomerTaxID,
			TotalAmount:    order.TotalAmount,
		}
		return s.fiscal.Insert(ctx, doc)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishFiscalDocumentGenerated(ctx, doc)
	return doc, nil
}

// VoidFiscalDocument flags a document voided and issues a credit note in
// the same transaction. The original number stays in the series.
func (s *Service) VoidFiscalDocument(ctx context.Context, documentID string) (*repository.FiscalDocument, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	if err := authz.RequirePermission(actorFromContext(ctx), authz.PermVoidInvoice); err != nil {
		return nil, err
	}

	var creditNote *repository.FiscalDocument
	err = s.db.WithTenant(ctx, func(ctx context.Context) error {
		doc, err := s.fiscal.Get(ctx, tenantID, documentID)
		if err != nil {
			return err
		}
		if doc.Voided {
			return errors.BusinessRule(domain.ReasonDocumentVoided, "document is already voided")
		}
		if doc.DocumentType == domain.DocCreditNote {
			return errors.BusinessRule(domain.ReasonDocumentNotVoidable, "credit notes cannot be voided")
		}
		if err := s.fiscal.MarkVoided(ctx, tenantID, documentID); err != nil {
			return err
		}

		number, err := s.fiscal.NextDocumentNumber(ctx, tenantID, doc.SiteID, domain.DocCreditNote)
		if err != nil {
			return err
		}
		creditNote = &repository.FiscalDocument{
			TenantID:       tenantID,
			SiteID:         doc.SiteID,
			OrderID:        doc.OrderID,
			DocumentType:   domain.DocCreditNote,
			DocumentNumber: number,
			CustomerTaxID:  doc.CustomerTaxID,
			TotalAmount:    doc.TotalAmount,
		}
		return s.fiscal.Insert(ctx, creditNote)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishFiscalDocumentGenerated(ctx, creditNote)
	return creditNote, nil
}

// ListFiscalDocuments returns an order's documents.
func (s *Service) ListFiscalDocuments(ctx context.Context, orderID string) ([]repository.FiscalDocument, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	return s.fiscal.ListForOrder(ctx, tenantID, orderID)
}

// SplitRequest partitions an order's outstanding balance.
type SplitRequest struct {
	Parts int `json:"parts" validate:"required,min=2,max=20"`
}

// SplitBill partitions the outstanding balance into n parts whose sum is
// exactly the balance; remainder cents land on the first parts. An order
// can only be split once.
func (s *Service) SplitBill(ctx context.Context, orderID string, req *SplitRequest) ([]repository.Split, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	if req.Parts < 2 {
		return nil, errors.BusinessRule(domain.ReasonSplitCountTooSmall, "a bill splits into at least two parts")
	}

	var splits []repository.Split
	err = s.db.WithTenant(ctx, func(ctx context.Context) error {
		order, err := s.orders.GetOrder(ctx, tenantID, orderID)
		if err != nil {
			return err
		}
		if order.Status != ordersdomain.OrderConfirmed {
			return errors.BusinessRule(domain.ReasonOrderNotPayable, "only confirmed orders can be split")
		}
		existing, err := s.payments.CountSplits(ctx, tenantID, orderID)
		if err != nil {
			return err
		}
		if existing > 0 {
			return errors.BusinessRule(domain.ReasonSplitAlreadyExists, "order is already split")
		}
		paid, err := s.payments.SumCompleted(ctx, tenantID, orderID)
		if err != nil {
			return err
		}
		outstanding := order.TotalAmount.Sub(paid)
		if !outstanding.IsPositive() {
			return errors.BusinessRule(domain.ReasonNothingOutstanding, "order has no outstanding balance")
		}

		parts := money.Split(outstanding, req.Parts)
		splits = make([]repository.Split, 0, len(parts))
		for i, amount := range parts {
			splits = append(splits, repository.Split{
				TenantID:    tenantID,
				OrderID:     orderID,
				SplitNumber: i + 1,
				Amount:      amount,
			})
		}
		return s.payments.InsertSplits(ctx, splits)
	})
	if err != nil {
		return nil, err
	}
	return splits, nil
}

// ListSplits returns an order's split partition.
func (s *Service) ListSplits(ctx context.Context, orderID string) ([]repository.Split, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	return s.payments.ListSplits(ctx, tenantID, orderID)
}

// Subtotal is the pre-payment bill preview. Rendering it changes nothing
// on the order.
type Subtotal struct {
	OrderID     string             `json:"order_id"`
	Lines       []SubtotalLine     `json:"lines"`
	Total       decimal.Decimal    `json:"total"`
	Paid        decimal.Decimal    `json:"paid"`
	Outstanding decimal.Decimal    `json:"outstanding"`
	Splits      []repository.Split `json:"splits,omitempty"`
	RenderedAt  time.Time          `json:"rendered_at"`
}

// SubtotalLine is one billable position on the preview.
type SubtotalLine struct {
	ItemName  string          `json:"item_name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
}

// PrintSubtotal renders the bill preview ("Subtotal" button): active
// lines, total, completed payments and the outstanding balance.
func (s *Service) PrintSubtotal(ctx context.Context, orderID string) (*Subtotal, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}

	order, err := s.orders.GetOrder(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	lines, err := s.orders.ListLines(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	paid, err := s.payments.SumCompleted(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	splits, err := s.payments.ListSplits(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}

	sub := &Subtotal{
		OrderID:     order.ID,
		Total:       order.TotalAmount,
		Paid:        paid,
		Outstanding: order.TotalAmount.Sub(paid),
		Splits:      splits,
		RenderedAt:  time.Now().UTC(),
	}
	for _, l := range lines {
		if l.Status == ordersdomain.LineVoided {
			continue
		}
		amounts := ordersdomain.LineAmounts{Quantity: l.Quantity, UnitPrice: l.UnitPrice}
		sub.Lines = append(sub.Lines, SubtotalLine{
			ItemName:  l.ItemName,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Total:     amounts.Total(),
		})
	}
	return sub, nil
}

// actorFromContext rebuilds the caller for permission checks. Tokens are
// only issued to ACTIVE users, so the status here reflects issue time;
// deactivation takes effect at the next refresh.
func actorFromContext(ctx context.Context) authz.Actor {
	principal, _ := tenant.FromContext(ctx)
	return authz.Actor{
		UserID: principal.UserID,
		Role:   principal.Role,
		Status: authz.StatusActive,
	}
}
