package events

import (
	"context"
	"time"

	"github.com/mesapos/mesa-backend/internal/billing/repository"
	"github.com/mesapos/mesa-backend/pkg/logger"
	"github.com/mesapos/mesa-backend/pkg/messaging"
)

// BillingEventPublisher publishes payment and fiscal events.
type BillingEventPublisher struct {
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewBillingEventPublisher creates a publisher bound to the POS exchange.
func NewBillingEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*BillingEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangePOSEvents, "pos-server", log)
	if err != nil {
		return nil, err
	}
	return &BillingEventPublisher{publisher: publisher, logger: log}, nil
}

// NewBillingEventPublisherWith wraps an existing publisher; used by tests.
func NewBillingEventPublisherWith(pub messaging.EventPublisher, log *logger.Logger) *BillingEventPublisher {
	return &BillingEventPublisher{publisher: pub, logger: log}
}

// PublishPaymentCompleted emits the event the cash register listens for.
// Called after the settling transaction commits.
func (p *BillingEventPublisher) PublishPaymentCompleted(ctx context.Context, payment *repository.Payment, completedAt time.Time) {
	data := messaging.PaymentCompletedEvent{
		PaymentID:   payment.ID,
		OrderID:     payment.OrderID,
		TenantID:    payment.TenantID,
		SiteID:      payment.SiteID,
		Amount:      payment.Amount,
		Method:      payment.Method,
		CompletedAt: completedAt,
	}
	if err := p.publisher.Publish(ctx, messaging.EventPaymentCompleted, data); err != nil {
		p.logger.Error().Err(err).Str("payment_id", payment.ID).Msg("failed to publish payment completed event")
	}
}

// PublishPaymentVoided emits the reversal event. The cash register books
// a REFUND movement for cash payments on receipt.
func (p *BillingEventPublisher) PublishPaymentVoided(ctx context.Context, payment *repository.Payment, reason string, voidedAt time.Time) {
	data := messaging.PaymentVoidedEvent{
		PaymentID: payment.ID,
		OrderID:   payment.OrderID,
		TenantID:  payment.TenantID,
		SiteID:    payment.SiteID,
		Amount:    payment.Amount,
		Method:    payment.Method,
		Reason:    reason,
		VoidedAt:  voidedAt,
	}
	if err := p.publisher.Publish(ctx, messaging.EventPaymentVoided, data); err != nil {
		p.logger.Error().Err(err).Str("payment_id", payment.ID).Msg("failed to publish payment voided event")
	}
}

// PublishFiscalDocumentGenerated emits the document issuance notification.
func (p *BillingEventPublisher) PublishFiscalDocumentGenerated(ctx context.Context, doc *repository.FiscalDocument) {
	data := messaging.FiscalDocumentGeneratedEvent{
		DocumentID:     doc.ID,
		TenantID:       doc.TenantID,
		SiteID:         doc.SiteID,
		DocumentType:   doc.DocumentType,
		DocumentNumber: doc.DocumentNumber,
		GeneratedAt:    doc.IssuedAt,
	}
	if err := p.publisher.Publish(ctx, messaging.EventFiscalDocumentGenerated, data); err != nil {
		p.logger.Error().Err(err).Str("document_id", doc.ID).Msg("failed to publish fiscal document event")
	}
}
