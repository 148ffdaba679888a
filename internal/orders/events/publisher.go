package events

import (
	"context"
	"time"

	"github.com/mesapos/mesa-backend/internal/orders/repository"
	"github.com/mesapos/mesa-backend/pkg/logger"
	"github.com/mesapos/mesa-backend/pkg/messaging"
)

// OrderEventPublisher publishes order lifecycle events.
type OrderEventPublisher struct {
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewOrderEventPublisher creates a publisher bound to the POS exchange.
func NewOrderEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*OrderEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangePOSEvents, "pos-server", log)
	if err != nil {
		return nil, err
	}
	return &OrderEventPublisher{publisher: publisher, logger: log}, nil
}

// NewOrderEventPublisherWith wraps an existing publisher; used by tests.
func NewOrderEventPublisherWith(pub messaging.EventPublisher, log *logger.Logger) *OrderEventPublisher {
	return &OrderEventPublisher{publisher: pub, logger: log}
}

// PublishOrderConfirmed emits the event kitchen printing listens for.
// Called after the confirming transaction commits.
func (p *OrderEventPublisher) PublishOrderConfirmed(ctx context.Context, order *repository.Order, lines []repository.Line, tableNumber *int, confirmedAt time.Time) {
	eventLines := make([]messaging.ConfirmedLine, 0, len(lines))
	for _, l := range lines {
		eventLines = append(eventLines, messaging.ConfirmedLine{
			LineID:    l.ID,
			ItemID:    l.ItemID,
			ItemName:  l.ItemName,
			Category:  l.Category,
			Quantity:  l.Quantity,
			Modifiers: l.Modifiers,
			Notes:     l.Notes,
		})
	}

	data := messaging.OrderConfirmedEvent{
		OrderID:     order.ID,
		TenantID:    order.TenantID,
		SiteID:      order.SiteID,
		TableNumber: tableNumber,
		ConfirmSeq:  order.ConfirmSeq,
		Lines:       eventLines,
		ConfirmedAt: confirmedAt,
	}
	if err := p.publisher.Publish(ctx, messaging.EventOrderConfirmed, data); err != nil {
		p.logger.Error().Err(err).Str("order_id", order.ID).Msg("failed to publish order confirmed event")
	}
}

// PublishOrderLineVoided emits the line void notification.
func (p *OrderEventPublisher) PublishOrderLineVoided(ctx context.Context, line *repository.Line, reason string, when time.Time) {
	data := messaging.OrderLineVoidedEvent{
		LineID:   line.ID,
		OrderID:  line.OrderID,
		TenantID: line.TenantID,
		Reason:   reason,
		VoidedAt: when,
	}
	if err := p.publisher.Publish(ctx, messaging.EventOrderLineVoided, data); err != nil {
		p.logger.Error().Err(err).Str("line_id", line.ID).Msg("failed to publish line voided event")
	}
}
