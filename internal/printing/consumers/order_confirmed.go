// Package consumers wires the kitchen dispatcher to the event bus.
package consumers

import (
	"context"

	"github.com/mesapos/mesa-backend/internal/printing/service"
	"github.com/mesapos/mesa-backend/pkg/logger"
	"github.com/mesapos/mesa-backend/pkg/messaging"
	"github.com/mesapos/mesa-backend/pkg/tenant"
)

// OrderConfirmedConsumer turns confirmed orders into print jobs.
type OrderConfirmedConsumer struct {
	service *service.Service
	logger  *logger.Logger
}

// NewOrderConfirmedConsumer creates the kitchen print listener.
func NewOrderConfirmedConsumer(svc *service.Service, log *logger.Logger) *OrderConfirmedConsumer {
	return &OrderConfirmedConsumer{service: svc, logger: log.WithComponent("printing-consumer")}
}

// Register binds the handler to the consumer queue.
func (c *OrderConfirmedConsumer) Register(consumer *messaging.Consumer) error {
	if err := consumer.Subscribe(messaging.ExchangePOSEvents, "pos.order.*"); err != nil {
		return err
	}
	consumer.RegisterHandler(messaging.EventOrderConfirmed, c.Handle)
	return nil
}

// Handle processes one OrderConfirmed event. Deterministic dedupe keys
// make re-delivery harmless.
func (c *OrderConfirmedConsumer) Handle(ctx context.Context, event *messaging.Event) error {
	var data messaging.OrderConfirmedEvent
	if err := event.UnmarshalData(&data); err != nil {
		c.logger.Error().Err(err).Str("event_id", event.ID).Msg("malformed order confirmed event")
		return nil
	}

	ctx = tenant.WithTenantID(ctx, data.TenantID)
	return c.service.Dispatch(ctx, &data)
}
