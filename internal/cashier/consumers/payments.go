// Package consumers wires the cash register to the event bus.
package consumers

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/mesapos/mesa-backend/internal/cashier/domain"
	"github.com/mesapos/mesa-backend/internal/cashier/repository"
	"github.com/mesapos/mesa-backend/pkg/database"
	"github.com/mesapos/mesa-backend/pkg/errors"
	"github.com/mesapos/mesa-backend/pkg/logger"
	"github.com/mesapos/mesa-backend/pkg/messaging"
	"github.com/mesapos/mesa-backend/pkg/tenant"
)

// PaymentConsumer keeps the drawer ledger in step with billing: a SALE
// movement for every completed cash payment and a REFUND movement for
// every voided one. The (payment_id, movement_type) unique key absorbs
// re-deliveries.
type PaymentConsumer struct {
	db     *database.DB
	repo   *repository.Repository
	logger *logger.Logger
}

// NewPaymentConsumer creates the payment listener.
func NewPaymentConsumer(db *database.DB, repo *repository.Repository, log *logger.Logger) *PaymentConsumer {
	return &PaymentConsumer{db: db, repo: repo, logger: log.WithComponent("cashier-consumer")}
}

// Register binds the handlers to the consumer queue.
func (c *PaymentConsumer) Register(consumer *messaging.Consumer) error {
	if err := consumer.Subscribe(messaging.ExchangePOSEvents, "pos.payment.*"); err != nil {
		return err
	}
	consumer.RegisterHandler(messaging.EventPaymentCompleted, c.HandleCompleted)
	consumer.RegisterHandler(messaging.EventPaymentVoided, c.HandleVoided)
	return nil
}

// HandleCompleted books a SALE movement for a completed cash payment.
func (c *PaymentConsumer) HandleCompleted(ctx context.Context, event *messaging.Event) error {
	var data messaging.PaymentCompletedEvent
	if err := event.UnmarshalData(&data); err != nil {
		c.logger.Error().Err(err).Str("event_id", event.ID).Msg("malformed payment completed event")
		return nil
	}
	if data.Method != "CASH" {
		return nil
	}
	return c.bookMovement(ctx, domain.MovementSale, data.TenantID, data.SiteID,
		data.PaymentID, data.OrderID, data.Amount)
}

// HandleVoided books the compensating REFUND movement for a voided cash
// payment, so the drawer's expected amount drops by what was handed back.
func (c *PaymentConsumer) HandleVoided(ctx context.Context, event *messaging.Event) error {
	var data messaging.PaymentVoidedEvent
	if err := event.UnmarshalData(&data); err != nil {
		c.logger.Error().Err(err).Str("event_id", event.ID).Msg("malformed payment voided event")
		return nil
	}
	if data.Method != "CASH" {
		return nil
	}
	return c.bookMovement(ctx, domain.MovementRefund, data.TenantID, data.SiteID,
		data.PaymentID, data.OrderID, data.Amount)
}

// bookMovement records one movement against the site's open session.
// Sites without an open session are skipped; a replayed payment hits the
// (payment_id, movement_type) unique key and is treated as already
// recorded.
func (c *PaymentConsumer) bookMovement(ctx context.Context, movementType, tenantID, siteID, paymentID, orderID string, amount decimal.Decimal) error {
	ctx = tenant.WithTenantID(ctx, tenantID)
	log := c.logger.WithTenantID(tenantID)

	return c.db.WithTenant(ctx, func(ctx context.Context) error {
		session, err := c.repo.FindOpenSessionBySite(ctx, tenantID, siteID)
		if err != nil {
			return err
		}
		if session == nil {
			// The payment itself already settled; the drawer just has no
			// shift to book it against.
			log.Warn().
				Str("payment_id", paymentID).
				Str("site_id", siteID).
				Str("movement_type", movementType).
				Msg("cash payment event with no open session, movement skipped")
			return nil
		}

		err = c.repo.InsertMovement(ctx, &repository.Movement{
			TenantID:     tenantID,
			SessionID:    session.ID,
			MovementType: movementType,
			Amount:       amount,
			PaymentID:    &paymentID,
			Reference:    "order " + orderID,
		})
		if errors.Code(err) == errors.CodeConflict {
			log.Debug().
				Str("payment_id", paymentID).
				Str("movement_type", movementType).
				Msg("movement already recorded, skipping re-delivery")
			return nil
		}
		return err
	})
}
