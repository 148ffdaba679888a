package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types. Events are immutable: new fields may be added, semantic
// changes require a new event type.
const (
	EventOrderConfirmed          = "pos.order.confirmed"
	EventOrderLineVoided         = "pos.order.line_voided"
	EventPaymentCompleted        = "pos.payment.completed"
	EventPaymentVoided           = "pos.payment.voided"
	EventFiscalDocumentGenerated = "pos.fiscal.document_generated"
)

// ExchangePOSEvents is the topic exchange all domain events flow through.
const ExchangePOSEvents = "pos.events"

// Event is the base event envelope
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// ConfirmedLine is one order line carried by OrderConfirmedEvent.
type ConfirmedLine struct {
	LineID    string `json:"line_id"`
	ItemID    string `json:"item_id"`
	ItemName  string `json:"item_name"`
	Category  string `json:"category"`
	Quantity  int    `json:"quantity"`
	Modifiers string `json:"modifiers,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// OrderConfirmedEvent is published after an order confirmation ("Pedir")
// commits. The kitchen print dispatcher fans it out to printers.
type OrderConfirmedEvent struct {
	OrderID     string          `json:"order_id"`
	TenantID    string          `json:"tenant_id"`
	SiteID      string          `json:"site_id"`
	TableNumber *int            `json:"table_number,omitempty"`
	ConfirmSeq  int             `json:"confirm_seq"`
	Lines       []ConfirmedLine `json:"lines"`
	ConfirmedAt time.Time       `json:"confirmed_at"`
}

// OrderLineVoidedEvent is published after a line void commits.
type OrderLineVoidedEvent struct {
	LineID   string    `json:"line_id"`
	OrderID  string    `json:"order_id"`
	TenantID string    `json:"tenant_id"`
	Reason   string    `json:"reason"`
	VoidedAt time.Time `json:"voided_at"`
}

// PaymentCompletedEvent is published after a payment reaches COMPLETED.
// The cash register listener records a SALE movement for CASH payments.
type PaymentCompletedEvent struct {
	PaymentID   string          `json:"payment_id"`
	OrderID     string          `json:"order_id"`
	TenantID    string          `json:"tenant_id"`
	SiteID      string          `json:"site_id"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method"`
	CompletedAt time.Time       `json:"completed_at"`
}

// PaymentVoidedEvent is published after a completed payment is voided.
// The cash register listener books a compensating REFUND movement for
// CASH payments.
type PaymentVoidedEvent struct {
	PaymentID string          `json:"payment_id"`
	OrderID   string          `json:"order_id"`
	TenantID  string          `json:"tenant_id"`
	SiteID    string          `json:"site_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Reason    string          `json:"reason"`
	VoidedAt  time.Time       `json:"voided_at"`
}

// FiscalDocumentGeneratedEvent is published after a fiscal document is
// issued with its series number.
type FiscalDocumentGeneratedEvent struct {
	DocumentID     string    `json:"document_id"`
	TenantID       string    `json:"tenant_id"`
	SiteID         string    `json:"site_id"`
	DocumentType   string    `json:"document_type"`
	DocumentNumber int64     `json:"document_number"`
	GeneratedAt    time.Time `json:"generated_at"`
}
