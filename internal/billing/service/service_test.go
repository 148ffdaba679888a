package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesapos/mesa-backend/internal/billing/domain"
	"github.com/mesapos/mesa-backend/internal/billing/events"
	"github.com/mesapos/mesa-backend/internal/billing/repository"
	"github.com/mesapos/mesa-backend/internal/billing/terminal"
	ordersdomain "github.com/mesapos/mesa-backend/internal/orders/domain"
	ordersrepo "github.com/mesapos/mesa-backend/internal/orders/repository"
	saftrepo "github.com/mesapos/mesa-backend/internal/saft/repository"
	"github.com/mesapos/mesa-backend/pkg/errors"
	"github.com/mesapos/mesa-backend/pkg/logger"
	"github.com/mesapos/mesa-backend/pkg/messaging"
	"github.com/mesapos/mesa-backend/pkg/money"
	"github.com/mesapos/mesa-backend/pkg/testutil"
)

type fakeLedger struct {
	orders  map[string]*ordersrepo.Order
	lines   map[string][]ordersrepo.Line
	updated []string
}

func (f *fakeLedger) GetOrder(_ context.Context, _, orderID string) (*ordersrepo.Order, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return nil, errors.NotFound("order")
	}
	copied := *order
	return &copied, nil
}

func (f *fakeLedger) UpdateOrder(_ context.Context, order *ordersrepo.Order) error {
	f.orders[order.ID] = order
	f.updated = append(f.updated, order.ID)
	return nil
}

func (f *fakeLedger) ListLines(_ context.Context, _, orderID string) ([]ordersrepo.Line, error) {
	return f.lines[orderID], nil
}

type fakeCards struct {
	banned map[string]bool
}

func (f *fakeCards) IsCardBlacklisted(_ context.Context, lastFour string) (bool, error) {
	return f.banned[lastFour], nil
}

func confirmedOrder(orderID, total string) *ordersrepo.Order {
	return &ordersrepo.Order{
		ID:          orderID,
		TenantID:    testutil.TenantID,
		SiteID:      testutil.SiteID,
		OrderType:   ordersdomain.TypeDineIn,
		Status:      ordersdomain.OrderConfirmed,
		TotalAmount: money.MustParse(total),
		Version:     1,
	}
}

func newTestService(t *testing.T, ledger *fakeLedger, cards *fakeCards) (*Service, *testutil.MockDB, *terminal.Mock, *testutil.MockPublisher) {
	mockDB := testutil.NewMockDB(t)
	term := terminal.NewMock()
	pub := testutil.NewMockPublisher()
	svc := New(
		mockDB.DB,
		repository.NewPaymentRepository(mockDB.DB),
		repository.NewFiscalRepository(mockDB.DB),
		ledger,
		cards,
		term,
		events.NewBillingEventPublisherWith(pub, logger.Nop()),
		saftrepo.New(mockDB.DB),
		time.Second,
		logger.Nop(),
	)
	return svc, mockDB, term, pub
}

func paymentColumns() []string {
	return []string{
		"id", "tenant_id", "site_id", "order_id", "idempotency_key", "amount", "change_amount",
		"method", "status", "terminal_transaction_id", "card_last_four", "failure_reason",
		"version", "created_at", "completed_at",
	}
}

func expectNoPriorPayment(mockDB *testutil.MockDB) {
	mockDB.ExpectQuery("SELECT id, tenant_id, site_id, order_id, idempotency_key").
		WillReturnRows(testutil.MockRows(paymentColumns()...))
}

func expectSumCompleted(mockDB *testutil.MockDB, sum string) {
	mockDB.ExpectQuery("SELECT COALESCE(SUM(amount), 0) FROM payments").
		WillReturnRows(testutil.MockRows("coalesce").AddRow(sum))
}

func expectInsertPayment(mockDB *testutil.MockDB, orderID, key, amount, change, method, status string) {
	now := time.Now()
	mockDB.ExpectQuery("INSERT INTO payments").
		WillReturnRows(testutil.MockRows(paymentColumns()...).
			AddRow(uuid.New().String(), testutil.TenantID, testutil.SiteID, orderID, key,
				amount, change, method, status, nil, nil, nil, 1, now, now))
}

func TestProcessPayment_CashWithChange(t *testing.T) {
	orderID := uuid.New().String()
	ledger := &fakeLedger{orders: map[string]*ordersrepo.Order{
		orderID: confirmedOrder(orderID, "17.30"),
	}}
	svc, mockDB, _, pub := newTestService(t, ledger, &fakeCards{})
	defer mockDB.Close()

	expectNoPriorPayment(mockDB)
	expectSumCompleted(mockDB, "0")
	mockDB.ExpectBegin()
	expectSumCompleted(mockDB, "0")
	expectInsertPayment(mockDB, orderID, "key-cash-0001", "17.30", "2.70", "CASH", "COMPLETED")
	mockDB.ExpectExec("UPDATE payment_splits").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mockDB.ExpectCommit()

	result, err := svc.ProcessPayment(testutil.TenantContext(), &PaymentRequest{
		OrderID:        orderID,
		IdempotencyKey: "key-cash-0001",
		Amount:         "20.00",
		Method:         domain.MethodCash,
	})
	require.NoError(t, err)
	assert.False(t, result.Replayed)
	assert.True(t, money.MustParse("17.30").Equal(result.Payment.Amount))
	assert.True(t, money.MustParse("2.70").Equal(result.Change))

	// Full settlement flips the order to PAID.
	assert.Equal(t, ordersdomain.OrderPaid, ledger.orders[orderID].Status)
	pub.AssertEventPublished(t, messaging.EventPaymentCompleted)

	mockDB.ExpectationsWereMet(t)
}

func TestProcessPayment_IdempotentReplay(t *testing.T) {
	orderID := uuid.New().String()
	ledger := &fakeLedger{orders: map[string]*ordersrepo.Order{
		orderID: confirmedOrder(orderID, "17.30"),
	}}
	svc, mockDB, term, pub := newTestService(t, ledger, &fakeCards{})
	defer mockDB.Close()

	now := time.Now()
	mockDB.ExpectQuery("SELECT id, tenant_id, site_id, order_id, idempotency_key").
		WillReturnRows(testutil.MockRows(paymentColumns()...).
			AddRow(uuid.New().String(), testutil.TenantID, testutil.SiteID, orderID, "key-replay",
				"17.30", "2.70", "CASH", "COMPLETED", nil, nil, nil, 1, now, now))

	result, err := svc.ProcessPayment(testutil.TenantContext(), &PaymentRequest{
		OrderID:        orderID,
		IdempotencyKey: "key-replay",
		Amount:         "20.00",
		Method:         domain.MethodCash,
	})
	require.NoError(t, err)
	assert.True(t, result.Replayed)
	assert.True(t, money.MustParse("17.30").Equal(result.Payment.Amount))
	assert.True(t, money.MustParse("2.70").Equal(result.Change))

	// The replay never reaches the terminal, the balance or the bus.
	assert.Empty(t, term.Charges())
	assert.Empty(t, ledger.updated)
	pub.AssertNoEventsPublished(t)

	mockDB.ExpectationsWereMet(t)
}

func TestProcessPayment_ConcurrentDuplicateReplaysOriginal(t *testing.T) {
	orderID := uuid.New().String()
	ledger := &fakeLedger{orders: map[string]*ordersrepo.Order{
		orderID: confirmedOrder(orderID, "17.30"),
	}}
	svc, mockDB, _, pub := newTestService(t, ledger, &fakeCards{})
	defer mockDB.Close()

	// A racing request with the same key commits between this request's
	// pre-check and its insert; the unique index catches the loser.
	expectNoPriorPayment(mockDB)
	expectSumCompleted(mockDB, "0")
	mockDB.ExpectBegin()
	expectSumCompleted(mockDB, "0")
	mockDB.ExpectQuery("INSERT INTO payments").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "payments_tenant_id_idempotency_key_key"})
	mockDB.ExpectRollback()

	now := time.Now()
	mockDB.ExpectQuery("SELECT id, tenant_id, site_id, order_id, idempotency_key").
		WillReturnRows(testutil.MockRows(paymentColumns()...).
			AddRow(uuid.New().String(), testutil.TenantID, testutil.SiteID, orderID, "key-race",
				"17.30", "2.70", "CASH", "COMPLETED", nil, nil, nil, 1, now, now))

	result, err := svc.ProcessPayment(testutil.TenantContext(), &PaymentRequest{
		OrderID:        orderID,
		IdempotencyKey: "key-race",
		Amount:         "20.00",
		Method:         domain.MethodCash,
	})
	require.NoError(t, err)
	assert.True(t, result.Replayed)
	assert.True(t, money.MustParse("17.30").Equal(result.Payment.Amount))
	assert.True(t, money.MustParse("2.70").Equal(result.Change))

	// The winner already published; the loser stays quiet.
	pub.AssertNoEventsPublished(t)

	mockDB.ExpectationsWereMet(t)
}

func TestProcessPayment_MixedSettlesWithoutTerminal(t *testing.T) {
	orderID := uuid.New().String()
	ledger := &fakeLedger{orders: map[string]*ordersrepo.Order{
		orderID: confirmedOrder(orderID, "17.30"),
	}}
	svc, mockDB, term, pub := newTestService(t, ledger, &fakeCards{})
	defer mockDB.Close()

	expectNoPriorPayment(mockDB)
	expectSumCompleted(mockDB, "0")
	mockDB.ExpectBegin()
	expectSumCompleted(mockDB, "0")
	expectInsertPayment(mockDB, orderID, "key-mixed-001", "10.00", "0", "MIXED", "COMPLETED")
	mockDB.ExpectExec("UPDATE payment_splits").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mockDB.ExpectCommit()

	result, err := svc.ProcessPayment(testutil.TenantContext(), &PaymentRequest{
		OrderID:        orderID,
		IdempotencyKey: "key-mixed-001",
		Amount:         "10.00",
		Method:         domain.MethodMixed,
	})
	require.NoError(t, err)
	assert.True(t, result.Change.IsZero())
	assert.Empty(t, term.Charges())

	// Partial settlement leaves the order CONFIRMED.
	assert.Equal(t, ordersdomain.OrderConfirmed, ledger.orders[orderID].Status)
	pub.AssertEventPublished(t, messaging.EventPaymentCompleted)

	mockDB.ExpectationsWereMet(t)
}

func TestProcessPayment_CardApproved(t *testing.T) {
	orderID := uuid.New().String()
	ledger := &fakeLedger{orders: map[string]*ordersrepo.Order{
		orderID: confirmedOrder(orderID, "25.00"),
	}}
	svc, mockDB, term, pub := newTestService(t, ledger, &fakeCards{})
	defer mockDB.Close()

	expectNoPriorPayment(mockDB)
	expectSumCompleted(mockDB, "0")
	mockDB.ExpectBegin()
	expectSumCompleted(mockDB, "0")
	expectInsertPayment(mockDB, orderID, "key-card-0001", "25.00", "0.00", "CARD", "COMPLETED")
	mockDB.ExpectExec("UPDATE payment_splits").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mockDB.ExpectCommit()

	_, err := svc.ProcessPayment(testutil.TenantContext(), &PaymentRequest{
		OrderID:        orderID,
		IdempotencyKey: "key-card-0001",
		Amount:         "25.00",
		Method:         domain.MethodCard,
		CardLastFour:   "4242",
	})
	require.NoError(t, err)

	charges := term.Charges()
	require.Len(t, charges, 1)
	assert.Equal(t, terminal.OutcomeApproved, charges[0].Outcome)
	pub.AssertEventPublished(t, messaging.EventPaymentCompleted)

	mockDB.ExpectationsWereMet(t)
}

func TestProcessPayment_CardDeclined(t *testing.T) {
	orderID := uuid.New().String()
	ledger := &fakeLedger{orders: map[string]*ordersrepo.Order{
		orderID: confirmedOrder(orderID, "10.13"),
	}}
	svc, mockDB, term, pub := newTestService(t, ledger, &fakeCards{})
	defer mockDB.Close()

	expectNoPriorPayment(mockDB)
	expectSumCompleted(mockDB, "0")
	// The declined attempt is still recorded for the audit trail.
	expectInsertPayment(mockDB, orderID, "key-card-decl", "10.13", "0.00", "CARD", "FAILED")

	_, err := svc.ProcessPayment(testutil.TenantContext(), &PaymentRequest{
		OrderID:        orderID,
		IdempotencyKey: "key-card-decl",
		Amount:         "10.13",
		Method:         domain.MethodCard,
	})
	require.Error(t, err)
	assert.Equal(t, domain.ReasonCardDeclined, errors.ReasonOf(err))

	charges := term.Charges()
	require.Len(t, charges, 1)
	assert.Equal(t, terminal.OutcomeDeclined, charges[0].Outcome)
	assert.Empty(t, ledger.updated)
	pub.AssertNoEventsPublished(t)

	mockDB.ExpectationsWereMet(t)
}

func TestProcessPayment_BlacklistedCard(t *testing.T) {
	orderID := uuid.New().String()
	ledger := &fakeLedger{orders: map[string]*ordersrepo.Order{
		orderID: confirmedOrder(orderID, "10.00"),
	}}
	svc, mockDB, term, _ := newTestService(t, ledger, &fakeCards{banned: map[string]bool{"6666": true}})
	defer mockDB.Close()

	expectNoPriorPayment(mockDB)

	_, err := svc.ProcessPayment(testutil.TenantContext(), &PaymentRequest{
		OrderID:        orderID,
		IdempotencyKey: "key-card-bad1",
		Amount:         "10.00",
		Method:         domain.MethodCard,
		CardLastFour:   "6666",
	})
	require.Error(t, err)
	assert.Equal(t, domain.ReasonCardBlacklisted, errors.ReasonOf(err))
	assert.Empty(t, term.Charges())
}

func TestProcessPayment_CardOverpaymentRejected(t *testing.T) {
	orderID := uuid.New().String()
	ledger := &fakeLedger{orders: map[string]*ordersrepo.Order{
		orderID: confirmedOrder(orderID, "10.00"),
	}}
	svc, mockDB, term, _ := newTestService(t, ledger, &fakeCards{})
	defer mockDB.Close()

	expectNoPriorPayment(mockDB)
	expectSumCompleted(mockDB, "4.00")

	_, err := svc.ProcessPayment(testutil.TenantContext(), &PaymentRequest{
		OrderID:        orderID,
		IdempotencyKey: "key-card-over",
		Amount:         "8.00",
		Method:         domain.MethodCard,
	})
	require.Error(t, err)
	assert.Equal(t, domain.ReasonOverpayment, errors.ReasonOf(err))
	assert.Empty(t, term.Charges())
}

func TestProcessPayment_OrderNotConfirmed(t *testing.T) {
	orderID := uuid.New().String()
	order := confirmedOrder(orderID, "10.00")
	order.Status = ordersdomain.OrderOpen
	ledger := &fakeLedger{orders: map[string]*ordersrepo.Order{orderID: order}}
	svc, mockDB, _, _ := newTestService(t, ledger, &fakeCards{})
	defer mockDB.Close()

	expectNoPriorPayment(mockDB)

	_, err := svc.ProcessPayment(testutil.TenantContext(), &PaymentRequest{
		OrderID:        orderID,
		IdempotencyKey: "key-open-0001",
		Amount:         "10.00",
		Method:         domain.MethodCash,
	})
	require.Error(t, err)
	assert.Equal(t, domain.ReasonOrderNotPayable, errors.ReasonOf(err))
}

func TestVoidPayment_RevertsPaidOrder(t *testing.T) {
	orderID := uuid.New().String()
	order := confirmedOrder(orderID, "10.00")
	order.Status = ordersdomain.OrderPaid
	ledger := &fakeLedger{orders: map[string]*ordersrepo.Order{orderID: order}}
	svc, mockDB, _, pub := newTestService(t, ledger, &fakeCards{})
	defer mockDB.Close()

	paymentID := uuid.New().String()
	now := time.Now()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT id, tenant_id, site_id, order_id, idempotency_key").
		WillReturnRows(testutil.MockRows(paymentColumns()...).
			AddRow(paymentID, testutil.TenantID, testutil.SiteID, orderID, "key-void-0001",
				"10.00", "0.00", "CASH", "COMPLETED", nil, nil, nil, 1, now, now))
	mockDB.ExpectExec("UPDATE payments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectQuery("INSERT INTO audit_logs").
		WillReturnRows(testutil.MockRows(
			"id", "tenant_id", "user_id", "action", "resource", "resource_id", "detail", "created_at").
			AddRow("a1", testutil.TenantID, testutil.UserID, "PAYMENT_VOID",
				"payments", paymentID, "wrong order", now))
	mockDB.ExpectCommit()

	payment, err := svc.VoidPayment(testutil.TenantContext(), paymentID, &VoidPaymentRequest{Reason: "wrong order"})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentVoided, payment.Status)
	assert.Equal(t, ordersdomain.OrderConfirmed, ledger.orders[orderID].Status)

	// The compensating cash movement is driven by this event.
	pub.AssertEventPublished(t, messaging.EventPaymentVoided)

	mockDB.ExpectationsWereMet(t)
}

func TestVoidPayment_RequiresPermission(t *testing.T) {
	svc, mockDB, _, _ := newTestService(t, &fakeLedger{}, &fakeCards{})
	defer mockDB.Close()

	ctx := testutil.TenantContextFor(testutil.TenantID, testutil.UserID, "WAITER")
	_, err := svc.VoidPayment(ctx, uuid.New().String(), &VoidPaymentRequest{Reason: "nope"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeAuthorization, errors.Code(err))
}

func TestSplitBill_RemainderCentsOnFirstParts(t *testing.T) {
	orderID := uuid.New().String()
	ledger := &fakeLedger{orders: map[string]*ordersrepo.Order{
		orderID: confirmedOrder(orderID, "10.00"),
	}}
	svc, mockDB, _, _ := newTestService(t, ledger, &fakeCards{})
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT COUNT(*) FROM payment_splits").
		WillReturnRows(testutil.MockRows("count").AddRow(0))
	expectSumCompleted(mockDB, "0")
	for i := 0; i < 3; i++ {
		mockDB.ExpectExec("INSERT INTO payment_splits").
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mockDB.ExpectCommit()

	splits, err := svc.SplitBill(testutil.TenantContext(), orderID, &SplitRequest{Parts: 3})
	require.NoError(t, err)
	require.Len(t, splits, 3)
	assert.True(t, money.MustParse("3.34").Equal(splits[0].Amount))
	assert.True(t, money.MustParse("3.33").Equal(splits[1].Amount))
	assert.True(t, money.MustParse("3.33").Equal(splits[2].Amount))

	sum := decimal.Zero
	for _, s := range splits {
		sum = sum.Add(s.Amount)
	}
	assert.True(t, money.MustParse("10.00").Equal(sum))

	mockDB.ExpectationsWereMet(t)
}

func TestSplitBill_SecondSplitRejected(t *testing.T) {
	orderID := uuid.New().String()
	ledger := &fakeLedger{orders: map[string]*ordersrepo.Order{
		orderID: confirmedOrder(orderID, "10.00"),
	}}
	svc, mockDB, _, _ := newTestService(t, ledger, &fakeCards{})
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT COUNT(*) FROM payment_splits").
		WillReturnRows(testutil.MockRows("count").AddRow(2))
	mockDB.ExpectRollback()

	_, err := svc.SplitBill(testutil.TenantContext(), orderID, &SplitRequest{Parts: 2})
	require.Error(t, err)
	assert.Equal(t, domain.ReasonSplitAlreadyExists, errors.ReasonOf(err))
}

func TestGenerateFiscalDocument_SequentialNumbering(t *testing.T) {
	orderID := uuid.New().String()
	order := confirmedOrder(orderID, "17.30")
	order.Status = ordersdomain.OrderPaid
	ledger := &fakeLedger{orders: map[string]*ordersrepo.Order{orderID: order}}
	svc, mockDB, _, pub := newTestService(t, ledger, &fakeCards{})
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectExec("SELECT pg_advisory_xact_lock(hashtext($1))").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mockDB.ExpectQuery("SELECT COALESCE(MAX(document_number), 0) + 1 FROM fiscal_documents").
		WillReturnRows(testutil.MockRows("next").AddRow(42))
	mockDB.ExpectQuery("INSERT INTO fiscal_documents").
		WillReturnRows(testutil.MockRows(
			"id", "tenant_id", "site_id", "order_id", "document_type", "document_number",
			"customer_tax_id", "total_amount", "voided", "issued_at").
			AddRow(uuid.New().String(), testutil.TenantID, testutil.SiteID, orderID, "RECEIPT", 42,
				nil, "17.30", false, time.Now()))
	mockDB.ExpectCommit()

	doc, err := svc.GenerateFiscalDocument(testutil.TenantContext(), &FiscalRequest{
		OrderID:      orderID,
		DocumentType: domain.DocReceipt,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), doc.DocumentNumber)
	pub.AssertEventPublished(t, messaging.EventFiscalDocumentGenerated)

	mockDB.ExpectationsWereMet(t)
}

func TestGenerateFiscalDocument_InvoiceNeedsTaxID(t *testing.T) {
	svc, mockDB, _, _ := newTestService(t, &fakeLedger{}, &fakeCards{})
	defer mockDB.Close()

	_, err := svc.GenerateFiscalDocument(testutil.TenantContext(), &FiscalRequest{
		OrderID:      uuid.New().String(),
		DocumentType: domain.DocInvoice,
	})
	require.Error(t, err)
	assert.Equal(t, domain.ReasonInvoiceNeedsTaxID, errors.ReasonOf(err))
}

func TestPrintSubtotal_SkipsVoidedLines(t *testing.T) {
	orderID := uuid.New().String()
	ledger := &fakeLedger{
		orders: map[string]*ordersrepo.Order{orderID: confirmedOrder(orderID, "5.00")},
		lines: map[string][]ordersrepo.Line{orderID: {
			{ItemName: "Espresso", Quantity: 2, UnitPrice: money.MustParse("2.50"), Status: ordersdomain.LineConfirmed},
			{ItemName: "Galão", Quantity: 1, UnitPrice: money.MustParse("1.80"), Status: ordersdomain.LineVoided},
		}},
	}
	svc, mockDB, _, _ := newTestService(t, ledger, &fakeCards{})
	defer mockDB.Close()

	expectSumCompleted(mockDB, "2.00")
	mockDB.ExpectQuery("SELECT id, tenant_id, order_id, split_number").
		WillReturnRows(testutil.MockRows("id", "tenant_id", "order_id", "split_number", "amount", "status", "payment_id", "created_at"))

	sub, err := svc.PrintSubtotal(testutil.TenantContext(), orderID)
	require.NoError(t, err)
	require.Len(t, sub.Lines, 1)
	assert.Equal(t, "Espresso", sub.Lines[0].ItemName)
	assert.True(t, money.MustParse("5.00").Equal(sub.Lines[0].Total))
	assert.True(t, money.MustParse("3.00").Equal(sub.Outstanding))

	mockDB.ExpectationsWereMet(t)
}
