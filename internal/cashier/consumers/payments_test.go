package consumers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mesapos/mesa-backend/internal/cashier/repository"
	"github.com/mesapos/mesa-backend/pkg/logger"
	"github.com/mesapos/mesa-backend/pkg/messaging"
	"github.com/mesapos/mesa-backend/pkg/money"
	"github.com/mesapos/mesa-backend/pkg/testutil"
)

func completedEvent(t *testing.T, method string) *messaging.Event {
	t.Helper()
	event, err := messaging.NewEvent(messaging.EventPaymentCompleted, "test", "", messaging.PaymentCompletedEvent{
		PaymentID:   uuid.New().String(),
		OrderID:     uuid.New().String(),
		TenantID:    testutil.TenantID,
		SiteID:      testutil.SiteID,
		Amount:      money.MustParse("17.30"),
		Method:      method,
		CompletedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return event
}

func voidedEvent(t *testing.T, method string) *messaging.Event {
	t.Helper()
	event, err := messaging.NewEvent(messaging.EventPaymentVoided, "test", "", messaging.PaymentVoidedEvent{
		PaymentID: uuid.New().String(),
		OrderID:   uuid.New().String(),
		TenantID:  testutil.TenantID,
		SiteID:    testutil.SiteID,
		Amount:    money.MustParse("17.30"),
		Method:    method,
		Reason:    "wrong order",
		VoidedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)
	return event
}

func expectOpenSession(mockDB *testutil.MockDB, sessionID string) {
	now := time.Now()
	mockDB.ExpectQuery("FROM cash_sessions").
		WillReturnRows(testutil.MockRows(
			"id", "tenant_id", "site_id", "register_id", "opened_by", "closed_by",
			"opening_amount", "expected_amount", "actual_amount", "variance",
			"status", "version", "opened_at", "closed_at").
			AddRow(sessionID, testutil.TenantID, testutil.SiteID, uuid.New().String(), testutil.UserID, nil,
				"100.00", nil, nil, nil, "OPEN", 1, now, nil))
}

func expectInsertMovement(mockDB *testutil.MockDB, sessionID, movementType string) {
	mockDB.ExpectQuery("INSERT INTO cash_movements").
		WillReturnRows(testutil.MockRows(
			"id", "tenant_id", "session_id", "movement_type", "amount", "payment_id",
			"reference", "performed_by", "created_at").
			AddRow(uuid.New().String(), testutil.TenantID, sessionID, movementType, "17.30",
				uuid.New().String(), "", nil, time.Now()))
}

func TestHandleCompleted_RecordsSaleMovement(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	consumer := NewPaymentConsumer(mockDB.DB, repository.New(mockDB.DB), logger.Nop())

	sessionID := uuid.New().String()
	mockDB.ExpectBegin()
	expectOpenSession(mockDB, sessionID)
	expectInsertMovement(mockDB, sessionID, "SALE")
	mockDB.ExpectCommit()

	err := consumer.HandleCompleted(context.Background(), completedEvent(t, "CASH"))
	require.NoError(t, err)
	mockDB.ExpectationsWereMet(t)
}

func TestHandleCompleted_SkipsWhenNoOpenSession(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	consumer := NewPaymentConsumer(mockDB.DB, repository.New(mockDB.DB), logger.Nop())

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM cash_sessions").
		WillReturnRows(testutil.MockRows("id"))
	mockDB.ExpectCommit()

	err := consumer.HandleCompleted(context.Background(), completedEvent(t, "CASH"))
	require.NoError(t, err)
	mockDB.ExpectationsWereMet(t)
}

func TestHandleCompleted_IgnoresNonCash(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	consumer := NewPaymentConsumer(mockDB.DB, repository.New(mockDB.DB), logger.Nop())

	err := consumer.HandleCompleted(context.Background(), completedEvent(t, "CARD"))
	require.NoError(t, err)
	mockDB.ExpectationsWereMet(t)
}

func TestHandleVoided_RecordsRefundMovement(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	consumer := NewPaymentConsumer(mockDB.DB, repository.New(mockDB.DB), logger.Nop())

	sessionID := uuid.New().String()
	mockDB.ExpectBegin()
	expectOpenSession(mockDB, sessionID)
	expectInsertMovement(mockDB, sessionID, "REFUND")
	mockDB.ExpectCommit()

	err := consumer.HandleVoided(context.Background(), voidedEvent(t, "CASH"))
	require.NoError(t, err)
	mockDB.ExpectationsWereMet(t)
}

func TestHandleVoided_IgnoresCardRefunds(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	consumer := NewPaymentConsumer(mockDB.DB, repository.New(mockDB.DB), logger.Nop())

	err := consumer.HandleVoided(context.Background(), voidedEvent(t, "CARD"))
	require.NoError(t, err)
	mockDB.ExpectationsWereMet(t)
}
