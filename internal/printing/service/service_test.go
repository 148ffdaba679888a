package service

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesapos/mesa-backend/internal/printing/domain"
	"github.com/mesapos/mesa-backend/internal/printing/repository"
	"github.com/mesapos/mesa-backend/internal/printing/transmit"
	"github.com/mesapos/mesa-backend/pkg/errors"
	"github.com/mesapos/mesa-backend/pkg/logger"
	"github.com/mesapos/mesa-backend/pkg/messaging"
	"github.com/mesapos/mesa-backend/pkg/testutil"
)

func newTestService(t *testing.T) (*Service, *testutil.MockDB, *transmit.Spool) {
	mockDB := testutil.NewMockDB(t)
	spool := transmit.NewSpool(logger.Nop())
	svc := New(mockDB.DB, repository.New(mockDB.DB), spool, time.Second, logger.Nop())
	return svc, mockDB, spool
}

func printerColumns() []string {
	return []string{"id", "tenant_id", "site_id", "name", "status", "redirect_to_printer_id", "created_at", "updated_at"}
}

func printerRow(printerID, status string, redirectTo *string) *sqlmock.Rows {
	now := time.Now()
	return testutil.MockRows(printerColumns()...).
		AddRow(printerID, testutil.TenantID, testutil.SiteID, "Kitchen", status, redirectTo, now, now)
}

func routeRow(category, printerID string) *sqlmock.Rows {
	return testutil.MockRows("id", "tenant_id", "site_id", "category", "printer_id").
		AddRow(uuid.New().String(), testutil.TenantID, testutil.SiteID, category, printerID)
}

func jobColumns() []string {
	return []string{
		"id", "tenant_id", "site_id", "order_id", "line_id", "printer_id", "dedupe_key",
		"status", "content", "attempts", "last_error", "created_at", "printed_at",
	}
}

func jobRow(jobID, orderID, lineID, printerID, status, content string) *sqlmock.Rows {
	return testutil.MockRows(jobColumns()...).
		AddRow(jobID, testutil.TenantID, testutil.SiteID, orderID, lineID, printerID,
			"key", status, content, 0, nil, time.Now(), nil)
}

func confirmedEvent(orderID, lineID string, table int) *messaging.OrderConfirmedEvent {
	return &messaging.OrderConfirmedEvent{
		OrderID:     orderID,
		TenantID:    testutil.TenantID,
		SiteID:      testutil.SiteID,
		TableNumber: &table,
		ConfirmSeq:  1,
		Lines: []messaging.ConfirmedLine{
			{LineID: lineID, ItemID: uuid.New().String(), ItemName: "Bacalhau", Category: "KITCHEN", Quantity: 2},
		},
		ConfirmedAt: time.Now().UTC(),
	}
}

func TestDispatch_NormalPrinterTransmits(t *testing.T) {
	svc, mockDB, spool := newTestService(t)
	defer mockDB.Close()

	orderID := uuid.New().String()
	lineID := uuid.New().String()
	printerID := uuid.New().String()
	jobID := uuid.New().String()

	mockDB.ExpectQuery("FROM printer_routes").
		WillReturnRows(routeRow("KITCHEN", printerID))
	mockDB.ExpectQuery("FROM printers").
		WillReturnRows(printerRow(printerID, "NORMAL", nil))
	mockDB.ExpectQuery("INSERT INTO print_jobs").
		WillReturnRows(jobRow(jobID, orderID, lineID, printerID, "PENDING", "MESA 7\n2x Bacalhau\n"))
	mockDB.ExpectExec("UPDATE print_jobs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.Dispatch(testutil.TenantContext(), confirmedEvent(orderID, lineID, 7))
	require.NoError(t, err)

	sent := spool.Sent(printerID)
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "MESA 7")
	assert.Contains(t, sent[0], "2x Bacalhau")

	mockDB.ExpectationsWereMet(t)
}

func TestDispatch_IgnoredPrinterSkips(t *testing.T) {
	svc, mockDB, spool := newTestService(t)
	defer mockDB.Close()

	orderID := uuid.New().String()
	lineID := uuid.New().String()
	printerID := uuid.New().String()

	mockDB.ExpectQuery("FROM printer_routes").
		WillReturnRows(routeRow("KITCHEN", printerID))
	mockDB.ExpectQuery("FROM printers").
		WillReturnRows(printerRow(printerID, "IGNORE", nil))
	mockDB.ExpectQuery("INSERT INTO print_jobs").
		WillReturnRows(jobRow(uuid.New().String(), orderID, lineID, printerID, "SKIPPED", ""))

	err := svc.Dispatch(testutil.TenantContext(), confirmedEvent(orderID, lineID, 7))
	require.NoError(t, err)
	assert.Empty(t, spool.Sent(printerID))

	mockDB.ExpectationsWereMet(t)
}

func TestDispatch_RedirectChainLandsOnTarget(t *testing.T) {
	svc, mockDB, spool := newTestService(t)
	defer mockDB.Close()

	orderID := uuid.New().String()
	lineID := uuid.New().String()
	redirecting := uuid.New().String()
	target := uuid.New().String()

	mockDB.ExpectQuery("FROM printer_routes").
		WillReturnRows(routeRow("KITCHEN", redirecting))
	mockDB.ExpectQuery("FROM printers").
		WillReturnRows(printerRow(redirecting, "REDIRECT", &target))
	mockDB.ExpectQuery("FROM printers").
		WillReturnRows(printerRow(target, "NORMAL", nil))
	mockDB.ExpectQuery("INSERT INTO print_jobs").
		WillReturnRows(jobRow(uuid.New().String(), orderID, lineID, target, "PENDING", "2x Bacalhau\n"))
	mockDB.ExpectExec("UPDATE print_jobs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.Dispatch(testutil.TenantContext(), confirmedEvent(orderID, lineID, 7))
	require.NoError(t, err)

	require.Len(t, spool.Sent(target), 1)
	assert.Empty(t, spool.Sent(redirecting))

	mockDB.ExpectationsWereMet(t)
}

func TestDispatch_DedupeCollisionIgnored(t *testing.T) {
	svc, mockDB, spool := newTestService(t)
	defer mockDB.Close()

	printerID := uuid.New().String()

	mockDB.ExpectQuery("FROM printer_routes").
		WillReturnRows(routeRow("KITCHEN", printerID))
	mockDB.ExpectQuery("FROM printers").
		WillReturnRows(printerRow(printerID, "NORMAL", nil))
	mockDB.ExpectQuery("INSERT INTO print_jobs").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "print_jobs_tenant_id_dedupe_key_key"})

	err := svc.Dispatch(testutil.TenantContext(), confirmedEvent(uuid.New().String(), uuid.New().String(), 7))
	require.NoError(t, err)
	assert.Empty(t, spool.Sent(printerID))

	mockDB.ExpectationsWereMet(t)
}

func TestDispatch_NoRouteSkipsLine(t *testing.T) {
	svc, mockDB, spool := newTestService(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("FROM printer_routes").
		WillReturnRows(testutil.MockRows("id", "tenant_id", "site_id", "category", "printer_id"))

	err := svc.Dispatch(testutil.TenantContext(), confirmedEvent(uuid.New().String(), uuid.New().String(), 7))
	require.NoError(t, err)
	assert.Empty(t, spool.Sent("any"))

	mockDB.ExpectationsWereMet(t)
}

func TestSetPrinterStatus_RejectsCycle(t *testing.T) {
	svc, mockDB, _ := newTestService(t)
	defer mockDB.Close()

	printerA := uuid.New().String()
	printerB := uuid.New().String()

	// B already redirects to A, so A → B would loop.
	mockDB.ExpectQuery("FROM printers").
		WillReturnRows(printerRow(printerB, "REDIRECT", &printerA))

	_, err := svc.SetPrinterStatus(testutil.TenantContext(), printerA, &StatusRequest{
		Status:              domain.PrinterRedirect,
		RedirectToPrinterID: &printerB,
	})
	require.Error(t, err)
	assert.Equal(t, domain.ReasonRedirectCycle, errors.ReasonOf(err))
}

func TestSetPrinterStatus_RedirectRequiresPermission(t *testing.T) {
	svc, mockDB, _ := newTestService(t)
	defer mockDB.Close()

	target := uuid.New().String()
	ctx := testutil.TenantContextFor(testutil.TenantID, testutil.UserID, "CASHIER")
	_, err := svc.SetPrinterStatus(ctx, uuid.New().String(), &StatusRequest{
		Status:              domain.PrinterRedirect,
		RedirectToPrinterID: &target,
	})
	require.Error(t, err)
	assert.Equal(t, errors.CodeAuthorization, errors.Code(err))
}

func TestSweepPending_TransmitsWhenPrinterRecovers(t *testing.T) {
	svc, mockDB, spool := newTestService(t)
	defer mockDB.Close()

	jobID := uuid.New().String()
	printerID := uuid.New().String()

	mockDB.ExpectQuery("FROM print_jobs WHERE status = 'PENDING'").
		WillReturnRows(jobRow(jobID, uuid.New().String(), uuid.New().String(), printerID, "PENDING", "1x Espresso\n"))
	mockDB.ExpectQuery("FROM printers").
		WillReturnRows(printerRow(printerID, "NORMAL", nil))
	mockDB.ExpectExec("UPDATE print_jobs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, svc.SweepPending(testutil.TenantContext()))
	require.Len(t, spool.Sent(printerID), 1)

	mockDB.ExpectationsWereMet(t)
}

func TestReprint_RequiresPermission(t *testing.T) {
	svc, mockDB, _ := newTestService(t)
	defer mockDB.Close()

	ctx := testutil.TenantContextFor(testutil.TenantID, testutil.UserID, "WAITER")
	_, err := svc.Reprint(ctx, uuid.New().String(), &ReprintRequest{PrinterID: uuid.New().String()})
	require.Error(t, err)
	assert.Equal(t, errors.CodeAuthorization, errors.Code(err))
}
