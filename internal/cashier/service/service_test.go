package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesapos/mesa-backend/internal/cashier/domain"
	"github.com/mesapos/mesa-backend/internal/cashier/repository"
	tenancyrepo "github.com/mesapos/mesa-backend/internal/tenancy/repository"
	"github.com/mesapos/mesa-backend/pkg/errors"
	"github.com/mesapos/mesa-backend/pkg/logger"
	"github.com/mesapos/mesa-backend/pkg/money"
	"github.com/mesapos/mesa-backend/pkg/testutil"
)

type fakeSites struct {
	sites map[string]*tenancyrepo.Site
}

func (f *fakeSites) GetSite(_ context.Context, _, siteID string) (*tenancyrepo.Site, error) {
	site, ok := f.sites[siteID]
	if !ok {
		return nil, errors.NotFound("site")
	}
	return site, nil
}

func newTestService(t *testing.T) (*Service, *testutil.MockDB) {
	mockDB := testutil.NewMockDB(t)
	svc := New(mockDB.DB, repository.New(mockDB.DB), &fakeSites{}, logger.Nop())
	return svc, mockDB
}

func sessionColumns() []string {
	return []string{
		"id", "tenant_id", "site_id", "register_id", "opened_by", "closed_by",
		"opening_amount", "expected_amount", "actual_amount", "variance",
		"status", "version", "opened_at", "closed_at",
	}
}

func openSessionRow(sessionID, registerID, opening string) *sqlmock.Rows {
	return testutil.MockRows(sessionColumns()...).
		AddRow(sessionID, testutil.TenantID, testutil.SiteID, registerID, testutil.UserID, nil,
			opening, nil, nil, nil, "OPEN", 1, time.Now(), nil)
}

func movementColumns() []string {
	return []string{
		"id", "tenant_id", "session_id", "movement_type", "amount", "payment_id",
		"reference", "performed_by", "created_at",
	}
}

func TestOpenSession_RegisterAlreadyOpen(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()

	registerID := uuid.New().String()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT id, tenant_id, site_id, name, created_at").
		WillReturnRows(testutil.MockRows("id", "tenant_id", "site_id", "name", "created_at").
			AddRow(registerID, testutil.TenantID, testutil.SiteID, "Till 1", time.Now()))
	mockDB.ExpectQuery("FROM cash_sessions").
		WillReturnRows(openSessionRow(uuid.New().String(), registerID, "100.00"))
	mockDB.ExpectRollback()

	_, err := svc.OpenSession(testutil.TenantContext(), &OpenSessionRequest{
		RegisterID:    registerID,
		OpeningAmount: "100.00",
	})
	require.Error(t, err)
	assert.Equal(t, domain.ReasonSessionAlreadyOpen, errors.ReasonOf(err))
}

func TestCloseSession_ComputesVariance(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()

	sessionID := uuid.New().String()
	registerID := uuid.New().String()
	now := time.Now()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM cash_sessions").
		WillReturnRows(openSessionRow(sessionID, registerID, "100.00"))
	mockDB.ExpectQuery("FROM cash_movements").
		WillReturnRows(testutil.MockRows(movementColumns()...).
			AddRow(uuid.New().String(), testutil.TenantID, sessionID, "OPENING", "100.00", nil, "", testutil.UserID, now).
			AddRow(uuid.New().String(), testutil.TenantID, sessionID, "SALE", "50.50", uuid.New().String(), "", nil, now).
			AddRow(uuid.New().String(), testutil.TenantID, sessionID, "WITHDRAWAL", "20.00", nil, "bank run", testutil.UserID, now))
	mockDB.ExpectQuery("INSERT INTO cash_movements").
		WillReturnRows(testutil.MockRows(movementColumns()...).
			AddRow(uuid.New().String(), testutil.TenantID, sessionID, "CLOSING", "130.00", nil, "", testutil.UserID, now))
	mockDB.ExpectExec("UPDATE cash_sessions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	session, err := svc.CloseSession(testutil.TenantContext(), sessionID, &CloseSessionRequest{
		ActualAmount: "130.00",
		Version:      1,
	})
	require.NoError(t, err)

	// 100 float + 50.50 sales - 20 withdrawal = 130.50 expected; the
	// drawer held 130.00, a 0.50 shortage.
	require.NotNil(t, session.ExpectedAmount)
	require.NotNil(t, session.Variance)
	assert.True(t, money.MustParse("130.50").Equal(*session.ExpectedAmount))
	assert.True(t, money.MustParse("-0.50").Equal(*session.Variance))
	assert.Equal(t, domain.SessionClosed, session.Status)

	mockDB.ExpectationsWereMet(t)
}

func TestCloseSession_RequiresPermission(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()

	ctx := testutil.TenantContextFor(testutil.TenantID, testutil.UserID, "WAITER")
	_, err := svc.CloseSession(ctx, uuid.New().String(), &CloseSessionRequest{
		ActualAmount: "100.00",
		Version:      1,
	})
	require.Error(t, err)
	assert.Equal(t, errors.CodeAuthorization, errors.Code(err))
}

func TestRecordMovement_ManualTypesOnly(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()

	_, err := svc.RecordMovement(testutil.TenantContext(), uuid.New().String(), &MovementRequest{
		MovementType: domain.MovementSale,
		Amount:       "10.00",
	})
	require.Error(t, err)
	assert.Equal(t, domain.ReasonManualTypeOnly, errors.ReasonOf(err))
}

func TestRecordMovement_ClosedSession(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()

	sessionID := uuid.New().String()
	closed := money.MustParse("100.00")
	zero := money.MustParse("0.00")
	now := time.Now()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM cash_sessions").
		WillReturnRows(testutil.MockRows(sessionColumns()...).
			AddRow(sessionID, testutil.TenantID, testutil.SiteID, uuid.New().String(), testutil.UserID, testutil.UserID,
				"100.00", closed, closed, zero, "CLOSED", 2, now, now))
	mockDB.ExpectRollback()

	_, err := svc.RecordMovement(testutil.TenantContext(), sessionID, &MovementRequest{
		MovementType: domain.MovementDeposit,
		Amount:       "10.00",
	})
	require.Error(t, err)
	assert.Equal(t, domain.ReasonSessionNotOpen, errors.ReasonOf(err))
}

func TestCreateClosing_AggregatesSessions(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	now := time.Now()
	varianceA := money.MustParse("-0.50")
	varianceB := money.MustParse("1.20")
	hundred := money.MustParse("100.00")

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM cash_sessions").
		WillReturnRows(testutil.MockRows(sessionColumns()...).
			AddRow(uuid.New().String(), testutil.TenantID, testutil.SiteID, uuid.New().String(), testutil.UserID, testutil.UserID,
				"100.00", hundred, hundred, varianceA, "CLOSED", 2, now, now).
			AddRow(uuid.New().String(), testutil.TenantID, testutil.SiteID, uuid.New().String(), testutil.UserID, testutil.UserID,
				"100.00", hundred, hundred, varianceB, "CLOSED", 2, now, now))
	mockDB.ExpectQuery("FROM cash_movements m").
		WillReturnRows(testutil.MockRows("total_sales", "total_refunds").
			AddRow("950.00", "25.00"))
	mockDB.ExpectQuery("INSERT INTO cash_closings").
		WillReturnRows(testutil.MockRows(
			"id", "tenant_id", "site_id", "register_id", "closing_type", "period_start",
			"period_end", "total_sales", "total_refunds", "total_variance",
			"session_count", "created_by", "created_at").
			AddRow(uuid.New().String(), testutil.TenantID, nil, nil, "FINANCIAL_PERIOD", from,
				to, "950.00", "25.00", "0.70", 2, testutil.UserID, now))
	mockDB.ExpectCommit()

	closing, err := svc.CreateClosing(testutil.TenantContext(), &ClosingRequest{
		ClosingType: domain.ClosingFinancialPeriod,
		PeriodStart: &from,
		PeriodEnd:   &to,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, closing.SessionCount)
	assert.True(t, money.MustParse("950.00").Equal(closing.TotalSales))
	assert.True(t, money.MustParse("0.70").Equal(closing.TotalVariance))

	mockDB.ExpectationsWereMet(t)
}

func TestReprintClosing_RendersStoredRecord(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()

	closingID := uuid.New().String()
	from := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	mockDB.ExpectQuery("FROM cash_closings WHERE tenant_id").
		WillReturnRows(testutil.MockRows(
			"id", "tenant_id", "site_id", "register_id", "closing_type", "period_start",
			"period_end", "total_sales", "total_refunds", "total_variance",
			"session_count", "created_by", "created_at").
			AddRow(closingID, testutil.TenantID, testutil.SiteID, nil, "DAY", from,
				to, "950.00", "25.00", "-0.70", 2, testutil.UserID, time.Now()))

	reprint, err := svc.ReprintClosing(testutil.TenantContext(), closingID)
	require.NoError(t, err)
	assert.Contains(t, reprint.Content, "FECHO DAY")
	assert.Contains(t, reprint.Content, "VENDAS    950.00")
	assert.Contains(t, reprint.Content, "DIFERENCA -0.70")
	assert.Equal(t, closingID, reprint.Closing.ID)

	mockDB.ExpectationsWereMet(t)
}

func TestReprintClosing_RequiresPermission(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()

	ctx := testutil.TenantContextFor(testutil.TenantID, testutil.UserID, "WAITER")
	_, err := svc.ReprintClosing(ctx, uuid.New().String())
	require.Error(t, err)
	assert.Equal(t, errors.CodeAuthorization, errors.Code(err))
}
