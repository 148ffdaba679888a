package service

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesapos/mesa-backend/internal/diningroom/domain"
	"github.com/mesapos/mesa-backend/internal/diningroom/repository"
	"github.com/mesapos/mesa-backend/pkg/errors"
	"github.com/mesapos/mesa-backend/pkg/logger"
	"github.com/mesapos/mesa-backend/pkg/testutil"
)

func newTestService(t *testing.T) (*Service, *testutil.MockDB) {
	mockDB := testutil.NewMockDB(t)
	return New(repository.New(mockDB.DB), logger.Nop()), mockDB
}

func tableColumns() []string {
	return []string{"id", "tenant_id", "site_id", "table_number", "status", "version", "created_at", "updated_at"}
}

func expectGetTable(mockDB *testutil.MockDB, tableID, status string, version int64) {
	now := time.Now()
	mockDB.ExpectQuery("FROM dining_tables WHERE tenant_id").
		WillReturnRows(testutil.MockRows(tableColumns()...).
			AddRow(tableID, testutil.TenantID, testutil.SiteID, 7, status, version, now, now))
}

func expectNotBlacklisted(mockDB *testutil.MockDB) {
	mockDB.ExpectQuery("SELECT EXISTS").
		WillReturnRows(testutil.MockRows("exists").AddRow(false))
}

func TestOccupyTable_AvailableBecomesOccupied(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()

	tableID := uuid.New().String()
	expectGetTable(mockDB, tableID, domain.TableAvailable, 1)
	expectNotBlacklisted(mockDB)
	mockDB.ExpectExec("UPDATE dining_tables").
		WillReturnResult(sqlmock.NewResult(0, 1))

	table, err := svc.OccupyTable(testutil.TenantContext(), tableID)
	require.NoError(t, err)
	assert.Equal(t, domain.TableOccupied, table.Status)
	assert.Equal(t, int64(2), table.Version)

	mockDB.ExpectationsWereMet(t)
}

func TestOccupyTable_ConcurrentWriterWins(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()

	tableID := uuid.New().String()
	expectGetTable(mockDB, tableID, domain.TableAvailable, 1)
	expectNotBlacklisted(mockDB)
	// The version predicate misses: another request already seated the
	// table between our read and our write.
	mockDB.ExpectExec("UPDATE dining_tables").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := svc.OccupyTable(testutil.TenantContext(), tableID)
	require.Error(t, err)
	assert.Equal(t, errors.CodeConflict, errors.Code(err))

	mockDB.ExpectationsWereMet(t)
}

func TestOccupyTable_RejectsBlacklistedTable(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()

	tableID := uuid.New().String()
	expectGetTable(mockDB, tableID, domain.TableAvailable, 1)
	mockDB.ExpectQuery("SELECT EXISTS").
		WillReturnRows(testutil.MockRows("exists").AddRow(true))

	_, err := svc.OccupyTable(testutil.TenantContext(), tableID)
	require.Error(t, err)
	assert.Equal(t, domain.ReasonTableBlacklisted, errors.ReasonOf(err))
}

func TestOccupyTable_RejectsBlockedTable(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()

	tableID := uuid.New().String()
	expectGetTable(mockDB, tableID, domain.TableBlocked, 1)
	expectNotBlacklisted(mockDB)

	_, err := svc.OccupyTable(testutil.TenantContext(), tableID)
	require.Error(t, err)
	assert.Equal(t, domain.ReasonTableNotAvailable, errors.ReasonOf(err))
}

func TestReleaseTable_AvailableIsNoOp(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()

	tableID := uuid.New().String()
	expectGetTable(mockDB, tableID, domain.TableAvailable, 3)

	require.NoError(t, svc.ReleaseTable(testutil.TenantContext(), tableID))
	mockDB.ExpectationsWereMet(t)
}

func TestSetTableStatus_OccupiedWithOpenOrdersStaysOccupied(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()

	tableID := uuid.New().String()
	expectGetTable(mockDB, tableID, domain.TableOccupied, 2)
	mockDB.ExpectQuery("SELECT COUNT(*) FROM orders").
		WillReturnRows(testutil.MockRows("count").AddRow(1))

	_, err := svc.SetTableStatus(testutil.TenantContext(), tableID, domain.TableAvailable, 2)
	require.Error(t, err)
	assert.Equal(t, domain.ReasonTableOccupied, errors.ReasonOf(err))
}
