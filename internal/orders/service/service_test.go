package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalogrepo "github.com/mesapos/mesa-backend/internal/catalog/repository"
	diningdomain "github.com/mesapos/mesa-backend/internal/diningroom/domain"
	diningrepo "github.com/mesapos/mesa-backend/internal/diningroom/repository"
	"github.com/mesapos/mesa-backend/internal/orders/domain"
	"github.com/mesapos/mesa-backend/internal/orders/events"
	"github.com/mesapos/mesa-backend/internal/orders/repository"
	"github.com/mesapos/mesa-backend/pkg/errors"
	"github.com/mesapos/mesa-backend/pkg/logger"
	"github.com/mesapos/mesa-backend/pkg/messaging"
	"github.com/mesapos/mesa-backend/pkg/money"
	"github.com/mesapos/mesa-backend/pkg/testutil"
)

type fakeCatalog struct {
	items map[string]*catalogrepo.Item
}

func (f *fakeCatalog) GetItem(_ context.Context, _, itemID string) (*catalogrepo.Item, error) {
	item, ok := f.items[itemID]
	if !ok {
		return nil, errors.NotFound("item")
	}
	return item, nil
}

type fakeFloor struct {
	tables      map[string]*diningrepo.Table
	blacklisted map[string]bool
	occupied    []string
	released    []string
}

func (f *fakeFloor) GetTable(_ context.Context, tableID string) (*diningrepo.Table, error) {
	table, ok := f.tables[tableID]
	if !ok {
		return nil, errors.NotFound("table")
	}
	return table, nil
}

func (f *fakeFloor) OccupyTable(ctx context.Context, tableID string) (*diningrepo.Table, error) {
	table, err := f.GetTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	f.occupied = append(f.occupied, tableID)
	table.Status = "OCCUPIED"
	return table, nil
}

func (f *fakeFloor) ReleaseTable(_ context.Context, tableID string) error {
	f.released = append(f.released, tableID)
	return nil
}

func (f *fakeFloor) IsTableBlacklisted(_ context.Context, tableID string) (bool, error) {
	return f.blacklisted[tableID], nil
}

func newTestService(t *testing.T, catalog *fakeCatalog, floor *fakeFloor) (*Service, *testutil.MockDB, *testutil.MockPublisher) {
	mockDB := testutil.NewMockDB(t)
	pub := testutil.NewMockPublisher()
	svc := New(
		mockDB.DB,
		repository.New(mockDB.DB),
		catalog,
		floor,
		events.NewOrderEventPublisherWith(pub, logger.Nop()),
		logger.Nop(),
	)
	return svc, mockDB, pub
}

func TestCreate_DineInRequiresTable(t *testing.T) {
	svc, mockDB, _ := newTestService(t, &fakeCatalog{}, &fakeFloor{})
	defer mockDB.Close()

	_, err := svc.Create(testutil.TenantContext(), &CreateRequest{
		SiteID:    testutil.SiteID,
		OrderType: domain.TypeDineIn,
	})
	require.Error(t, err)
	assert.Equal(t, domain.ReasonTableRequired, errors.ReasonOf(err))
}

func TestCreate_DeliveryRequiresCustomer(t *testing.T) {
	svc, mockDB, _ := newTestService(t, &fakeCatalog{}, &fakeFloor{})
	defer mockDB.Close()

	_, err := svc.Create(testutil.TenantContext(), &CreateRequest{
		SiteID:    testutil.SiteID,
		OrderType: domain.TypeDelivery,
	})
	require.Error(t, err)
	assert.Equal(t, domain.ReasonCustomerRequired, errors.ReasonOf(err))
}

func orderRow(orderID, tableID, status string, confirmSeq int) *sqlmock.Rows {
	now := time.Now()
	return testutil.MockRows(
		"id", "tenant_id", "site_id", "table_id", "customer_id", "order_type", "status",
		"total_amount", "confirm_seq", "version", "created_at", "updated_at", "closed_at").
		AddRow(orderID, testutil.TenantID, testutil.SiteID, tableID, nil, "DINE_IN", status,
			"8.00", confirmSeq, 1, now, now, nil)
}

func lineColumns() []string {
	return []string{
		"id", "tenant_id", "order_id", "item_id", "item_name", "category", "quantity",
		"unit_price", "modifiers", "notes", "status", "version", "void_reason", "voided_at",
		"created_at", "updated_at",
	}
}

func TestConfirm_TransitionsLinesAndPublishes(t *testing.T) {
	tableID := uuid.New().String()
	floor := &fakeFloor{tables: map[string]*diningrepo.Table{
		tableID: {ID: tableID, TenantID: testutil.TenantID, SiteID: testutil.SiteID, TableNumber: 7, Status: "OCCUPIED", Version: 2},
	}}
	svc, mockDB, pub := newTestService(t, &fakeCatalog{}, floor)
	defer mockDB.Close()

	orderID := uuid.New().String()
	lineID := uuid.New().String()
	now := time.Now()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT id, tenant_id, site_id, table_id, customer_id, order_type, status").
		WillReturnRows(orderRow(orderID, tableID, "OPEN", 0))
	mockDB.ExpectQuery("UPDATE order_lines").
		WillReturnRows(testutil.MockRows(lineColumns()...).
			AddRow(lineID, testutil.TenantID, orderID, uuid.New().String(), "Espresso", "BAR", 2,
				"2.50", "", "", "CONFIRMED", 2, nil, nil, now, now))
	mockDB.ExpectExec("INSERT INTO consumptions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mockDB.ExpectExec("UPDATE orders").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	order, err := svc.Confirm(testutil.TenantContext(), orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderConfirmed, order.Status)
	assert.Equal(t, 1, order.ConfirmSeq)

	pub.AssertEventPublished(t, messaging.EventOrderConfirmed)
	published := pub.Events(messaging.EventOrderConfirmed)[0].Payload.(messaging.OrderConfirmedEvent)
	assert.Equal(t, orderID, published.OrderID)
	require.NotNil(t, published.TableNumber)
	assert.Equal(t, 7, *published.TableNumber)
	require.Len(t, published.Lines, 1)
	assert.Equal(t, "Espresso", published.Lines[0].ItemName)

	mockDB.ExpectationsWereMet(t)
}

func TestConfirm_NoPendingLines(t *testing.T) {
	svc, mockDB, pub := newTestService(t, &fakeCatalog{}, &fakeFloor{})
	defer mockDB.Close()

	orderID := uuid.New().String()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT id, tenant_id, site_id, table_id, customer_id, order_type, status").
		WillReturnRows(orderRow(orderID, uuid.New().String(), "OPEN", 0))
	mockDB.ExpectQuery("UPDATE order_lines").
		WillReturnRows(testutil.MockRows(lineColumns()...))
	mockDB.ExpectRollback()

	_, err := svc.Confirm(testutil.TenantContext(), orderID)
	require.Error(t, err)
	assert.Equal(t, domain.ReasonNoPendingLines, errors.ReasonOf(err))
	pub.AssertNoEventsPublished(t)
}

func TestAddLine_UnavailableItem(t *testing.T) {
	itemID := uuid.New().String()
	catalog := &fakeCatalog{items: map[string]*catalogrepo.Item{
		itemID: {ID: itemID, TenantID: testutil.TenantID, Name: "Bacalhau", Category: "KITCHEN",
			BasePrice: money.MustParse("14.50"), Available: false},
	}}
	svc, mockDB, _ := newTestService(t, catalog, &fakeFloor{})
	defer mockDB.Close()

	orderID := uuid.New().String()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT id, tenant_id, site_id, table_id, customer_id, order_type, status").
		WillReturnRows(orderRow(orderID, "", "OPEN", 0))
	mockDB.ExpectRollback()

	ctx := testutil.TenantContext()
	_, err := svc.AddLine(ctx, orderID, &AddLineRequest{ItemID: itemID, Quantity: 1})
	require.Error(t, err)
	assert.Equal(t, domain.ReasonItemUnavailable, errors.ReasonOf(err))
}

func TestVoidLine_RequiresPermissionAfterConfirm(t *testing.T) {
	svc, mockDB, pub := newTestService(t, &fakeCatalog{}, &fakeFloor{})
	defer mockDB.Close()

	orderID := uuid.New().String()
	lineID := uuid.New().String()
	now := time.Now()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT id, tenant_id, order_id, item_id, item_name").
		WillReturnRows(testutil.MockRows(lineColumns()...).
			AddRow(lineID, testutil.TenantID, orderID, uuid.New().String(), "Espresso", "BAR", 1,
				"2.50", "", "", "CONFIRMED", 2, nil, nil, now, now))
	mockDB.ExpectQuery("SELECT id, tenant_id, site_id, table_id, customer_id, order_type, status").
		WillReturnRows(orderRow(orderID, "", "CONFIRMED", 1))
	mockDB.ExpectRollback()

	// Waiters hold no VOID_AFTER_SUBTOTAL permission.
	ctx := testutil.TenantContextFor(testutil.TenantID, testutil.UserID, "WAITER")
	err := svc.VoidLine(ctx, lineID, &VoidLineRequest{Reason: "spilled", Version: 2})
	require.Error(t, err)
	assert.Equal(t, errors.CodeAuthorization, errors.Code(err))
	pub.AssertNoEventsPublished(t)
}

func transferFloor(fromStatus, toStatus string) (*fakeFloor, string, string) {
	fromID := uuid.New().String()
	toID := uuid.New().String()
	floor := &fakeFloor{
		tables: map[string]*diningrepo.Table{
			fromID: {ID: fromID, TenantID: testutil.TenantID, SiteID: testutil.SiteID, TableNumber: 3, Status: fromStatus, Version: 1},
			toID:   {ID: toID, TenantID: testutil.TenantID, SiteID: testutil.SiteID, TableNumber: 9, Status: toStatus, Version: 1},
		},
		blacklisted: map[string]bool{},
	}
	return floor, fromID, toID
}

func TestTransferTable_MovesOpenOrders(t *testing.T) {
	floor, fromID, toID := transferFloor("OCCUPIED", "AVAILABLE")
	svc, mockDB, _ := newTestService(t, &fakeCatalog{}, floor)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectExec("UPDATE orders").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mockDB.ExpectCommit()

	err := svc.TransferTable(testutil.TenantContext(), fromID, toID)
	require.NoError(t, err)
	assert.Contains(t, floor.occupied, toID)
	assert.Contains(t, floor.released, fromID)
	mockDB.ExpectationsWereMet(t)
}

func TestTransferTable_RejectsReservedDestination(t *testing.T) {
	floor, fromID, toID := transferFloor("OCCUPIED", "RESERVED")
	svc, mockDB, _ := newTestService(t, &fakeCatalog{}, floor)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectRollback()

	err := svc.TransferTable(testutil.TenantContext(), fromID, toID)
	require.Error(t, err)
	assert.Equal(t, diningdomain.ReasonTableNotAvailable, errors.ReasonOf(err))
	assert.Empty(t, floor.occupied)
}

func TestTransferTable_RejectsBlacklistedSource(t *testing.T) {
	floor, fromID, toID := transferFloor("OCCUPIED", "AVAILABLE")
	floor.blacklisted[fromID] = true
	svc, mockDB, _ := newTestService(t, &fakeCatalog{}, floor)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectRollback()

	err := svc.TransferTable(testutil.TenantContext(), fromID, toID)
	require.Error(t, err)
	assert.Equal(t, diningdomain.ReasonTableBlacklisted, errors.ReasonOf(err))
	assert.Empty(t, floor.occupied)
}

func TestTransferTable_ChecksBlacklistOnOccupiedDestination(t *testing.T) {
	floor, fromID, toID := transferFloor("OCCUPIED", "OCCUPIED")
	floor.blacklisted[toID] = true
	svc, mockDB, _ := newTestService(t, &fakeCatalog{}, floor)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectRollback()

	err := svc.TransferTable(testutil.TenantContext(), fromID, toID)
	require.Error(t, err)
	assert.Equal(t, diningdomain.ReasonTableBlacklisted, errors.ReasonOf(err))
}

func TestTransferOrder_RejectsReservedDestination(t *testing.T) {
	floor, fromID, toID := transferFloor("OCCUPIED", "RESERVED")
	svc, mockDB, _ := newTestService(t, &fakeCatalog{}, floor)
	defer mockDB.Close()

	orderID := uuid.New().String()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT id, tenant_id, site_id, table_id, customer_id, order_type, status").
		WillReturnRows(orderRow(orderID, fromID, "OPEN", 0))
	mockDB.ExpectRollback()

	_, err := svc.TransferOrder(testutil.TenantContext(), orderID, toID)
	require.Error(t, err)
	assert.Equal(t, diningdomain.ReasonTableNotAvailable, errors.ReasonOf(err))
	assert.Empty(t, floor.occupied)
}
