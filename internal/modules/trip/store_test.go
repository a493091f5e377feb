// README: Trip workflows against PostgreSQL; skipped unless DISPATCH_TEST_DSN is set.
package trip

import (
	"context"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatch/internal/modules/order"
	"dispatch/internal/testdb"
	"dispatch/internal/types"
)

type dbFixture struct {
	db     *pgxpool.Pool
	trips  *Store
	orders *order.Store
	svc    *Service
}

func setupDB(t *testing.T) *dbFixture {
	t.Helper()
	db := testdb.Open(t)
	log, _ := test.NewNullLogger()
	trips := NewStore(db)
	return &dbFixture{
		db:     db,
		trips:  trips,
		orders: order.NewStore(db),
		svc:    NewService(trips, WithLogger(log)),
	}
}

func (f *dbFixture) newDriver(t *testing.T, payType, rate string) types.ID {
	t.Helper()
	id := types.NewID()
	_, err := f.db.Exec(context.Background(),
		`INSERT INTO drivers (id, tenant_id, name, driver_type, pay_type, pay_rate) VALUES ($1, $2, $3, 'company', $4, $5::numeric)`,
		string(id), string(tenant), "Driver "+string(id)[:4], payType, rate)
	require.NoError(t, err)
	return id
}

func (f *dbFixture) newTrip(t *testing.T, driverID types.ID) types.ID {
	t.Helper()
	tr := &Trip{ID: types.NewID(), TenantID: tenant, Number: "TR-1", Status: StatusPlanned, DriverID: &driverID}
	require.NoError(t, f.trips.Create(context.Background(), tr))
	return tr.ID
}

func (f *dbFixture) newOrder(t *testing.T, revenue, fee, from, to string) types.ID {
	t.Helper()
	o := &order.Order{
		ID:            types.NewID(),
		TenantID:      tenant,
		Number:        "ORD",
		Status:        order.StatusNew,
		Revenue:       d(revenue),
		BrokerFee:     d(fee),
		PickupState:   from,
		DeliveryState: to,
	}
	require.NoError(t, f.orders.Create(context.Background(), o))
	return o.ID
}

func TestStoreAssignAndRecalculate(t *testing.T) {
	f := setupDB(t)
	ctx := context.Background()
	drv := f.newDriver(t, "percentage_of_carrier_pay", "60")
	a := f.newTrip(t, drv)
	b := f.newTrip(t, drv)
	o1 := f.newOrder(t, "1000", "100", "TX", "CA")
	o2 := f.newOrder(t, "500.50", "0", "OK", "CA")

	require.NoError(t, f.svc.AssignOrderToTrip(ctx, tenant, o1, a))
	require.NoError(t, f.svc.AssignOrderToTrip(ctx, tenant, o2, a))

	ta, err := f.trips.Get(ctx, tenant, a)
	require.NoError(t, err)
	assert.Equal(t, 2, ta.Financials.OrderCount)
	assert.True(t, ta.Financials.Revenue.Equal(d("1500.50")))
	assert.True(t, ta.Financials.DriverPay.Equal(d("840.30")))
	require.NotNil(t, ta.Financials.OriginSummary)
	assert.Equal(t, "TX, OK", *ta.Financials.OriginSummary)
	require.NotNil(t, ta.Financials.DestinationSummary)
	assert.Equal(t, "CA", *ta.Financials.DestinationSummary)

	require.NoError(t, f.svc.AssignOrderToTrip(ctx, tenant, o2, b))
	ta, err = f.trips.Get(ctx, tenant, a)
	require.NoError(t, err)
	tb, err := f.trips.Get(ctx, tenant, b)
	require.NoError(t, err)
	assert.Equal(t, 1, ta.Financials.OrderCount)
	assert.Equal(t, 1, tb.Financials.OrderCount)
	assert.True(t, tb.Financials.NetProfit.Equal(d("200.20")))

	got, err := f.orders.Get(ctx, tenant, o2)
	require.NoError(t, err)
	assert.Equal(t, order.StatusAssigned, got.Status)
	require.NotNil(t, got.TripID)
	assert.Equal(t, b, *got.TripID)
}

func TestStoreSnapshotConservesMoneyAtCents(t *testing.T) {
	f := setupDB(t)
	ctx := context.Background()
	drv := f.newDriver(t, "percentage_of_carrier_pay", "50")
	a := f.newTrip(t, drv)
	o1 := f.newOrder(t, "1000.01", "0", "TX", "CA")

	require.NoError(t, f.svc.AssignOrderToTrip(ctx, tenant, o1, a))
	_, _, err := f.svc.AddExpense(ctx, tenant, a, ExpenseInput{Category: string(ExpenseTolls), Amount: d("12.34")})
	require.NoError(t, err)
	returned, err := f.svc.SetCarrierPay(ctx, tenant, a, d("0.99"))
	require.NoError(t, err)

	stored, err := f.trips.Get(ctx, tenant, a)
	require.NoError(t, err)
	fin := stored.Financials
	assert.True(t, fin.DriverPay.Equal(d("500.01")), "driver pay %s", fin.DriverPay)
	want := fin.Revenue.Sub(fin.BrokerFees).Sub(fin.DriverPay).Sub(fin.Expenses).Sub(fin.CarrierPay)
	assert.True(t, fin.NetProfit.Equal(want), "stored net %s, fields give %s", fin.NetProfit, want)
	assert.True(t, fin.NetProfit.Equal(d("486.67")))
	assert.True(t, returned.Financials.Equal(fin), "returned snapshot must match the stored row")
}

func TestStoreUnassignKeepsCancelledStatus(t *testing.T) {
	f := setupDB(t)
	ctx := context.Background()
	drv := f.newDriver(t, "percentage_of_carrier_pay", "60")
	a := f.newTrip(t, drv)
	o1 := f.newOrder(t, "400", "40", "TX", "CA")
	require.NoError(t, f.svc.AssignOrderToTrip(ctx, tenant, o1, a))

	svc := order.NewService(f.orders)
	_, err := svc.AdvanceStatus(ctx, order.AdvanceCommand{
		TenantID: tenant, OrderID: o1, Status: "cancelled", Reason: "shipper withdrew", ActorType: ActorUser,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.UnassignOrderFromTrip(ctx, tenant, o1))
	got, err := f.orders.Get(ctx, tenant, o1)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)
	assert.Nil(t, got.TripID)
	require.NotNil(t, got.CancelledReason)
	assert.Equal(t, "shipper withdrew", *got.CancelledReason)
}

func TestStoreTripStatusSyncAndDelete(t *testing.T) {
	f := setupDB(t)
	ctx := context.Background()
	drv := f.newDriver(t, "per_car", "75")
	tr := f.newTrip(t, drv)
	o1 := f.newOrder(t, "900", "0", "TX", "CA")
	require.NoError(t, f.svc.AssignOrderToTrip(ctx, tenant, o1, tr))

	_, changed, err := f.svc.SetTripStatus(ctx, tenant, tr, "completed")
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	got, err := f.orders.Get(ctx, tenant, o1)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, got.Status)
	assert.NotNil(t, got.ActualPickupDate)
	assert.NotNil(t, got.ActualDeliveryDate)

	_, _, err = f.svc.AddExpense(ctx, tenant, tr, ExpenseInput{Category: "fuel", Amount: d("120")})
	require.NoError(t, err)

	n, err := f.svc.DeleteTrip(ctx, tenant, tr)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err = f.orders.Get(ctx, tenant, o1)
	require.NoError(t, err)
	assert.Nil(t, got.TripID)
	assert.Equal(t, order.StatusNew, got.Status)
	assert.Nil(t, got.ActualPickupDate)

	_, err = f.trips.Get(ctx, tenant, tr)
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestStoreConcurrentExpenses checks the row lock keeps the snapshot in step with the expense rows.
func TestStoreConcurrentExpenses(t *testing.T) {
	f := setupDB(t)
	ctx := context.Background()
	drv := f.newDriver(t, "dispatch_fee_percent", "10")
	tr := f.newTrip(t, drv)
	o1 := f.newOrder(t, "5000", "500", "TX", "CA")
	require.NoError(t, f.svc.AssignOrderToTrip(ctx, tenant, o1, tr))

	// a fresh service per goroutine group mimics separate API instances sharing only the database
	log, _ := test.NewNullLogger()
	other := NewService(f.trips, WithLogger(log))

	const writers = 10
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			svc := f.svc
			if i%2 == 1 {
				svc = other
			}
			if _, _, err := svc.AddExpense(ctx, tenant, tr, ExpenseInput{Category: "tolls", Amount: d("5")}); err != nil {
				t.Errorf("add expense: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := f.trips.Get(ctx, tenant, tr)
	require.NoError(t, err)
	assert.True(t, got.Financials.Expenses.Equal(d("50")), "expenses %s", got.Financials.Expenses)
	assert.True(t, got.Financials.DriverPay.Equal(d("4050")))
	assert.True(t, got.Financials.NetProfit.Equal(d("400")))
}
