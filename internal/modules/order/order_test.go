// README: Order flow tests against PostgreSQL (advance, rollback, cancel, audit trail).
package order

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatch/internal/types"
)

func TestOrderFlowHappyPath(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	svc := newDBService(store)
	o := seedOrder(t, store, StatusNew)

	for _, st := range []Status{StatusAssigned, StatusPickedUp, StatusDelivered, StatusInvoiced, StatusPaid} {
		_, err := svc.AdvanceStatus(ctx, AdvanceCommand{TenantID: tenant, OrderID: o.ID, Status: st.String(), ActorType: "user"})
		require.NoError(t, err, "advance to %s", st)
		assertStatus(t, svc, o.ID, st)
	}

	got, err := svc.Get(ctx, tenant, o.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.ActualPickupDate)
	assert.NotNil(t, got.ActualDeliveryDate)
	assert.Equal(t, 5, got.StatusVersion)
	assert.Equal(t, 5, countEvents(t, store, o))
}

func TestOrderFlowRollbackClearsDates(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	svc := newDBService(store)
	o := seedOrder(t, store, StatusAssigned)

	_, err := svc.AdvanceStatus(ctx, AdvanceCommand{TenantID: tenant, OrderID: o.ID, Status: "delivered"})
	require.NoError(t, err)

	got, err := svc.Rollback(ctx, RollbackCommand{TenantID: tenant, OrderID: o.ID})
	require.NoError(t, err)
	assert.Equal(t, StatusPickedUp, got.Status)
	assert.NotNil(t, got.ActualPickupDate)
	assert.Nil(t, got.ActualDeliveryDate)

	got, err = svc.Rollback(ctx, RollbackCommand{TenantID: tenant, OrderID: o.ID})
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, got.Status)

	stored, err := svc.Get(ctx, tenant, o.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ActualPickupDate)
	assert.Nil(t, stored.ActualDeliveryDate)
}

func TestOrderFlowCancel(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	svc := newDBService(store)
	o := seedOrder(t, store, StatusPickedUp)

	_, err := svc.AdvanceStatus(ctx, AdvanceCommand{TenantID: tenant, OrderID: o.ID, Status: "cancelled", Reason: "   "})
	assert.ErrorIs(t, err, ErrCancelReasonRequired)
	assertStatus(t, svc, o.ID, StatusPickedUp)

	_, err = svc.AdvanceStatus(ctx, AdvanceCommand{TenantID: tenant, OrderID: o.ID, Status: "cancelled", Reason: "damaged vehicle"})
	require.NoError(t, err)
	assertStatus(t, svc, o.ID, StatusCancelled)

	_, err = svc.Rollback(ctx, RollbackCommand{TenantID: tenant, OrderID: o.ID})
	assert.ErrorIs(t, err, ErrCancelledIsFinal)
}

func TestOrderStoreScopesByTenant(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	o := seedOrder(t, store, StatusNew)

	_, err := store.Get(ctx, "someone-else", o.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := store.Get(ctx, tenant, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Number, got.Number)
	assert.Equal(t, PaymentUnpaid, got.PaymentStatus)
	assert.True(t, got.Revenue.IsZero())
}

func assertStatus(t *testing.T, svc *Service, orderID types.ID, want Status) {
	t.Helper()
	o, err := svc.Get(context.Background(), tenant, orderID)
	require.NoError(t, err)
	require.Equal(t, want, o.Status)
}

func countEvents(t *testing.T, store *Store, o *Order) int {
	t.Helper()
	var n int
	err := store.db.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM order_status_events WHERE tenant_id = $1 AND order_id = $2`,
		string(o.TenantID), string(o.ID),
	).Scan(&n)
	require.NoError(t, err)
	return n
}
