// README: In-memory trip repository for service tests; one mutex, copy-on-write transactions.
package trip

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"dispatch/internal/modules/driverpay"
	"dispatch/internal/modules/order"
	"dispatch/internal/types"
)

type memOrder struct {
	ref  OrderRef
	line OrderLine
	fee  decimal.Decimal
}

type memState struct {
	trips    map[types.ID]Trip
	drivers  map[types.ID]driverpay.Driver
	orders   map[types.ID]memOrder
	expenses map[types.ID]Expense
	events   []order.Event
}

func (s memState) clone() memState {
	out := memState{
		trips:    make(map[types.ID]Trip, len(s.trips)),
		drivers:  make(map[types.ID]driverpay.Driver, len(s.drivers)),
		orders:   make(map[types.ID]memOrder, len(s.orders)),
		expenses: make(map[types.ID]Expense, len(s.expenses)),
		events:   append([]order.Event(nil), s.events...),
	}
	for k, v := range s.trips {
		out.trips[k] = v
	}
	for k, v := range s.drivers {
		out.drivers[k] = v
	}
	for k, v := range s.orders {
		out.orders[k] = v
	}
	for k, v := range s.expenses {
		out.expenses[k] = v
	}
	return out
}

type memRepo struct {
	mu       sync.Mutex
	st       memState
	saves    map[types.ID]int
	failSave map[types.ID]error
}

func newMemRepo() *memRepo {
	return &memRepo{
		st: memState{
			trips:    map[types.ID]Trip{},
			drivers:  map[types.ID]driverpay.Driver{},
			orders:   map[types.ID]memOrder{},
			expenses: map[types.ID]Expense{},
		},
		saves:    map[types.ID]int{},
		failSave: map[types.ID]error{},
	}
}

func (r *memRepo) InTx(ctx context.Context, fn func(tx Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memTx{repo: r, st: r.st.clone(), saves: map[types.ID]int{}}
	if err := fn(tx); err != nil {
		return err
	}
	r.st = tx.st
	for id, n := range tx.saves {
		r.saves[id] += n
	}
	return nil
}

// seeding and inspection helpers

func (r *memRepo) putTrip(t Trip) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.trips[t.ID] = t
}

func (r *memRepo) putDriver(d driverpay.Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.drivers[d.ID] = d
}

func (r *memRepo) putOrder(tenantID, id types.ID, tripID *types.ID, status order.Status, revenue, fee string, created time.Time, from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.orders[id] = memOrder{
		ref: OrderRef{ID: id, TenantID: tenantID, Status: status, TripID: tripID},
		line: OrderLine{
			ID:              id,
			Revenue:         decimal.RequireFromString(revenue),
			BrokerFee:       decimal.RequireFromString(fee),
			PickupState:     from,
			DeliveryState:   to,
			PickupAddress:   from + " yard",
			DeliveryAddress: to + " yard",
			CreatedAt:       created,
		},
	}
}

func (r *memRepo) trip(id types.ID) (Trip, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.st.trips[id]
	return t, ok
}

func (r *memRepo) orderRef(id types.ID) OrderRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.orders[id].ref
}

func (r *memRepo) expenseCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.st.expenses)
}

func (r *memRepo) eventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.st.events)
}

func (r *memRepo) saveCount(id types.ID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves[id]
}

func (r *memRepo) resetSaves() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves = map[types.ID]int{}
}

type memTx struct {
	repo  *memRepo
	st    memState
	saves map[types.ID]int
}

func (m *memTx) tripFor(tenantID, tripID types.ID) (Trip, error) {
	t, ok := m.st.trips[tripID]
	if !ok || t.TenantID != tenantID {
		return Trip{}, ErrNotFound
	}
	return t, nil
}

func (m *memTx) LockTrip(ctx context.Context, tenantID, tripID types.ID) (*Trip, error) {
	t, err := m.tripFor(tenantID, tripID)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (m *memTx) GetDriver(ctx context.Context, tenantID, driverID types.ID) (*driverpay.Driver, error) {
	d, ok := m.st.drivers[driverID]
	if !ok || d.TenantID != tenantID {
		return nil, nil
	}
	return &d, nil
}

func (m *memTx) members(tenantID, tripID types.ID) []memOrder {
	var out []memOrder
	for _, o := range m.st.orders {
		if o.ref.TenantID == tenantID && o.ref.TripID != nil && *o.ref.TripID == tripID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ref.ID < out[j].ref.ID })
	return out
}

func (m *memTx) TripOrders(ctx context.Context, tenantID, tripID types.ID) ([]OrderLine, error) {
	var out []OrderLine
	for _, o := range m.members(tenantID, tripID) {
		out = append(out, o.line)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memTx) TripExpenses(ctx context.Context, tenantID, tripID types.ID) ([]Expense, error) {
	var out []Expense
	for _, e := range m.st.expenses {
		if e.TenantID == tenantID && e.TripID == tripID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memTx) SaveSnapshot(ctx context.Context, tenantID, tripID types.ID, snap Snapshot, at time.Time) error {
	if err := m.repo.failSave[tripID]; err != nil {
		return err
	}
	t, err := m.tripFor(tenantID, tripID)
	if err != nil {
		return err
	}
	t.Financials = snap
	t.RecalculatedAt = &at
	m.st.trips[tripID] = t
	m.saves[tripID]++
	return nil
}

func (m *memTx) updateTrip(tenantID, tripID types.ID, fn func(*Trip)) error {
	t, err := m.tripFor(tenantID, tripID)
	if err != nil {
		return err
	}
	fn(&t)
	m.st.trips[tripID] = t
	return nil
}

func (m *memTx) SetTripMiles(ctx context.Context, tenantID, tripID types.ID, miles decimal.Decimal) error {
	return m.updateTrip(tenantID, tripID, func(t *Trip) {
		if t.Miles == nil {
			t.Miles = &miles
		}
	})
}

func (m *memTx) SetTripStatus(ctx context.Context, tenantID, tripID types.ID, st Status) error {
	return m.updateTrip(tenantID, tripID, func(t *Trip) { t.Status = st })
}

func (m *memTx) SetTripCarrierPay(ctx context.Context, tenantID, tripID types.ID, amount decimal.Decimal) error {
	return m.updateTrip(tenantID, tripID, func(t *Trip) { t.CarrierPay = amount })
}

func (m *memTx) DeleteTrip(ctx context.Context, tenantID, tripID types.ID) error {
	if _, err := m.tripFor(tenantID, tripID); err != nil {
		return err
	}
	for _, o := range m.st.orders {
		if o.ref.TripID != nil && *o.ref.TripID == tripID {
			return order.ErrConflict
		}
	}
	delete(m.st.trips, tripID)
	for id, e := range m.st.expenses {
		if e.TripID == tripID {
			delete(m.st.expenses, id)
		}
	}
	return nil
}

func (m *memTx) LockOrder(ctx context.Context, tenantID, orderID types.ID) (*OrderRef, error) {
	o, ok := m.st.orders[orderID]
	if !ok || o.ref.TenantID != tenantID {
		return nil, order.ErrNotFound
	}
	ref := o.ref
	return &ref, nil
}

func (m *memTx) LockTripOrders(ctx context.Context, tenantID, tripID types.ID) ([]OrderRef, error) {
	var out []OrderRef
	for _, o := range m.members(tenantID, tripID) {
		out = append(out, o.ref)
	}
	return out, nil
}

func (m *memTx) WriteOrder(ctx context.Context, ref *OrderRef) error {
	o, ok := m.st.orders[ref.ID]
	if !ok || o.ref.TenantID != ref.TenantID {
		return order.ErrNotFound
	}
	if o.ref.StatusVersion != ref.StatusVersion {
		return order.ErrConflict
	}
	o.ref = *ref
	o.ref.StatusVersion++
	m.st.orders[ref.ID] = o
	return nil
}

func (m *memTx) SetOrderMoney(ctx context.Context, tenantID, orderID types.ID, money OrderMoney) error {
	o, ok := m.st.orders[orderID]
	if !ok || o.ref.TenantID != tenantID {
		return order.ErrNotFound
	}
	o.line.Revenue = money.Revenue
	o.line.BrokerFee = money.BrokerFee
	o.fee = money.LocalFee
	m.st.orders[orderID] = o
	return nil
}

func (m *memTx) AppendOrderEvent(ctx context.Context, e *order.Event) error {
	m.st.events = append(m.st.events, *e)
	return nil
}

func (m *memTx) InsertExpense(ctx context.Context, e *Expense) error {
	m.st.expenses[e.ID] = *e
	return nil
}

func (m *memTx) DeleteExpense(ctx context.Context, tenantID, tripID, expenseID types.ID) (bool, error) {
	e, ok := m.st.expenses[expenseID]
	if !ok || e.TenantID != tenantID || e.TripID != tripID {
		return false, nil
	}
	delete(m.st.expenses, expenseID)
	return true, nil
}
