// README: Trip store backed by PostgreSQL; every workflow step runs in one pgx transaction.
package trip

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"dispatch/internal/apperr"
	"dispatch/internal/modules/driverpay"
	"dispatch/internal/modules/order"
	"dispatch/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return apperr.Persistence("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return apperr.Persistence("commit tx", tx.Commit(ctx))
}

// Create inserts a trip with an empty snapshot. Trip planning lives outside this service.
func (s *Store) Create(ctx context.Context, t *Trip) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO trips (id, tenant_id, trip_number, status, driver_id, truck_id, start_date, end_date, carrier_pay, total_miles)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10::numeric)`,
		string(t.ID),
		string(t.TenantID),
		t.Number,
		string(t.Status),
		idPtrString(t.DriverID),
		idPtrString(t.TruckID),
		t.StartDate,
		t.EndDate,
		t.CarrierPay.String(),
		decimalPtrString(t.Miles),
	)
	return apperr.Persistence("insert trip", err)
}

func (s *Store) Get(ctx context.Context, tenantID, tripID types.ID) (*Trip, error) {
	row := s.db.QueryRow(ctx, selectTrip+` WHERE tenant_id = $1 AND id = $2`, string(tenantID), string(tripID))
	return scanTrip(row)
}

type pgTx struct {
	tx pgx.Tx
}

const selectTrip = `
	SELECT id, tenant_id, trip_number, status, driver_id, truck_id, start_date, end_date,
	       carrier_pay::text, total_miles::text,
	       total_revenue::text, total_broker_fees::text, driver_pay::text, total_expenses::text, net_profit::text,
	       order_count, origin_summary, destination_summary, financials_updated_at
	FROM trips`

func scanTrip(row pgx.Row) (*Trip, error) {
	var (
		t                                          Trip
		id, tenantID, status                       string
		driverID, truckID                          *string
		carrierPay, miles                          *string
		revenue, fees, driverPay, expenses, profit *string
	)
	err := row.Scan(
		&id, &tenantID, &t.Number, &status, &driverID, &truckID, &t.StartDate, &t.EndDate,
		&carrierPay, &miles,
		&revenue, &fees, &driverPay, &expenses, &profit,
		&t.Financials.OrderCount, &t.Financials.OriginSummary, &t.Financials.DestinationSummary, &t.RecalculatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperr.Persistence("scan trip", err)
	}
	t.ID = types.ID(id)
	t.TenantID = types.ID(tenantID)
	t.Status = Status(status)
	t.DriverID = idFromString(driverID)
	t.TruckID = idFromString(truckID)
	t.CarrierPay = types.ParseMoneyPtr(carrierPay)
	if miles != nil {
		m := types.ParseMoney(*miles)
		t.Miles = &m
	}
	t.Financials.Revenue = types.ParseMoneyPtr(revenue)
	t.Financials.BrokerFees = types.ParseMoneyPtr(fees)
	t.Financials.DriverPay = types.ParseMoneyPtr(driverPay)
	t.Financials.Expenses = types.ParseMoneyPtr(expenses)
	t.Financials.NetProfit = types.ParseMoneyPtr(profit)
	t.Financials.CarrierPay = t.CarrierPay
	return &t, nil
}

func (p *pgTx) LockTrip(ctx context.Context, tenantID, tripID types.ID) (*Trip, error) {
	row := p.tx.QueryRow(ctx, selectTrip+` WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, string(tenantID), string(tripID))
	return scanTrip(row)
}

// GetDriver returns nil without error when the driver row is gone; pay then computes as zero.
func (p *pgTx) GetDriver(ctx context.Context, tenantID, driverID types.ID) (*driverpay.Driver, error) {
	var (
		d                           driverpay.Driver
		id, tid, dtype, ptype, rate string
	)
	err := p.tx.QueryRow(ctx, `
		SELECT id, tenant_id, name, driver_type, pay_type, pay_rate::text
		FROM drivers WHERE tenant_id = $1 AND id = $2`,
		string(tenantID), string(driverID),
	).Scan(&id, &tid, &d.Name, &dtype, &ptype, &rate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Persistence("get driver", err)
	}
	if d.DriverType, err = driverpay.ParseDriverType(dtype); err != nil {
		return nil, err
	}
	d.ID = types.ID(id)
	d.TenantID = types.ID(tid)
	d.PayType = driverpay.PayType(ptype)
	d.PayRate = types.ParseMoney(rate)
	return &d, nil
}

func (p *pgTx) TripOrders(ctx context.Context, tenantID, tripID types.ID) ([]OrderLine, error) {
	rows, err := p.tx.Query(ctx, `
		SELECT id, revenue::text, broker_fee::text,
		       COALESCE(pickup_state, ''), COALESCE(delivery_state, ''),
		       COALESCE(pickup_address, ''), COALESCE(delivery_address, ''),
		       created_at
		FROM orders
		WHERE tenant_id = $1 AND trip_id = $2
		ORDER BY created_at ASC, id ASC`,
		string(tenantID), string(tripID),
	)
	if err != nil {
		return nil, apperr.Persistence("list trip orders", err)
	}
	defer rows.Close()

	var out []OrderLine
	for rows.Next() {
		var (
			l                  OrderLine
			id                 string
			revenue, brokerFee *string
		)
		if err := rows.Scan(&id, &revenue, &brokerFee, &l.PickupState, &l.DeliveryState,
			&l.PickupAddress, &l.DeliveryAddress, &l.CreatedAt); err != nil {
			return nil, apperr.Persistence("scan trip order", err)
		}
		l.ID = types.ID(id)
		l.Revenue = types.ParseMoneyPtr(revenue)
		l.BrokerFee = types.ParseMoneyPtr(brokerFee)
		out = append(out, l)
	}
	return out, apperr.Persistence("list trip orders", rows.Err())
}

func (p *pgTx) TripExpenses(ctx context.Context, tenantID, tripID types.ID) ([]Expense, error) {
	rows, err := p.tx.Query(ctx, `
		SELECT id, tenant_id, trip_id, category, amount::text, COALESCE(notes, ''), created_at
		FROM trip_expenses
		WHERE tenant_id = $1 AND trip_id = $2
		ORDER BY created_at ASC`,
		string(tenantID), string(tripID),
	)
	if err != nil {
		return nil, apperr.Persistence("list trip expenses", err)
	}
	defer rows.Close()

	var out []Expense
	for rows.Next() {
		var (
			e                          Expense
			id, tid, trip, cat, amount string
		)
		if err := rows.Scan(&id, &tid, &trip, &cat, &amount, &e.Notes, &e.CreatedAt); err != nil {
			return nil, apperr.Persistence("scan trip expense", err)
		}
		e.ID = types.ID(id)
		e.TenantID = types.ID(tid)
		e.TripID = types.ID(trip)
		e.Category = ExpenseCategory(cat)
		e.Amount = types.ParseMoney(amount)
		out = append(out, e)
	}
	return out, apperr.Persistence("list trip expenses", rows.Err())
}

func (p *pgTx) SaveSnapshot(ctx context.Context, tenantID, tripID types.ID, snap Snapshot, at time.Time) error {
	_, err := p.tx.Exec(ctx, `
		UPDATE trips
		SET total_revenue = $1::numeric,
			total_broker_fees = $2::numeric,
			driver_pay = $3::numeric,
			total_expenses = $4::numeric,
			net_profit = $5::numeric,
			order_count = $6,
			origin_summary = $7,
			destination_summary = $8,
			financials_updated_at = $9,
			updated_at = NOW()
		WHERE tenant_id = $10 AND id = $11`,
		snap.Revenue.String(),
		snap.BrokerFees.String(),
		snap.DriverPay.String(),
		snap.Expenses.String(),
		snap.NetProfit.String(),
		snap.OrderCount,
		snap.OriginSummary,
		snap.DestinationSummary,
		at,
		string(tenantID),
		string(tripID),
	)
	return apperr.Persistence("save trip snapshot", err)
}

func (p *pgTx) SetTripMiles(ctx context.Context, tenantID, tripID types.ID, miles decimal.Decimal) error {
	return p.execTrip(ctx, "set trip miles",
		`UPDATE trips SET total_miles = $1::numeric, updated_at = NOW() WHERE tenant_id = $2 AND id = $3 AND total_miles IS NULL`,
		miles.String(), tenantID, tripID, false)
}

func (p *pgTx) SetTripStatus(ctx context.Context, tenantID, tripID types.ID, st Status) error {
	return p.execTrip(ctx, "set trip status",
		`UPDATE trips SET status = $1, updated_at = NOW() WHERE tenant_id = $2 AND id = $3`,
		string(st), tenantID, tripID, true)
}

func (p *pgTx) SetTripCarrierPay(ctx context.Context, tenantID, tripID types.ID, amount decimal.Decimal) error {
	return p.execTrip(ctx, "set trip carrier pay",
		`UPDATE trips SET carrier_pay = $1::numeric, updated_at = NOW() WHERE tenant_id = $2 AND id = $3`,
		amount.String(), tenantID, tripID, true)
}

func (p *pgTx) DeleteTrip(ctx context.Context, tenantID, tripID types.ID) error {
	tag, err := p.tx.Exec(ctx, `DELETE FROM trips WHERE tenant_id = $1 AND id = $2`, string(tenantID), string(tripID))
	if err != nil {
		return apperr.Persistence("delete trip", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *pgTx) execTrip(ctx context.Context, op, sql, value string, tenantID, tripID types.ID, mustExist bool) error {
	tag, err := p.tx.Exec(ctx, sql, value, string(tenantID), string(tripID))
	if err != nil {
		return apperr.Persistence(op, err)
	}
	if mustExist && tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const selectOrderRef = `
	SELECT id, tenant_id, status, status_version, trip_id, actual_pickup_date, actual_delivery_date
	FROM orders`

func scanOrderRef(row pgx.Row) (OrderRef, error) {
	var (
		r                    OrderRef
		id, tenantID, status string
		tripID               *string
	)
	if err := row.Scan(&id, &tenantID, &status, &r.StatusVersion, &tripID, &r.ActualPickupDate, &r.ActualDeliveryDate); err != nil {
		return r, err
	}
	st, err := order.ParseStatus(status)
	if err != nil {
		return r, err
	}
	r.ID = types.ID(id)
	r.TenantID = types.ID(tenantID)
	r.Status = st
	r.TripID = idFromString(tripID)
	return r, nil
}

func (p *pgTx) LockOrder(ctx context.Context, tenantID, orderID types.ID) (*OrderRef, error) {
	row := p.tx.QueryRow(ctx, selectOrderRef+` WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, string(tenantID), string(orderID))
	r, err := scanOrderRef(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, apperr.Persistence("lock order", err)
	}
	return &r, nil
}

func (p *pgTx) LockTripOrders(ctx context.Context, tenantID, tripID types.ID) ([]OrderRef, error) {
	rows, err := p.tx.Query(ctx, selectOrderRef+`
		WHERE tenant_id = $1 AND trip_id = $2
		ORDER BY id
		FOR UPDATE`,
		string(tenantID), string(tripID),
	)
	if err != nil {
		return nil, apperr.Persistence("lock trip orders", err)
	}
	defer rows.Close()

	var out []OrderRef
	for rows.Next() {
		r, err := scanOrderRef(rows)
		if err != nil {
			return nil, apperr.Persistence("scan trip order", err)
		}
		out = append(out, r)
	}
	return out, apperr.Persistence("lock trip orders", rows.Err())
}

// WriteOrder stores the status, trip and actual dates of a locked order and bumps its version.
func (p *pgTx) WriteOrder(ctx context.Context, r *OrderRef) error {
	tag, err := p.tx.Exec(ctx, `
		UPDATE orders
		SET status = $1,
			trip_id = $2,
			actual_pickup_date = $3,
			actual_delivery_date = $4,
			status_version = status_version + 1,
			updated_at = NOW()
		WHERE tenant_id = $5 AND id = $6 AND status_version = $7`,
		r.Status.String(),
		idPtrString(r.TripID),
		r.ActualPickupDate,
		r.ActualDeliveryDate,
		string(r.TenantID),
		string(r.ID),
		r.StatusVersion,
	)
	if err != nil {
		return apperr.Persistence("write order", err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrConflict
	}
	return nil
}

func (p *pgTx) SetOrderMoney(ctx context.Context, tenantID, orderID types.ID, m OrderMoney) error {
	tag, err := p.tx.Exec(ctx, `
		UPDATE orders
		SET revenue = $1::numeric, broker_fee = $2::numeric, local_fee = $3::numeric, updated_at = NOW()
		WHERE tenant_id = $4 AND id = $5`,
		m.Revenue.String(), m.BrokerFee.String(), m.LocalFee.String(),
		string(tenantID), string(orderID),
	)
	if err != nil {
		return apperr.Persistence("set order money", err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (p *pgTx) AppendOrderEvent(ctx context.Context, e *order.Event) error {
	return order.AppendEvent(ctx, p.tx, e)
}

func (p *pgTx) InsertExpense(ctx context.Context, e *Expense) error {
	_, err := p.tx.Exec(ctx, `
		INSERT INTO trip_expenses (id, tenant_id, trip_id, category, amount, notes, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)`,
		string(e.ID), string(e.TenantID), string(e.TripID), string(e.Category),
		e.Amount.String(), e.Notes, e.CreatedAt,
	)
	return apperr.Persistence("insert trip expense", err)
}

func (p *pgTx) DeleteExpense(ctx context.Context, tenantID, tripID, expenseID types.ID) (bool, error) {
	tag, err := p.tx.Exec(ctx,
		`DELETE FROM trip_expenses WHERE tenant_id = $1 AND trip_id = $2 AND id = $3`,
		string(tenantID), string(tripID), string(expenseID),
	)
	if err != nil {
		return false, apperr.Persistence("delete trip expense", err)
	}
	return tag.RowsAffected() == 1, nil
}

func idFromString(s *string) *types.ID {
	if s == nil {
		return nil
	}
	id := types.ID(*s)
	return &id
}

func idPtrString(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func decimalPtrString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
