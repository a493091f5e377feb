// README: P&L period queries backed by PostgreSQL; each aggregate is one read-only query.
package pnl

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"dispatch/internal/apperr"
	"dispatch/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// completedTrips selects the trips counted in a period: completed, ending inside it.
const completedTrips = `
	SELECT id FROM trips
	WHERE tenant_id = $1 AND status = 'completed' AND end_date BETWEEN $2 AND $3`

func (s *Store) TripTotals(ctx context.Context, tenantID types.ID, p Period) (TripTotals, error) {
	var (
		t                         TripTotals
		driverPay, carrier, miles string
	)
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(driver_pay), 0)::text,
		       COALESCE(SUM(carrier_pay), 0)::text,
		       COALESCE(SUM(total_miles), 0)::text
		FROM trips
		WHERE tenant_id = $1 AND status = 'completed' AND end_date BETWEEN $2 AND $3`,
		string(tenantID), p.From, p.To,
	).Scan(&t.TripCount, &driverPay, &carrier, &miles)
	if err != nil {
		return TripTotals{}, apperr.Persistence("pnl trip totals", err)
	}
	t.DriverPay = types.ParseMoney(driverPay)
	t.CarrierPay = types.ParseMoney(carrier)
	t.Miles = types.ParseMoney(miles)
	return t, nil
}

// OrderTotals sums money over every order on the period's trips, the same set the trip
// snapshots cover, so period revenue matches the sum of trip revenue. Only live orders are counted.
func (s *Store) OrderTotals(ctx context.Context, tenantID types.ID, p Period) (OrderTotals, error) {
	var (
		o                        OrderTotals
		revenue, brokers, locals string
	)
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status <> 'cancelled'),
		       COALESCE(SUM(revenue), 0)::text,
		       COALESCE(SUM(broker_fee), 0)::text,
		       COALESCE(SUM(local_fee), 0)::text
		FROM orders
		WHERE tenant_id = $1 AND trip_id IN (`+completedTrips+`)`,
		string(tenantID), p.From, p.To,
	).Scan(&o.OrderCount, &revenue, &brokers, &locals)
	if err != nil {
		return OrderTotals{}, apperr.Persistence("pnl order totals", err)
	}
	o.Revenue = types.ParseMoney(revenue)
	o.BrokerFees = types.ParseMoney(brokers)
	o.LocalFees = types.ParseMoney(locals)
	return o, nil
}

func (s *Store) ExpenseTotals(ctx context.Context, tenantID types.ID, p Period) (map[string]decimal.Decimal, error) {
	rows, err := s.db.Query(ctx, `
		SELECT category, SUM(amount)::text
		FROM trip_expenses
		WHERE tenant_id = $1 AND trip_id IN (`+completedTrips+`)
		GROUP BY category`,
		string(tenantID), p.From, p.To,
	)
	if err != nil {
		return nil, apperr.Persistence("pnl expense totals", err)
	}
	defer rows.Close()

	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var cat, amount string
		if err := rows.Scan(&cat, &amount); err != nil {
			return nil, apperr.Persistence("scan expense total", err)
		}
		out[cat] = types.ParseMoney(amount)
	}
	return out, apperr.Persistence("pnl expense totals", rows.Err())
}

// FixedCosts returns every cost active on at least one day of p; proration happens in the engine.
func (s *Store) FixedCosts(ctx context.Context, tenantID types.ID, p Period) ([]FixedCost, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, tenant_id, category, monthly_amount::text, starts_on, ends_on
		FROM fixed_costs
		WHERE tenant_id = $1 AND starts_on <= $3 AND (ends_on IS NULL OR ends_on >= $2)
		ORDER BY starts_on, id`,
		string(tenantID), p.From, p.To,
	)
	if err != nil {
		return nil, apperr.Persistence("list fixed costs", err)
	}
	defer rows.Close()

	var out []FixedCost
	for rows.Next() {
		var (
			fc              FixedCost
			id, tid, amount string
			endsOn          *time.Time
		)
		if err := rows.Scan(&id, &tid, &fc.Category, &amount, &fc.StartsOn, &endsOn); err != nil {
			return nil, apperr.Persistence("scan fixed cost", err)
		}
		fc.ID = types.ID(id)
		fc.TenantID = types.ID(tid)
		fc.MonthlyAmount = types.ParseMoney(amount)
		fc.EndsOn = endsOn
		out = append(out, fc)
	}
	return out, apperr.Persistence("list fixed costs", rows.Err())
}

func (s *Store) ActiveTrucks(ctx context.Context, tenantID types.ID) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM trucks WHERE tenant_id = $1 AND active`,
		string(tenantID),
	).Scan(&n)
	return n, apperr.Persistence("count active trucks", err)
}

// AddFixedCost records a monthly overhead line.
func (s *Store) AddFixedCost(ctx context.Context, fc *FixedCost) error {
	if fc.ID == "" {
		fc.ID = types.NewID()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO fixed_costs (id, tenant_id, category, monthly_amount, starts_on, ends_on)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)`,
		string(fc.ID), string(fc.TenantID), fc.Category, fc.MonthlyAmount.String(), fc.StartsOn, fc.EndsOn,
	)
	return apperr.Persistence("insert fixed cost", err)
}
