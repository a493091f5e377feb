// README: Period P&L service; loads a period's totals in parallel and runs the engine.
package pnl

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"dispatch/internal/modules/trip"
	"dispatch/internal/types"
)

// TripTotals sums completed trips whose end date falls in the period.
type TripTotals struct {
	TripCount  int64
	DriverPay  decimal.Decimal
	CarrierPay decimal.Decimal
	Miles      decimal.Decimal
}

// OrderTotals sums the orders on those trips. OrderCount skips cancelled orders; each live order moves one vehicle.
type OrderTotals struct {
	OrderCount int64
	Revenue    decimal.Decimal
	BrokerFees decimal.Decimal
	LocalFees  decimal.Decimal
}

type Repository interface {
	TripTotals(ctx context.Context, tenantID types.ID, p Period) (TripTotals, error)
	OrderTotals(ctx context.Context, tenantID types.ID, p Period) (OrderTotals, error)
	ExpenseTotals(ctx context.Context, tenantID types.ID, p Period) (map[string]decimal.Decimal, error)
	FixedCosts(ctx context.Context, tenantID types.ID, p Period) ([]FixedCost, error)
	ActiveTrucks(ctx context.Context, tenantID types.ID) (int64, error)
}

type Service struct {
	store Repository
	log   logrus.FieldLogger
}

func NewService(store Repository, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{store: store, log: log}
}

// Compute runs the engine over a caller-supplied input.
func (s *Service) Compute(in Input) (Statement, UnitMetrics) {
	st := ComputePnL(in)
	return st, ComputeUnitMetrics(in, st)
}

// ForPeriod builds the input for [from, to] from stored trips, orders, expenses and fixed costs.
func (s *Service) ForPeriod(ctx context.Context, tenantID types.ID, from, to time.Time) (*Report, error) {
	p, err := NewPeriod(from, to)
	if err != nil {
		return nil, err
	}

	var (
		trips    TripTotals
		orders   OrderTotals
		expenses map[string]decimal.Decimal
		fixed    []FixedCost
		trucks   int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		trips, err = s.store.TripTotals(gctx, tenantID, p)
		return err
	})
	g.Go(func() (err error) {
		orders, err = s.store.OrderTotals(gctx, tenantID, p)
		return err
	})
	g.Go(func() (err error) {
		expenses, err = s.store.ExpenseTotals(gctx, tenantID, p)
		return err
	})
	g.Go(func() (err error) {
		fixed, err = s.store.FixedCosts(gctx, tenantID, p)
		return err
	})
	g.Go(func() (err error) {
		trucks, err = s.store.ActiveTrucks(gctx, tenantID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	in := Input{
		Revenue:     orders.Revenue,
		BrokerFees:  orders.BrokerFees,
		LocalFees:   orders.LocalFees,
		DriverPay:   trips.DriverPay,
		Fuel:        expenses[string(trip.ExpenseFuel)],
		Tolls:       expenses[string(trip.ExpenseTolls)],
		Maintenance: expenses[string(trip.ExpenseRepairs)],
		Lodging:     expenses[string(trip.ExpenseLodging)],
		Misc:        expenses[string(trip.ExpenseMisc)],
		CarrierPay:  trips.CarrierPay,
		TruckCount:  trucks,
		TripCount:   trips.TripCount,
		CarsHauled:  orders.OrderCount,
		TotalMiles:  trips.Miles,
		OrderCount:  orders.OrderCount,
	}
	in.FixedCosts, in.FixedCostsByCategory = FixedCostsFor(fixed, p)

	st, units := s.Compute(in)
	s.log.WithFields(logrus.Fields{
		"tenant_id":  tenantID,
		"from":       p.From.Format(time.DateOnly),
		"to":         p.To.Format(time.DateOnly),
		"trips":      in.TripCount,
		"net_profit": st.NetProfitBeforeTax.StringFixed(2),
	}).Info("period pnl computed")
	return &Report{Period: p, Input: in, Statement: st, Units: units}, nil
}
