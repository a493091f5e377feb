// README: FleetPnLEngine; pure P&L and unit-metric arithmetic over a period's totals.
package pnl

import (
	"time"

	"github.com/shopspring/decimal"

	"dispatch/internal/types"
)

var hundred = decimal.NewFromInt(100)

func ComputePnL(in Input) Statement {
	s := Statement{
		Revenue:              in.Revenue,
		BrokerFees:           in.BrokerFees,
		LocalFees:            in.LocalFees,
		DriverPay:            in.DriverPay,
		FixedCosts:           in.FixedCosts,
		FixedCostsByCategory: copyBuckets(in.FixedCostsByCategory),
		Fuel:                 in.Fuel,
		Tolls:                in.Tolls,
		Maintenance:          in.Maintenance,
		Lodging:              in.Lodging,
		Misc:                 in.Misc,
		CarrierPay:           in.CarrierPay,
	}
	s.CleanGross = in.Revenue.Sub(in.BrokerFees).Sub(in.LocalFees)
	s.TruckGross = s.CleanGross.Sub(in.DriverPay)
	s.DirectTripCosts = types.Sum(in.Fuel, in.Tolls, in.Maintenance, in.Lodging, in.Misc)
	s.TotalOperatingExpenses = types.Sum(in.FixedCosts, s.DirectTripCosts, in.CarrierPay)
	s.NetProfitBeforeTax = s.TruckGross.Sub(s.TotalOperatingExpenses)

	if in.Revenue.IsPositive() {
		s.GrossProfitMargin = s.TruckGross.Div(in.Revenue).Mul(hundred)
		s.NetMargin = s.NetProfitBeforeTax.Div(in.Revenue).Mul(hundred)
	}
	if s.TruckGross.IsPositive() && in.Revenue.IsPositive() {
		ratio := s.TruckGross.Div(in.Revenue)
		be := in.FixedCosts.Div(ratio)
		s.BreakEvenRevenue = &be
	}
	return s
}

func ComputeUnitMetrics(in Input, s Statement) UnitMetrics {
	return UnitMetrics{
		RevenuePerTruck:    types.SafeDivInt(in.Revenue, in.TruckCount),
		TruckGrossPerTruck: types.SafeDivInt(s.TruckGross, in.TruckCount),
		FixedCostPerTruck:  types.SafeDivInt(s.FixedCosts, in.TruckCount),
		NetProfitPerTruck:  types.SafeDivInt(s.NetProfitBeforeTax, in.TruckCount),

		RevenuePerTrip:    types.SafeDivInt(in.Revenue, in.TripCount),
		TruckGrossPerTrip: types.SafeDivInt(s.TruckGross, in.TripCount),
		AvgPricePerCar:    types.SafeDivInt(in.Revenue, in.CarsHauled),
		OverheadPerTrip:   types.SafeDivInt(s.FixedCosts, in.TripCount),
		DirectCostPerTrip: types.SafeDivInt(s.DirectTripCosts, in.TripCount),

		RevenuePerMile:    types.SafeDiv(in.Revenue, in.TotalMiles),
		TruckGrossPerMile: types.SafeDiv(s.TruckGross, in.TotalMiles),
		FixedCostPerMile:  types.SafeDiv(s.FixedCosts, in.TotalMiles),
		FuelCostPerMile:   types.SafeDiv(s.Fuel, in.TotalMiles),
		NetProfitPerMile:  types.SafeDiv(s.NetProfitBeforeTax, in.TotalMiles),
	}
}

// ProrateFixedCost returns the part of a monthly cost that falls inside p.
// Each calendar month contributes monthly × overlapDays / daysInMonth.
func ProrateFixedCost(fc FixedCost, p Period) decimal.Decimal {
	start := p.From
	if s := truncateDay(fc.StartsOn); s.After(start) {
		start = s
	}
	end := p.To
	if fc.EndsOn != nil {
		if e := truncateDay(*fc.EndsOn); e.Before(end) {
			end = e
		}
	}
	if end.Before(start) {
		return decimal.Zero
	}

	total := decimal.Zero
	for cursor := start; !cursor.After(end); {
		monthStart := time.Date(cursor.Year(), cursor.Month(), 1, 0, 0, 0, 0, time.UTC)
		monthEnd := monthStart.AddDate(0, 1, -1)
		segEnd := end
		if monthEnd.Before(segEnd) {
			segEnd = monthEnd
		}
		overlap := Period{From: cursor, To: segEnd}.Days()
		days := Period{From: monthStart, To: monthEnd}.Days()
		total = total.Add(types.Prorate(fc.MonthlyAmount, overlap, days))
		cursor = monthEnd.AddDate(0, 0, 1)
	}
	return total
}

// FixedCostsFor prorates every cost over p and buckets the result by category.
func FixedCostsFor(costs []FixedCost, p Period) (decimal.Decimal, map[string]decimal.Decimal) {
	total := decimal.Zero
	byCat := make(map[string]decimal.Decimal)
	for _, fc := range costs {
		amt := ProrateFixedCost(fc, p)
		if amt.IsZero() {
			continue
		}
		total = total.Add(amt)
		byCat[fc.Category] = byCat[fc.Category].Add(amt)
	}
	return total, byCat
}

func copyBuckets(in map[string]decimal.Decimal) map[string]decimal.Decimal {
	if in == nil {
		return nil
	}
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
