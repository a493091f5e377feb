// README: Fleet P&L input, statement and unit-economics shapes.
package pnl

import (
	"time"

	"github.com/shopspring/decimal"

	"dispatch/internal/apperr"
	"dispatch/internal/types"
)

// Input is a period's raw totals. ForPeriod builds it from stored rows; callers may also supply one directly.
type Input struct {
	Revenue    decimal.Decimal
	BrokerFees decimal.Decimal
	LocalFees  decimal.Decimal
	DriverPay  decimal.Decimal

	Fuel        decimal.Decimal
	Tolls       decimal.Decimal
	Maintenance decimal.Decimal
	Lodging     decimal.Decimal
	Misc        decimal.Decimal

	CarrierPay decimal.Decimal

	FixedCosts           decimal.Decimal
	FixedCostsByCategory map[string]decimal.Decimal

	TruckCount int64
	TripCount  int64
	CarsHauled int64
	TotalMiles decimal.Decimal
	OrderCount int64
}

type Statement struct {
	Revenue    decimal.Decimal
	BrokerFees decimal.Decimal
	LocalFees  decimal.Decimal
	CleanGross decimal.Decimal
	DriverPay  decimal.Decimal
	TruckGross decimal.Decimal

	FixedCosts           decimal.Decimal
	FixedCostsByCategory map[string]decimal.Decimal

	Fuel            decimal.Decimal
	Tolls           decimal.Decimal
	Maintenance     decimal.Decimal
	Lodging         decimal.Decimal
	Misc            decimal.Decimal
	DirectTripCosts decimal.Decimal

	CarrierPay             decimal.Decimal
	TotalOperatingExpenses decimal.Decimal
	NetProfitBeforeTax     decimal.Decimal

	// Margins are percentages; zero when there is no revenue.
	GrossProfitMargin decimal.Decimal
	NetMargin         decimal.Decimal

	// BreakEvenRevenue is nil when truck gross or revenue is not positive.
	BreakEvenRevenue *decimal.Decimal
}

// UnitMetrics holds per-truck, per-trip and per-mile ratios. A nil field means its denominator was zero.
type UnitMetrics struct {
	RevenuePerTruck    *decimal.Decimal
	TruckGrossPerTruck *decimal.Decimal
	FixedCostPerTruck  *decimal.Decimal
	NetProfitPerTruck  *decimal.Decimal

	RevenuePerTrip    *decimal.Decimal
	TruckGrossPerTrip *decimal.Decimal
	AvgPricePerCar    *decimal.Decimal
	OverheadPerTrip   *decimal.Decimal
	DirectCostPerTrip *decimal.Decimal

	RevenuePerMile    *decimal.Decimal
	TruckGrossPerMile *decimal.Decimal
	FixedCostPerMile  *decimal.Decimal
	FuelCostPerMile   *decimal.Decimal
	NetProfitPerMile  *decimal.Decimal
}

// Period is a closed range of calendar days in UTC.
type Period struct {
	From time.Time
	To   time.Time
}

var ErrInvalidPeriod = apperr.Validation("period end must not be before its start")

func NewPeriod(from, to time.Time) (Period, error) {
	p := Period{From: truncateDay(from), To: truncateDay(to)}
	if p.To.Before(p.From) {
		return Period{}, ErrInvalidPeriod
	}
	return p, nil
}

// Days counts calendar days, both ends included.
func (p Period) Days() int64 {
	return int64(p.To.Sub(p.From).Hours()/24) + 1
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FixedCost is a recurring monthly overhead line such as insurance or a truck lease.
type FixedCost struct {
	ID            types.ID
	TenantID      types.ID
	Category      string
	MonthlyAmount decimal.Decimal
	StartsOn      time.Time
	EndsOn        *time.Time
}

// Report is what ForPeriod returns.
type Report struct {
	Period    Period
	Input     Input
	Statement Statement
	Units     UnitMetrics
}
