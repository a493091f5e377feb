// README: DriverPayCalculator computes a driver's pay for one trip.
package driverpay

import (
	"fmt"

	"github.com/shopspring/decimal"

	"dispatch/internal/types"
)

// OrderLine is the slice of an order the calculator needs.
type OrderLine struct {
	Revenue   decimal.Decimal
	BrokerFee decimal.Decimal
}

// TripWork is everything about a trip that a pay model can depend on.
type TripWork struct {
	Orders []OrderLine
	Miles  decimal.Decimal
}

func (w TripWork) NetRevenue() decimal.Decimal {
	net := decimal.Zero
	for _, o := range w.Orders {
		net = net.Add(o.Revenue).Sub(o.BrokerFee)
	}
	return net
}

// Calculate returns the driver's pay for the trip. A nil model pays nothing.
func Calculate(m PayModel, w TripWork) decimal.Decimal {
	switch m := m.(type) {
	case nil:
		return decimal.Zero
	case PercentageOfNet:
		return types.PercentOf(w.NetRevenue(), m.rate)
	case DispatchFee:
		net := w.NetRevenue()
		return net.Sub(types.PercentOf(net, m.rate))
	case PerMile:
		return m.rate.Mul(w.Miles)
	case PerCar:
		return m.rate.Mul(decimal.NewFromInt(int64(len(w.Orders))))
	default:
		panic(fmt.Sprintf("driverpay: unhandled pay model %T", m))
	}
}

// DispatchFeeFor is the company's cut under DispatchFee; zero for other models.
func DispatchFeeFor(m PayModel, w TripWork) decimal.Decimal {
	if df, ok := m.(DispatchFee); ok {
		return types.PercentOf(w.NetRevenue(), df.rate)
	}
	return decimal.Zero
}

// ForDriver resolves the driver's model and calculates. A nil driver pays nothing.
func ForDriver(d *Driver, w TripWork) (decimal.Decimal, error) {
	if d == nil {
		return decimal.Zero, nil
	}
	m, err := d.Model()
	if err != nil {
		return decimal.Zero, err
	}
	return Calculate(m, w), nil
}
