// README: TripFinancialsEngine; derives a trip's snapshot from its orders, expenses and carrier pay.
package trip

import (
	"sort"
	"strings"

	"dispatch/internal/modules/driverpay"
	"dispatch/internal/types"
)

// Inputs is everything the snapshot is derived from.
type Inputs struct {
	Trip     *Trip
	Driver   *driverpay.Driver
	Orders   []OrderLine
	Expenses []Expense
}

// ComputeSnapshot recomputes the full snapshot from source data. It never
// reads the trip's previous snapshot, so repeated calls on unchanged data agree.
func ComputeSnapshot(in Inputs) (Snapshot, error) {
	orders := make([]OrderLine, len(in.Orders))
	copy(orders, in.Orders)
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})

	var snap Snapshot
	work := driverpay.TripWork{Orders: make([]driverpay.OrderLine, 0, len(orders))}
	for _, o := range orders {
		snap.Revenue = snap.Revenue.Add(o.Revenue)
		snap.BrokerFees = snap.BrokerFees.Add(o.BrokerFee)
		work.Orders = append(work.Orders, driverpay.OrderLine{Revenue: o.Revenue, BrokerFee: o.BrokerFee})
	}
	for _, e := range in.Expenses {
		snap.Expenses = snap.Expenses.Add(e.Amount)
	}
	if in.Trip != nil {
		snap.CarrierPay = in.Trip.CarrierPay
		if in.Trip.Miles != nil {
			work.Miles = *in.Trip.Miles
		}
	}

	pay, err := driverpay.ForDriver(in.Driver, work)
	if err != nil {
		return Snapshot{}, err
	}
	// every snapshot field is stored at cents; net profit is derived from the rounded pay
	snap.DriverPay = types.Round2(pay)
	snap.NetProfit = snap.Revenue.
		Sub(snap.BrokerFees).
		Sub(snap.DriverPay).
		Sub(snap.Expenses).
		Sub(snap.CarrierPay)
	snap.OrderCount = len(orders)
	snap.OriginSummary = routeSummary(orders, func(o OrderLine) string { return o.PickupState })
	snap.DestinationSummary = routeSummary(orders, func(o OrderLine) string { return o.DeliveryState })
	return snap, nil
}

// routeSummary joins distinct non-empty states in first-seen order, or nil when there are none.
func routeSummary(orders []OrderLine, state func(OrderLine) string) *string {
	seen := make(map[string]bool, len(orders))
	var parts []string
	for _, o := range orders {
		s := strings.TrimSpace(state(o))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		parts = append(parts, s)
	}
	if len(parts) == 0 {
		return nil
	}
	joined := strings.Join(parts, ", ")
	return &joined
}

// NeedsMiles reports whether the driver's pay depends on trip miles that are not recorded yet.
func NeedsMiles(t *Trip, d *driverpay.Driver) bool {
	if t == nil || d == nil || t.Miles != nil {
		return false
	}
	m, err := d.Model()
	if err != nil {
		return false
	}
	_, perMile := m.(driverpay.PerMile)
	return perMile
}

// routeEndpoints picks the first pickup and last delivery address for mileage estimation.
func routeEndpoints(orders []OrderLine) (origin, destination string) {
	for _, o := range orders {
		if origin == "" && o.PickupAddress != "" {
			origin = o.PickupAddress
		}
		if o.DeliveryAddress != "" {
			destination = o.DeliveryAddress
		}
	}
	return origin, destination
}
