// README: Fleet P&L handlers: stored-period report and ad-hoc computation.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"dispatch/internal/modules/pnl"
	"dispatch/internal/types"
)

const dateLayout = "2006-01-02"

// PnLService is the part of pnl.Service the handlers call.
type PnLService interface {
	ForPeriod(ctx context.Context, tenantID types.ID, from, to time.Time) (*pnl.Report, error)
	Compute(in pnl.Input) (pnl.Statement, pnl.UnitMetrics)
}

type PnLHandler struct {
	pnl PnLService
	log logrus.FieldLogger
}

func NewPnLHandler(svc PnLService, log logrus.FieldLogger) *PnLHandler {
	return &PnLHandler{pnl: svc, log: log}
}

type statementResponse struct {
	Revenue                decimal.Decimal            `json:"revenue"`
	BrokerFees             decimal.Decimal            `json:"broker_fees"`
	LocalFees              decimal.Decimal            `json:"local_fees"`
	CleanGross             decimal.Decimal            `json:"clean_gross"`
	DriverPay              decimal.Decimal            `json:"driver_pay"`
	TruckGross             decimal.Decimal            `json:"truck_gross"`
	FixedCosts             decimal.Decimal            `json:"fixed_costs"`
	FixedCostsByCategory   map[string]decimal.Decimal `json:"fixed_costs_by_category"`
	Fuel                   decimal.Decimal            `json:"fuel"`
	Tolls                  decimal.Decimal            `json:"tolls"`
	Maintenance            decimal.Decimal            `json:"maintenance"`
	Lodging                decimal.Decimal            `json:"lodging"`
	Misc                   decimal.Decimal            `json:"misc"`
	DirectTripCosts        decimal.Decimal            `json:"direct_trip_costs"`
	CarrierPay             decimal.Decimal            `json:"carrier_pay"`
	TotalOperatingExpenses decimal.Decimal            `json:"total_operating_expenses"`
	NetProfitBeforeTax     decimal.Decimal            `json:"net_profit_before_tax"`
	GrossProfitMargin      decimal.Decimal            `json:"gross_profit_margin"`
	NetMargin              decimal.Decimal            `json:"net_margin"`
	BreakEvenRevenue       *decimal.Decimal           `json:"break_even_revenue"`
}

type unitsResponse struct {
	RevenuePerTruck    *decimal.Decimal `json:"revenue_per_truck"`
	TruckGrossPerTruck *decimal.Decimal `json:"truck_gross_per_truck"`
	FixedCostPerTruck  *decimal.Decimal `json:"fixed_cost_per_truck"`
	NetProfitPerTruck  *decimal.Decimal `json:"net_profit_per_truck"`
	RevenuePerTrip     *decimal.Decimal `json:"revenue_per_trip"`
	TruckGrossPerTrip  *decimal.Decimal `json:"truck_gross_per_trip"`
	AvgPricePerCar     *decimal.Decimal `json:"avg_price_per_car"`
	OverheadPerTrip    *decimal.Decimal `json:"overhead_per_trip"`
	DirectCostPerTrip  *decimal.Decimal `json:"direct_cost_per_trip"`
	RevenuePerMile     *decimal.Decimal `json:"revenue_per_mile"`
	TruckGrossPerMile  *decimal.Decimal `json:"truck_gross_per_mile"`
	FixedCostPerMile   *decimal.Decimal `json:"fixed_cost_per_mile"`
	FuelCostPerMile    *decimal.Decimal `json:"fuel_cost_per_mile"`
	NetProfitPerMile   *decimal.Decimal `json:"net_profit_per_mile"`
}

type pnlResponse struct {
	From       string            `json:"from,omitempty"`
	To         string            `json:"to,omitempty"`
	TruckCount int64             `json:"truck_count"`
	TripCount  int64             `json:"trip_count"`
	CarsHauled int64             `json:"cars_hauled"`
	TotalMiles decimal.Decimal   `json:"total_miles"`
	Statement  statementResponse `json:"statement"`
	Units      unitsResponse     `json:"units"`
}

func toPnLResponse(in pnl.Input, s pnl.Statement, u pnl.UnitMetrics) pnlResponse {
	return pnlResponse{
		TruckCount: in.TruckCount,
		TripCount:  in.TripCount,
		CarsHauled: in.CarsHauled,
		TotalMiles: in.TotalMiles,
		Statement: statementResponse{
			Revenue:                s.Revenue,
			BrokerFees:             s.BrokerFees,
			LocalFees:              s.LocalFees,
			CleanGross:             s.CleanGross,
			DriverPay:              s.DriverPay,
			TruckGross:             s.TruckGross,
			FixedCosts:             s.FixedCosts,
			FixedCostsByCategory:   s.FixedCostsByCategory,
			Fuel:                   s.Fuel,
			Tolls:                  s.Tolls,
			Maintenance:            s.Maintenance,
			Lodging:                s.Lodging,
			Misc:                   s.Misc,
			DirectTripCosts:        s.DirectTripCosts,
			CarrierPay:             s.CarrierPay,
			TotalOperatingExpenses: s.TotalOperatingExpenses,
			NetProfitBeforeTax:     s.NetProfitBeforeTax,
			GrossProfitMargin:      s.GrossProfitMargin,
			NetMargin:              s.NetMargin,
			BreakEvenRevenue:       s.BreakEvenRevenue,
		},
		Units: unitsResponse{
			RevenuePerTruck:    u.RevenuePerTruck,
			TruckGrossPerTruck: u.TruckGrossPerTruck,
			FixedCostPerTruck:  u.FixedCostPerTruck,
			NetProfitPerTruck:  u.NetProfitPerTruck,
			RevenuePerTrip:     u.RevenuePerTrip,
			TruckGrossPerTrip:  u.TruckGrossPerTrip,
			AvgPricePerCar:     u.AvgPricePerCar,
			OverheadPerTrip:    u.OverheadPerTrip,
			DirectCostPerTrip:  u.DirectCostPerTrip,
			RevenuePerMile:     u.RevenuePerMile,
			TruckGrossPerMile:  u.TruckGrossPerMile,
			FixedCostPerMile:   u.FixedCostPerMile,
			FuelCostPerMile:    u.FuelCostPerMile,
			NetProfitPerMile:   u.NetProfitPerMile,
		},
	}
}

// Period serves GET /api/pnl?from=YYYY-MM-DD&to=YYYY-MM-DD.
func (h *PnLHandler) Period(c *gin.Context) {
	tenant, ok := tenantOf(c)
	if !ok {
		return
	}
	from, err := time.Parse(dateLayout, c.Query("from"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "from must be YYYY-MM-DD")
		return
	}
	to, err := time.Parse(dateLayout, c.Query("to"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "to must be YYYY-MM-DD")
		return
	}
	rep, err := h.pnl.ForPeriod(c.Request.Context(), tenant, from, to)
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	resp := toPnLResponse(rep.Input, rep.Statement, rep.Units)
	resp.From = rep.Period.From.Format(dateLayout)
	resp.To = rep.Period.To.Format(dateLayout)
	writeJSON(c, http.StatusOK, resp)
}

type computeReq struct {
	Revenue    decimal.Decimal `json:"revenue"`
	BrokerFees decimal.Decimal `json:"broker_fees"`
	LocalFees  decimal.Decimal `json:"local_fees"`
	DriverPay  decimal.Decimal `json:"driver_pay"`

	Fuel        decimal.Decimal `json:"fuel"`
	Tolls       decimal.Decimal `json:"tolls"`
	Maintenance decimal.Decimal `json:"maintenance"`
	Lodging     decimal.Decimal `json:"lodging"`
	Misc        decimal.Decimal `json:"misc"`

	CarrierPay           decimal.Decimal            `json:"carrier_pay"`
	FixedCosts           decimal.Decimal            `json:"fixed_costs"`
	FixedCostsByCategory map[string]decimal.Decimal `json:"fixed_costs_by_category"`

	TruckCount int64           `json:"truck_count"`
	TripCount  int64           `json:"trip_count"`
	CarsHauled int64           `json:"cars_hauled"`
	TotalMiles decimal.Decimal `json:"total_miles"`
}

// Compute serves POST /api/pnl/compute. It reads nothing from storage.
func (h *PnLHandler) Compute(c *gin.Context) {
	var req computeReq
	if !bindJSON(c, &req) {
		return
	}
	if req.TruckCount < 0 || req.TripCount < 0 || req.CarsHauled < 0 {
		writeError(c, http.StatusBadRequest, "counts must not be negative")
		return
	}
	in := pnl.Input{
		Revenue:              req.Revenue,
		BrokerFees:           req.BrokerFees,
		LocalFees:            req.LocalFees,
		DriverPay:            req.DriverPay,
		Fuel:                 req.Fuel,
		Tolls:                req.Tolls,
		Maintenance:          req.Maintenance,
		Lodging:              req.Lodging,
		Misc:                 req.Misc,
		CarrierPay:           req.CarrierPay,
		FixedCosts:           req.FixedCosts,
		FixedCostsByCategory: req.FixedCostsByCategory,
		TruckCount:           req.TruckCount,
		TripCount:            req.TripCount,
		CarsHauled:           req.CarsHauled,
		TotalMiles:           req.TotalMiles,
		OrderCount:           req.CarsHauled,
	}
	s, u := h.pnl.Compute(in)
	writeJSON(c, http.StatusOK, toPnLResponse(in, s, u))
}
