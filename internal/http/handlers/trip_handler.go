// README: Trip handlers for status sync, recalculation, carrier pay and expenses.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"dispatch/internal/modules/trip"
	"dispatch/internal/types"
)

type TripHandler struct {
	trips TripService
	log   logrus.FieldLogger
}

func NewTripHandler(trips TripService, log logrus.FieldLogger) *TripHandler {
	return &TripHandler{trips: trips, log: log}
}

type financialsResponse struct {
	Revenue            decimal.Decimal `json:"total_revenue"`
	BrokerFees         decimal.Decimal `json:"total_broker_fees"`
	DriverPay          decimal.Decimal `json:"driver_pay"`
	Expenses           decimal.Decimal `json:"total_expenses"`
	CarrierPay         decimal.Decimal `json:"carrier_pay"`
	NetProfit          decimal.Decimal `json:"net_profit"`
	OrderCount         int             `json:"order_count"`
	OriginSummary      *string         `json:"origin_summary"`
	DestinationSummary *string         `json:"destination_summary"`
}

type tripResponse struct {
	ID             types.ID           `json:"id"`
	Number         string             `json:"number"`
	Status         trip.Status        `json:"status"`
	DriverID       *types.ID          `json:"driver_id"`
	TruckID        *types.ID          `json:"truck_id"`
	TotalMiles     *decimal.Decimal   `json:"total_miles"`
	Financials     financialsResponse `json:"financials"`
	RecalculatedAt *string            `json:"financials_updated_at"`
}

func toTripResponse(t *trip.Trip) tripResponse {
	f := t.Financials
	return tripResponse{
		ID:         t.ID,
		Number:     t.Number,
		Status:     t.Status,
		DriverID:   t.DriverID,
		TruckID:    t.TruckID,
		TotalMiles: t.Miles,
		Financials: financialsResponse{
			Revenue:            f.Revenue,
			BrokerFees:         f.BrokerFees,
			DriverPay:          f.DriverPay,
			Expenses:           f.Expenses,
			CarrierPay:         f.CarrierPay,
			NetProfit:          f.NetProfit,
			OrderCount:         f.OrderCount,
			OriginSummary:      f.OriginSummary,
			DestinationSummary: f.DestinationSummary,
		},
		RecalculatedAt: timePtr(t.RecalculatedAt),
	}
}

type expenseResponse struct {
	ID        types.ID             `json:"id"`
	TripID    types.ID             `json:"trip_id"`
	Category  trip.ExpenseCategory `json:"category"`
	Amount    decimal.Decimal      `json:"amount"`
	Notes     string               `json:"notes"`
	CreatedAt string               `json:"created_at"`
}

func (h *TripHandler) Recalculate(c *gin.Context) {
	tenant, ok := tenantOf(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	t, err := h.trips.Recalculate(c.Request.Context(), tenant, id)
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, toTripResponse(t))
}

type tripStatusReq struct {
	Status string `json:"status"`
}

func (h *TripHandler) SetStatus(c *gin.Context) {
	tenant, ok := tenantOf(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req tripStatusReq
	if !bindJSON(c, &req) {
		return
	}
	if req.Status == "" {
		writeError(c, http.StatusBadRequest, "missing status")
		return
	}
	t, changed, err := h.trips.SetTripStatus(c.Request.Context(), tenant, id, req.Status)
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"trip": toTripResponse(t), "orders_updated": changed})
}

type amountReq struct {
	Amount *decimal.Decimal `json:"amount"`
}

func (h *TripHandler) SetCarrierPay(c *gin.Context) {
	tenant, ok := tenantOf(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req amountReq
	if !bindJSON(c, &req) {
		return
	}
	if req.Amount == nil {
		writeError(c, http.StatusBadRequest, "missing amount")
		return
	}
	t, err := h.trips.SetCarrierPay(c.Request.Context(), tenant, id, *req.Amount)
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, toTripResponse(t))
}

type expenseReq struct {
	Category string           `json:"category"`
	Amount   *decimal.Decimal `json:"amount"`
	Notes    string           `json:"notes"`
}

func (h *TripHandler) AddExpense(c *gin.Context) {
	tenant, ok := tenantOf(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req expenseReq
	if !bindJSON(c, &req) {
		return
	}
	if req.Amount == nil {
		writeError(c, http.StatusBadRequest, "missing amount")
		return
	}
	e, t, err := h.trips.AddExpense(c.Request.Context(), tenant, id, trip.ExpenseInput{
		Category: req.Category,
		Amount:   *req.Amount,
		Notes:    req.Notes,
	})
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{
		"expense": expenseResponse{
			ID:        e.ID,
			TripID:    e.TripID,
			Category:  e.Category,
			Amount:    e.Amount,
			Notes:     e.Notes,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		},
		"trip": toTripResponse(t),
	})
}

func (h *TripHandler) DeleteExpense(c *gin.Context) {
	tenant, ok := tenantOf(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	expenseID, ok := pathID(c, "expenseId")
	if !ok {
		return
	}
	t, err := h.trips.DeleteExpense(c.Request.Context(), tenant, id, expenseID)
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, toTripResponse(t))
}

func (h *TripHandler) Delete(c *gin.Context) {
	tenant, ok := tenantOf(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	detached, err := h.trips.DeleteTrip(c.Request.Context(), tenant, id)
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"trip_id": id, "orders_detached": detached})
}
