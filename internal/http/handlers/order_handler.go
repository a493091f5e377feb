// README: Order handlers for lifecycle moves, trip assignment and financial edits.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"dispatch/internal/modules/order"
	"dispatch/internal/modules/trip"
	"dispatch/internal/types"
)

// OrderService is the part of order.Service the handlers call.
type OrderService interface {
	Get(ctx context.Context, tenantID, id types.ID) (*order.Order, error)
	AdvanceStatus(ctx context.Context, cmd order.AdvanceCommand) (*order.Order, error)
	Rollback(ctx context.Context, cmd order.RollbackCommand) (*order.Order, error)
}

// TripService is the part of trip.Service the handlers call.
type TripService interface {
	Recalculate(ctx context.Context, tenantID, tripID types.ID) (*trip.Trip, error)
	SetTripStatus(ctx context.Context, tenantID, tripID types.ID, status string) (*trip.Trip, int, error)
	AssignOrderToTrip(ctx context.Context, tenantID, orderID, tripID types.ID) error
	UnassignOrderFromTrip(ctx context.Context, tenantID, orderID types.ID) error
	DeleteTrip(ctx context.Context, tenantID, tripID types.ID) (int, error)
	AddExpense(ctx context.Context, tenantID, tripID types.ID, in trip.ExpenseInput) (*trip.Expense, *trip.Trip, error)
	DeleteExpense(ctx context.Context, tenantID, tripID, expenseID types.ID) (*trip.Trip, error)
	SetCarrierPay(ctx context.Context, tenantID, tripID types.ID, amount decimal.Decimal) (*trip.Trip, error)
	UpdateOrderFinancials(ctx context.Context, tenantID, orderID types.ID, m trip.OrderMoney) error
}

type OrderHandler struct {
	orders OrderService
	trips  TripService
	log    logrus.FieldLogger
}

func NewOrderHandler(orders OrderService, trips TripService, log logrus.FieldLogger) *OrderHandler {
	return &OrderHandler{orders: orders, trips: trips, log: log}
}

type orderResponse struct {
	ID                 types.ID        `json:"id"`
	Number             string          `json:"number"`
	Status             order.Status    `json:"status"`
	StatusVersion      int             `json:"status_version"`
	CancelledReason    *string         `json:"cancelled_reason"`
	TripID             *types.ID       `json:"trip_id"`
	Revenue            decimal.Decimal `json:"revenue"`
	BrokerFee          decimal.Decimal `json:"broker_fee"`
	LocalFee           decimal.Decimal `json:"local_fee"`
	ActualPickupDate   *string         `json:"actual_pickup_date"`
	ActualDeliveryDate *string         `json:"actual_delivery_date"`
}

func toOrderResponse(o *order.Order) orderResponse {
	return orderResponse{
		ID:                 o.ID,
		Number:             o.Number,
		Status:             o.Status,
		StatusVersion:      o.StatusVersion,
		CancelledReason:    o.CancelledReason,
		TripID:             o.TripID,
		Revenue:            o.Revenue,
		BrokerFee:          o.BrokerFee,
		LocalFee:           o.LocalFee,
		ActualPickupDate:   timePtr(o.ActualPickupDate),
		ActualDeliveryDate: timePtr(o.ActualDeliveryDate),
	}
}

func (h *OrderHandler) Get(c *gin.Context) {
	tenant, ok := tenantOf(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	o, err := h.orders.Get(c.Request.Context(), tenant, id)
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, toOrderResponse(o))
}

type advanceReq struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (h *OrderHandler) AdvanceStatus(c *gin.Context) {
	tenant, ok := tenantOf(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req advanceReq
	if !bindJSON(c, &req) {
		return
	}
	if req.Status == "" {
		writeError(c, http.StatusBadRequest, "missing status")
		return
	}
	o, err := h.orders.AdvanceStatus(c.Request.Context(), order.AdvanceCommand{
		TenantID:  tenant,
		OrderID:   id,
		Status:    req.Status,
		Reason:    req.Reason,
		ActorType: trip.ActorUser,
	})
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, toOrderResponse(o))
}

func (h *OrderHandler) Rollback(c *gin.Context) {
	tenant, ok := tenantOf(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	o, err := h.orders.Rollback(c.Request.Context(), order.RollbackCommand{
		TenantID:  tenant,
		OrderID:   id,
		ActorType: trip.ActorUser,
	})
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, toOrderResponse(o))
}

type assignReq struct {
	TripID string `json:"trip_id"`
}

func (h *OrderHandler) Assign(c *gin.Context) {
	tenant, ok := tenantOf(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req assignReq
	if !bindJSON(c, &req) {
		return
	}
	if !isValidID(req.TripID) {
		writeError(c, http.StatusBadRequest, "invalid trip_id")
		return
	}
	if err := h.trips.AssignOrderToTrip(c.Request.Context(), tenant, id, types.ID(req.TripID)); err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"order_id": id, "trip_id": req.TripID})
}

func (h *OrderHandler) Unassign(c *gin.Context) {
	tenant, ok := tenantOf(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.trips.UnassignOrderFromTrip(c.Request.Context(), tenant, id); err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"order_id": id, "trip_id": nil})
}

// financialsReq fields are pointers so a missing amount is told apart from zero.
type financialsReq struct {
	Revenue   *decimal.Decimal `json:"revenue"`
	BrokerFee *decimal.Decimal `json:"broker_fee"`
	LocalFee  *decimal.Decimal `json:"local_fee"`
}

func (h *OrderHandler) UpdateFinancials(c *gin.Context) {
	tenant, ok := tenantOf(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req financialsReq
	if !bindJSON(c, &req) {
		return
	}
	if req.Revenue == nil || req.BrokerFee == nil {
		writeError(c, http.StatusBadRequest, "revenue and broker_fee are required")
		return
	}
	m := trip.OrderMoney{Revenue: *req.Revenue, BrokerFee: *req.BrokerFee}
	if req.LocalFee != nil {
		m.LocalFee = *req.LocalFee
	}
	if err := h.trips.UpdateOrderFinancials(c.Request.Context(), tenant, id, m); err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	o, err := h.orders.Get(c.Request.Context(), tenant, id)
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, toOrderResponse(o))
}
