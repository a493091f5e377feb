// README: Trip aggregate, trip status, expenses and the denormalized financial snapshot.
package trip

import (
	"time"

	"github.com/shopspring/decimal"

	"dispatch/internal/apperr"
	"dispatch/internal/modules/order"
	"dispatch/internal/types"
)

type Status string

const (
	StatusPlanned    Status = "planned"
	StatusInProgress Status = "in_progress"
	StatusAtTerminal Status = "at_terminal"
	StatusCompleted  Status = "completed"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPlanned, StatusInProgress, StatusAtTerminal, StatusCompleted:
		return Status(s), nil
	}
	return "", ErrUnknownStatus
}

// OrderStatusFor is the status every member order takes when the trip enters st.
// at_terminal has no entry and leaves orders untouched.
var OrderStatusFor = map[Status]order.Status{
	StatusInProgress: order.StatusPickedUp,
	StatusCompleted:  order.StatusDelivered,
	StatusPlanned:    order.StatusAssigned,
}

type ExpenseCategory string

const (
	ExpenseFuel    ExpenseCategory = "fuel"
	ExpenseTolls   ExpenseCategory = "tolls"
	ExpenseRepairs ExpenseCategory = "repairs"
	ExpenseLodging ExpenseCategory = "lodging"
	ExpenseMisc    ExpenseCategory = "misc"
)

func (c ExpenseCategory) Valid() bool {
	switch c {
	case ExpenseFuel, ExpenseTolls, ExpenseRepairs, ExpenseLodging, ExpenseMisc:
		return true
	}
	return false
}

var (
	ErrUnknownStatus          = apperr.Validation("unknown trip status")
	ErrNotFound               = apperr.NotFound("trip not found")
	ErrExpenseNotFound        = apperr.NotFound("trip expense not found")
	ErrNotAssigned            = apperr.Validation("order is not assigned to a trip")
	ErrMissingTrip            = apperr.Validation("trip id is required")
	ErrInvalidExpenseCategory = apperr.Validation("unknown expense category")
	ErrNegativeAmount         = apperr.Validation("amount must not be negative")
)

// Snapshot is derived data owned by the financials engine; never written by hand.
type Snapshot struct {
	Revenue            decimal.Decimal
	BrokerFees         decimal.Decimal
	DriverPay          decimal.Decimal
	Expenses           decimal.Decimal
	CarrierPay         decimal.Decimal
	NetProfit          decimal.Decimal
	OrderCount         int
	OriginSummary      *string
	DestinationSummary *string
}

// Equal compares numerically so "540" and "540.00" match.
func (s Snapshot) Equal(o Snapshot) bool {
	return s.Revenue.Equal(o.Revenue) &&
		s.BrokerFees.Equal(o.BrokerFees) &&
		s.DriverPay.Equal(o.DriverPay) &&
		s.Expenses.Equal(o.Expenses) &&
		s.CarrierPay.Equal(o.CarrierPay) &&
		s.NetProfit.Equal(o.NetProfit) &&
		s.OrderCount == o.OrderCount &&
		strPtrEqual(s.OriginSummary, o.OriginSummary) &&
		strPtrEqual(s.DestinationSummary, o.DestinationSummary)
}

type Trip struct {
	ID             types.ID
	TenantID       types.ID
	Number         string
	Status         Status
	DriverID       *types.ID
	TruckID        *types.ID
	StartDate      *time.Time
	EndDate        *time.Time
	CarrierPay     decimal.Decimal
	Miles          *decimal.Decimal
	Financials     Snapshot
	RecalculatedAt *time.Time
}

type Expense struct {
	ID        types.ID
	TenantID  types.ID
	TripID    types.ID
	Category  ExpenseCategory
	Amount    decimal.Decimal
	Notes     string
	CreatedAt time.Time
}

// OrderLine is the part of an assigned order that feeds the snapshot.
type OrderLine struct {
	ID              types.ID
	Revenue         decimal.Decimal
	BrokerFee       decimal.Decimal
	PickupState     string
	DeliveryState   string
	PickupAddress   string
	DeliveryAddress string
	CreatedAt       time.Time
}

// OrderRef is a locked order row as seen by the assignment and sync workflows.
type OrderRef struct {
	ID                 types.ID
	TenantID           types.ID
	Status             order.Status
	StatusVersion      int
	TripID             *types.ID
	ActualPickupDate   *time.Time
	ActualDeliveryDate *time.Time
}

// moveTo sets the status and keeps the actual dates consistent with it.
// Dates already stamped are kept when the order stays at or past that milestone.
func (r *OrderRef) moveTo(to order.Status, at time.Time) {
	r.Status = to
	if to.AtLeast(order.StatusPickedUp) {
		if r.ActualPickupDate == nil {
			r.ActualPickupDate = &at
		}
	} else {
		r.ActualPickupDate = nil
	}
	if to.AtLeast(order.StatusDelivered) {
		if r.ActualDeliveryDate == nil {
			r.ActualDeliveryDate = &at
		}
	} else {
		r.ActualDeliveryDate = nil
	}
}

// detach takes the order off its trip. Live orders return to new; cancelled orders stay cancelled.
func (r *OrderRef) detach(at time.Time) {
	r.TripID = nil
	if r.Status != order.StatusCancelled {
		r.moveTo(order.StatusNew, at)
	}
}

// OrderMoney is the editable money on an order that feeds trip financials.
type OrderMoney struct {
	Revenue   decimal.Decimal
	BrokerFee decimal.Decimal
	LocalFee  decimal.Decimal
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
