// README: Order aggregate, lifecycle status enum and payment status.
package order

import (
	"time"

	"github.com/shopspring/decimal"

	"dispatch/internal/apperr"
	"dispatch/internal/types"
)

// Status is ordered: the linear lifecycle runs New..Paid, Cancelled sits outside it.
type Status uint8

const (
	StatusNew Status = iota
	StatusAssigned
	StatusPickedUp
	StatusDelivered
	StatusInvoiced
	StatusPaid
	StatusCancelled
)

var statusNames = [...]string{
	StatusNew:       "new",
	StatusAssigned:  "assigned",
	StatusPickedUp:  "picked_up",
	StatusDelivered: "delivered",
	StatusInvoiced:  "invoiced",
	StatusPaid:      "paid",
	StatusCancelled: "cancelled",
}

var (
	ErrUnknownStatus        = apperr.Validation("unknown order status")
	ErrCancelReasonRequired = apperr.Validation("cancellation requires a reason")
	ErrNoPredecessor        = apperr.Validation("order is already at the first status")
	ErrCancelledIsFinal     = apperr.Validation("cancelled orders cannot change status")
	ErrNotCancellable       = apperr.Validation("order can no longer be cancelled")
	ErrUnknownPaymentStatus = apperr.Validation("unknown payment status")
	ErrNotFound             = apperr.NotFound("order not found")
	ErrConflict             = apperr.Conflict("order state conflict")
)

func ParseStatus(s string) (Status, error) {
	for i, name := range statusNames {
		if name == s {
			return Status(i), nil
		}
	}
	return 0, ErrUnknownStatus
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

func (s Status) Valid() bool {
	return s <= StatusCancelled
}

// Linear reports whether s is on the New..Paid path.
func (s Status) Linear() bool {
	return s <= StatusPaid
}

// Next is the following linear status. Paid and Cancelled have none.
func (s Status) Next() (Status, bool) {
	if !s.Linear() || s == StatusPaid {
		return s, false
	}
	return s + 1, true
}

// Previous is the preceding linear status. New and Cancelled have none.
func (s Status) Previous() (Status, bool) {
	if !s.Linear() || s == StatusNew {
		return s, false
	}
	return s - 1, true
}

// AtLeast compares two linear statuses. Cancelled is never at least anything.
func (s Status) AtLeast(o Status) bool {
	return s.Linear() && o.Linear() && s >= o
}

// CancellableStatuses are the pre-delivery statuses. Enforcement is opt-in, see WithCancellableOnly.
var CancellableStatuses = map[Status]bool{
	StatusNew:      true,
	StatusAssigned: true,
	StatusPickedUp: true,
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

type PaymentStatus string

const (
	PaymentUnpaid        PaymentStatus = "unpaid"
	PaymentInvoiced      PaymentStatus = "invoiced"
	PaymentPartiallyPaid PaymentStatus = "partially_paid"
	PaymentPaid          PaymentStatus = "paid"
)

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentUnpaid, PaymentInvoiced, PaymentPartiallyPaid, PaymentPaid:
		return true
	}
	return false
}

type Order struct {
	ID                 types.ID
	TenantID           types.ID
	Number             string
	Status             Status
	StatusVersion      int
	CancelledReason    *string
	Revenue            decimal.Decimal
	BrokerFee          decimal.Decimal
	CarrierPay         decimal.Decimal
	LocalFee           decimal.Decimal
	AmountPaid         decimal.Decimal
	PaymentStatus      PaymentStatus
	TripID             *types.ID
	PickupState        string
	DeliveryState      string
	PickupAddress      string
	DeliveryAddress    string
	CreatedAt          time.Time
	ActualPickupDate   *time.Time
	ActualDeliveryDate *time.Time
}

// Event is one row of the order status audit trail.
type Event struct {
	ID         int64
	TenantID   types.ID
	OrderID    types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	Reason     *string
	CreatedAt  time.Time
}

// StatusChange is the full lifecycle write applied by the store when Version still matches.
type StatusChange struct {
	TenantID           types.ID
	OrderID            types.ID
	From               Status
	To                 Status
	Version            int
	CancelledReason    *string
	ActualPickupDate   *time.Time
	ActualDeliveryDate *time.Time
}
