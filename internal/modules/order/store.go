// README: Order store backed by PostgreSQL; status writes are guarded by status_version.
package order

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"dispatch/internal/apperr"
	"dispatch/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const selectOrder = `
	SELECT id, tenant_id, order_number, status, status_version, cancelled_reason,
	       revenue::text, broker_fee::text, carrier_pay::text, local_fee::text, amount_paid::text,
	       payment_status, trip_id, pickup_state, delivery_state,
	       COALESCE(pickup_address, ''), COALESCE(delivery_address, ''),
	       created_at, actual_pickup_date, actual_delivery_date
	FROM orders`

// Create inserts a new order. Used by seeding and tests; order intake lives outside this service.
func (s *Store) Create(ctx context.Context, o *Order) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	if o.PaymentStatus == "" {
		o.PaymentStatus = PaymentUnpaid
	}
	if !o.PaymentStatus.Valid() {
		return ErrUnknownPaymentStatus
	}
	if !o.Status.Valid() {
		return ErrUnknownStatus
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO orders (
			id, tenant_id, order_number, status, status_version,
			revenue, broker_fee, carrier_pay, local_fee, amount_paid, payment_status,
			trip_id, pickup_state, delivery_state, pickup_address, delivery_address, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6::numeric, $7::numeric, $8::numeric, $9::numeric, $10::numeric, $11,
			$12, $13, $14, $15, $16, $17
		)`,
		string(o.ID),
		string(o.TenantID),
		o.Number,
		o.Status.String(),
		o.StatusVersion,
		o.Revenue.String(), o.BrokerFee.String(), o.CarrierPay.String(), o.LocalFee.String(), o.AmountPaid.String(),
		string(o.PaymentStatus),
		idPtrString(o.TripID),
		nullIfEmpty(o.PickupState),
		nullIfEmpty(o.DeliveryState),
		nullIfEmpty(o.PickupAddress),
		nullIfEmpty(o.DeliveryAddress),
		o.CreatedAt,
	)
	return apperr.Persistence("insert order", err)
}

func (s *Store) Get(ctx context.Context, tenantID, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, selectOrder+` WHERE tenant_id = $1 AND id = $2`, string(tenantID), string(id))
	o, err := ScanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperr.Persistence("get order", err)
	}
	return o, nil
}

// ScanOrder reads one row shaped like selectOrder.
func ScanOrder(row pgx.Row) (*Order, error) {
	var (
		o                                              Order
		id, tenantID, status                           string
		revenue, brokerFee, carrierPay, localFee, paid *string
		paymentStatus                                  string
		tripID, pickupState, deliveryState             *string
	)
	err := row.Scan(
		&id, &tenantID, &o.Number, &status, &o.StatusVersion, &o.CancelledReason,
		&revenue, &brokerFee, &carrierPay, &localFee, &paid,
		&paymentStatus, &tripID, &pickupState, &deliveryState,
		&o.PickupAddress, &o.DeliveryAddress,
		&o.CreatedAt, &o.ActualPickupDate, &o.ActualDeliveryDate,
	)
	if err != nil {
		return nil, err
	}
	o.ID = types.ID(id)
	o.TenantID = types.ID(tenantID)
	if o.Status, err = ParseStatus(status); err != nil {
		return nil, err
	}
	o.Revenue = types.ParseMoneyPtr(revenue)
	o.BrokerFee = types.ParseMoneyPtr(brokerFee)
	o.CarrierPay = types.ParseMoneyPtr(carrierPay)
	o.LocalFee = types.ParseMoneyPtr(localFee)
	o.AmountPaid = types.ParseMoneyPtr(paid)
	o.PaymentStatus = PaymentStatus(paymentStatus)
	if tripID != nil {
		t := types.ID(*tripID)
		o.TripID = &t
	}
	if pickupState != nil {
		o.PickupState = *pickupState
	}
	if deliveryState != nil {
		o.DeliveryState = *deliveryState
	}
	return &o, nil
}

func (s *Store) UpdateStatus(ctx context.Context, c StatusChange) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET status = $1,
			status_version = status_version + 1,
			cancelled_reason = $2,
			actual_pickup_date = $3,
			actual_delivery_date = $4,
			updated_at = NOW()
		WHERE tenant_id = $5 AND id = $6 AND status = $7 AND status_version = $8`,
		c.To.String(),
		c.CancelledReason,
		c.ActualPickupDate,
		c.ActualDeliveryDate,
		string(c.TenantID),
		string(c.OrderID),
		c.From.String(),
		c.Version,
	)
	if err != nil {
		return false, apperr.Persistence("update order status", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	return AppendEvent(ctx, s.db, e)
}

// Execer is satisfied by *pgxpool.Pool and pgx.Tx so other modules can log
// order events inside their own transactions.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func AppendEvent(ctx context.Context, db Execer, e *Event) error {
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := db.Exec(ctx, `
		INSERT INTO order_status_events (
			tenant_id, order_id, from_status, to_status, actor_type, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(e.TenantID),
		string(e.OrderID),
		e.FromStatus.String(),
		e.ToStatus.String(),
		e.ActorType,
		e.Reason,
		created,
	)
	return apperr.Persistence("append order event", err)
}

func idPtrString(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
