// README: Trip workflows; recalculation, status sync, assignment, expenses and carrier pay.
package trip

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"dispatch/internal/apperr"
	"dispatch/internal/modules/driverpay"
	"dispatch/internal/modules/order"
	"dispatch/internal/types"
)

// Repository opens a unit of work. Everything fn does through tx commits or rolls back together.
type Repository interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the storage surface used inside one transaction. Lock* methods take row locks
// that are held until the transaction ends.
type Tx interface {
	LockTrip(ctx context.Context, tenantID, tripID types.ID) (*Trip, error)
	GetDriver(ctx context.Context, tenantID, driverID types.ID) (*driverpay.Driver, error)
	TripOrders(ctx context.Context, tenantID, tripID types.ID) ([]OrderLine, error)
	TripExpenses(ctx context.Context, tenantID, tripID types.ID) ([]Expense, error)
	SaveSnapshot(ctx context.Context, tenantID, tripID types.ID, snap Snapshot, at time.Time) error
	SetTripMiles(ctx context.Context, tenantID, tripID types.ID, miles decimal.Decimal) error
	SetTripStatus(ctx context.Context, tenantID, tripID types.ID, st Status) error
	SetTripCarrierPay(ctx context.Context, tenantID, tripID types.ID, amount decimal.Decimal) error
	DeleteTrip(ctx context.Context, tenantID, tripID types.ID) error

	LockOrder(ctx context.Context, tenantID, orderID types.ID) (*OrderRef, error)
	LockTripOrders(ctx context.Context, tenantID, tripID types.ID) ([]OrderRef, error)
	WriteOrder(ctx context.Context, ref *OrderRef) error
	SetOrderMoney(ctx context.Context, tenantID, orderID types.ID, m OrderMoney) error
	AppendOrderEvent(ctx context.Context, e *order.Event) error

	InsertExpense(ctx context.Context, e *Expense) error
	DeleteExpense(ctx context.Context, tenantID, tripID, expenseID types.ID) (bool, error)
}

// MilesEstimator returns road miles between two addresses.
type MilesEstimator interface {
	EstimateMiles(ctx context.Context, origin, destination string) (decimal.Decimal, error)
}

const (
	ActorUser     = "user"
	ActorTripSync = "trip_sync"
)

// Saga steps reported in *apperr.StepError. Each runs after the order write has committed.
const (
	StepRecalculateOld  = "recalculate_old"
	StepRecalculateNew  = "recalculate_new"
	StepRecalculateTrip = "recalculate"
)

type Service struct {
	repo   Repository
	locker Locker
	miles  MilesEstimator
	log    logrus.FieldLogger
	now    func() time.Time
}

type Option func(*Service)

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) { s.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLocker(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

func WithMilesEstimator(m MilesEstimator) Option {
	return func(s *Service) { s.miles = m }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		locker: NewKeyedMutex(),
		log:    logrus.StandardLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Recalculate rebuilds the trip's financial snapshot from its current orders, expenses and carrier pay.
func (s *Service) Recalculate(ctx context.Context, tenantID, tripID types.ID) (*Trip, error) {
	if tripID == "" {
		return nil, ErrMissingTrip
	}
	var out *Trip
	err := s.withTripLock(ctx, tenantID, tripID, func() error {
		s.fillMiles(ctx, tenantID, tripID)
		return s.repo.InTx(ctx, func(tx Tx) error {
			t, err := s.recompute(ctx, tx, tenantID, tripID)
			out = t
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// recompute must run inside a transaction; the trip row lock makes the read and the write atomic.
func (s *Service) recompute(ctx context.Context, tx Tx, tenantID, tripID types.ID) (*Trip, error) {
	t, err := tx.LockTrip(ctx, tenantID, tripID)
	if err != nil {
		return nil, err
	}
	in := Inputs{Trip: t}
	if t.DriverID != nil {
		if in.Driver, err = tx.GetDriver(ctx, tenantID, *t.DriverID); err != nil {
			return nil, err
		}
	}
	if in.Orders, err = tx.TripOrders(ctx, tenantID, tripID); err != nil {
		return nil, err
	}
	if in.Expenses, err = tx.TripExpenses(ctx, tenantID, tripID); err != nil {
		return nil, err
	}

	snap, err := ComputeSnapshot(in)
	if err != nil {
		return nil, err
	}
	at := s.now().UTC()
	if err := tx.SaveSnapshot(ctx, tenantID, tripID, snap, at); err != nil {
		return nil, err
	}
	t.Financials = snap
	t.RecalculatedAt = &at

	s.log.WithFields(logrus.Fields{
		"tenant_id":   tenantID,
		"trip_id":     tripID,
		"order_count": snap.OrderCount,
		"net_profit":  snap.NetProfit.String(),
	}).Debug("trip financials recalculated")
	return t, nil
}

// fillMiles stores an estimate for per-mile trips without recorded miles.
// Failures only log; the snapshot then uses zero miles.
func (s *Service) fillMiles(ctx context.Context, tenantID, tripID types.ID) {
	if s.miles == nil {
		return
	}
	var origin, destination string
	err := s.repo.InTx(ctx, func(tx Tx) error {
		t, err := tx.LockTrip(ctx, tenantID, tripID)
		if err != nil || t.DriverID == nil {
			return err
		}
		d, err := tx.GetDriver(ctx, tenantID, *t.DriverID)
		if err != nil || !NeedsMiles(t, d) {
			return err
		}
		orders, err := tx.TripOrders(ctx, tenantID, tripID)
		if err != nil {
			return err
		}
		sort.SliceStable(orders, func(i, j int) bool { return orders[i].CreatedAt.Before(orders[j].CreatedAt) })
		origin, destination = routeEndpoints(orders)
		return nil
	})
	if err != nil || origin == "" || destination == "" {
		return
	}

	log := s.log.WithFields(logrus.Fields{"tenant_id": tenantID, "trip_id": tripID})
	miles, err := s.miles.EstimateMiles(ctx, origin, destination)
	if err != nil {
		log.WithError(err).Warn("trip miles estimate failed")
		return
	}
	err = s.repo.InTx(ctx, func(tx Tx) error {
		return tx.SetTripMiles(ctx, tenantID, tripID, miles)
	})
	if err != nil {
		log.WithError(err).Warn("storing trip miles failed")
		return
	}
	log.WithField("miles", miles.String()).Info("trip miles estimated")
}

// SetTripStatus writes the trip status and force-sets member orders to the mapped status.
// Cancelled orders are left alone. at_terminal propagates nothing.
func (s *Service) SetTripStatus(ctx context.Context, tenantID, tripID types.ID, status string) (*Trip, int, error) {
	st, err := ParseStatus(status)
	if err != nil {
		return nil, 0, err
	}
	var (
		out     *Trip
		changed int
	)
	err = s.repo.InTx(ctx, func(tx Tx) error {
		t, err := tx.LockTrip(ctx, tenantID, tripID)
		if err != nil {
			return err
		}
		if err := tx.SetTripStatus(ctx, tenantID, tripID, st); err != nil {
			return err
		}
		t.Status = st
		out = t

		to, ok := OrderStatusFor[st]
		if !ok {
			return nil
		}
		refs, err := tx.LockTripOrders(ctx, tenantID, tripID)
		if err != nil {
			return err
		}
		at := s.now().UTC()
		for i := range refs {
			ref := &refs[i]
			if ref.Status == order.StatusCancelled || ref.Status == to {
				continue
			}
			from := ref.Status
			ref.moveTo(to, at)
			if err := s.writeWithEvent(ctx, tx, ref, from, ActorTripSync, at); err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	s.log.WithFields(logrus.Fields{
		"tenant_id":      tenantID,
		"trip_id":        tripID,
		"status":         st,
		"orders_changed": changed,
	}).Info("trip status set")
	return out, changed, nil
}

// AssignOrderToTrip moves an order onto a trip, then recomputes the old trip (if any) and the new one.
// When a recompute fails after the move committed, a *apperr.StepError names the trips still stale.
func (s *Service) AssignOrderToTrip(ctx context.Context, tenantID, orderID, tripID types.ID) error {
	if tripID == "" {
		return ErrMissingTrip
	}
	var oldTrip *types.ID
	err := s.repo.InTx(ctx, func(tx Tx) error {
		// trip first, then order: the same lock order SetTripStatus and DeleteTrip use
		if _, err := tx.LockTrip(ctx, tenantID, tripID); err != nil {
			return err
		}
		ref, err := tx.LockOrder(ctx, tenantID, orderID)
		if err != nil {
			return err
		}
		if ref.Status == order.StatusCancelled {
			return order.ErrCancelledIsFinal
		}
		oldTrip = ref.TripID
		from := ref.Status
		at := s.now().UTC()
		ref.TripID = &tripID
		ref.moveTo(order.StatusAssigned, at)
		return s.writeWithEvent(ctx, tx, ref, from, ActorUser, at)
	})
	if err != nil {
		return err
	}

	log := s.log.WithFields(logrus.Fields{"tenant_id": tenantID, "order_id": orderID, "trip_id": tripID})
	if oldTrip != nil && *oldTrip != tripID {
		log = log.WithField("old_trip_id", *oldTrip)
		if _, err := s.Recalculate(ctx, tenantID, *oldTrip); err != nil {
			log.WithError(err).WithField("step", StepRecalculateOld).Error("assignment left trips stale")
			return &apperr.StepError{Step: StepRecalculateOld, Recalculate: []types.ID{*oldTrip, tripID}, Err: err}
		}
	}
	if _, err := s.Recalculate(ctx, tenantID, tripID); err != nil {
		log.WithError(err).WithField("step", StepRecalculateNew).Error("assignment left trip stale")
		return &apperr.StepError{Step: StepRecalculateNew, Recalculate: []types.ID{tripID}, Err: err}
	}
	log.Info("order assigned to trip")
	return nil
}

// UnassignOrderFromTrip detaches the order (status back to new unless cancelled) and recomputes its former trip.
func (s *Service) UnassignOrderFromTrip(ctx context.Context, tenantID, orderID types.ID) error {
	var oldTrip types.ID
	err := s.repo.InTx(ctx, func(tx Tx) error {
		ref, err := tx.LockOrder(ctx, tenantID, orderID)
		if err != nil {
			return err
		}
		if ref.TripID == nil {
			return ErrNotAssigned
		}
		oldTrip = *ref.TripID
		from := ref.Status
		at := s.now().UTC()
		ref.detach(at)
		return s.writeWithEvent(ctx, tx, ref, from, ActorUser, at)
	})
	if err != nil {
		return err
	}

	log := s.log.WithFields(logrus.Fields{"tenant_id": tenantID, "order_id": orderID, "trip_id": oldTrip})
	if _, err := s.Recalculate(ctx, tenantID, oldTrip); err != nil {
		log.WithError(err).WithField("step", StepRecalculateTrip).Error("unassignment left trip stale")
		return &apperr.StepError{Step: StepRecalculateTrip, Recalculate: []types.ID{oldTrip}, Err: err}
	}
	log.Info("order unassigned from trip")
	return nil
}

// DeleteTrip detaches every member order and then deletes the trip, in one transaction.
// It returns how many orders were detached.
func (s *Service) DeleteTrip(ctx context.Context, tenantID, tripID types.ID) (int, error) {
	var detached int
	err := s.withTripLock(ctx, tenantID, tripID, func() error {
		return s.repo.InTx(ctx, func(tx Tx) error {
			if _, err := tx.LockTrip(ctx, tenantID, tripID); err != nil {
				return err
			}
			refs, err := tx.LockTripOrders(ctx, tenantID, tripID)
			if err != nil {
				return err
			}
			at := s.now().UTC()
			for i := range refs {
				ref := &refs[i]
				from := ref.Status
				ref.detach(at)
				if err := s.writeWithEvent(ctx, tx, ref, from, ActorUser, at); err != nil {
					return err
				}
			}
			detached = len(refs)
			return tx.DeleteTrip(ctx, tenantID, tripID)
		})
	})
	if err != nil {
		return 0, err
	}
	s.log.WithFields(logrus.Fields{
		"tenant_id":       tenantID,
		"trip_id":         tripID,
		"orders_detached": detached,
	}).Info("trip deleted")
	return detached, nil
}

type ExpenseInput struct {
	Category string
	Amount   decimal.Decimal
	Notes    string
}

// AddExpense records a trip expense and recomputes the trip in the same transaction.
func (s *Service) AddExpense(ctx context.Context, tenantID, tripID types.ID, in ExpenseInput) (*Expense, *Trip, error) {
	cat := ExpenseCategory(in.Category)
	if !cat.Valid() {
		return nil, nil, ErrInvalidExpenseCategory
	}
	if in.Amount.IsNegative() {
		return nil, nil, ErrNegativeAmount
	}
	e := &Expense{
		ID:        types.NewID(),
		TenantID:  tenantID,
		TripID:    tripID,
		Category:  cat,
		Amount:    in.Amount,
		Notes:     in.Notes,
		CreatedAt: s.now().UTC(),
	}
	t, err := s.mutateAndRecompute(ctx, tenantID, tripID, func(tx Tx) error {
		return tx.InsertExpense(ctx, e)
	})
	if err != nil {
		return nil, nil, err
	}
	return e, t, nil
}

func (s *Service) DeleteExpense(ctx context.Context, tenantID, tripID, expenseID types.ID) (*Trip, error) {
	return s.mutateAndRecompute(ctx, tenantID, tripID, func(tx Tx) error {
		ok, err := tx.DeleteExpense(ctx, tenantID, tripID, expenseID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrExpenseNotFound
		}
		return nil
	})
}

// SetCarrierPay writes the trip-level carrier pay input and recomputes.
func (s *Service) SetCarrierPay(ctx context.Context, tenantID, tripID types.ID, amount decimal.Decimal) (*Trip, error) {
	if amount.IsNegative() {
		return nil, ErrNegativeAmount
	}
	return s.mutateAndRecompute(ctx, tenantID, tripID, func(tx Tx) error {
		return tx.SetTripCarrierPay(ctx, tenantID, tripID, amount)
	})
}

// UpdateOrderFinancials writes order money, then recomputes the order's trip when it has one.
func (s *Service) UpdateOrderFinancials(ctx context.Context, tenantID, orderID types.ID, m OrderMoney) error {
	if m.Revenue.IsNegative() || m.BrokerFee.IsNegative() || m.LocalFee.IsNegative() {
		return ErrNegativeAmount
	}
	var tripID *types.ID
	err := s.repo.InTx(ctx, func(tx Tx) error {
		ref, err := tx.LockOrder(ctx, tenantID, orderID)
		if err != nil {
			return err
		}
		tripID = ref.TripID
		return tx.SetOrderMoney(ctx, tenantID, orderID, m)
	})
	if err != nil {
		return err
	}
	if tripID == nil {
		return nil
	}
	if _, err := s.Recalculate(ctx, tenantID, *tripID); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"order_id":  orderID,
			"trip_id":   *tripID,
			"step":      StepRecalculateTrip,
		}).Error("order update left trip stale")
		return &apperr.StepError{Step: StepRecalculateTrip, Recalculate: []types.ID{*tripID}, Err: err}
	}
	return nil
}

func (s *Service) mutateAndRecompute(ctx context.Context, tenantID, tripID types.ID, mutate func(tx Tx) error) (*Trip, error) {
	var out *Trip
	err := s.withTripLock(ctx, tenantID, tripID, func() error {
		return s.repo.InTx(ctx, func(tx Tx) error {
			if _, err := tx.LockTrip(ctx, tenantID, tripID); err != nil {
				return err
			}
			if err := mutate(tx); err != nil {
				return err
			}
			t, err := s.recompute(ctx, tx, tenantID, tripID)
			out = t
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) withTripLock(ctx context.Context, tenantID, tripID types.ID, fn func() error) error {
	unlock, err := s.locker.Lock(ctx, tenantID, tripID)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

func (s *Service) writeWithEvent(ctx context.Context, tx Tx, ref *OrderRef, from order.Status, actor string, at time.Time) error {
	if err := tx.WriteOrder(ctx, ref); err != nil {
		return err
	}
	ref.StatusVersion++
	if from == ref.Status {
		return nil
	}
	return tx.AppendOrderEvent(ctx, &order.Event{
		TenantID:   ref.TenantID,
		OrderID:    ref.ID,
		FromStatus: from,
		ToStatus:   ref.Status,
		ActorType:  actor,
		CreatedAt:  at,
	})
}
