// README: OrderStatusMachine; validates and applies status changes and rollbacks.
package order

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"dispatch/internal/types"
)

type Repository interface {
	Get(ctx context.Context, tenantID, id types.ID) (*Order, error)
	UpdateStatus(ctx context.Context, c StatusChange) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
}

type Service struct {
	store           Repository
	log             logrus.FieldLogger
	now             func() time.Time
	cancellableOnly bool
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) { s.log = l }
}

// WithCancellableOnly restricts cancellation to CancellableStatuses.
func WithCancellableOnly() Option {
	return func(s *Service) { s.cancellableOnly = true }
}

func NewService(store Repository, opts ...Option) *Service {
	s := &Service{
		store: store,
		log:   logrus.StandardLogger(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type AdvanceCommand struct {
	TenantID  types.ID
	OrderID   types.ID
	Status    string
	Reason    string
	ActorType string
}

type RollbackCommand struct {
	TenantID  types.ID
	OrderID   types.ID
	ActorType string
}

func (s *Service) Get(ctx context.Context, tenantID, id types.ID) (*Order, error) {
	return s.store.Get(ctx, tenantID, id)
}

// AdvanceStatus sets any known status directly; adjacency is not enforced here.
func (s *Service) AdvanceStatus(ctx context.Context, cmd AdvanceCommand) (*Order, error) {
	to, err := ParseStatus(cmd.Status)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(cmd.Reason)
	if to == StatusCancelled && reason == "" {
		return nil, ErrCancelReasonRequired
	}

	o, err := s.store.Get(ctx, cmd.TenantID, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Status == StatusCancelled {
		return nil, ErrCancelledIsFinal
	}
	if to == StatusCancelled && s.cancellableOnly && !CancellableStatuses[o.Status] {
		return nil, ErrNotCancellable
	}

	c := StatusChange{
		TenantID:           o.TenantID,
		OrderID:            o.ID,
		From:               o.Status,
		To:                 to,
		Version:            o.StatusVersion,
		CancelledReason:    o.CancelledReason,
		ActualPickupDate:   o.ActualPickupDate,
		ActualDeliveryDate: o.ActualDeliveryDate,
	}
	now := s.now()
	switch {
	case to == StatusCancelled:
		c.CancelledReason = &reason
	case to == StatusPickedUp:
		c.ActualPickupDate = &now
		c.ActualDeliveryDate = nil
	case to == StatusDelivered:
		c.ActualDeliveryDate = &now
		if c.ActualPickupDate == nil {
			c.ActualPickupDate = &now
		}
	case to.AtLeast(StatusDelivered):
		if c.ActualPickupDate == nil {
			c.ActualPickupDate = &now
		}
		if c.ActualDeliveryDate == nil {
			c.ActualDeliveryDate = &now
		}
	default:
		// new / assigned: the order has not been picked up on its current path
		c.ActualPickupDate = nil
		c.ActualDeliveryDate = nil
	}

	var evReason *string
	if to == StatusCancelled {
		evReason = &reason
	}
	return s.apply(ctx, o, c, cmd.ActorType, evReason)
}

// Rollback moves the order to the status immediately before its current one.
func (s *Service) Rollback(ctx context.Context, cmd RollbackCommand) (*Order, error) {
	o, err := s.store.Get(ctx, cmd.TenantID, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Status == StatusCancelled {
		return nil, ErrCancelledIsFinal
	}
	prev, ok := o.Status.Previous()
	if !ok {
		return nil, ErrNoPredecessor
	}

	c := StatusChange{
		TenantID:           o.TenantID,
		OrderID:            o.ID,
		From:               o.Status,
		To:                 prev,
		Version:            o.StatusVersion,
		CancelledReason:    o.CancelledReason,
		ActualPickupDate:   o.ActualPickupDate,
		ActualDeliveryDate: o.ActualDeliveryDate,
	}
	switch o.Status {
	case StatusPickedUp:
		c.ActualPickupDate = nil
	case StatusDelivered:
		c.ActualDeliveryDate = nil
	}
	return s.apply(ctx, o, c, cmd.ActorType, nil)
}

func (s *Service) apply(ctx context.Context, o *Order, c StatusChange, actor string, reason *string) (*Order, error) {
	ok, err := s.store.UpdateStatus(ctx, c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}

	if actor == "" {
		actor = "user"
	}
	if err := s.store.AppendEvent(ctx, &Event{
		TenantID:   c.TenantID,
		OrderID:    c.OrderID,
		FromStatus: c.From,
		ToStatus:   c.To,
		ActorType:  actor,
		Reason:     reason,
		CreatedAt:  s.now(),
	}); err != nil {
		s.log.WithError(err).WithField("order_id", c.OrderID).Warn("append order event")
	}

	updated := *o
	updated.Status = c.To
	updated.StatusVersion = c.Version + 1
	updated.CancelledReason = c.CancelledReason
	updated.ActualPickupDate = c.ActualPickupDate
	updated.ActualDeliveryDate = c.ActualDeliveryDate
	s.log.WithFields(logrus.Fields{
		"tenant_id": c.TenantID,
		"order_id":  c.OrderID,
		"from":      c.From,
		"to":        c.To,
	}).Info("order status changed")
	return &updated, nil
}
