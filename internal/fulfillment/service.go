package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/fulfil/internal/domain"
	"github.com/roach88/fulfil/internal/inventory"
	"github.com/roach88/fulfil/internal/notify"
	"github.com/roach88/fulfil/internal/orders"
	"github.com/roach88/fulfil/internal/rules"
)

// Store is the persistence the service needs. Implemented by *store.Store.
type Store interface {
	CreateOrder(ctx context.Context, o domain.Order) error
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	UpdateOrder(ctx context.Context, id string, fn func(o *domain.Order) error) (domain.Order, error)
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	GetCustomer(ctx context.Context, id string) (domain.Customer, error)
}

// Ledger reserves and releases stock for new orders. Implemented by
// *inventory.Ledger.
type Ledger interface {
	Reserve(ctx context.Context, productID string, qty int64) (inventory.Result, error)
	CancelReservation(ctx context.Context, productID string, qty int64) (inventory.Result, error)
}

// Transitioner moves orders through their lifecycle. Implemented by
// *orders.Machine.
type Transitioner interface {
	Transition(ctx context.Context, orderID string, to domain.OrderStatus, actor domain.Role) (orders.Change, error)
	ConfirmPayment(ctx context.Context, orderID string) (orders.Change, error)
}

// Evaluator evaluates the rules of one entity. Implemented by *rules.Engine.
type Evaluator interface {
	Evaluate(ctx context.Context, ent rules.Entity) rules.Report
}

// Service runs the order request paths.
//
// Thread-safety: all methods are safe for concurrent use. Stock
// consistency is guaranteed by the ledger; order consistency by the store.
type Service struct {
	store   Store
	ledger  Ledger
	machine Transitioner
	engine  Evaluator
	sender  *notify.Sender
	queue   *eventQueue
	ids     domain.IDGenerator
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithEvaluator enables rule evaluation of queued events.
func WithEvaluator(e Evaluator) Option {
	return func(s *Service) {
		s.engine = e
	}
}

// WithSender sets the notification sender for order_created and
// payment_failed notifications.
func WithSender(sender *notify.Sender) Option {
	return func(s *Service) {
		s.sender = sender
	}
}

// WithIDGenerator sets the order ID generator.
func WithIDGenerator(ids domain.IDGenerator) Option {
	return func(s *Service) {
		s.ids = ids
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New creates a Service.
func New(st Store, ledger Ledger, machine Transitioner, opts ...Option) *Service {
	s := &Service{
		store:   st,
		ledger:  ledger,
		machine: machine,
		queue:   newEventQueue(),
		ids:     domain.UUIDv7Generator{},
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder reserves stock for every line and records a pending order.
//
// Lines are reserved in order. When a reservation fails, the lines already
// reserved are released and the error is returned unchanged, so
// INSUFFICIENT_STOCK names the first product that was short.
func (s *Service) CreateOrder(ctx context.Context, customerID string, items []domain.OrderItem) (domain.Order, error) {
	if len(items) == 0 {
		return domain.Order{}, fmt.Errorf("create order: no items")
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return domain.Order{}, domain.NewInvalidQuantityError(item.ProductID, item.Quantity)
		}
		if item.Price.IsNegative() {
			return domain.Order{}, fmt.Errorf("create order: negative price for product %s", item.ProductID)
		}
	}
	if _, err := s.store.GetCustomer(ctx, customerID); err != nil {
		return domain.Order{}, err
	}

	var reserved []domain.OrderItem
	for _, item := range items {
		if _, err := s.ledger.Reserve(ctx, item.ProductID, item.Quantity); err != nil {
			s.release(ctx, reserved)
			return domain.Order{}, err
		}
		reserved = append(reserved, item)
	}

	now := s.now().UTC()
	order := domain.Order{
		ID:            s.ids.Generate(),
		CustomerID:    customerID,
		Status:        domain.OrderPending,
		PaymentStatus: domain.PaymentPending,
		Items:         append([]domain.OrderItem(nil), items...),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateOrder(ctx, order); err != nil {
		s.release(ctx, reserved)
		return domain.Order{}, err
	}

	s.logger.Info("order created",
		"order_id", order.ID,
		"customer_id", customerID,
		"items", len(items),
		"total", order.Total().StringFixed(2),
	)
	_ = s.sender.Send(ctx, notify.Notification{
		Channel:   notify.ChannelCustomer,
		Kind:      notify.KindOrderCreated,
		Recipient: customerID,
		Payload: map[string]any{
			"orderId": order.ID,
			"total":   order.Total().StringFixed(2),
		},
	})
	s.Enqueue(s.event(EventOrderCreated, rules.KindOrder, order.ID))
	return order, nil
}

// release undoes reservations in reverse order. Failures are logged.
func (s *Service) release(ctx context.Context, items []domain.OrderItem) {
	for i := len(items) - 1; i >= 0; i-- {
		item := items[i]
		if _, err := s.ledger.CancelReservation(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.Error("release reservation failed",
				"product_id", item.ProductID,
				"quantity", item.Quantity,
				"error", err,
			)
		}
	}
}

// ConfirmPayment marks a pending order paid and confirms it as the system.
// An order that is not pending fails with ILLEGAL_TRANSITION and keeps its
// payment status.
func (s *Service) ConfirmPayment(ctx context.Context, orderID string) (orders.Change, error) {
	change, err := s.machine.ConfirmPayment(ctx, orderID)
	if err != nil {
		return orders.Change{}, err
	}
	s.logger.Info("payment confirmed", "order_id", orderID)
	s.Enqueue(s.event(EventPaymentConfirmed, rules.KindOrder, orderID))
	return change, nil
}

// ErrPaymentSettled is returned by FailPayment for orders whose payment is
// no longer pending.
var ErrPaymentSettled = errors.New("payment already settled")

// FailPayment records a failed payment on a pending order. The order stays
// pending so the customer can retry or cancel.
func (s *Service) FailPayment(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := s.store.UpdateOrder(ctx, orderID, func(o *domain.Order) error {
		if o.PaymentStatus != domain.PaymentPending && o.PaymentStatus != domain.PaymentFailed {
			return fmt.Errorf("fail payment of order %s: %w (%s)", orderID, ErrPaymentSettled, o.PaymentStatus)
		}
		o.PaymentStatus = domain.PaymentFailed
		o.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.logger.Info("payment failed", "order_id", orderID)
	_ = s.sender.Send(ctx, notify.Notification{
		Channel:   notify.ChannelCustomer,
		Kind:      notify.KindPaymentFailed,
		Recipient: order.CustomerID,
		Payload:   map[string]any{"orderId": order.ID},
	})
	s.Enqueue(s.event(EventPaymentFailed, rules.KindOrder, orderID))
	return order, nil
}

// CancelOrder cancels an order on behalf of actor.
func (s *Service) CancelOrder(ctx context.Context, orderID string, actor domain.Role) (orders.Change, error) {
	return s.Transition(ctx, orderID, domain.OrderCancelled, actor)
}

// Transition moves an order to status to on behalf of actor.
func (s *Service) Transition(ctx context.Context, orderID string, to domain.OrderStatus, actor domain.Role) (orders.Change, error) {
	change, err := s.machine.Transition(ctx, orderID, to, actor)
	if err != nil {
		return orders.Change{}, err
	}
	s.Enqueue(s.event(EventOrderStatusChanged, rules.KindOrder, orderID))
	return change, nil
}

// StockChanged enqueues an evaluation of the product's rules.
func (s *Service) StockChanged(productID string) {
	s.Enqueue(s.event(EventStockChanged, rules.KindProduct, productID))
}

func (s *Service) event(t EventType, kind rules.Kind, id string) Event {
	return Event{Type: t, EntityKind: kind, EntityID: id, OccurredAt: s.now().UTC()}
}

// Enqueue adds an event for Run. Returns false once Close was called.
func (s *Service) Enqueue(e Event) bool {
	if !s.queue.Enqueue(e) {
		s.logger.Warn("event dropped: queue closed", "type", e.Type, "entity_id", e.EntityID)
		return false
	}
	return true
}

// Pending returns the number of queued events.
func (s *Service) Pending() int {
	return s.queue.Len()
}

// Close stops accepting events. Run drains what is queued and returns.
func (s *Service) Close() {
	s.queue.Close()
}

// Run evaluates queued events until ctx is cancelled or the queue is
// closed and drained. Handling errors are logged; Run returns nil in both
// cases.
func (s *Service) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		e, ok, closed := s.queue.Next()
		if ok {
			s.handleLogged(ctx, e)
			continue
		}
		if closed {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-s.queue.Wait():
		}
	}
}

// Drain evaluates the events queued so far and returns how many it
// handled. Unlike Run it neither waits for new events nor needs the queue
// to be closed.
func (s *Service) Drain(ctx context.Context) int {
	n := 0
	for ctx.Err() == nil {
		e, ok := s.queue.TryDequeue()
		if !ok {
			break
		}
		s.handleLogged(ctx, e)
		n++
	}
	return n
}

func (s *Service) handleLogged(ctx context.Context, e Event) {
	if _, err := s.Handle(ctx, e); err != nil {
		s.logger.Warn("event not handled",
			"type", e.Type,
			"entity_kind", e.EntityKind,
			"entity_id", e.EntityID,
			"error", err,
		)
	}
}

// Handle evaluates the rules of the event's entity synchronously.
func (s *Service) Handle(ctx context.Context, e Event) (rules.Report, error) {
	if s.engine == nil {
		return rules.Report{EntityKind: e.EntityKind, EntityID: e.EntityID}, nil
	}
	ent, err := s.snapshot(ctx, e.EntityKind, e.EntityID)
	if err != nil {
		return rules.Report{}, fmt.Errorf("handle %s: %w", e.Type, err)
	}
	return s.engine.Evaluate(ctx, ent), nil
}

// snapshot loads an entity for rule evaluation. An order's customer is
// attached when it exists.
func (s *Service) snapshot(ctx context.Context, kind rules.Kind, id string) (rules.Entity, error) {
	now := s.now()
	switch kind {
	case rules.KindOrder:
		o, err := s.store.GetOrder(ctx, id)
		if err != nil {
			return rules.Entity{}, err
		}
		var customer *domain.Customer
		c, err := s.store.GetCustomer(ctx, o.CustomerID)
		switch {
		case err == nil:
			customer = &c
		case !domain.IsNotFound(err):
			return rules.Entity{}, err
		}
		return rules.OrderEntity(o, customer, now), nil
	case rules.KindProduct:
		p, err := s.store.GetProduct(ctx, id)
		if err != nil {
			return rules.Entity{}, err
		}
		return rules.ProductEntity(p, now), nil
	case rules.KindCustomer:
		c, err := s.store.GetCustomer(ctx, id)
		if err != nil {
			return rules.Entity{}, err
		}
		return rules.CustomerEntity(c, now), nil
	}
	return rules.Entity{}, fmt.Errorf("unknown entity kind %q", kind)
}
