package rules

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/fulfil/internal/domain"
	"github.com/roach88/fulfil/internal/inventory"
	"github.com/roach88/fulfil/internal/notify"
	"github.com/roach88/fulfil/internal/orders"
	"github.com/roach88/fulfil/internal/testutil"
)

var (
	testNow     = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
)

// calls records collaborator invocations in order.
type calls struct {
	mu  sync.Mutex
	log []string
}

func (c *calls) add(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = append(c.log, fmt.Sprintf(format, args...))
}

func (c *calls) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

type fakeOrders struct {
	calls *calls
	err   error
}

func (f *fakeOrders) Transition(ctx context.Context, orderID string, to domain.OrderStatus, actor domain.Role) (orders.Change, error) {
	f.calls.add("transition %s -> %s as %s", orderID, to, actor)
	return orders.Change{To: to, Actor: actor}, f.err
}

type fakeInventory struct {
	calls *calls
	err   error
}

func (f *fakeInventory) Adjust(ctx context.Context, productID string, delta int64, reason string) (inventory.Result, error) {
	f.calls.add("adjust %s by %d (%s)", productID, delta, reason)
	return inventory.Result{}, f.err
}

func (f *fakeInventory) SetListingStatus(ctx context.Context, productID string, status domain.ListingStatus) (inventory.Result, error) {
	f.calls.add("listing %s -> %s", productID, status)
	return inventory.Result{}, f.err
}

type fakeEmails struct {
	calls *calls
}

func (f *fakeEmails) SendEmail(ctx context.Context, email Email) error {
	f.calls.add("email %s to %s (%s)", email.Template, email.To, email.RuleID)
	return nil
}

type fakeTasks struct {
	calls *calls
}

func (f *fakeTasks) CreateTask(ctx context.Context, task Task) error {
	f.calls.add("task %q for %s on %s %s", task.Title, task.Assignee, task.EntityKind, task.EntityID)
	return nil
}

type engineFixture struct {
	calls     *calls
	orders    *fakeOrders
	inventory *fakeInventory
	recorder  *testutil.Recorder
	clock     *testutil.Clock
}

func newEngineFixture() *engineFixture {
	c := &calls{}
	return &engineFixture{
		calls:     c,
		orders:    &fakeOrders{calls: c},
		inventory: &fakeInventory{calls: c},
		recorder:  testutil.NewRecorder(),
		clock:     testutil.NewClock(testNow),
	}
}

// options wires the fakes. Emails and tasks go through the recorder unless
// withFakes is set.
func (f *engineFixture) options(withFakes bool, extra ...Option) []Option {
	sender := notify.NewSender(f.recorder,
		notify.WithIDGenerator(testutil.NewSequenceGenerator("n")),
		notify.WithClock(f.clock.Now),
		notify.WithLogger(quietLogger),
	)
	opts := []Option{
		WithOrderTransitioner(f.orders),
		WithInventory(f.inventory),
		WithSender(sender),
		WithClock(f.clock.Now),
		WithIDGenerator(testutil.NewSequenceGenerator("run")),
		WithLogger(quietLogger),
	}
	if withFakes {
		opts = append(opts, WithEmailSender(&fakeEmails{calls: f.calls}), WithTaskCreator(&fakeTasks{calls: f.calls}))
	}
	return append(opts, extra...)
}

func testOrder(id string, status domain.OrderStatus, age time.Duration, prices ...string) domain.Order {
	o := domain.Order{
		ID:            id,
		CustomerID:    "cust-1",
		Status:        status,
		PaymentStatus: domain.PaymentPending,
		CreatedAt:     testNow.Add(-age),
		UpdatedAt:     testNow.Add(-age),
	}
	for i, p := range prices {
		o.Items = append(o.Items, domain.OrderItem{
			ProductID: fmt.Sprintf("sku-%d", i+1),
			Quantity:  1,
			Price:     decimal.RequireFromString(p),
		})
	}
	return o
}

func testProduct(id string, stock, reserved, minStock int64) domain.Product {
	p := domain.Product{
		ID:            id,
		Name:          "Product " + id,
		PartnerID:     "partner-1",
		Stock:         stock,
		ReservedStock: reserved,
		MinStock:      minStock,
		MaxStock:      100,
		Status:        domain.ListingActive,
		UpdatedAt:     testNow,
	}
	p.Inventory = p.Derive()
	return p
}

func testCustomer(id, email string, orders int64, spent string, lastOrder *time.Time) domain.Customer {
	return domain.Customer{
		ID:          id,
		Name:        "Customer " + id,
		Email:       email,
		CreatedAt:   testNow.Add(-365 * 24 * time.Hour),
		TotalOrders: orders,
		TotalSpent:  decimal.RequireFromString(spent),
		LastOrderAt: lastOrder,
	}
}

func rule(id string, typ domain.RuleType, priority int, conditions []domain.Condition, actions ...domain.Action) domain.Rule {
	return domain.Rule{
		ID:         id,
		Name:       id,
		Type:       typ,
		Enabled:    true,
		Priority:   priority,
		Conditions: conditions,
		Actions:    actions,
	}
}

func cond(field string, op domain.Operator, value any) domain.Condition {
	return domain.Condition{Field: field, Operator: op, Value: value}
}

func notifyAction(message string) domain.Action {
	return domain.Action{Type: domain.ActionSendNotification, Parameters: map[string]any{"message": message}}
}

func statusAction(status string) domain.Action {
	return domain.Action{Type: domain.ActionUpdateStatus, Parameters: map[string]any{"status": status}}
}
