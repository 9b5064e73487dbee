package orders

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fulfil/internal/domain"
	"github.com/roach88/fulfil/internal/inventory"
	"github.com/roach88/fulfil/internal/notify"
	"github.com/roach88/fulfil/internal/store"
	"github.com/roach88/fulfil/internal/testutil"
)

var (
	testNow     = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	allRoles    = []domain.Role{domain.RoleAdmin, domain.RolePartner, domain.RoleSystem, domain.RoleCustomer}
)

type memOrders struct {
	mu     sync.Mutex
	orders map[string]domain.Order
}

func newMemOrders(orders ...domain.Order) *memOrders {
	m := &memOrders{orders: make(map[string]domain.Order)}
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	return m
}

func (m *memOrders) UpdateOrder(ctx context.Context, id string, fn func(o *domain.Order) error) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.Order{}, domain.NewNotFoundError("order", id)
	}
	if err := fn(&o); err != nil {
		return domain.Order{}, err
	}
	m.orders[id] = o
	return o, nil
}

type stubInventory struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (s *stubInventory) record(op, productID string, qty int64) (inventory.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, fmt.Sprintf("%s:%s:%d", op, productID, qty))
	return inventory.Result{}, s.err
}

func (s *stubInventory) Confirm(ctx context.Context, productID string, qty int64) (inventory.Result, error) {
	return s.record("confirm", productID, qty)
}

func (s *stubInventory) CancelReservation(ctx context.Context, productID string, qty int64) (inventory.Result, error) {
	return s.record("cancel", productID, qty)
}

func (s *stubInventory) Return(ctx context.Context, productID string, qty int64) (inventory.Result, error) {
	return s.record("return", productID, qty)
}

func testOrder(status domain.OrderStatus) domain.Order {
	return domain.Order{
		ID:            "ord-1",
		CustomerID:    "cust-1",
		Status:        status,
		PaymentStatus: domain.PaymentPending,
		Items: []domain.OrderItem{
			{ProductID: "sku-1", Quantity: 2, Price: decimal.RequireFromString("10.00")},
			{ProductID: "sku-2", Quantity: 1, Price: decimal.RequireFromString("5.50")},
		},
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
}

type sweepFixture struct {
	machine  *Machine
	orders   *memOrders
	inv      *stubInventory
	recorder *testutil.Recorder
}

func newSweepFixture(status domain.OrderStatus) *sweepFixture {
	f := &sweepFixture{
		orders:   newMemOrders(testOrder(status)),
		inv:      &stubInventory{},
		recorder: testutil.NewRecorder(),
	}
	sender := notify.NewSender(f.recorder, notify.WithLogger(quietLogger))
	f.machine = NewMachine(f.orders, f.inv, sender,
		WithClock(func() time.Time { return testNow.Add(time.Hour) }),
		WithLogger(quietLogger),
	)
	return f
}

// allowedTriples is the full transition matrix written out by hand.
var allowedTriples = map[string]bool{
	"pending>confirmed@system":   true,
	"pending>cancelled@system":   true,
	"confirmed>preparing@system": true,
	"confirmed>cancelled@system": true,
	"preparing>shipped@system":   true,
	"preparing>cancelled@system": true,
	"shipped>delivered@system":   true,

	"pending>confirmed@admin":   true,
	"pending>cancelled@admin":   true,
	"confirmed>preparing@admin": true,
	"confirmed>cancelled@admin": true,
	"preparing>shipped@admin":   true,
	"preparing>cancelled@admin": true,
	"shipped>delivered@admin":   true,
	"shipped>cancelled@admin":   true,

	"pending>confirmed@partner":   true,
	"confirmed>preparing@partner": true,
	"preparing>shipped@partner":   true,
	"shipped>delivered@partner":   true,

	"pending>cancelled@customer": true,
}

func tripleKey(from, to domain.OrderStatus, actor domain.Role) string {
	return fmt.Sprintf("%s>%s@%s", from, to, actor)
}

func expectedInventoryCalls(from, to domain.OrderStatus) []string {
	switch {
	case from == domain.OrderPending && to == domain.OrderConfirmed:
		return []string{"confirm:sku-1:2", "confirm:sku-2:1"}
	case from == domain.OrderPending && to == domain.OrderCancelled:
		return []string{"cancel:sku-1:2", "cancel:sku-2:1"}
	case to == domain.OrderCancelled:
		return []string{"return:sku-1:2", "return:sku-2:1"}
	}
	return nil
}

func TestTransition_FullMatrixSweep(t *testing.T) {
	accepted := 0
	for _, from := range domain.OrderStatuses {
		for _, to := range domain.OrderStatuses {
			for _, actor := range allRoles {
				key := tripleKey(from, to, actor)
				t.Run(key, func(t *testing.T) {
					f := newSweepFixture(from)

					change, err := f.machine.Transition(context.Background(), "ord-1", to, actor)
					stored := f.orders.orders["ord-1"]

					if !allowedTriples[key] {
						require.Error(t, err)
						assert.True(t, domain.IsIllegalTransition(err))
						assert.Contains(t, err.Error(), fmt.Sprintf("from %s to %s as %s", from, to, actor))
						assert.Equal(t, from, stored.Status, "status unchanged")
						assert.True(t, stored.UpdatedAt.Equal(testNow), "nothing written")
						assert.Empty(t, f.recorder.All(), "no notification")
						assert.Empty(t, f.inv.calls, "no inventory side effect")
						assert.False(t, Allowed(from, to, actor))
						return
					}

					require.NoError(t, err)
					assert.True(t, Allowed(from, to, actor))
					assert.Equal(t, from, change.From)
					assert.Equal(t, to, stored.Status)
					assert.Equal(t, []string{notify.OrderKind(to)}, f.recorder.Kinds())
					assert.Equal(t, "cust-1", f.recorder.All()[0].Recipient)
					assert.Equal(t, expectedInventoryCalls(from, to), f.inv.calls)
				})
				if allowedTriples[key] {
					accepted++
				}
			}
		}
	}
	assert.Equal(t, len(allowedTriples), accepted)
}

func TestTransition_PartnerCannotCancelShippedButAdminCan(t *testing.T) {
	f := newSweepFixture(domain.OrderShipped)
	ctx := context.Background()

	_, err := f.machine.Transition(ctx, "ord-1", domain.OrderCancelled, domain.RolePartner)
	require.Error(t, err)
	assert.True(t, domain.IsIllegalTransition(err))
	assert.Equal(t, "ILLEGAL_TRANSITION: order ord-1 cannot move from shipped to cancelled as partner", err.Error())
	assert.Equal(t, domain.OrderShipped, f.orders.orders["ord-1"].Status)
	assert.Empty(t, f.inv.calls)

	change, err := f.machine.Transition(ctx, "ord-1", domain.OrderCancelled, domain.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, change.Order.Status)
	assert.Equal(t, []string{"return:sku-1:2", "return:sku-2:1"}, f.inv.calls)
	assert.Equal(t, []string{"order_cancelled"}, f.recorder.Kinds())
}

func TestTransition_TerminalStatusesStayTerminal(t *testing.T) {
	for _, status := range []domain.OrderStatus{domain.OrderDelivered, domain.OrderCancelled} {
		for _, actor := range allRoles {
			assert.Empty(t, Targets(status, actor), "%s as %s", status, actor)
		}
	}
}

func TestTargets(t *testing.T) {
	assert.Equal(t,
		[]domain.OrderStatus{domain.OrderDelivered, domain.OrderCancelled},
		Targets(domain.OrderShipped, domain.RoleAdmin))
	assert.Equal(t,
		[]domain.OrderStatus{domain.OrderPreparing},
		Targets(domain.OrderConfirmed, domain.RolePartner))
	assert.Empty(t, Targets(domain.OrderConfirmed, domain.RoleCustomer))
	assert.Empty(t, Targets(domain.OrderPending, "auditor"))
}

func TestTransition_CancelRefundsPaidOrder(t *testing.T) {
	o := testOrder(domain.OrderConfirmed)
	o.PaymentStatus = domain.PaymentPaid
	f := newSweepFixture(domain.OrderConfirmed)
	f.orders.orders["ord-1"] = o

	change, err := f.machine.Transition(context.Background(), "ord-1", domain.OrderCancelled, domain.RoleSystem)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentRefunded, change.Order.PaymentStatus)
}

func TestConfirmPayment(t *testing.T) {
	f := newSweepFixture(domain.OrderPending)
	o := testOrder(domain.OrderPending)
	o.PaymentStatus = domain.PaymentFailed
	f.orders.orders["ord-1"] = o

	change, err := f.machine.ConfirmPayment(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderConfirmed, change.To)
	assert.Equal(t, domain.RoleSystem, change.Actor)
	assert.Equal(t, domain.PaymentPaid, f.orders.orders["ord-1"].PaymentStatus)
	assert.Equal(t, []string{"confirm:sku-1:2", "confirm:sku-2:1"}, f.inv.calls)
}

func TestConfirmPayment_RejectedLeavesPaymentPending(t *testing.T) {
	for _, status := range []domain.OrderStatus{domain.OrderConfirmed, domain.OrderCancelled, domain.OrderShipped} {
		f := newSweepFixture(status)

		_, err := f.machine.ConfirmPayment(context.Background(), "ord-1")
		require.True(t, domain.IsIllegalTransition(err), "from %s", status)

		o := f.orders.orders["ord-1"]
		assert.Equal(t, status, o.Status)
		assert.Equal(t, domain.PaymentPending, o.PaymentStatus, "from %s", status)
		assert.True(t, o.UpdatedAt.Equal(testNow))
		assert.Empty(t, f.inv.calls)
	}
}

func TestTransition_InventoryFailuresAreSkipped(t *testing.T) {
	f := newSweepFixture(domain.OrderPending)
	f.inv.err = domain.NewNotFoundError("product", "sku-1")

	change, err := f.machine.Transition(context.Background(), "ord-1", domain.OrderConfirmed, domain.RoleSystem)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderConfirmed, change.Order.Status)
	assert.Len(t, f.inv.calls, 2, "every item is attempted")
	assert.Len(t, f.recorder.All(), 1)
}

func TestTransition_NotificationFailureDoesNotFailTransition(t *testing.T) {
	f := newSweepFixture(domain.OrderPending)
	f.recorder.Err = errors.New("mailer down")

	_, err := f.machine.Transition(context.Background(), "ord-1", domain.OrderConfirmed, domain.RoleSystem)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderConfirmed, f.orders.orders["ord-1"].Status)
}

func TestTransition_UnknownOrderAndStatus(t *testing.T) {
	f := newSweepFixture(domain.OrderPending)
	ctx := context.Background()

	_, err := f.machine.Transition(ctx, "missing", domain.OrderConfirmed, domain.RoleSystem)
	assert.True(t, domain.IsNotFound(err))

	_, err = f.machine.Transition(ctx, "ord-1", "lost", domain.RoleSystem)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown status "lost"`)
}

func TestTransition_WithLedgerAndStore(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.CreateProduct(ctx, domain.Product{ID: "sku-1", Stock: 5, MaxStock: 100, UpdatedAt: testNow}))
	require.NoError(t, s.CreateProduct(ctx, domain.Product{ID: "sku-2", Stock: 5, MaxStock: 100, UpdatedAt: testNow}))

	rec := testutil.NewRecorder()
	sender := notify.NewSender(rec, notify.WithLogger(quietLogger))
	ledger, err := inventory.New(s, sender, inventory.WithLogger(quietLogger))
	require.NoError(t, err)
	machine := NewMachine(s, ledger, sender, WithLogger(quietLogger))

	for _, item := range testOrder(domain.OrderPending).Items {
		_, err := ledger.Reserve(ctx, item.ProductID, item.Quantity)
		require.NoError(t, err)
	}
	require.NoError(t, s.CreateOrder(ctx, testOrder(domain.OrderPending)))

	_, err = machine.Transition(ctx, "ord-1", domain.OrderConfirmed, domain.RoleSystem)
	require.NoError(t, err)
	p, err := s.GetProduct(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.Stock, "confirmed orders consume stock")
	assert.Equal(t, int64(0), p.ReservedStock)

	_, err = machine.Transition(ctx, "ord-1", domain.OrderCancelled, domain.RoleAdmin)
	require.NoError(t, err)
	p, err = s.GetProduct(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.Stock, "cancelled orders return stock")

	o, err := s.GetOrder(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, o.Status)
}
