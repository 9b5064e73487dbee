package rules

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fulfil/internal/domain"
	"github.com/roach88/fulfil/internal/notify"
	"github.com/roach88/fulfil/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "rules.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew_ReportsEveryProblem(t *testing.T) {
	rs := domain.RuleSet{Version: "1.0.0", Rules: []domain.Rule{
		rule("bad-field", domain.RuleOrderProcessing, 5,
			[]domain.Condition{cond("shippingAddress", domain.OpEquals, "x")}, notifyAction("x")),
		rule("bad-priority", domain.RuleOrderProcessing, 11, nil, notifyAction("x")),
		rule("no-actions", domain.RuleOrderProcessing, 5, nil),
	}}

	_, err := New(rs)
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeUnknownField, domain.CodeOf(err))
	assert.Contains(t, err.Error(), "shippingAddress")
	assert.Contains(t, err.Error(), "priority 11 outside 1..10")
	assert.Contains(t, err.Error(), "at least one action is required")
}

func TestNew_RejectsMalformedRules(t *testing.T) {
	tests := []struct {
		name string
		rule domain.Rule
		want string
	}{
		{
			name: "unknown type",
			rule: rule("r1", "marketing", 5, nil, notifyAction("x")),
			want: `unknown rule type "marketing"`,
		},
		{
			name: "missing id",
			rule: rule("", domain.RuleOrderProcessing, 5, nil, notifyAction("x")),
			want: "rule id is required",
		},
		{
			name: "unknown action",
			rule: rule("r1", domain.RuleOrderProcessing, 5, nil, domain.Action{Type: "send_sms"}),
			want: `unknown action type "send_sms"`,
		},
		{
			name: "missing parameter",
			rule: rule("r1", domain.RuleOrderProcessing, 5, nil, domain.Action{Type: domain.ActionSendNotification}),
			want: "send_notification parameters",
		},
		{
			name: "zero adjustment",
			rule: rule("r1", domain.RuleInventoryManagement, 5, nil, domain.Action{
				Type: domain.ActionUpdateInventory, Parameters: map[string]any{"adjustment": 0},
			}),
			want: "update_inventory parameters",
		},
		{
			name: "fractional adjustment",
			rule: rule("r1", domain.RuleInventoryManagement, 5, nil, domain.Action{
				Type: domain.ActionUpdateInventory, Parameters: map[string]any{"adjustment": 1.5},
			}),
			want: "update_inventory parameters",
		},
		{
			name: "update_inventory on orders",
			rule: rule("r1", domain.RuleOrderProcessing, 5, nil, domain.Action{
				Type: domain.ActionUpdateInventory, Parameters: map[string]any{"adjustment": 5},
			}),
			want: "update_inventory does not apply to order rules",
		},
		{
			name: "update_status on customers",
			rule: rule("r1", domain.RuleCustomerEngagement, 5, nil, statusAction("confirmed")),
			want: "update_status does not apply to customer rules",
		},
		{
			name: "unknown order status",
			rule: rule("r1", domain.RuleOrderProcessing, 5, nil, statusAction("lost")),
			want: `unknown order status "lost"`,
		},
		{
			name: "order status on products",
			rule: rule("r1", domain.RulePricing, 5, nil, statusAction("shipped")),
			want: `unknown listing status "shipped"`,
		},
		{
			name: "bad guard",
			rule: func() domain.Rule {
				r := rule("r1", domain.RuleOrderProcessing, 5, nil, notifyAction("x"))
				r.When = "entity.total +"
				return r
			}(),
			want: "when: compile",
		},
		{
			name: "non boolean guard",
			rule: func() domain.Rule {
				r := rule("r1", domain.RuleOrderProcessing, 5, nil, notifyAction("x"))
				r.When = `"yes"`
				return r
			}(),
			want: "must be boolean",
		},
		{
			name: "negative cooldown",
			rule: func() domain.Rule {
				r := rule("r1", domain.RuleOrderProcessing, 5, nil, notifyAction("x"))
				r.Cooldown = domain.Duration(-time.Hour)
				return r
			}(),
			want: "cooldown must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(domain.RuleSet{Rules: []domain.Rule{tt.rule}})
			require.Error(t, err)
			assert.Equal(t, domain.ErrCodeInvalidRule, domain.CodeOf(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNew_DuplicateID(t *testing.T) {
	_, err := New(domain.RuleSet{Rules: []domain.Rule{
		rule("r1", domain.RuleOrderProcessing, 5, nil, notifyAction("a")),
		rule("r1", domain.RuleOrderProcessing, 5, nil, notifyAction("b")),
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate rule id")
}

func TestEngine_PriorityOrderIsStable(t *testing.T) {
	f := newEngineFixture()
	eng, err := New(domain.RuleSet{Rules: []domain.Rule{
		rule("first-five", domain.RuleOrderProcessing, 5, nil, notifyAction("a")),
		rule("eight", domain.RuleOrderProcessing, 8, nil, notifyAction("b")),
		rule("second-five", domain.RuleNotification, 5, nil, notifyAction("c")),
		rule("one", domain.RuleOrderProcessing, 1, nil, notifyAction("d")),
	}}, f.options(false)...)
	require.NoError(t, err)

	var ids []string
	for _, r := range eng.Rules() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"eight", "first-five", "second-five", "one"}, ids)

	report := eng.Evaluate(context.Background(), OrderEntity(testOrder("ord-1", domain.OrderPending, time.Hour, "5"), nil, testNow))
	assert.Equal(t, ids, report.Matched)

	var messages []any
	for _, n := range f.recorder.OfKind(notify.KindAutomationAlert) {
		messages = append(messages, n.Payload["message"])
	}
	assert.Equal(t, []any{"b", "a", "c", "d"}, messages)
}

func TestEngine_RulesIsACopy(t *testing.T) {
	r := rule("r1", domain.RuleOrderProcessing, 5, []domain.Condition{cond("status", domain.OpEquals, "pending")}, notifyAction("a"))
	eng, err := New(domain.RuleSet{Rules: []domain.Rule{r}})
	require.NoError(t, err)

	r.Conditions[0].Value = "shipped"
	got := eng.Rules()
	got[0].Actions[0].Parameters["message"] = "changed"

	again := eng.Rules()
	assert.Equal(t, "pending", again[0].Conditions[0].Value)
	assert.Equal(t, "a", again[0].Actions[0].Parameters["message"])
}

func TestEngine_BucketsAndDisabledRules(t *testing.T) {
	f := newEngineFixture()
	disabled := rule("disabled", domain.RuleOrderProcessing, 9, nil, notifyAction("never"))
	disabled.Enabled = false

	eng, err := New(domain.RuleSet{Rules: []domain.Rule{
		disabled,
		rule("orders", domain.RuleOrderProcessing, 5, nil, notifyAction("o")),
		rule("alerts", domain.RuleNotification, 5, nil, notifyAction("n")),
		rule("stock", domain.RuleInventoryManagement, 5, nil, notifyAction("s")),
		rule("prices", domain.RulePricing, 5, nil, notifyAction("p")),
		rule("people", domain.RuleCustomerEngagement, 5, nil, notifyAction("c")),
	}}, f.options(false)...)
	require.NoError(t, err)
	ctx := context.Background()

	report := eng.Evaluate(ctx, OrderEntity(testOrder("ord-1", domain.OrderPending, time.Hour, "5"), nil, testNow))
	assert.Equal(t, []string{"orders", "alerts"}, report.Matched)

	report = eng.Evaluate(ctx, ProductEntity(testProduct("sku-1", 5, 0, 1), testNow))
	assert.Equal(t, []string{"stock", "prices"}, report.Matched)

	report = eng.Evaluate(ctx, CustomerEntity(testCustomer("cust-1", "ada@example.com", 0, "0", nil), testNow))
	assert.Equal(t, []string{"people"}, report.Matched)
	assert.Equal(t, KindCustomer, report.EntityKind)
	assert.Equal(t, "cust-1", report.EntityID)
}

func TestEngine_StaleOrderConfirmation(t *testing.T) {
	f := newEngineFixture()
	eng, err := New(domain.RuleSet{Rules: []domain.Rule{
		rule("confirm-stale", domain.RuleOrderProcessing, 8, []domain.Condition{
			cond("status", domain.OpEquals, "pending"),
			cond("hoursSinceCreated", domain.OpGreaterThan, 24),
		}, statusAction("confirmed")),
	}}, f.options(false)...)
	require.NoError(t, err)
	ctx := context.Background()

	report := eng.Evaluate(ctx, OrderEntity(testOrder("ord-old", domain.OrderPending, 30*time.Hour, "5"), nil, testNow))
	assert.Equal(t, []string{"confirm-stale"}, report.Matched)
	assert.Equal(t, []ActionOutcome{{RuleID: "confirm-stale", Action: domain.ActionUpdateStatus, Status: OutcomeSucceeded}}, report.Actions)

	report = eng.Evaluate(ctx, OrderEntity(testOrder("ord-new", domain.OrderPending, 2*time.Hour, "5"), nil, testNow))
	assert.Empty(t, report.Matched)

	assert.Equal(t, []string{"transition ord-old -> confirmed as system"}, f.calls.all())
}

func TestEngine_ProductActions(t *testing.T) {
	f := newEngineFixture()
	eng, err := New(domain.RuleSet{Rules: []domain.Rule{
		rule("restock", domain.RuleInventoryManagement, 8, []domain.Condition{
			cond("availableStock", domain.OpLessThan, 2),
		}, domain.Action{Type: domain.ActionUpdateInventory, Parameters: map[string]any{"adjustment": 25}}),
		rule("delist", domain.RuleInventoryManagement, 9, []domain.Condition{
			cond("inventoryStatus", domain.OpEquals, "out_of_stock"),
		}, statusAction("inactive")),
	}}, f.options(false)...)
	require.NoError(t, err)

	eng.Evaluate(context.Background(), ProductEntity(testProduct("sku-1", 3, 3, 1), testNow))

	assert.Equal(t, []string{
		"listing sku-1 -> inactive",
		"adjust sku-1 by 25 (automation rule restock)",
	}, f.calls.all())
}

func TestEngine_ActionFailuresAreIsolated(t *testing.T) {
	f := newEngineFixture()
	f.orders.err = domain.NewIllegalTransitionError("ord-1", domain.OrderShipped, domain.OrderConfirmed, domain.RoleSystem)
	eng, err := New(domain.RuleSet{Rules: []domain.Rule{
		rule("first", domain.RuleOrderProcessing, 9, nil, statusAction("confirmed"), notifyAction("after failure")),
		rule("second", domain.RuleOrderProcessing, 1, nil, notifyAction("second rule")),
	}}, f.options(false)...)
	require.NoError(t, err)

	report := eng.Evaluate(context.Background(), OrderEntity(testOrder("ord-1", domain.OrderShipped, time.Hour, "5"), nil, testNow))

	require.Len(t, report.Actions, 3)
	assert.Equal(t, OutcomeFailed, report.Actions[0].Status)
	assert.Contains(t, report.Actions[0].Error, "ILLEGAL_TRANSITION")
	assert.Equal(t, OutcomeSucceeded, report.Actions[1].Status)
	assert.Equal(t, OutcomeSucceeded, report.Actions[2].Status)
	assert.Equal(t, 1, report.Failed())
	assert.Len(t, f.recorder.OfKind(notify.KindAutomationAlert), 2)
}

func TestEngine_NotificationFailureIsAnActionFailure(t *testing.T) {
	f := newEngineFixture()
	f.recorder.Err = errors.New("smtp down")
	eng, err := New(domain.RuleSet{Rules: []domain.Rule{
		rule("alert", domain.RuleOrderProcessing, 5, nil, notifyAction("x"), statusAction("confirmed")),
	}}, f.options(false)...)
	require.NoError(t, err)

	report := eng.Evaluate(context.Background(), OrderEntity(testOrder("ord-1", domain.OrderPending, time.Hour, "5"), nil, testNow))

	require.Len(t, report.Actions, 2)
	assert.Equal(t, OutcomeFailed, report.Actions[0].Status)
	assert.Contains(t, report.Actions[0].Error, "NOTIFICATION_FAILURE")
	assert.Equal(t, OutcomeSucceeded, report.Actions[1].Status)
}

func TestEngine_Guard(t *testing.T) {
	f := newEngineFixture()
	big := rule("big-first-order", domain.RuleOrderProcessing, 5, nil, notifyAction("x"))
	big.When = `entity.total >= 100 && has(entity.customer) && entity.customer.totalOrders <= 1`
	eng, err := New(domain.RuleSet{Rules: []domain.Rule{big}}, f.options(false)...)
	require.NoError(t, err)
	ctx := context.Background()

	first := testCustomer("cust-1", "ada@example.com", 1, "0", nil)
	regular := testCustomer("cust-2", "bob@example.com", 7, "900", nil)

	tests := []struct {
		name     string
		entity   Entity
		expected bool
	}{
		{"large first order", OrderEntity(testOrder("o1", domain.OrderPending, time.Hour, "60", "40"), &first, testNow), true},
		{"small first order", OrderEntity(testOrder("o2", domain.OrderPending, time.Hour, "60"), &first, testNow), false},
		{"large repeat order", OrderEntity(testOrder("o3", domain.OrderPending, time.Hour, "150"), &regular, testNow), false},
		{"no customer", OrderEntity(testOrder("o4", domain.OrderPending, time.Hour, "150"), nil, testNow), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := eng.Evaluate(ctx, tt.entity)
			assert.Equal(t, tt.expected, len(report.Matched) == 1)
		})
	}
}

func TestEngine_GuardErrorIsFalse(t *testing.T) {
	f := newEngineFixture()
	r := rule("needs-customer", domain.RuleOrderProcessing, 5, nil, notifyAction("x"))
	r.When = `entity.customer.totalOrders > 3`
	eng, err := New(domain.RuleSet{Rules: []domain.Rule{r}}, f.options(false)...)
	require.NoError(t, err)

	report := eng.Evaluate(context.Background(), OrderEntity(testOrder("o1", domain.OrderPending, time.Hour, "5"), nil, testNow))
	assert.Empty(t, report.Matched)
}

func TestEngine_Cooldown(t *testing.T) {
	f := newEngineFixture()
	s := newTestStore(t)
	r := rule("low-stock", domain.RuleInventoryManagement, 5, []domain.Condition{
		cond("inventoryStatus", domain.OpEquals, "low_stock"),
	}, notifyAction("restock"))
	r.Cooldown = domain.Duration(24 * time.Hour)

	eng, err := New(domain.RuleSet{Rules: []domain.Rule{r}}, f.options(false, WithWatermarks(s), WithRunRecorder(s))...)
	require.NoError(t, err)
	ctx := context.Background()
	low := func() Entity { return ProductEntity(testProduct("sku-1", 3, 0, 5), f.clock.Now()) }

	report := eng.Evaluate(ctx, low())
	assert.Equal(t, []string{"low-stock"}, report.Matched)

	f.clock.Advance(23 * time.Hour)
	report = eng.Evaluate(ctx, low())
	assert.Empty(t, report.Matched)
	assert.Equal(t, []string{"low-stock"}, report.Suppressed)

	report = eng.Evaluate(ctx, ProductEntity(testProduct("sku-2", 3, 0, 5), f.clock.Now()))
	assert.Equal(t, []string{"low-stock"}, report.Matched, "cooldown is per entity")

	f.clock.Advance(time.Hour)
	report = eng.Evaluate(ctx, low())
	assert.Equal(t, []string{"low-stock"}, report.Matched)

	assert.Len(t, f.recorder.OfKind(notify.KindAutomationAlert), 3)

	runs, err := s.ListRuleRuns(ctx, "product", "sku-1")
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, store.RunSucceeded, runs[0].Status)
	assert.Equal(t, store.RunSkipped, runs[1].Status)
	assert.Equal(t, "cooldown", runs[1].Message)
	assert.Equal(t, store.RunSucceeded, runs[2].Status)
	assert.Equal(t, "run-1", runs[0].ID)
}

type brokenWatermarks struct{}

func (brokenWatermarks) ClaimWatermark(ctx context.Context, key string, now time.Time, cooldown time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}

func TestEngine_WatermarkErrorSuppresses(t *testing.T) {
	f := newEngineFixture()
	r := rule("cooled", domain.RuleOrderProcessing, 5, nil, notifyAction("x"))
	r.Cooldown = domain.Duration(time.Hour)
	eng, err := New(domain.RuleSet{Rules: []domain.Rule{r}}, f.options(false, WithWatermarks(brokenWatermarks{}))...)
	require.NoError(t, err)

	report := eng.Evaluate(context.Background(), OrderEntity(testOrder("o1", domain.OrderPending, time.Hour, "5"), nil, testNow))
	assert.Empty(t, report.Matched)
	assert.Equal(t, []string{"cooled"}, report.Suppressed)
	assert.Empty(t, f.recorder.All())
}

func TestEngine_FailedRunIsRecorded(t *testing.T) {
	f := newEngineFixture()
	f.orders.err = errors.New("boom")
	s := newTestStore(t)
	eng, err := New(domain.RuleSet{Rules: []domain.Rule{
		rule("confirm", domain.RuleOrderProcessing, 5, nil, statusAction("confirmed")),
	}}, f.options(false, WithRunRecorder(s))...)
	require.NoError(t, err)
	ctx := context.Background()

	eng.Evaluate(ctx, OrderEntity(testOrder("o1", domain.OrderPending, time.Hour, "5"), nil, testNow))

	runs, err := s.ListRuleRuns(ctx, "order", "o1")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.RunFailed, runs[0].Status)
	assert.Equal(t, "boom", runs[0].Message)
	assert.True(t, testNow.Equal(runs[0].CreatedAt))
}

func TestEngine_EmailsAndTasks(t *testing.T) {
	f := newEngineFixture()
	eng, err := New(domain.RuleSet{Rules: []domain.Rule{
		rule("welcome", domain.RuleCustomerEngagement, 5, nil,
			domain.Action{Type: domain.ActionSendEmail, Parameters: map[string]any{"template": "welcome"}},
			domain.Action{Type: domain.ActionCreateTask, Parameters: map[string]any{"title": "Call customer", "assignee": "sales"}},
		),
	}}, f.options(true)...)
	require.NoError(t, err)
	ctx := context.Background()

	report := eng.Evaluate(ctx, CustomerEntity(testCustomer("cust-1", "ada@example.com", 0, "0", nil), testNow))
	assert.Zero(t, report.Failed())

	report = eng.Evaluate(ctx, CustomerEntity(testCustomer("cust-2", "", 0, "0", nil), testNow))
	require.Len(t, report.Actions, 2)
	assert.Equal(t, OutcomeFailed, report.Actions[0].Status)
	assert.Equal(t, errNoRecipient.Error(), report.Actions[0].Error)

	assert.Equal(t, []string{
		"email welcome to ada@example.com (welcome)",
		`task "Call customer" for sales on customer cust-1`,
		`task "Call customer" for sales on customer cust-2`,
	}, f.calls.all())
}

func TestEngine_EmailsDefaultToNotifications(t *testing.T) {
	f := newEngineFixture()
	eng, err := New(domain.RuleSet{Rules: []domain.Rule{
		rule("thanks", domain.RuleOrderProcessing, 5, nil,
			domain.Action{Type: domain.ActionSendEmail, Parameters: map[string]any{"subject": "Thank you"}},
			domain.Action{Type: domain.ActionCreateTask, Parameters: map[string]any{"title": "Check order", "priority": "high"}},
		),
	}}, f.options(false)...)
	require.NoError(t, err)

	c := testCustomer("cust-1", "ada@example.com", 1, "5", nil)
	eng.Evaluate(context.Background(), OrderEntity(testOrder("o1", domain.OrderPending, time.Hour, "5"), &c, testNow))

	emails := f.recorder.OfKind(notify.KindEmail)
	require.Len(t, emails, 1)
	assert.Equal(t, notify.ChannelCustomer, emails[0].Channel)
	assert.Equal(t, "ada@example.com", emails[0].Recipient)
	assert.Equal(t, "Thank you", emails[0].Payload["subject"])

	tasks := f.recorder.OfKind(notify.KindTask)
	require.Len(t, tasks, 1)
	assert.Equal(t, notify.ChannelAdmin, tasks[0].Channel)
	assert.Equal(t, "high", tasks[0].Payload["priority"])
	assert.Equal(t, "o1", tasks[0].Payload["entityId"])
}

func TestExecuteActions(t *testing.T) {
	f := newEngineFixture()
	eng, err := New(domain.RuleSet{Rules: []domain.Rule{
		rule("only-shipped", domain.RuleOrderProcessing, 5,
			[]domain.Condition{cond("status", domain.OpEquals, "shipped")}, notifyAction("forced")),
	}}, f.options(false)...)
	require.NoError(t, err)
	ctx := context.Background()
	ent := OrderEntity(testOrder("o1", domain.OrderPending, time.Hour, "5"), nil, testNow)

	outcomes, err := eng.ExecuteActions(ctx, "only-shipped", ent)
	require.NoError(t, err)
	assert.Equal(t, []ActionOutcome{{RuleID: "only-shipped", Action: domain.ActionSendNotification, Status: OutcomeSucceeded}}, outcomes)
	assert.Len(t, f.recorder.All(), 1)

	_, err = eng.ExecuteActions(ctx, "missing", ent)
	assert.True(t, domain.IsNotFound(err))
}

func TestWatermarkKey(t *testing.T) {
	assert.Equal(t, "rule:low-stock:product:sku-1", WatermarkKey("low-stock", KindProduct, "sku-1"))
}
