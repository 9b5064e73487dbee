package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"

	"github.com/roach88/fulfil/internal/domain"
	"github.com/roach88/fulfil/internal/fulfillment"
	"github.com/roach88/fulfil/internal/inventory"
	"github.com/roach88/fulfil/internal/notify"
	"github.com/roach88/fulfil/internal/orders"
	"github.com/roach88/fulfil/internal/rules"
	"github.com/roach88/fulfil/internal/scheduler"
	"github.com/roach88/fulfil/internal/store"
	"github.com/roach88/fulfil/internal/testutil"
)

// CasePaymentSettled is the case of a payment failure reported for an
// order whose payment is no longer pending.
const CasePaymentSettled = "PAYMENT_SETTLED"

// Harness is the scenario execution engine. It holds the service stack of
// one scenario run.
type Harness struct {
	store     *store.Store
	ledger    *inventory.Ledger
	machine   *orders.Machine
	service   *fulfillment.Service
	scheduler *scheduler.Scheduler
	recorder  *testutil.Recorder
	clock     *testutil.Clock
	logger    *slog.Logger

	seq    int64
	traced int // notifications already copied into the trace
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with a frozen clock and
// sequential IDs. Execution flow:
//  1. Assemble the store, ledger, order machine, rule engine, service and scheduler
//  2. Seed products and customers
//  3. Execute flow steps, evaluating queued events after each one
//  4. Evaluate assertions
//
// A returned error means the scenario could not be executed; mismatches
// are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(st, scenario)
	if err != nil {
		return nil, err
	}

	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	h.executeFlow(ctx, scenario.Flow, result)

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

func newHarness(st *store.Store, scenario *Scenario) (*Harness, error) {
	rs := rules.DefaultRuleSet()
	if scenario.Rules != "" {
		var err error
		if rs, err = rules.LoadFile(scenario.Rules); err != nil {
			return nil, fmt.Errorf("failed to load rule set: %w", err)
		}
	}

	start := scenario.Start
	if start.IsZero() {
		start = DefaultStart
	}
	clock := testutil.NewClock(start.UTC())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in scenarios
	recorder := testutil.NewRecorder()

	sender := notify.NewSender(recorder,
		notify.WithIDGenerator(testutil.NewSequenceGenerator("ntf")),
		notify.WithClock(clock.Now),
		notify.WithLogger(logger),
	)
	ledger, err := inventory.New(st, sender,
		inventory.WithClock(clock.Now),
		inventory.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	machine := orders.NewMachine(st, ledger, sender,
		orders.WithClock(clock.Now),
		orders.WithLogger(logger),
	)
	engine, err := rules.New(rs,
		rules.WithOrderTransitioner(machine),
		rules.WithInventory(ledger),
		rules.WithSender(sender),
		rules.WithWatermarks(st),
		rules.WithRunRecorder(st),
		rules.WithIDGenerator(testutil.NewSequenceGenerator("run")),
		rules.WithClock(clock.Now),
		rules.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compile rule set: %w", err)
	}

	return &Harness{
		store:   st,
		ledger:  ledger,
		machine: machine,
		service: fulfillment.New(st, ledger, machine,
			fulfillment.WithEvaluator(engine),
			fulfillment.WithSender(sender),
			fulfillment.WithIDGenerator(testutil.NewSequenceGenerator("ord")),
			fulfillment.WithClock(clock.Now),
			fulfillment.WithLogger(logger),
		),
		scheduler: scheduler.New(st, engine,
			scheduler.WithIDGenerator(testutil.NewSequenceGenerator("pass")),
			scheduler.WithClock(clock.Now),
			scheduler.WithLogger(logger),
		),
		recorder: recorder,
		clock:    clock,
		logger:   logger,
	}, nil
}

// executeSetup writes the setup fixtures. Setup writes bypass the ledger
// and produce no trace.
func (h *Harness) executeSetup(ctx context.Context, setup Setup) error {
	now := h.clock.Now()
	for i, p := range setup.Products {
		status := domain.ListingStatus(p.Status)
		if status == "" {
			status = domain.ListingActive
		}
		if !status.Valid() {
			return fmt.Errorf("product %d: unknown listing status %q", i, p.Status)
		}
		err := h.store.CreateProduct(ctx, domain.Product{
			ID:        p.ID,
			Name:      p.Name,
			PartnerID: p.Partner,
			Stock:     p.Stock,
			MinStock:  p.Min,
			MaxStock:  p.Max,
			Status:    status,
			UpdatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("product %d: %w", i, err)
		}
	}
	for i, c := range setup.Customers {
		err := h.store.CreateCustomer(ctx, domain.Customer{
			ID:        c.ID,
			Name:      c.Name,
			Email:     c.Email,
			CreatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("customer %d: %w", i, err)
		}
	}
	return nil
}

// executeFlow runs every step against the real service stack and compares
// the outcome with the step's expect clause.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) {
	for i, step := range flow {
		args := normalize(step.Args)
		if args == nil {
			args = map[string]any{}
		}
		result.add(TraceEvent{Type: EventInvocation, Action: step.Invoke, Args: args, Seq: h.next()})

		value, err := steps[step.Invoke](ctx, h, stepArgs(step.Args))
		outputCase, out := CaseOK, normalize(value)
		if err != nil {
			outputCase, out = caseOf(err), map[string]any{"message": err.Error()}
		}
		h.service.Drain(ctx)

		result.add(TraceEvent{Type: EventCompletion, Action: step.Invoke, OutputCase: outputCase, Result: out, Seq: h.next()})
		h.traceNotifications(result)

		expected := &ExpectClause{Case: CaseOK}
		if step.Expect != nil {
			expected = step.Expect
		}
		if outputCase != expected.Case {
			result.AddError(fmt.Sprintf("flow[%d] %s: expected case %q, got %q (%v)",
				i, step.Invoke, expected.Case, outputCase, out))
			continue
		}
		if !matchArgs(out, normalizeMap(expected.Result)) {
			result.AddError(fmt.Sprintf("flow[%d] %s: expected result %v, got %v",
				i, step.Invoke, expected.Result, out))
		}

		h.logger.Info("flow step completed",
			"step", i,
			"action", step.Invoke,
			"output_case", outputCase,
		)
	}
}

// traceNotifications appends the notifications sent since the last call.
func (h *Harness) traceNotifications(result *Result) {
	sent := h.recorder.All()
	for _, n := range sent[h.traced:] {
		args := map[string]any{"channel": string(n.Channel)}
		if n.Recipient != "" {
			args["recipient"] = n.Recipient
		}
		if len(n.Payload) > 0 {
			args["payload"] = n.Payload
		}
		result.add(TraceEvent{
			Type:   EventNotification,
			Action: "notify." + n.Kind,
			Args:   normalize(args),
			Seq:    h.next(),
		})
	}
	h.traced = len(sent)
}

func (h *Harness) next() int64 {
	h.seq++
	return h.seq
}

// caseOf maps a step error to its output case.
func caseOf(err error) string {
	if errors.Is(err, fulfillment.ErrPaymentSettled) {
		return CasePaymentSettled
	}
	if code := domain.CodeOf(err); code != "" {
		return string(code)
	}
	return "error"
}

// normalize round-trips v through JSON so that step results, YAML
// arguments and expectations compare as plain JSON values.
func normalize(v any) any {
	if v == nil || (reflect.ValueOf(v).Kind() == reflect.Map && reflect.ValueOf(v).IsNil()) {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

func normalizeMap(m map[string]any) map[string]any {
	out, _ := normalize(m).(map[string]any)
	return out
}
