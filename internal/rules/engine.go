package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/roach88/fulfil/internal/domain"
	"github.com/roach88/fulfil/internal/notify"
	"github.com/roach88/fulfil/internal/store"
)

type compiledAction struct {
	typ    domain.ActionType
	params map[string]any
}

type compiledRule struct {
	rule       domain.Rule
	kind       Kind
	conditions []condition
	actions    []compiledAction
	guard      cel.Program
}

// Report describes one evaluation of an entity.
//
// Matched lists the rules whose conditions held, in execution order.
// Suppressed lists matching rules skipped because their cooldown had not
// elapsed. Actions lists every executed action in execution order.
type Report struct {
	EntityKind Kind            `json:"entityKind"`
	EntityID   string          `json:"entityId"`
	Matched    []string        `json:"matched"`
	Suppressed []string        `json:"suppressed,omitempty"`
	Actions    []ActionOutcome `json:"actions"`
}

// Failed returns the number of actions that failed.
func (r Report) Failed() int {
	n := 0
	for _, a := range r.Actions {
		if a.Status == OutcomeFailed {
			n++
		}
	}
	return n
}

// Engine evaluates an immutable rule set.
//
// Thread-safety: Evaluate may be called from multiple goroutines; the
// compiled rules are never mutated after New returns.
type Engine struct {
	rules []compiledRule

	orders     OrderTransitioner
	inventory  InventoryActions
	sender     *notify.Sender
	emails     EmailSender
	tasks      TaskCreator
	watermarks Watermarks
	runs       RunRecorder
	ids        domain.IDGenerator
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithOrderTransitioner sets the target of update_status on orders.
func WithOrderTransitioner(t OrderTransitioner) Option {
	return func(e *Engine) {
		e.orders = t
	}
}

// WithInventory sets the target of update_inventory and of update_status
// on products.
func WithInventory(inv InventoryActions) Option {
	return func(e *Engine) {
		e.inventory = inv
	}
}

// WithSender sets the notification sender used by send_notification and,
// unless overridden, by send_email and create_task.
func WithSender(s *notify.Sender) Option {
	return func(e *Engine) {
		e.sender = s
	}
}

// WithEmailSender sets the collaborator for send_email.
func WithEmailSender(s EmailSender) Option {
	return func(e *Engine) {
		e.emails = s
	}
}

// WithTaskCreator sets the collaborator for create_task.
func WithTaskCreator(c TaskCreator) Option {
	return func(e *Engine) {
		e.tasks = c
	}
}

// WithWatermarks enables rule cooldowns.
func WithWatermarks(w Watermarks) Option {
	return func(e *Engine) {
		e.watermarks = w
	}
}

// WithRunRecorder enables the rule run audit trail.
func WithRunRecorder(r RunRecorder) Option {
	return func(e *Engine) {
		e.runs = r
	}
}

// WithIDGenerator sets the generator for audit record IDs.
func WithIDGenerator(ids domain.IDGenerator) Option {
	return func(e *Engine) {
		e.ids = ids
	}
}

// WithClock sets the time source for cooldowns and audit records.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New compiles rs into an Engine. Every problem found in the rule set is
// reported; the returned error joins them.
//
// The rule set is copied and sorted by descending priority, keeping
// declaration order for equal priorities.
func New(rs domain.RuleSet, opts ...Option) (*Engine, error) {
	e := &Engine{
		ids:    domain.UUIDv7Generator{},
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.emails == nil {
		e.emails = notifyEmails{sender: e.sender}
	}
	if e.tasks == nil {
		e.tasks = notifyTasks{sender: e.sender}
	}

	env, err := newGuardEnv()
	if err != nil {
		return nil, err
	}

	var errs []error
	seen := make(map[string]bool, len(rs.Rules))
	compiled := make([]compiledRule, 0, len(rs.Rules))
	for _, r := range rs.Rules {
		if r.ID != "" && seen[r.ID] {
			errs = append(errs, domain.NewInvalidRuleError(r.ID, "duplicate rule id"))
			continue
		}
		seen[r.ID] = true

		cr, ruleErrs := compileRule(env, r)
		if len(ruleErrs) > 0 {
			errs = append(errs, ruleErrs...)
			continue
		}
		compiled = append(compiled, cr)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].rule.Priority > compiled[j].rule.Priority
	})
	e.rules = compiled
	return e, nil
}

func compileRule(env *cel.Env, r domain.Rule) (compiledRule, []error) {
	var errs []error
	if r.ID == "" {
		return compiledRule{}, []error{domain.NewInvalidRuleError("(unnamed)", "rule id is required")}
	}
	kind, ok := KindOf(r.Type)
	if !ok {
		return compiledRule{}, []error{domain.NewInvalidRuleError(r.ID, fmt.Sprintf("unknown rule type %q", r.Type))}
	}
	if r.Priority < 1 || r.Priority > 10 {
		errs = append(errs, domain.NewInvalidRuleError(r.ID, fmt.Sprintf("priority %d outside 1..10", r.Priority)))
	}
	if len(r.Actions) == 0 {
		errs = append(errs, domain.NewInvalidRuleError(r.ID, "at least one action is required"))
	}
	if r.Cooldown < 0 {
		errs = append(errs, domain.NewInvalidRuleError(r.ID, "cooldown must not be negative"))
	}

	cr := compiledRule{rule: cloneRule(r), kind: kind}
	for _, c := range r.Conditions {
		cond, err := compileCondition(r.ID, kind, c)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		cr.conditions = append(cr.conditions, cond)
	}
	for _, a := range r.Actions {
		params, err := validateAction(r.ID, kind, a)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		cr.actions = append(cr.actions, compiledAction{typ: a.Type, params: params})
	}
	if r.When != "" {
		prg, err := compileGuard(env, r.When)
		if err != nil {
			errs = append(errs, domain.NewInvalidRuleError(r.ID, err.Error()))
		}
		cr.guard = prg
	}
	return cr, errs
}

// cloneRule copies the slices of r so later changes by the caller do not
// reach the engine.
func cloneRule(r domain.Rule) domain.Rule {
	r.Conditions = append([]domain.Condition(nil), r.Conditions...)
	actions := make([]domain.Action, len(r.Actions))
	for i, a := range r.Actions {
		params := make(map[string]any, len(a.Parameters))
		for k, v := range a.Parameters {
			params[k] = v
		}
		actions[i] = domain.Action{Type: a.Type, Parameters: params}
	}
	r.Actions = actions
	return r
}

// Rules returns the compiled rules in evaluation order.
func (e *Engine) Rules() []domain.Rule {
	out := make([]domain.Rule, len(e.rules))
	for i, cr := range e.rules {
		out[i] = cloneRule(cr.rule)
	}
	return out
}

// Evaluate runs every enabled rule of ent's bucket, in priority order,
// whose conditions and guard hold. It never fails: action errors are
// logged and recorded in the report.
func (e *Engine) Evaluate(ctx context.Context, ent Entity) Report {
	report := Report{
		EntityKind: ent.Kind,
		EntityID:   ent.ID,
		Matched:    []string{},
		Actions:    []ActionOutcome{},
	}

	for i := range e.rules {
		cr := &e.rules[i]
		if !cr.rule.Enabled || cr.kind != ent.Kind {
			continue
		}
		if !cr.matches(ent) {
			continue
		}
		if !e.guardHolds(cr, ent) {
			continue
		}
		if !e.claimCooldown(ctx, cr, ent) {
			report.Suppressed = append(report.Suppressed, cr.rule.ID)
			e.recordRun(ctx, cr.rule.ID, ent, store.RunSkipped, "cooldown")
			continue
		}

		report.Matched = append(report.Matched, cr.rule.ID)
		outcomes := e.executeActions(ctx, cr, ent)
		report.Actions = append(report.Actions, outcomes...)

		status, message := store.RunSucceeded, ""
		for _, o := range outcomes {
			if o.Status == OutcomeFailed {
				status, message = store.RunFailed, o.Error
				break
			}
		}
		e.recordRun(ctx, cr.rule.ID, ent, status, message)
	}

	e.logger.Debug("entity evaluated",
		"entity_kind", ent.Kind,
		"entity_id", ent.ID,
		"matched", len(report.Matched),
		"failed_actions", report.Failed(),
	)
	return report
}

// EvaluateConditions reports whether every condition of rule holds for
// ent. Conditions are evaluated in order and evaluation stops at the first
// one that does not hold.
func EvaluateConditions(rule domain.Rule, ent Entity) (bool, error) {
	for _, c := range rule.Conditions {
		cond, err := compileCondition(rule.ID, ent.Kind, c)
		if err != nil {
			return false, err
		}
		if !cond.holds(ent) {
			return false, nil
		}
	}
	return true, nil
}

// ExecuteActions runs the actions of the rule with the given ID against
// ent in declared order, regardless of its conditions.
func (e *Engine) ExecuteActions(ctx context.Context, ruleID string, ent Entity) ([]ActionOutcome, error) {
	for i := range e.rules {
		if e.rules[i].rule.ID == ruleID {
			return e.executeActions(ctx, &e.rules[i], ent), nil
		}
	}
	return nil, domain.NewNotFoundError("rule", ruleID)
}

func (cr *compiledRule) matches(ent Entity) bool {
	for _, c := range cr.conditions {
		if !c.holds(ent) {
			return false
		}
	}
	return true
}

func (e *Engine) executeActions(ctx context.Context, cr *compiledRule, ent Entity) []ActionOutcome {
	outcomes := make([]ActionOutcome, 0, len(cr.actions))
	for _, a := range cr.actions {
		outcome := ActionOutcome{RuleID: cr.rule.ID, Action: a.typ, Status: OutcomeSucceeded}
		if err := e.execute(ctx, cr.rule.ID, a, ent); err != nil {
			outcome.Status = OutcomeFailed
			outcome.Error = err.Error()
			e.logger.Warn("rule action failed",
				"rule_id", cr.rule.ID,
				"action", a.typ,
				"entity_kind", ent.Kind,
				"entity_id", ent.ID,
				"error", err,
			)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// claimCooldown reports whether the rule may fire for ent now. Rules
// without a cooldown always may. A watermark backend error suppresses the
// rule for this evaluation.
func (e *Engine) claimCooldown(ctx context.Context, cr *compiledRule, ent Entity) bool {
	cooldown := cr.rule.Cooldown.Std()
	if cooldown <= 0 || e.watermarks == nil {
		return true
	}
	key := WatermarkKey(cr.rule.ID, ent.Kind, ent.ID)
	ok, err := e.watermarks.ClaimWatermark(ctx, key, e.now(), cooldown)
	if err != nil {
		e.logger.Warn("watermark claim failed", "key", key, "error", err)
		return false
	}
	return ok
}

// WatermarkKey is the alert watermark key of a rule firing for an entity.
func WatermarkKey(ruleID string, kind Kind, entityID string) string {
	return fmt.Sprintf("rule:%s:%s:%s", ruleID, kind, entityID)
}

func (e *Engine) recordRun(ctx context.Context, ruleID string, ent Entity, status, message string) {
	if e.runs == nil {
		return
	}
	run := store.RuleRun{
		ID:         e.ids.Generate(),
		RuleID:     ruleID,
		EntityKind: string(ent.Kind),
		EntityID:   ent.ID,
		Status:     status,
		Message:    message,
		CreatedAt:  e.now().UTC(),
	}
	if err := e.runs.RecordRuleRun(ctx, run); err != nil {
		e.logger.Warn("record rule run failed", "rule_id", ruleID, "error", err)
	}
}
