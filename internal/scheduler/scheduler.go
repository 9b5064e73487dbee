package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/fulfil/internal/domain"
	"github.com/roach88/fulfil/internal/rules"
	"github.com/roach88/fulfil/internal/store"
)

// DefaultInterval is the poll interval when none is configured.
const DefaultInterval = 5 * time.Minute

const tracerName = "github.com/roach88/fulfil/internal/scheduler"

// Store lists the entities a pass evaluates. Implemented by *store.Store.
type Store interface {
	ListOrders(ctx context.Context, filter store.OrderFilter) ([]domain.Order, error)
	ListProducts(ctx context.Context, filter store.ProductFilter) ([]domain.Product, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
}

// Evaluator evaluates one entity. Implemented by *rules.Engine.
type Evaluator interface {
	Evaluate(ctx context.Context, ent rules.Entity) rules.Report
}

// PassSummary counts what one pass did. It is best effort: entities that
// could not be listed or whose evaluation panicked are counted in Errors.
type PassSummary struct {
	PassID        string        `json:"passId"`
	StartedAt     time.Time     `json:"startedAt"`
	Duration      time.Duration `json:"duration"`
	Orders        int           `json:"orders"`
	Products      int           `json:"products"`
	Customers     int           `json:"customers"`
	Matched       int           `json:"matched"`
	Suppressed    int           `json:"suppressed"`
	Actions       int           `json:"actions"`
	FailedActions int           `json:"failedActions"`
	Errors        int           `json:"errors"`
}

// Evaluated returns the number of entities evaluated.
func (s PassSummary) Evaluated() int {
	return s.Orders + s.Products + s.Customers
}

func (s *PassSummary) add(r rules.Report) {
	s.Matched += len(r.Matched)
	s.Suppressed += len(r.Suppressed)
	s.Actions += len(r.Actions)
	s.FailedActions += r.Failed()
}

// Scheduler runs rule passes.
//
// Thread-safety: RunPeriodicPass may be called concurrently with Run, but
// overlapping passes evaluate the same entities twice. Cooldown watermarks
// keep alerts idempotent; other actions must tolerate a repeat.
type Scheduler struct {
	store    Store
	engine   Evaluator
	interval time.Duration
	ids      domain.IDGenerator
	now      func() time.Time
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the poll interval of Run. Non-positive values keep
// DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithIDGenerator sets the pass ID generator.
func WithIDGenerator(ids domain.IDGenerator) Option {
	return func(s *Scheduler) {
		s.ids = ids
	}
}

// WithClock sets the time source used for entity snapshots.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithTracerProvider sets the provider of the pass spans. Defaults to the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Scheduler) {
		s.tracer = tp.Tracer(tracerName)
	}
}

// New creates a Scheduler evaluating the entities of st with engine.
func New(st Store, engine Evaluator, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    st,
		engine:   engine,
		interval: DefaultInterval,
		ids:      domain.UUIDv7Generator{},
		now:      time.Now,
		logger:   slog.Default(),
		tracer:   otel.GetTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Interval returns the poll interval of Run.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Run executes a pass immediately and then once per interval until ctx is
// cancelled. It returns nil on cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.RunPeriodicPass(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunPeriodicPass evaluates every pending order, every active or
// out-of-stock product and every customer once.
//
// Cancelling ctx stops the pass between entities. An entity whose
// evaluation has started is always evaluated to completion.
func (s *Scheduler) RunPeriodicPass(ctx context.Context) PassSummary {
	start := s.now()
	summary := PassSummary{PassID: s.ids.Generate(), StartedAt: start.UTC()}

	ctx, span := s.tracer.Start(ctx, "scheduler.pass",
		trace.WithAttributes(attribute.String("pass.id", summary.PassID)))
	defer span.End()

	logger := s.logger.With("pass_id", summary.PassID)
	logger.Debug("pass started")

	customers, err := s.store.ListCustomers(ctx)
	if err != nil {
		logger.Error("list customers failed", "error", err)
		summary.Errors++
	}
	byID := make(map[string]*domain.Customer, len(customers))
	for i := range customers {
		byID[customers[i].ID] = &customers[i]
	}

	orders, err := s.store.ListOrders(ctx, store.OrderFilter{
		Statuses: []domain.OrderStatus{domain.OrderPending},
	})
	if err != nil {
		logger.Error("list orders failed", "error", err)
		summary.Errors++
	}
	for _, o := range orders {
		if ctx.Err() != nil {
			break
		}
		if s.evaluate(ctx, logger, &summary, rules.OrderEntity(o, byID[o.CustomerID], s.now())) {
			summary.Orders++
		}
	}

	products, err := s.store.ListProducts(ctx, store.ProductFilter{
		Statuses: []domain.ListingStatus{domain.ListingActive, domain.ListingOutOfStock},
	})
	if err != nil {
		logger.Error("list products failed", "error", err)
		summary.Errors++
	}
	for _, p := range products {
		if ctx.Err() != nil {
			break
		}
		if s.evaluate(ctx, logger, &summary, rules.ProductEntity(p, s.now())) {
			summary.Products++
		}
	}

	for _, c := range customers {
		if ctx.Err() != nil {
			break
		}
		if s.evaluate(ctx, logger, &summary, rules.CustomerEntity(c, s.now())) {
			summary.Customers++
		}
	}

	summary.Duration = s.now().Sub(start)
	span.SetAttributes(
		attribute.Int("pass.orders", summary.Orders),
		attribute.Int("pass.products", summary.Products),
		attribute.Int("pass.customers", summary.Customers),
		attribute.Int("pass.matched", summary.Matched),
		attribute.Int("pass.actions", summary.Actions),
		attribute.Int("pass.failed_actions", summary.FailedActions),
		attribute.Int("pass.errors", summary.Errors),
	)
	if summary.Errors > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d entities failed", summary.Errors))
	}

	logger.Info("pass finished",
		"evaluated", summary.Evaluated(),
		"matched", summary.Matched,
		"suppressed", summary.Suppressed,
		"actions", summary.Actions,
		"failed_actions", summary.FailedActions,
		"errors", summary.Errors,
		"duration", summary.Duration,
	)
	return summary
}

// evaluate runs the engine for one entity and reports whether it
// completed. The evaluation does not observe ctx cancellation.
func (s *Scheduler) evaluate(ctx context.Context, logger *slog.Logger, summary *PassSummary, ent rules.Entity) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("entity evaluation panicked",
				"entity_kind", ent.Kind,
				"entity_id", ent.ID,
				"panic", r,
			)
			summary.Errors++
			ok = false
		}
	}()

	report := s.engine.Evaluate(context.WithoutCancel(ctx), ent)
	summary.add(report)
	return true
}
