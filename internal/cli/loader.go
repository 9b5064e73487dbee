package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/fulfil/internal/config"
	"github.com/roach88/fulfil/internal/domain"
	"github.com/roach88/fulfil/internal/fulfillment"
	"github.com/roach88/fulfil/internal/inventory"
	"github.com/roach88/fulfil/internal/notify"
	"github.com/roach88/fulfil/internal/orders"
	"github.com/roach88/fulfil/internal/rules"
	"github.com/roach88/fulfil/internal/scheduler"
	"github.com/roach88/fulfil/internal/store"
)

// Error codes for failures that are not business rejections. Business
// rejections are reported with their domain code.
const (
	ErrCodeGeneric        = "E001" // Generic/unknown error
	ErrCodeConfig         = "E002" // Configuration unreadable or invalid
	ErrCodeStore          = "E003" // Store could not be opened
	ErrCodeRules          = "E004" // Rule set could not be loaded or compiled
	ErrCodeTransport      = "E005" // Notification or watermark backend unavailable
	ErrCodeInvalidArg     = "E006" // Malformed command argument
	ErrCodePaymentSettled = "E007" // Payment no longer pending
)

// LoadError is a coded failure while assembling the service.
type LoadError struct {
	Code    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// invalidArg reports a malformed argument.
func invalidArg(format string, args ...any) *LoadError {
	return &LoadError{Code: ErrCodeInvalidArg, Message: fmt.Sprintf(format, args...)}
}

// commandContext returns the command's context, or Background when the
// command runs without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// newLogger returns the text logger commands use. Verbose switches to
// Debug.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads the configuration file and applies flag overrides.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Config{}, &LoadError{Code: ErrCodeConfig, Message: "load configuration", Err: err}
	}
	if opts.Database != "" {
		cfg.Store.DSN = opts.Database
	}
	if opts.Rules != "" {
		cfg.Rules.Path = opts.Rules
	}
	return cfg, nil
}

// loadRuleSet reads the configured rule set file, or returns the default
// rules with the pending-order alert moved to pendingAlertAfter.
func loadRuleSet(path string, pendingAlertAfter time.Duration) (domain.RuleSet, error) {
	if path != "" {
		rs, err := rules.LoadFile(path)
		if err != nil {
			return domain.RuleSet{}, &LoadError{Code: ErrCodeRules, Message: "load rule set", Err: err}
		}
		return rs, nil
	}
	rs := rules.DefaultRuleSet()
	if pendingAlertAfter > 0 {
		setPendingAlertAfter(&rs, pendingAlertAfter)
	}
	return rs, nil
}

// stalePendingRuleID names the default rule that alerts on old pending
// orders.
const stalePendingRuleID = "stale-pending-order"

func setPendingAlertAfter(rs *domain.RuleSet, after time.Duration) {
	hours := after.Hours()
	for i := range rs.Rules {
		r := &rs.Rules[i]
		if r.ID != stalePendingRuleID {
			continue
		}
		for j := range r.Conditions {
			if r.Conditions[j].Field == "hoursSinceCreated" {
				r.Conditions[j].Value = hours
			}
		}
		for _, a := range r.Actions {
			if a.Type == domain.ActionSendNotification {
				a.Parameters["message"] = fmt.Sprintf("Order has been pending for more than %g hours", hours)
			}
		}
	}
}

// app is the assembled service. Every command that touches data opens one
// and closes it when done.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *store.Store
	ledger    *inventory.Ledger
	machine   *orders.Machine
	engine    *rules.Engine
	service   *fulfillment.Service
	scheduler *scheduler.Scheduler

	closers []func() error
}

// openApp opens the store and backends named by cfg and wires the ledger,
// the order machine, the rule engine, the request service and the
// scheduler over them.
func openApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	rs, err := loadRuleSet(cfg.Rules.Path, cfg.Scheduler.PendingAlertAfter)
	if err != nil {
		return nil, err
	}

	logger.Debug("opening store", "driver", cfg.Store.Driver, "dsn", cfg.Store.DSN)
	st, err := store.OpenDriver(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeStore, Message: "open store", Err: err}
	}
	a := &app{cfg: cfg, logger: logger, store: st}
	a.closers = append(a.closers, st.Close)

	dispatcher, err := a.dispatcher()
	if err != nil {
		a.Close()
		return nil, err
	}
	sender := notify.NewSender(
		notify.NewGuarded(dispatcher,
			notify.WithTimeout(cfg.Notify.Timeout),
			notify.WithRateLimit(cfg.Notify.RatePerSecond, cfg.Notify.Burst),
		),
		notify.WithLogger(logger),
	)

	a.ledger, err = inventory.New(st, sender, inventory.WithLogger(logger))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create ledger: %w", err)
	}
	a.machine = orders.NewMachine(st, a.ledger, sender, orders.WithLogger(logger))

	watermarks, err := a.watermarks(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.engine, err = rules.New(rs,
		rules.WithOrderTransitioner(a.machine),
		rules.WithInventory(a.ledger),
		rules.WithSender(sender),
		rules.WithWatermarks(watermarks),
		rules.WithRunRecorder(st),
		rules.WithLogger(logger),
	)
	if err != nil {
		a.Close()
		return nil, &LoadError{Code: ErrCodeRules, Message: "compile rule set", Err: err}
	}

	a.service = fulfillment.New(st, a.ledger, a.machine,
		fulfillment.WithEvaluator(a.engine),
		fulfillment.WithSender(sender),
		fulfillment.WithLogger(logger),
	)
	a.scheduler = scheduler.New(st, a.engine,
		scheduler.WithInterval(cfg.Scheduler.Interval),
		scheduler.WithLogger(logger),
	)
	return a, nil
}

func (a *app) dispatcher() (notify.Dispatcher, error) {
	switch a.cfg.Notify.Transport {
	case config.TransportKafka:
		d := notify.NewKafkaDispatcher(a.cfg.Notify.Kafka.Brokers, a.cfg.Notify.Kafka.Topic)
		a.closers = append(a.closers, d.Close)
		return d, nil
	case config.TransportLog, "":
		return notify.NewLogDispatcher(a.logger), nil
	default:
		return nil, &LoadError{
			Code:    ErrCodeTransport,
			Message: fmt.Sprintf("unknown notification transport %q", a.cfg.Notify.Transport),
		}
	}
}

func (a *app) watermarks(ctx context.Context) (rules.Watermarks, error) {
	switch a.cfg.Watermarks.Backend {
	case config.BackendRedis:
		r := a.cfg.Watermarks.Redis
		w, client, err := scheduler.DialRedisWatermarks(ctx, r.Addr, r.Password, r.DB)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeTransport, Message: "connect watermark backend", Err: err}
		}
		a.closers = append(a.closers, client.Close)
		return w, nil
	case config.BackendStore, "":
		return a.store, nil
	default:
		return nil, &LoadError{
			Code:    ErrCodeTransport,
			Message: fmt.Sprintf("unknown watermark backend %q", a.cfg.Watermarks.Backend),
		}
	}
}

// settle evaluates the events queued by the command.
func (a *app) settle(ctx context.Context) {
	if n := a.service.Drain(ctx); n > 0 {
		a.logger.Debug("queued events evaluated", "events", n)
	}
}

// Close releases the backends in reverse opening order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// withApp loads the configuration, opens the app, runs fn and closes the
// app. Failures to assemble the app are reported through f.
func withApp(ctx context.Context, opts *RootOptions, f *OutputFormatter, logger *slog.Logger, fn func(a *app) error) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return f.Fail("load configuration", err)
	}
	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return f.Fail("start", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Error("error closing backends", "error", closeErr)
		}
	}()
	return fn(a)
}
