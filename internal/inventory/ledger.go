package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/roach88/fulfil/internal/domain"
	"github.com/roach88/fulfil/internal/notify"
)

// Operation names used in logs and metric attributes.
const (
	OpReserve           = "reserve"
	OpConfirm           = "confirm"
	OpCancelReservation = "cancel_reservation"
	OpReturn            = "return"
	OpAdjust            = "adjust"
	OpSetListingStatus  = "set_listing_status"
)

// Store is the persistence the ledger needs. UpdateProduct must run fn
// under the store's row-level concurrency control and write nothing when
// fn fails.
type Store interface {
	UpdateProduct(ctx context.Context, id string, fn func(p *domain.Product) error) (domain.Product, error)
}

// Result is the outcome of a successful ledger operation.
type Result struct {
	Product   domain.Product
	Available int64
	Status    domain.InventoryStatus
	Previous  domain.InventoryStatus
}

// Ledger applies stock mutations to products.
type Ledger struct {
	store  Store
	sender *notify.Sender
	now    func() time.Time
	logger *slog.Logger

	operations metric.Int64Counter
	rejections metric.Int64Counter
}

// Option configures a Ledger.
type Option func(*ledgerConfig)

type ledgerConfig struct {
	now           func() time.Time
	logger        *slog.Logger
	meterProvider metric.MeterProvider
}

// WithClock sets the time source used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(c *ledgerConfig) {
		c.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *ledgerConfig) {
		c.logger = logger
	}
}

// WithMeterProvider sets the provider of the ledger's counters.
// Defaults to the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *ledgerConfig) {
		c.meterProvider = mp
	}
}

// New creates a Ledger. sender may be nil, in which case no
// notifications are sent.
func New(store Store, sender *notify.Sender, opts ...Option) (*Ledger, error) {
	cfg := ledgerConfig{
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.meterProvider == nil {
		cfg.meterProvider = otel.GetMeterProvider()
	}

	meter := cfg.meterProvider.Meter("github.com/roach88/fulfil/internal/inventory")
	operations, err := meter.Int64Counter("fulfil.inventory.operations",
		metric.WithDescription("Inventory ledger operations by outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create operations counter: %w", err)
	}
	rejections, err := meter.Int64Counter("fulfil.inventory.rejections",
		metric.WithDescription("Inventory operations refused by a business rule"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create rejections counter: %w", err)
	}

	return &Ledger{
		store:      store,
		sender:     sender,
		now:        cfg.now,
		logger:     cfg.logger,
		operations: operations,
		rejections: rejections,
	}, nil
}

// Reserve holds qty units of productID for a pending order.
//
// Fails with INSUFFICIENT_STOCK when fewer than qty units are available.
func (l *Ledger) Reserve(ctx context.Context, productID string, qty int64) (Result, error) {
	if qty <= 0 {
		return l.reject(ctx, OpReserve, domain.NewInvalidQuantityError(productID, qty))
	}
	return l.apply(ctx, OpReserve, productID, func(p *domain.Product) error {
		if available := p.Available(); available < qty {
			return domain.NewInsufficientStockError(productID, qty, available)
		}
		p.ReservedStock += qty
		return nil
	})
}

// Confirm spends a reservation: qty units leave both Stock and
// ReservedStock. Both counters are clamped so the invariant holds even if
// the reservation was already partly released.
func (l *Ledger) Confirm(ctx context.Context, productID string, qty int64) (Result, error) {
	if qty <= 0 {
		return l.reject(ctx, OpConfirm, domain.NewInvalidQuantityError(productID, qty))
	}
	return l.apply(ctx, OpConfirm, productID, func(p *domain.Product) error {
		stock, reserved := p.Stock-qty, p.ReservedStock-qty
		if stock < 0 || reserved < 0 {
			l.logger.Warn("confirm exceeds reservation, clamping",
				"product_id", productID,
				"quantity", qty,
				"stock", p.Stock,
				"reserved", p.ReservedStock,
			)
		}
		p.Stock = max(stock, 0)
		p.ReservedStock = min(max(reserved, 0), p.Stock)
		return nil
	})
}

// CancelReservation releases qty reserved units without touching Stock.
func (l *Ledger) CancelReservation(ctx context.Context, productID string, qty int64) (Result, error) {
	if qty <= 0 {
		return l.reject(ctx, OpCancelReservation, domain.NewInvalidQuantityError(productID, qty))
	}
	return l.apply(ctx, OpCancelReservation, productID, func(p *domain.Product) error {
		p.ReservedStock = max(p.ReservedStock-qty, 0)
		return nil
	})
}

// Return puts qty units back into Stock.
func (l *Ledger) Return(ctx context.Context, productID string, qty int64) (Result, error) {
	if qty <= 0 {
		return l.reject(ctx, OpReturn, domain.NewInvalidQuantityError(productID, qty))
	}
	return l.apply(ctx, OpReturn, productID, func(p *domain.Product) error {
		p.Stock += qty
		return nil
	})
}

// Adjust changes Stock by the signed delta and notifies the owning partner.
//
// Fails with INVALID_ADJUSTMENT when the new stock would be negative or
// below the units currently reserved.
func (l *Ledger) Adjust(ctx context.Context, productID string, delta int64, reason string) (Result, error) {
	res, err := l.apply(ctx, OpAdjust, productID, func(p *domain.Product) error {
		next := p.Stock + delta
		switch {
		case next < 0:
			return domain.NewInvalidAdjustmentError(productID, delta,
				fmt.Sprintf("stock would drop to %d", next))
		case next < p.ReservedStock:
			return domain.NewInvalidAdjustmentError(productID, delta,
				fmt.Sprintf("stock %d would fall below %d reserved units", next, p.ReservedStock))
		}
		p.Stock = next
		return nil
	})
	if err != nil {
		return res, err
	}

	l.logger.Info("inventory adjusted",
		"product_id", productID,
		"delta", delta,
		"reason", reason,
		"stock", res.Product.Stock,
	)
	_ = l.sender.Send(ctx, partnerNotification(res.Product, notify.KindInventoryAdjustment, map[string]any{
		"productId": productID,
		"delta":     delta,
		"reason":    reason,
		"stock":     res.Product.Stock,
	}))
	return res, nil
}

// SetListingStatus changes the listing status of a product.
func (l *Ledger) SetListingStatus(ctx context.Context, productID string, status domain.ListingStatus) (Result, error) {
	if !status.Valid() {
		return l.reject(ctx, OpSetListingStatus, &domain.Error{
			Code:    domain.ErrCodeInvalidAdjustment,
			Message: fmt.Sprintf("unknown listing status %q for product %s", status, productID),
			Details: map[string]string{"product_id": productID, "status": string(status)},
		})
	}
	return l.apply(ctx, OpSetListingStatus, productID, func(p *domain.Product) error {
		p.Status = status
		return nil
	})
}

// apply runs mutate inside one atomic update, re-derives the inventory
// status and sends threshold notifications once the update committed.
func (l *Ledger) apply(ctx context.Context, op, productID string, mutate func(p *domain.Product) error) (Result, error) {
	var previous domain.InventoryStatus
	p, err := l.store.UpdateProduct(ctx, productID, func(p *domain.Product) error {
		previous = p.Inventory
		if err := mutate(p); err != nil {
			return err
		}
		p.Inventory = p.Derive()
		p.SyncListing()
		p.UpdatedAt = l.now().UTC()
		return nil
	})
	if err != nil {
		l.count(ctx, op, err)
		l.logger.Debug("inventory operation failed", "op", op, "product_id", productID, "error", err)
		return Result{}, err
	}
	l.count(ctx, op, nil)

	res := Result{
		Product:   p,
		Available: p.Available(),
		Status:    p.Inventory,
		Previous:  previous,
	}
	l.notifyCrossing(ctx, res)
	return res, nil
}

func (l *Ledger) notifyCrossing(ctx context.Context, res Result) {
	if res.Status == res.Previous {
		return
	}
	var kind string
	switch res.Status {
	case domain.InventoryLowStock:
		kind = notify.KindLowStock
	case domain.InventoryOutOfStock:
		kind = notify.KindOutOfStock
	default:
		return
	}

	l.logger.Info("inventory threshold crossed",
		"product_id", res.Product.ID,
		"from", res.Previous,
		"to", res.Status,
		"available", res.Available,
	)
	_ = l.sender.Send(ctx, partnerNotification(res.Product, kind, map[string]any{
		"productId":   res.Product.ID,
		"productName": res.Product.Name,
		"available":   res.Available,
		"stock":       res.Product.Stock,
		"minStock":    res.Product.MinStock,
	}))
}

// partnerNotification addresses the owning partner, or the admins when the
// product has none.
func partnerNotification(p domain.Product, kind string, payload map[string]any) notify.Notification {
	n := notify.Notification{
		Channel:   notify.ChannelPartner,
		Kind:      kind,
		Recipient: p.PartnerID,
		Payload:   payload,
	}
	if p.PartnerID == "" {
		n.Channel = notify.ChannelAdmin
	}
	return n
}

func (l *Ledger) reject(ctx context.Context, op string, err error) (Result, error) {
	l.count(ctx, op, err)
	return Result{}, err
}

func (l *Ledger) count(ctx context.Context, op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if code := domain.CodeOf(err); code != "" && code != domain.ErrCodeNotFound {
			outcome = "rejected"
			l.rejections.Add(ctx, 1, metric.WithAttributes(
				attribute.String("op", op),
				attribute.String("code", string(code)),
			))
		}
	}
	l.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}
