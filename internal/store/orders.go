package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/fulfil/internal/domain"
)

const orderColumns = `id, customer_id, status, payment_status, items, created_at, updated_at`

// OrderFilter selects orders for ListOrders.
type OrderFilter struct {
	Statuses   []domain.OrderStatus
	CustomerID string
}

// CreateOrder inserts a new order. The total is stored alongside the items
// so that aggregates do not need to decode every order.
func (s *Store) CreateOrder(ctx context.Context, o domain.Order) error {
	itemsJSON, err := marshalItems(o.Items)
	if err != nil {
		return fmt.Errorf("create order %s: %w", o.ID, err)
	}

	_, err = s.db.ExecContext(ctx, s.q(`
		INSERT INTO orders
		(id, customer_id, status, payment_status, items, total, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`),
		o.ID,
		o.CustomerID,
		string(o.Status),
		string(o.PaymentStatus),
		itemsJSON,
		o.Total().String(),
		o.CreatedAt.UTC(),
		o.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("create order %s: %w", o.ID, err)
	}
	return nil
}

// GetOrder retrieves an order by ID.
// Returns a NOT_FOUND domain error if it does not exist.
func (s *Store) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+orderColumns+` FROM orders WHERE id = ?`), id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.NewNotFoundError("order", id)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order %s: %w", id, err)
	}
	return o, nil
}

// UpdateOrder applies fn to the order read inside a transaction and writes
// status, payment status and updated_at back before committing. Items are
// immutable once the order exists.
func (s *Store) UpdateOrder(ctx context.Context, id string, fn func(o *domain.Order) error) (domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order %s: begin tx: %w", id, err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, s.q(`SELECT `+orderColumns+` FROM orders WHERE id = ?`+s.dialect.LockClause), id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.NewNotFoundError("order", id)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order %s: select: %w", id, err)
	}

	if err := fn(&o); err != nil {
		return domain.Order{}, err
	}
	o.ID = id

	_, err = tx.ExecContext(ctx, s.q(`
		UPDATE orders
		SET status = ?, payment_status = ?, updated_at = ?
		WHERE id = ?
	`),
		string(o.Status),
		string(o.PaymentStatus),
		o.UpdatedAt.UTC(),
		id,
	)
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order %s: write: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("update order %s: commit: %w", id, err)
	}

	return o, nil
}

// ListOrders returns matching orders ordered by created_at, then ID.
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) ListOrders(ctx context.Context, filter OrderFilter) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE 1 = 1`
	var args []any
	if len(filter.Statuses) > 0 {
		query += ` AND status IN ` + inClause(len(filter.Statuses))
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}
	if filter.CustomerID != "" {
		query += ` AND customer_id = ?`
		args = append(args, filter.CustomerID)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	return orders, nil
}

func scanOrder(row scanner) (domain.Order, error) {
	var o domain.Order
	var status, payment, itemsJSON string
	if err := row.Scan(&o.ID, &o.CustomerID, &status, &payment, &itemsJSON, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return domain.Order{}, err
	}
	items, err := unmarshalItems(itemsJSON)
	if err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)
	o.PaymentStatus = domain.PaymentStatus(payment)
	o.Items = items
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}
