package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/fulfil/internal/domain"
)

// CreateCustomer inserts a new customer.
func (s *Store) CreateCustomer(ctx context.Context, c domain.Customer) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO customers (id, name, email, created_at)
		VALUES (?, ?, ?, ?)
	`), c.ID, c.Name, c.Email, c.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("create customer %s: %w", c.ID, err)
	}
	return nil
}

// GetCustomer retrieves a customer with its order statistics.
// Cancelled orders do not count towards the statistics.
func (s *Store) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, name, email, created_at FROM customers WHERE id = ?
	`), id).Scan(&c.ID, &c.Name, &c.Email, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Customer{}, domain.NewNotFoundError("customer", id)
	}
	if err != nil {
		return domain.Customer{}, fmt.Errorf("get customer %s: %w", id, err)
	}
	c.CreatedAt = c.CreatedAt.UTC()

	stats, err := s.customerStats(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	stats[id].apply(&c)
	return c, nil
}

// ListCustomers returns every customer with statistics, ordered by ID.
func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, email, created_at FROM customers ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query customers: %w", err)
	}
	defer rows.Close()

	customers := []domain.Customer{}
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		c.CreatedAt = c.CreatedAt.UTC()
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customers: %w", err)
	}

	stats, err := s.customerStats(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range customers {
		stats[customers[i].ID].apply(&customers[i])
	}
	return customers, nil
}

type customerStat struct {
	orders int64
	spent  decimal.Decimal
	last   *time.Time
}

func (st *customerStat) apply(c *domain.Customer) {
	if st == nil {
		c.TotalSpent = decimal.Zero
		return
	}
	c.TotalOrders = st.orders
	c.TotalSpent = st.spent
	c.LastOrderAt = st.last
}

// customerStats aggregates non-cancelled orders per customer. Totals are
// summed in Go so that decimal precision is kept on every driver.
func (s *Store) customerStats(ctx context.Context, customerID string) (map[string]*customerStat, error) {
	query := `SELECT customer_id, total, created_at FROM orders WHERE status <> ?`
	args := []any{string(domain.OrderCancelled)}
	if customerID != "" {
		query += ` AND customer_id = ?`
		args = append(args, customerID)
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query customer stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]*customerStat)
	for rows.Next() {
		var id, totalText string
		var createdAt time.Time
		if err := rows.Scan(&id, &totalText, &createdAt); err != nil {
			return nil, fmt.Errorf("scan customer stats: %w", err)
		}
		total, err := parseTotal(totalText)
		if err != nil {
			return nil, err
		}

		st, ok := stats[id]
		if !ok {
			st = &customerStat{spent: decimal.Zero}
			stats[id] = st
		}
		st.orders++
		st.spent = st.spent.Add(total)
		createdAt = createdAt.UTC()
		if st.last == nil || createdAt.After(*st.last) {
			st.last = &createdAt
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customer stats: %w", err)
	}
	return stats, nil
}
