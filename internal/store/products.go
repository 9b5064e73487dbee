package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/fulfil/internal/domain"
)

const productColumns = `id, name, partner_id, stock, reserved_stock, min_stock, max_stock, status, inventory_status, updated_at`

// ProductFilter selects products for ListProducts.
// An empty Statuses slice matches every product.
type ProductFilter struct {
	Statuses  []domain.ListingStatus
	PartnerID string
}

// CreateProduct inserts a new product. The derived inventory status is
// computed from the counters when it is empty, and an active listing with
// nothing available is stored as out_of_stock.
func (s *Store) CreateProduct(ctx context.Context, p domain.Product) error {
	if p.Status == "" {
		p.Status = domain.ListingActive
	}
	if p.Inventory == "" {
		p.Inventory = p.Derive()
	}
	p.SyncListing()

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO products
		(`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		p.ID,
		p.Name,
		p.PartnerID,
		p.Stock,
		p.ReservedStock,
		p.MinStock,
		p.MaxStock,
		string(p.Status),
		string(p.Inventory),
		p.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("create product %s: %w", p.ID, err)
	}
	return nil
}

// GetProduct retrieves a product by ID.
// Returns a NOT_FOUND domain error if it does not exist.
func (s *Store) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+productColumns+` FROM products WHERE id = ?`), id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.NewNotFoundError("product", id)
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("get product %s: %w", id, err)
	}
	return p, nil
}

// UpdateProduct applies fn to the product read inside a transaction and
// writes the result back before committing. If fn returns an error nothing
// is written and that error is returned unchanged.
//
// The ID of the product cannot be changed by fn.
func (s *Store) UpdateProduct(ctx context.Context, id string, fn func(p *domain.Product) error) (domain.Product, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Product{}, fmt.Errorf("update product %s: begin tx: %w", id, err)
	}
	defer tx.Rollback() // No-op if committed

	row := tx.QueryRowContext(ctx, s.q(`SELECT `+productColumns+` FROM products WHERE id = ?`+s.dialect.LockClause), id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.NewNotFoundError("product", id)
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("update product %s: select: %w", id, err)
	}

	if err := fn(&p); err != nil {
		return domain.Product{}, err
	}
	p.ID = id

	_, err = tx.ExecContext(ctx, s.q(`
		UPDATE products
		SET name = ?, partner_id = ?, stock = ?, reserved_stock = ?, min_stock = ?, max_stock = ?,
		    status = ?, inventory_status = ?, updated_at = ?
		WHERE id = ?
	`),
		p.Name,
		p.PartnerID,
		p.Stock,
		p.ReservedStock,
		p.MinStock,
		p.MaxStock,
		string(p.Status),
		string(p.Inventory),
		p.UpdatedAt.UTC(),
		id,
	)
	if err != nil {
		return domain.Product{}, fmt.Errorf("update product %s: write: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Product{}, fmt.Errorf("update product %s: commit: %w", id, err)
	}

	return p, nil
}

// ListProducts returns the products matching filter ordered by ID.
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) ListProducts(ctx context.Context, filter ProductFilter) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE 1 = 1`
	var args []any
	if len(filter.Statuses) > 0 {
		query += ` AND status IN ` + inClause(len(filter.Statuses))
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}
	if filter.PartnerID != "" {
		query += ` AND partner_id = ?`
		args = append(args, filter.PartnerID)
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	return products, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (domain.Product, error) {
	var p domain.Product
	var status, inventory string
	if err := row.Scan(
		&p.ID, &p.Name, &p.PartnerID, &p.Stock, &p.ReservedStock,
		&p.MinStock, &p.MaxStock, &status, &inventory, &p.UpdatedAt,
	); err != nil {
		return domain.Product{}, err
	}
	p.Status = domain.ListingStatus(status)
	p.Inventory = domain.InventoryStatus(inventory)
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}
