package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/fulfil/internal/domain"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestProduct creates a product with the given counters.
func createTestProduct(id string, stock, reserved, minStock int64) domain.Product {
	return domain.Product{
		ID:            id,
		Name:          "Product " + id,
		PartnerID:     "partner-1",
		Stock:         stock,
		ReservedStock: reserved,
		MinStock:      minStock,
		MaxStock:      100,
		Status:        domain.ListingActive,
		UpdatedAt:     testNow,
	}
}

// createTestOrder creates a pending order with one line per product.
func createTestOrder(id, customerID string, createdAt time.Time, productIDs ...string) domain.Order {
	items := make([]domain.OrderItem, 0, len(productIDs))
	for _, pid := range productIDs {
		items = append(items, domain.OrderItem{
			ProductID: pid,
			Quantity:  2,
			Price:     decimal.RequireFromString("12.50"),
		})
	}
	return domain.Order{
		ID:            id,
		CustomerID:    customerID,
		Status:        domain.OrderPending,
		PaymentStatus: domain.PaymentPending,
		Items:         items,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}
