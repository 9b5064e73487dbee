package domain

// InventoryStatus is the stock level classification derived from a
// product's counters.
type InventoryStatus string

const (
	InventoryInStock     InventoryStatus = "in_stock"
	InventoryLowStock    InventoryStatus = "low_stock"
	InventoryOutOfStock  InventoryStatus = "out_of_stock"
	InventoryOverstocked InventoryStatus = "overstocked"
)

// DeriveInventoryStatus classifies the available units against the
// thresholds. A maxStock <= 0 means the product has no upper threshold.
func DeriveInventoryStatus(stock, reserved, minStock, maxStock int64) InventoryStatus {
	available := stock - reserved
	switch {
	case available <= 0:
		return InventoryOutOfStock
	case available <= minStock:
		return InventoryLowStock
	case maxStock > 0 && available >= maxStock:
		return InventoryOverstocked
	default:
		return InventoryInStock
	}
}

// Derive returns the inventory status of p's current counters.
func (p Product) Derive() InventoryStatus {
	return DeriveInventoryStatus(p.Stock, p.ReservedStock, p.MinStock, p.MaxStock)
}

// SyncListing flips an active listing to out_of_stock when nothing is
// available, and back to active once stock returns. Inactive listings are
// left alone.
func (p *Product) SyncListing() {
	switch {
	case p.Inventory == InventoryOutOfStock && p.Status == ListingActive:
		p.Status = ListingOutOfStock
	case p.Inventory != InventoryOutOfStock && p.Status == ListingOutOfStock:
		p.Status = ListingActive
	}
}
