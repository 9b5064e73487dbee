package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/roach88/fulfil/internal/domain"
)

// marshalItems converts order lines to JSON TEXT for storage.
// HTML escaping is disabled so product IDs are stored verbatim.
func marshalItems(items []domain.OrderItem) (string, error) {
	if items == nil {
		items = []domain.OrderItem{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(items); err != nil {
		return "", fmt.Errorf("marshal items: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalItems parses JSON TEXT to order lines.
// Prices decode through decimal.Decimal, so no float rounding happens.
func unmarshalItems(data string) ([]domain.OrderItem, error) {
	if data == "" || data == "[]" {
		return []domain.OrderItem{}, nil
	}
	var items []domain.OrderItem
	if err := json.Unmarshal([]byte(data), &items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	return items, nil
}

// parseTotal parses a stored decimal total.
func parseTotal(data string) (decimal.Decimal, error) {
	if data == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(data)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse total %q: %w", data, err)
	}
	return d, nil
}
