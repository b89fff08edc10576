package inventory

import (
	"errors"
	"time"
)

// Item is one stocked inventory entry, keyed by SKU.
type Item struct {
	ID        int64
	SKU       string
	Name      string
	Category  string
	Quantity  int
	Unit      string
	Location  string
	UpdatedAt time.Time
}

// ItemInput carries the editable fields of an item.
type ItemInput struct {
	SKU      string
	Name     string
	Category string
	Quantity int
	Unit     string
	Location string
}

// ImportStats summarises one CSV import.
type ImportStats struct {
	Created int
	Updated int
	Skipped int
	Errors  []string
}

var (
	// ErrInvalidQuantity rejects negative stock counts.
	ErrInvalidQuantity = errors.New("inventory: quantity must not be negative")
	// ErrMissingSKU rejects items without a SKU.
	ErrMissingSKU = errors.New("inventory: sku required")
)
