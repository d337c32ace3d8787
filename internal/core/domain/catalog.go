package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrProductNameRequired = errors.New("product name is required")
	ErrSKURequired         = errors.New("variant SKU is required")
)

// Product is a sellable catalog item. Its price is in minor currency units.
type Product struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Price     int64      `json:"price"`
	Currency  string     `json:"currency"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Validate checks the product invariants.
func (p *Product) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrProductIDRequired
	}
	if strings.TrimSpace(p.Name) == "" {
		return ErrProductNameRequired
	}
	if p.Price < 0 {
		return ErrNegativeAmount
	}
	return nil
}

// SetPrice moves the product to a new price and returns the change it produced.
func (p *Product) SetPrice(newPrice int64) (PriceChange, error) {
	if newPrice < 0 {
		return PriceChange{}, ErrNegativeAmount
	}
	change := PriceChange{
		ProductID: p.ID,
		OldPrice:  p.Price,
		NewPrice:  newPrice,
		Currency:  p.Currency,
	}
	p.Price = newPrice
	now := time.Now().UTC()
	p.UpdatedAt = &now
	return change, nil
}

// Variant is a stock-keeping unit of a product.
type Variant struct {
	ID                string     `json:"id"`
	ProductID         string     `json:"productId"`
	SKU               string     `json:"sku"`
	Quantity          int        `json:"quantity"`
	LowStockThreshold int        `json:"lowStockThreshold"`
	UpdatedAt         *time.Time `json:"updatedAt,omitempty"`
}

// InStock reports whether any units are available.
func (v *Variant) InStock() bool { return v.Quantity > 0 }

// Adjust applies a signed delta to the stock level.
func (v *Variant) Adjust(delta int) (InventoryUpdate, error) {
	next := v.Quantity + delta
	if next < 0 {
		return InventoryUpdate{}, ErrNegativeQuantity
	}
	return v.setQuantity(next), nil
}

// SetQuantity replaces the stock level outright.
func (v *Variant) SetQuantity(quantity int) (InventoryUpdate, error) {
	if quantity < 0 {
		return InventoryUpdate{}, ErrNegativeQuantity
	}
	return v.setQuantity(quantity), nil
}

func (v *Variant) setQuantity(quantity int) InventoryUpdate {
	update := InventoryUpdate{
		VariantID:         v.ID,
		ProductID:         v.ProductID,
		OldQuantity:       v.Quantity,
		NewQuantity:       quantity,
		LowStockThreshold: v.LowStockThreshold,
	}
	v.Quantity = quantity
	now := time.Now().UTC()
	v.UpdatedAt = &now
	return update
}
