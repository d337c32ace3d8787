package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrProductIDRequired = errors.New("product ID is required")
	ErrVariantIDRequired = errors.New("variant ID is required")
	ErrVoucherIDRequired = errors.New("voucher ID is required")
	ErrOrderIDRequired   = errors.New("order ID is required")
	ErrEntityTypeMissing = errors.New("entity type is required")
	ErrNegativeAmount    = errors.New("amount cannot be negative")
	ErrNegativeQuantity  = errors.New("quantity cannot be negative")
)

// DefaultLowStockThreshold is used when an InventoryUpdate does not carry one.
const DefaultLowStockThreshold = 5

// PriceChange records a product price moving from OldPrice to NewPrice.
// Prices are in minor currency units.
type PriceChange struct {
	ProductID string `json:"productId"`
	OldPrice  int64  `json:"oldPrice"`
	NewPrice  int64  `json:"newPrice"`
	Currency  string `json:"currency,omitempty"`
}

func (c PriceChange) Kind() ChangeKind       { return KindPriceChange }
func (c PriceChange) Accept(v ChangeVisitor) { v.VisitPrice(c) }

func (c PriceChange) validate() error {
	if strings.TrimSpace(c.ProductID) == "" {
		return ErrProductIDRequired
	}
	if c.OldPrice < 0 || c.NewPrice < 0 {
		return ErrNegativeAmount
	}
	return nil
}

func (c PriceChange) HasPriceChanged() bool { return c.OldPrice != c.NewPrice }
func (c PriceChange) IsIncrease() bool      { return c.NewPrice > c.OldPrice }
func (c PriceChange) IsDecrease() bool      { return c.NewPrice < c.OldPrice }

// ChangePercent is the relative move against the old price; 0 when there was no old price.
func (c PriceChange) ChangePercent() float64 {
	if c.OldPrice == 0 {
		return 0
	}
	return float64(c.NewPrice-c.OldPrice) * 100 / float64(c.OldPrice)
}

// InventoryUpdate records a stock level change for a product variant.
type InventoryUpdate struct {
	VariantID         string `json:"variantId"`
	ProductID         string `json:"productId,omitempty"`
	OldQuantity       int    `json:"oldQuantity"`
	NewQuantity       int    `json:"newQuantity"`
	LowStockThreshold int    `json:"lowStockThreshold,omitempty"`
}

func (c InventoryUpdate) Kind() ChangeKind       { return KindInventoryUpdate }
func (c InventoryUpdate) Accept(v ChangeVisitor) { v.VisitInventory(c) }

func (c InventoryUpdate) validate() error {
	if strings.TrimSpace(c.VariantID) == "" {
		return ErrVariantIDRequired
	}
	if c.OldQuantity < 0 || c.NewQuantity < 0 {
		return ErrNegativeQuantity
	}
	return nil
}

func (c InventoryUpdate) HasQuantityChanged() bool { return c.OldQuantity != c.NewQuantity }
func (c InventoryUpdate) IsNowOutOfStock() bool    { return c.OldQuantity > 0 && c.NewQuantity == 0 }
func (c InventoryUpdate) IsBackInStock() bool      { return c.OldQuantity == 0 && c.NewQuantity > 0 }

// IsLowStock reports a decrease that lands at or below the threshold without hitting zero.
func (c InventoryUpdate) IsLowStock() bool {
	threshold := c.LowStockThreshold
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	return c.NewQuantity > 0 && c.NewQuantity <= threshold && c.NewQuantity < c.OldQuantity
}

// StockStatusChanged is true when the variant crossed the in-stock boundary.
func (c InventoryUpdate) StockStatusChanged() bool {
	return c.IsNowOutOfStock() || c.IsBackInStock()
}

// VoucherStatus is the lifecycle state of a voucher.
type VoucherStatus string

const (
	VoucherActive    VoucherStatus = "ACTIVE"
	VoucherInactive  VoucherStatus = "INACTIVE"
	VoucherExpired   VoucherStatus = "EXPIRED"
	VoucherExhausted VoucherStatus = "EXHAUSTED"
)

// VoucherChange records a voucher status, expiry or usage change.
type VoucherChange struct {
	VoucherID   string        `json:"voucherId"`
	VoucherType string        `json:"voucherType"`
	OldStatus   VoucherStatus `json:"oldStatus,omitempty"`
	NewStatus   VoucherStatus `json:"newStatus,omitempty"`
	OldExpiry   *time.Time    `json:"oldExpiry,omitempty"`
	NewExpiry   *time.Time    `json:"newExpiry,omitempty"`
	OldUsage    int           `json:"oldUsage"`
	NewUsage    int           `json:"newUsage"`
	UsageLimit  int           `json:"usageLimit,omitempty"`
}

func (c VoucherChange) Kind() ChangeKind       { return KindVoucherChange }
func (c VoucherChange) Accept(v ChangeVisitor) { v.VisitVoucher(c) }

func (c VoucherChange) validate() error {
	if strings.TrimSpace(c.VoucherID) == "" {
		return ErrVoucherIDRequired
	}
	return nil
}

func (c VoucherChange) HasStatusChanged() bool { return c.OldStatus != c.NewStatus }
func (c VoucherChange) IsNowActive() bool {
	return c.HasStatusChanged() && c.NewStatus == VoucherActive
}
func (c VoucherChange) IsNowInactive() bool {
	return c.HasStatusChanged() && c.OldStatus == VoucherActive
}

func (c VoucherChange) HasExpiryChanged() bool {
	switch {
	case c.OldExpiry == nil && c.NewExpiry == nil:
		return false
	case c.OldExpiry == nil || c.NewExpiry == nil:
		return true
	}
	return !c.OldExpiry.Equal(*c.NewExpiry)
}

// IsExhausted is true when usage reached the limit with this change.
func (c VoucherChange) IsExhausted() bool {
	return c.UsageLimit > 0 && c.OldUsage < c.UsageLimit && c.NewUsage >= c.UsageLimit
}

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderConfirmed OrderStatus = "CONFIRMED"
	OrderShipping  OrderStatus = "SHIPPING"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// OrderChange records an order status or amount change.
type OrderChange struct {
	OrderID          string      `json:"orderId"`
	CustomerUsername string      `json:"customerUsername,omitempty"`
	OldStatus        OrderStatus `json:"oldStatus,omitempty"`
	NewStatus        OrderStatus `json:"newStatus,omitempty"`
	OldAmount        int64       `json:"oldAmount"`
	NewAmount        int64       `json:"newAmount"`
}

func (c OrderChange) Kind() ChangeKind       { return KindOrderChange }
func (c OrderChange) Accept(v ChangeVisitor) { v.VisitOrder(c) }

func (c OrderChange) validate() error {
	if strings.TrimSpace(c.OrderID) == "" {
		return ErrOrderIDRequired
	}
	if c.OldAmount < 0 || c.NewAmount < 0 {
		return ErrNegativeAmount
	}
	return nil
}

func (c OrderChange) HasStatusChanged() bool { return c.OldStatus != c.NewStatus }
func (c OrderChange) HasAmountChanged() bool { return c.OldAmount != c.NewAmount }
func (c OrderChange) IsOrderCompleted() bool {
	return c.HasStatusChanged() && c.NewStatus == OrderCompleted
}
func (c OrderChange) IsOrderCancelled() bool {
	return c.HasStatusChanged() && c.NewStatus == OrderCancelled
}

// CoordinatedInvalidation purges caches across several entities at once. The
// patterns and topics come from the enclosing event.
type CoordinatedInvalidation struct {
	EntityType string   `json:"entityType"`
	EntityIDs  []string `json:"entityIds,omitempty"`
}

func (c CoordinatedInvalidation) Kind() ChangeKind       { return KindCoordinatedInvalidation }
func (c CoordinatedInvalidation) Accept(v ChangeVisitor) { v.VisitCoordinated(c) }

func (c CoordinatedInvalidation) validate() error {
	if strings.TrimSpace(c.EntityType) == "" {
		return ErrEntityTypeMissing
	}
	return nil
}
