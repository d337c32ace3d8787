package domain

import "time"

// PriceSnapshot is the client-facing shape of a price change.
type PriceSnapshot struct {
	ProductID     string    `json:"productId"`
	OldPrice      int64     `json:"oldPrice"`
	NewPrice      int64     `json:"newPrice"`
	Currency      string    `json:"currency,omitempty"`
	Direction     string    `json:"direction"`
	ChangePercent float64   `json:"changePercent"`
	Actor         string    `json:"actor,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Data          EventData `json:"data,omitzero"`
	Timestamp     string    `json:"timestamp"`
}

// InventorySnapshot is the client-facing shape of a stock change.
type InventorySnapshot struct {
	VariantID   string    `json:"variantId"`
	ProductID   string    `json:"productId,omitempty"`
	OldQuantity int       `json:"oldQuantity"`
	NewQuantity int       `json:"newQuantity"`
	InStock     bool      `json:"inStock"`
	Actor       string    `json:"actor,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Data        EventData `json:"data,omitzero"`
	Timestamp   string    `json:"timestamp"`
}

// InventoryAlert is published on the inventory alert topic.
type InventoryAlert struct {
	VariantID string     `json:"variantId"`
	ProductID string     `json:"productId,omitempty"`
	Level     AlertLevel `json:"level"`
	Quantity  int        `json:"quantity"`
	Threshold int        `json:"threshold,omitempty"`
	Timestamp string     `json:"timestamp"`
}

// VoucherSnapshot is the client-facing shape of a voucher change.
type VoucherSnapshot struct {
	VoucherID   string        `json:"voucherId"`
	VoucherType string        `json:"voucherType,omitempty"`
	OldStatus   VoucherStatus `json:"oldStatus,omitempty"`
	NewStatus   VoucherStatus `json:"newStatus,omitempty"`
	NewExpiry   *string       `json:"newExpiry,omitempty"`
	Usage       int           `json:"usage"`
	UsageLimit  int           `json:"usageLimit,omitempty"`
	Exhausted   bool          `json:"exhausted"`
	Actor       string        `json:"actor,omitempty"`
	Data        EventData     `json:"data,omitzero"`
	Timestamp   string        `json:"timestamp"`
}

// OrderSnapshot is the client-facing shape of an order change.
type OrderSnapshot struct {
	OrderID   string      `json:"orderId"`
	OldStatus OrderStatus `json:"oldStatus,omitempty"`
	NewStatus OrderStatus `json:"newStatus,omitempty"`
	OldAmount int64       `json:"oldAmount"`
	NewAmount int64       `json:"newAmount"`
	Actor     string      `json:"actor,omitempty"`
	Data      EventData   `json:"data,omitzero"`
	Timestamp string      `json:"timestamp"`
}

// OrderStatusNotice is sent to the ordering customer's queue.
type OrderStatusNotice struct {
	OrderID        string      `json:"orderId"`
	Status         OrderStatus `json:"status"`
	PreviousStatus OrderStatus `json:"previousStatus,omitempty"`
	Timestamp      string      `json:"timestamp"`
}

// CacheInvalidationSignal tells clients to purge local caches before the
// matching data update arrives.
type CacheInvalidationSignal struct {
	EntityType string   `json:"entityType"`
	EntityIDs  []string `json:"entityIds,omitempty"`
	Patterns   []string `json:"patterns"`
	Reason     string   `json:"reason,omitempty"`
	Timestamp  string   `json:"timestamp"`
}

// DataUpdate is the generic payload of a coordinated change.
type DataUpdate struct {
	EntityType string    `json:"entityType"`
	EntityIDs  []string  `json:"entityIds,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	Data       EventData `json:"data,omitzero"`
	Timestamp  string    `json:"timestamp"`
}

func formatTimestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339Nano)
}

// NewPriceSnapshot builds the price payload of event.
func NewPriceSnapshot(event ChangeEvent, c PriceChange) PriceSnapshot {
	direction := "UNCHANGED"
	switch {
	case c.IsIncrease():
		direction = "UP"
	case c.IsDecrease():
		direction = "DOWN"
	}
	return PriceSnapshot{
		ProductID:     c.ProductID,
		OldPrice:      c.OldPrice,
		NewPrice:      c.NewPrice,
		Currency:      c.Currency,
		Direction:     direction,
		ChangePercent: c.ChangePercent(),
		Actor:         event.Actor,
		Reason:        event.Reason,
		Data:          event.Data,
		Timestamp:     formatTimestamp(event.Timestamp),
	}
}

// NewInventorySnapshot builds the stock payload of event.
func NewInventorySnapshot(event ChangeEvent, u InventoryUpdate) InventorySnapshot {
	return InventorySnapshot{
		VariantID:   u.VariantID,
		ProductID:   u.ProductID,
		OldQuantity: u.OldQuantity,
		NewQuantity: u.NewQuantity,
		InStock:     u.NewQuantity > 0,
		Actor:       event.Actor,
		Reason:      event.Reason,
		Data:        event.Data,
		Timestamp:   formatTimestamp(event.Timestamp),
	}
}

// NewInventoryAlert builds the alert payload for level.
func NewInventoryAlert(event ChangeEvent, u InventoryUpdate, level AlertLevel) InventoryAlert {
	threshold := u.LowStockThreshold
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	return InventoryAlert{
		VariantID: u.VariantID,
		ProductID: u.ProductID,
		Level:     level,
		Quantity:  u.NewQuantity,
		Threshold: threshold,
		Timestamp: formatTimestamp(event.Timestamp),
	}
}

// NewVoucherSnapshot builds the voucher payload of event.
func NewVoucherSnapshot(event ChangeEvent, c VoucherChange) VoucherSnapshot {
	var expiry *string
	if c.NewExpiry != nil {
		value := formatTimestamp(*c.NewExpiry)
		expiry = &value
	}
	return VoucherSnapshot{
		VoucherID:   c.VoucherID,
		VoucherType: c.VoucherType,
		OldStatus:   c.OldStatus,
		NewStatus:   c.NewStatus,
		NewExpiry:   expiry,
		Usage:       c.NewUsage,
		UsageLimit:  c.UsageLimit,
		Exhausted:   c.IsExhausted(),
		Actor:       event.Actor,
		Data:        event.Data,
		Timestamp:   formatTimestamp(event.Timestamp),
	}
}

// NewOrderSnapshot builds the order payload of event.
func NewOrderSnapshot(event ChangeEvent, c OrderChange) OrderSnapshot {
	return OrderSnapshot{
		OrderID:   c.OrderID,
		OldStatus: c.OldStatus,
		NewStatus: c.NewStatus,
		OldAmount: c.OldAmount,
		NewAmount: c.NewAmount,
		Actor:     event.Actor,
		Data:      event.Data,
		Timestamp: formatTimestamp(event.Timestamp),
	}
}

// NewOrderStatusNotice builds the customer-facing status notice.
func NewOrderStatusNotice(event ChangeEvent, c OrderChange) OrderStatusNotice {
	return OrderStatusNotice{
		OrderID:        c.OrderID,
		Status:         c.NewStatus,
		PreviousStatus: c.OldStatus,
		Timestamp:      formatTimestamp(event.Timestamp),
	}
}

// NewCacheInvalidationSignal builds the purge signal of a coordinated event.
func NewCacheInvalidationSignal(event ChangeEvent, c CoordinatedInvalidation) CacheInvalidationSignal {
	return CacheInvalidationSignal{
		EntityType: c.EntityType,
		EntityIDs:  c.EntityIDs,
		Patterns:   event.CachePatterns,
		Reason:     event.Reason,
		Timestamp:  formatTimestamp(event.Timestamp),
	}
}

// NewDataUpdate builds the data update of a coordinated event.
func NewDataUpdate(event ChangeEvent, c CoordinatedInvalidation) DataUpdate {
	return DataUpdate{
		EntityType: c.EntityType,
		EntityIDs:  c.EntityIDs,
		Actor:      event.Actor,
		Data:       event.Data,
		Timestamp:  formatTimestamp(event.Timestamp),
	}
}
