package domain

// MessageType labels the payload carried by an envelope.
type MessageType string

const (
	MessagePriceUpdate       MessageType = "PRICE_UPDATE"
	MessageInventoryUpdate   MessageType = "INVENTORY_UPDATE"
	MessageInventoryAlert    MessageType = "INVENTORY_ALERT"
	MessageVoucherUpdate     MessageType = "VOUCHER_UPDATE"
	MessageOrderUpdate       MessageType = "ORDER_UPDATE"
	MessageOrderStatus       MessageType = "ORDER_STATUS"
	MessageCacheInvalidation MessageType = "CACHE_INVALIDATION"
	MessageDataUpdate        MessageType = "DATA_UPDATE"
	MessageHealthStatus      MessageType = "HEALTH_STATUS"
	MessageHealthProbe       MessageType = "HEALTH_PROBE"
	MessageHeartbeat         MessageType = "HEARTBEAT"
)

// AlertLevel grades an inventory alert.
type AlertLevel string

const (
	AlertOutOfStock  AlertLevel = "OUT_OF_STOCK"
	AlertLowStock    AlertLevel = "LOW_STOCK"
	AlertBackInStock AlertLevel = "BACK_IN_STOCK"
)

// InventoryAlertLevel returns the alert the update raises, if any.
func InventoryAlertLevel(u InventoryUpdate) (AlertLevel, bool) {
	switch {
	case u.IsNowOutOfStock():
		return AlertOutOfStock, true
	case u.IsLowStock():
		return AlertLowStock, true
	case u.IsBackInStock():
		return AlertBackInStock, true
	}
	return "", false
}
