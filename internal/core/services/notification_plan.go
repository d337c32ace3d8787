package services

import (
	"strings"

	"github.com/lorrc/backoffice-realtime/internal/core/domain"
)

// Notification is one message the coordinator hands to the router.
type Notification struct {
	Destination string
	TargetUser  string
	MessageType domain.MessageType
	Payload     any
}

// IsUserAddressed reports whether the notification goes to one user's queue.
func (n Notification) IsUserAddressed() bool { return n.TargetUser != "" }

// NotificationPlanner maps a change to the notifications clients receive.
// Explicit topics on the event replace the kind's data-update destinations;
// alerts and user-queue notices are still derived from the change.
type NotificationPlanner struct{}

// Plan returns the notifications in publish order.
func (NotificationPlanner) Plan(event domain.ChangeEvent) []Notification {
	if event.Change == nil {
		return nil
	}
	v := &notificationVisitor{event: event}
	event.Change.Accept(v)
	return v.out
}

type notificationVisitor struct {
	event domain.ChangeEvent
	out   []Notification
}

// data emits payload on the derived destinations, or on the event's explicit
// topics when it has them.
func (v *notificationVisitor) data(messageType domain.MessageType, payload any, derived ...string) {
	destinations := derived
	if v.event.HasExplicitTopics() {
		destinations = v.event.Topics
	}
	for _, dest := range destinations {
		dest = strings.TrimSpace(dest)
		if dest == "" {
			continue
		}
		v.out = append(v.out, Notification{Destination: dest, MessageType: messageType, Payload: payload})
	}
}

func (v *notificationVisitor) VisitPrice(c domain.PriceChange) {
	v.data(domain.MessagePriceUpdate, domain.NewPriceSnapshot(v.event, c),
		domain.PriceTopic(c.ProductID), domain.PriceAllTopic())
}

func (v *notificationVisitor) VisitInventory(c domain.InventoryUpdate) {
	v.data(domain.MessageInventoryUpdate, domain.NewInventorySnapshot(v.event, c),
		domain.InventoryTopic(c.VariantID), domain.InventoryAllTopic())

	if level, ok := domain.InventoryAlertLevel(c); ok {
		v.out = append(v.out, Notification{
			Destination: domain.TopicInventoryAlerts,
			MessageType: domain.MessageInventoryAlert,
			Payload:     domain.NewInventoryAlert(v.event, c, level),
		})
	}
}

func (v *notificationVisitor) VisitVoucher(c domain.VoucherChange) {
	v.data(domain.MessageVoucherUpdate, domain.NewVoucherSnapshot(v.event, c),
		domain.VoucherTopic(c.VoucherID, c.VoucherType), domain.VoucherAllTopic())
}

func (v *notificationVisitor) VisitOrder(c domain.OrderChange) {
	v.data(domain.MessageOrderUpdate, domain.NewOrderSnapshot(v.event, c),
		domain.OrderTopic(c.OrderID), domain.OrderAllTopic())

	if c.HasStatusChanged() && strings.TrimSpace(c.CustomerUsername) != "" {
		v.out = append(v.out, Notification{
			Destination: domain.QueueOrders,
			TargetUser:  c.CustomerUsername,
			MessageType: domain.MessageOrderStatus,
			Payload:     domain.NewOrderStatusNotice(v.event, c),
		})
	}
}

// VisitCoordinated sends the purge signal before any data update so clients
// drop local caches first.
func (v *notificationVisitor) VisitCoordinated(c domain.CoordinatedInvalidation) {
	v.out = append(v.out, Notification{
		Destination: domain.TopicCacheInvalidation,
		MessageType: domain.MessageCacheInvalidation,
		Payload:     domain.NewCacheInvalidationSignal(v.event, c),
	})
	if v.event.HasExplicitTopics() {
		v.data(domain.MessageDataUpdate, domain.NewDataUpdate(v.event, c))
	}
}
