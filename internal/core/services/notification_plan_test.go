package services_test

import (
	"testing"

	"github.com/lorrc/backoffice-realtime/internal/core/domain"
	"github.com/lorrc/backoffice-realtime/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func destinationsOf(ns []services.Notification) []string {
	out := make([]string, 0, len(ns))
	for _, n := range ns {
		out = append(out, n.Destination)
	}
	return out
}

func TestNotificationPlanner_Plan(t *testing.T) {
	planner := services.NotificationPlanner{}

	t.Run("price change goes to product and aggregate topics", func(t *testing.T) {
		event := domain.NewChangeEvent(domain.PriceChange{ProductID: "P1", OldPrice: 100, NewPrice: 120}, domain.WithActor("alice"))

		ns := planner.Plan(event)

		assert.Equal(t, []string{"/topic/gia/P1", "/topic/gia/all"}, destinationsOf(ns))
		for _, n := range ns {
			assert.Equal(t, domain.MessagePriceUpdate, n.MessageType)
			assert.False(t, n.IsUserAddressed())
		}
		snap, ok := ns[0].Payload.(domain.PriceSnapshot)
		require.True(t, ok)
		assert.Equal(t, int64(120), snap.NewPrice)
		assert.Equal(t, "alice", snap.Actor)
	})

	t.Run("out of stock adds an alert after the data updates", func(t *testing.T) {
		event := domain.NewChangeEvent(domain.InventoryUpdate{VariantID: "V1", OldQuantity: 12, NewQuantity: 0})

		ns := planner.Plan(event)

		assert.Equal(t, []string{"/topic/ton-kho/V1", "/topic/ton-kho/all", "/topic/alerts/inventory"}, destinationsOf(ns))
		alert, ok := ns[2].Payload.(domain.InventoryAlert)
		require.True(t, ok)
		assert.Equal(t, domain.AlertOutOfStock, alert.Level)
		assert.Equal(t, domain.MessageInventoryAlert, ns[2].MessageType)
	})

	t.Run("low stock alert", func(t *testing.T) {
		event := domain.NewChangeEvent(domain.InventoryUpdate{VariantID: "V1", OldQuantity: 10, NewQuantity: 3})

		ns := planner.Plan(event)

		require.Len(t, ns, 3)
		assert.Equal(t, domain.AlertLowStock, ns[2].Payload.(domain.InventoryAlert).Level)
	})

	t.Run("plain stock change has no alert", func(t *testing.T) {
		event := domain.NewChangeEvent(domain.InventoryUpdate{VariantID: "V1", OldQuantity: 50, NewQuantity: 40})

		assert.Len(t, planner.Plan(event), 2)
	})

	t.Run("voucher destinations include the voucher type", func(t *testing.T) {
		event := domain.NewChangeEvent(domain.VoucherChange{VoucherID: "VC1", VoucherType: "percent"})

		assert.Equal(t, []string{"/topic/voucher/VC1/percent", "/topic/voucher/all"}, destinationsOf(planner.Plan(event)))
	})

	t.Run("order status change notifies the customer queue", func(t *testing.T) {
		event := domain.NewChangeEvent(domain.OrderChange{
			OrderID:          "O1",
			CustomerUsername: "bob",
			OldStatus:        domain.OrderConfirmed,
			NewStatus:        domain.OrderShipping,
		})

		ns := planner.Plan(event)

		require.Len(t, ns, 3)
		assert.Equal(t, domain.QueueOrders, ns[2].Destination)
		assert.Equal(t, "bob", ns[2].TargetUser)
		assert.True(t, ns[2].IsUserAddressed())
		assert.Equal(t, domain.MessageOrderStatus, ns[2].MessageType)
	})

	t.Run("order amount change without status change skips the queue", func(t *testing.T) {
		event := domain.NewChangeEvent(domain.OrderChange{
			OrderID:          "O1",
			CustomerUsername: "bob",
			OldStatus:        domain.OrderPending,
			NewStatus:        domain.OrderPending,
			OldAmount:        100,
			NewAmount:        90,
		})

		assert.Equal(t, []string{"/topic/don-hang/O1", "/topic/don-hang/all"}, destinationsOf(planner.Plan(event)))
	})

	t.Run("explicit topics replace data destinations but keep alerts", func(t *testing.T) {
		event := domain.NewChangeEvent(
			domain.InventoryUpdate{VariantID: "V1", OldQuantity: 3, NewQuantity: 0},
			domain.WithTopics("/topic/ton-kho/warehouse-7"),
		)

		assert.Equal(t, []string{"/topic/ton-kho/warehouse-7", "/topic/alerts/inventory"}, destinationsOf(planner.Plan(event)))
	})

	t.Run("coordinated invalidation sends the signal before data updates", func(t *testing.T) {
		event := domain.NewChangeEvent(
			domain.CoordinatedInvalidation{EntityType: "product", EntityIDs: []string{"P1"}},
			domain.WithCachePatterns("product:*"),
			domain.WithTopics("/topic/gia/all", "/topic/ton-kho/all"),
			domain.WithReason("bulk import"),
		)

		ns := planner.Plan(event)

		assert.Equal(t, []string{"/topic/cache-invalidation", "/topic/gia/all", "/topic/ton-kho/all"}, destinationsOf(ns))
		assert.Equal(t, domain.MessageCacheInvalidation, ns[0].MessageType)
		signal := ns[0].Payload.(domain.CacheInvalidationSignal)
		assert.Equal(t, []string{"product:*"}, signal.Patterns)
		assert.Equal(t, "bulk import", signal.Reason)
		assert.Equal(t, domain.MessageDataUpdate, ns[1].MessageType)
	})

	t.Run("coordinated invalidation without topics only signals", func(t *testing.T) {
		event := domain.NewChangeEvent(
			domain.CoordinatedInvalidation{EntityType: "voucher"},
			domain.WithCachePatterns("voucher:*"),
		)

		assert.Equal(t, []string{"/topic/cache-invalidation"}, destinationsOf(planner.Plan(event)))
	})
}
