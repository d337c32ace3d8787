package services_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lorrc/backoffice-realtime/internal/core/domain"
	apperrors "github.com/lorrc/backoffice-realtime/internal/core/errors"
	"github.com/lorrc/backoffice-realtime/internal/core/mocks"
	"github.com/lorrc/backoffice-realtime/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRouter_OutsideTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes immediately on the resolved channel", func(t *testing.T) {
		pub := mocks.NewRecordingPublisher()
		router := services.NewMessageRouter(pub, "svc", discardLogger(), nil)

		router.Route(ctx, "/topic/gia/P1", map[string]int{"price": 1}, "PRICE_UPDATE", "catalog")
		router.Route(ctx, "/topic/ton-kho/V1", map[string]int{"qty": 2}, "INVENTORY_UPDATE", "catalog")

		published := pub.Published()
		require.Len(t, published, 2)
		assert.Equal(t, domain.ChannelPrice, published[0].Channel)
		assert.Equal(t, domain.ChannelGlobal, published[1].Channel)
		assert.Equal(t, "catalog", published[0].Envelope.SourceService)
		assert.NotEmpty(t, published[0].Envelope.MessageID)

		stats := router.Stats()
		assert.Equal(t, int64(2), stats.Routed)
		assert.Equal(t, int64(2), stats.PublishedImmediately)
		assert.Zero(t, stats.Queued)
	})

	t.Run("user routing stamps target and source", func(t *testing.T) {
		pub := mocks.NewRecordingPublisher()
		router := services.NewMessageRouter(pub, "svc", discardLogger(), nil)

		router.RouteToUser(ctx, "bob", domain.QueueOrders, map[string]string{"orderId": "O1"}, "ORDER_STATUS")

		published := pub.Published()
		require.Len(t, published, 1)
		assert.Equal(t, "bob", published[0].Envelope.TargetUser)
		assert.Equal(t, "svc", published[0].Envelope.SourceService)
		assert.True(t, published[0].Envelope.IsUserAddressed())
	})

	t.Run("empty destination is a routing error", func(t *testing.T) {
		pub := mocks.NewRecordingPublisher()
		router := services.NewMessageRouter(pub, "svc", discardLogger(), nil)

		router.Route(ctx, "  ", "x", "DATA_UPDATE", "svc")

		assert.Empty(t, pub.Published())
		assert.Equal(t, int64(1), router.Stats().RoutingErrors)
	})

	t.Run("broker failure is swallowed", func(t *testing.T) {
		pub := mocks.NewRecordingPublisher()
		pub.Err = func(domain.MessageEnvelope) error {
			return fmt.Errorf("%w: down", apperrors.ErrPublish)
		}
		router := services.NewMessageRouter(pub, "svc", discardLogger(), nil)

		assert.NotPanics(t, func() {
			router.Route(ctx, "/topic/gia/P1", "x", "PRICE_UPDATE", "svc")
		})
		assert.Zero(t, router.Stats().PublishedImmediately)
		assert.Zero(t, router.Stats().RoutingErrors)
	})
}

func TestMessageRouter_InsideTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("queues until commit then flushes in order", func(t *testing.T) {
		pub := mocks.NewRecordingPublisher()
		router := services.NewMessageRouter(pub, "svc", discardLogger(), nil)
		txm := mocks.NewTxManager()

		err := txm.WithTransaction(ctx, func(ctx context.Context) error {
			router.Route(ctx, "/topic/a", 1, "DATA_UPDATE", "svc")
			router.Route(ctx, "/topic/b", 2, "DATA_UPDATE", "svc")
			router.Route(ctx, "/topic/c", 3, "DATA_UPDATE", "svc")
			assert.Empty(t, pub.Published(), "nothing may be published before commit")
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, []string{"/topic/a", "/topic/b", "/topic/c"}, pub.Destinations())
		stats := router.Stats()
		assert.Equal(t, int64(3), stats.Queued)
		assert.Equal(t, int64(3), stats.Flushed)
		assert.Zero(t, stats.PublishedImmediately)
	})

	t.Run("rollback discards the queue", func(t *testing.T) {
		pub := mocks.NewRecordingPublisher()
		router := services.NewMessageRouter(pub, "svc", discardLogger(), nil)
		txm := mocks.NewTxManager()
		txm.Rollback = true

		err := txm.WithTransaction(ctx, func(ctx context.Context) error {
			router.Route(ctx, "/topic/a", 1, "DATA_UPDATE", "svc")
			router.RouteToUser(ctx, "bob", "/queue/orders", 2, "ORDER_STATUS")
			return nil
		})

		require.ErrorIs(t, err, mocks.ErrForcedRollback)
		assert.Empty(t, pub.Published())
		assert.Equal(t, int64(2), router.Stats().RollbackDiscards)
	})

	t.Run("business error rolls back and discards", func(t *testing.T) {
		pub := mocks.NewRecordingPublisher()
		router := services.NewMessageRouter(pub, "svc", discardLogger(), nil)
		txm := mocks.NewTxManager()
		boom := errors.New("boom")

		err := txm.WithTransaction(ctx, func(ctx context.Context) error {
			router.Route(ctx, "/topic/a", 1, "DATA_UPDATE", "svc")
			return boom
		})

		assert.ErrorIs(t, err, boom)
		assert.Empty(t, pub.Published())
	})

	t.Run("serialization failure does not stop the flush", func(t *testing.T) {
		pub := mocks.NewRecordingPublisher()
		pub.Err = func(env domain.MessageEnvelope) error {
			if env.Destination == "/topic/bad" {
				return fmt.Errorf("%w: cannot encode", apperrors.ErrSerialization)
			}
			return nil
		}
		router := services.NewMessageRouter(pub, "svc", discardLogger(), nil)
		txm := mocks.NewTxManager()

		err := txm.WithTransaction(ctx, func(ctx context.Context) error {
			router.Route(ctx, "/topic/a", 1, "DATA_UPDATE", "svc")
			router.Route(ctx, "/topic/bad", 2, "DATA_UPDATE", "svc")
			router.Route(ctx, "/topic/c", 3, "DATA_UPDATE", "svc")
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, []string{"/topic/a", "/topic/c"}, pub.Destinations())
		assert.Equal(t, int64(1), router.Stats().RoutingErrors)
		assert.Equal(t, int64(2), router.Stats().Flushed)
	})

	t.Run("nested work joins the outer transaction", func(t *testing.T) {
		pub := mocks.NewRecordingPublisher()
		router := services.NewMessageRouter(pub, "svc", discardLogger(), nil)
		txm := mocks.NewTxManager()

		err := txm.WithTransaction(ctx, func(ctx context.Context) error {
			router.Route(ctx, "/topic/outer", 1, "DATA_UPDATE", "svc")
			return txm.WithTransaction(ctx, func(ctx context.Context) error {
				router.Route(ctx, "/topic/inner", 2, "DATA_UPDATE", "svc")
				assert.Empty(t, pub.Published())
				return nil
			})
		})

		require.NoError(t, err)
		assert.Equal(t, []string{"/topic/outer", "/topic/inner"}, pub.Destinations())
	})
}
