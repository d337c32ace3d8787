package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/lorrc/backoffice-realtime/internal/core/domain"
	apperrors "github.com/lorrc/backoffice-realtime/internal/core/errors"
	"github.com/lorrc/backoffice-realtime/internal/core/mocks"
	"github.com/lorrc/backoffice-realtime/internal/core/ports"
	"github.com/lorrc/backoffice-realtime/internal/core/services"
	"github.com/lorrc/backoffice-realtime/internal/core/txsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestCatalogService_ChangePrice(t *testing.T) {
	ctx := context.Background()

	t.Run("success raises a price change", func(t *testing.T) {
		repo := mocks.NewMockCatalogRepository()
		notifier := mocks.NewMockChangeNotifier()
		svc := services.NewCatalogService(repo, mocks.NewTxManager(), notifier, nil, discardLogger())

		repo.On("GetProductForUpdate", mock.Anything, "P1").
			Return(&domain.Product{ID: "P1", Name: "Tea", Price: 100, Currency: "VND"}, nil)
		repo.On("UpdateProductPrice", mock.Anything, mock.AnythingOfType("*domain.Product")).Return(nil)
		var raised domain.ChangeEvent
		notifier.On("OnEntityChanged", mock.Anything, mock.AnythingOfType("domain.ChangeEvent")).
			Run(func(args mock.Arguments) { raised = args.Get(1).(domain.ChangeEvent) })

		product, err := svc.ChangePrice(ctx, ports.ChangePriceParams{
			ProductID: "P1", NewPrice: 120, Actor: "alice", Reason: "promo end",
		})

		require.NoError(t, err)
		assert.Equal(t, int64(120), product.Price)
		change, ok := raised.Change.(domain.PriceChange)
		require.True(t, ok)
		assert.Equal(t, int64(100), change.OldPrice)
		assert.Equal(t, int64(120), change.NewPrice)
		assert.Equal(t, "alice", raised.Actor)
		assert.Equal(t, "promo end", raised.Reason)
		repo.AssertExpectations(t)
		notifier.AssertExpectations(t)
	})

	t.Run("event is raised inside the transaction", func(t *testing.T) {
		repo := mocks.NewMockCatalogRepository()
		notifier := mocks.NewMockChangeNotifier()
		svc := services.NewCatalogService(repo, mocks.NewTxManager(), notifier, nil, discardLogger())

		repo.On("GetProductForUpdate", mock.Anything, "P1").Return(&domain.Product{ID: "P1", Name: "Tea", Price: 100}, nil)
		repo.On("UpdateProductPrice", mock.Anything, mock.Anything).Return(nil)
		notifier.On("OnEntityChanged", mock.MatchedBy(func(ctx context.Context) bool {
			_, ok := txsync.FromContext(ctx)
			return ok
		}), mock.Anything)

		_, err := svc.ChangePrice(ctx, ports.ChangePriceParams{ProductID: "P1", NewPrice: 90})

		require.NoError(t, err)
		notifier.AssertExpectations(t)
	})

	t.Run("same price raises nothing", func(t *testing.T) {
		repo := mocks.NewMockCatalogRepository()
		notifier := mocks.NewMockChangeNotifier()
		svc := services.NewCatalogService(repo, mocks.NewTxManager(), notifier, nil, discardLogger())

		repo.On("GetProductForUpdate", mock.Anything, "P1").Return(&domain.Product{ID: "P1", Name: "Tea", Price: 100}, nil)
		repo.On("UpdateProductPrice", mock.Anything, mock.Anything).Return(nil)

		_, err := svc.ChangePrice(ctx, ports.ChangePriceParams{ProductID: "P1", NewPrice: 100})

		require.NoError(t, err)
		notifier.AssertNotCalled(t, "OnEntityChanged", mock.Anything, mock.Anything)
	})

	t.Run("negative price is rejected", func(t *testing.T) {
		repo := mocks.NewMockCatalogRepository()
		svc := services.NewCatalogService(repo, mocks.NewTxManager(), mocks.NewMockChangeNotifier(), nil, discardLogger())

		_, err := svc.ChangePrice(ctx, ports.ChangePriceParams{ProductID: "P1", NewPrice: -1})

		assert.ErrorIs(t, err, apperrors.ErrInvalidPrice)
		repo.AssertNotCalled(t, "GetProductForUpdate", mock.Anything, mock.Anything)
	})

	t.Run("missing product id is a bad request", func(t *testing.T) {
		svc := services.NewCatalogService(mocks.NewMockCatalogRepository(), mocks.NewTxManager(), mocks.NewMockChangeNotifier(), nil, discardLogger())

		_, err := svc.ChangePrice(ctx, ports.ChangePriceParams{NewPrice: 1})

		var appErr *apperrors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.ErrorIs(t, err, domain.ErrProductIDRequired)
	})

	t.Run("product not found", func(t *testing.T) {
		repo := mocks.NewMockCatalogRepository()
		svc := services.NewCatalogService(repo, mocks.NewTxManager(), mocks.NewMockChangeNotifier(), nil, discardLogger())
		repo.On("GetProductForUpdate", mock.Anything, "P9").Return(nil, apperrors.ErrProductNotFound)

		_, err := svc.ChangePrice(ctx, ports.ChangePriceParams{ProductID: "P9", NewPrice: 1})

		assert.ErrorIs(t, err, apperrors.ErrProductNotFound)
	})
}

func TestCatalogService_AdjustStock(t *testing.T) {
	ctx := context.Background()

	t.Run("delta adjusts stock and raises an update", func(t *testing.T) {
		repo := mocks.NewMockCatalogRepository()
		notifier := mocks.NewMockChangeNotifier()
		svc := services.NewCatalogService(repo, mocks.NewTxManager(), notifier, nil, discardLogger())

		repo.On("GetVariantForUpdate", mock.Anything, "V1").Return(&domain.Variant{ID: "V1", ProductID: "P1", SKU: "TEA-1", Quantity: 12}, nil)
		repo.On("UpdateVariantQuantity", mock.Anything, mock.Anything).Return(nil)
		var raised domain.ChangeEvent
		notifier.On("OnEntityChanged", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { raised = args.Get(1).(domain.ChangeEvent) })

		variant, err := svc.AdjustStock(ctx, ports.AdjustStockParams{VariantID: "V1", Delta: -12, Actor: "bob"})

		require.NoError(t, err)
		assert.Zero(t, variant.Quantity)
		update := raised.Change.(domain.InventoryUpdate)
		assert.True(t, update.IsNowOutOfStock())
		assert.Equal(t, domain.PriorityHigh, raised.Priority)
	})

	t.Run("absolute quantity", func(t *testing.T) {
		repo := mocks.NewMockCatalogRepository()
		notifier := mocks.NewMockChangeNotifier()
		svc := services.NewCatalogService(repo, mocks.NewTxManager(), notifier, nil, discardLogger())

		repo.On("GetVariantForUpdate", mock.Anything, "V1").Return(&domain.Variant{ID: "V1", Quantity: 0}, nil)
		repo.On("UpdateVariantQuantity", mock.Anything, mock.Anything).Return(nil)
		notifier.On("OnEntityChanged", mock.Anything, mock.Anything)

		variant, err := svc.AdjustStock(ctx, ports.AdjustStockParams{VariantID: "V1", Quantity: intPtr(40)})

		require.NoError(t, err)
		assert.Equal(t, 40, variant.Quantity)
		notifier.AssertNumberOfCalls(t, "OnEntityChanged", 1)
	})

	t.Run("underflow is rejected before any write", func(t *testing.T) {
		repo := mocks.NewMockCatalogRepository()
		notifier := mocks.NewMockChangeNotifier()
		svc := services.NewCatalogService(repo, mocks.NewTxManager(), notifier, nil, discardLogger())

		repo.On("GetVariantForUpdate", mock.Anything, "V1").Return(&domain.Variant{ID: "V1", Quantity: 2}, nil)

		_, err := svc.AdjustStock(ctx, ports.AdjustStockParams{VariantID: "V1", Delta: -3})

		assert.ErrorIs(t, err, apperrors.ErrStockUnderflow)
		repo.AssertNotCalled(t, "UpdateVariantQuantity", mock.Anything, mock.Anything)
		notifier.AssertNotCalled(t, "OnEntityChanged", mock.Anything, mock.Anything)
	})

	t.Run("negative absolute quantity is rejected", func(t *testing.T) {
		svc := services.NewCatalogService(mocks.NewMockCatalogRepository(), mocks.NewTxManager(), mocks.NewMockChangeNotifier(), nil, discardLogger())

		_, err := svc.AdjustStock(ctx, ports.AdjustStockParams{VariantID: "V1", Quantity: intPtr(-1)})

		assert.ErrorIs(t, err, apperrors.ErrInvalidQuantity)
	})

	t.Run("write failure rolls back and publishes nothing", func(t *testing.T) {
		repo := mocks.NewMockCatalogRepository()
		pub := mocks.NewRecordingPublisher()
		router := services.NewMessageRouter(pub, "svc", discardLogger(), nil)
		j := &journal{}
		coord := services.NewOutboxCoordinator(permissiveCache(j), router, "svc", discardLogger(), nil)
		svc := services.NewCatalogService(repo, mocks.NewTxManager(), coord, nil, discardLogger())

		repo.On("GetVariantForUpdate", mock.Anything, "V1").Return(&domain.Variant{ID: "V1", Quantity: 10}, nil)
		repo.On("UpdateVariantQuantity", mock.Anything, mock.Anything).Return(errors.New("deadlock"))

		_, err := svc.AdjustStock(ctx, ports.AdjustStockParams{VariantID: "V1", Delta: -1})

		assert.Error(t, err)
		assert.Empty(t, pub.Published())
		assert.Empty(t, j.list())
	})
}

func TestCatalogService_EndToEnd(t *testing.T) {
	ctx := context.Background()
	repo := mocks.NewMockCatalogRepository()
	pub := mocks.NewRecordingPublisher()
	router := services.NewMessageRouter(pub, "svc", discardLogger(), nil)
	j := &journal{}
	coord := services.NewOutboxCoordinator(permissiveCache(j), router, "catalog", discardLogger(), nil)
	svc := services.NewCatalogService(repo, mocks.NewTxManager(), coord, nil, discardLogger())

	repo.On("GetVariantForUpdate", mock.Anything, "V1").Return(&domain.Variant{ID: "V1", ProductID: "P1", Quantity: 12}, nil)
	repo.On("UpdateVariantQuantity", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.AdjustStock(ctx, ports.AdjustStockParams{VariantID: "V1", Delta: -12})

	require.NoError(t, err)
	assert.Equal(t, []string{"entity:inventory:V1", "name:inventory-summary"}, j.list())
	assert.Equal(t, []string{"/topic/ton-kho/V1", "/topic/ton-kho/all", "/topic/alerts/inventory"}, pub.Destinations())
}

func TestCatalogService_TriggerInvalidation(t *testing.T) {
	ctx := context.Background()

	t.Run("raises a coordinated invalidation", func(t *testing.T) {
		notifier := mocks.NewMockChangeNotifier()
		svc := services.NewCatalogService(mocks.NewMockCatalogRepository(), mocks.NewTxManager(), notifier, nil, discardLogger())
		var raised domain.ChangeEvent
		notifier.On("OnEntityChanged", ctx, mock.Anything).
			Run(func(args mock.Arguments) { raised = args.Get(1).(domain.ChangeEvent) })

		err := svc.TriggerInvalidation(ctx, ports.TriggerInvalidationParams{
			EntityType: "product",
			EntityIDs:  []string{"P1", " "},
			Patterns:   []string{"product:P1:*", ""},
			Topics:     []string{"/topic/gia/all"},
			Actor:      "ops",
		})

		require.NoError(t, err)
		assert.Equal(t, domain.KindCoordinatedInvalidation, raised.Kind())
		assert.Equal(t, "product:P1", raised.EntityID)
		assert.Equal(t, []string{"product:P1:*"}, raised.CachePatterns)
		assert.Equal(t, []string{"/topic/gia/all"}, raised.Topics)
		assert.Equal(t, domain.PriorityHigh, raised.Priority)
	})

	t.Run("requires an entity type", func(t *testing.T) {
		svc := services.NewCatalogService(mocks.NewMockCatalogRepository(), mocks.NewTxManager(), mocks.NewMockChangeNotifier(), nil, discardLogger())

		err := svc.TriggerInvalidation(ctx, ports.TriggerInvalidationParams{Patterns: []string{"x"}})

		assert.ErrorIs(t, err, apperrors.ErrEntityTypeRequired)
	})

	t.Run("requires patterns", func(t *testing.T) {
		svc := services.NewCatalogService(mocks.NewMockCatalogRepository(), mocks.NewTxManager(), mocks.NewMockChangeNotifier(), nil, discardLogger())

		err := svc.TriggerInvalidation(ctx, ports.TriggerInvalidationParams{EntityType: "product", Patterns: []string{" "}})

		assert.ErrorIs(t, err, apperrors.ErrPatternsRequired)
	})
}
