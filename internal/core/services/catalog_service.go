package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/lorrc/backoffice-realtime/internal/core/domain"
	apperrors "github.com/lorrc/backoffice-realtime/internal/core/errors"
	"github.com/lorrc/backoffice-realtime/internal/core/ports"
)

// CatalogReadCache is a read-through cache in front of catalog reads.
type CatalogReadCache interface {
	Product(ctx context.Context, productID string, fetch func(ctx context.Context) (*domain.Product, error)) (*domain.Product, error)
	Variant(ctx context.Context, variantID string, fetch func(ctx context.Context) (*domain.Variant, error)) (*domain.Variant, error)
}

// CatalogService is the reference entity service. Its writes run in a
// transaction and raise change events that take effect on commit.
type CatalogService struct {
	repo     ports.CatalogRepository
	txm      ports.TransactionManager
	notifier ports.ChangeNotifier
	cache    CatalogReadCache
	logger   *slog.Logger
}

var _ ports.CatalogService = (*CatalogService)(nil)

// NewCatalogService creates a catalog service. cache may be nil.
func NewCatalogService(
	repo ports.CatalogRepository,
	txm ports.TransactionManager,
	notifier ports.ChangeNotifier,
	cache CatalogReadCache,
	logger *slog.Logger,
) *CatalogService {
	return &CatalogService{
		repo:     repo,
		txm:      txm,
		notifier: notifier,
		cache:    cache,
		logger:   logger.With("component", "catalog_service"),
	}
}

// GetProduct reads a product through the cache.
func (s *CatalogService) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	if strings.TrimSpace(productID) == "" {
		return nil, apperrors.NewBadRequestError(domain.ErrProductIDRequired, "product ID is required")
	}
	fetch := func(ctx context.Context) (*domain.Product, error) {
		return s.repo.GetProduct(ctx, productID)
	}
	if s.cache == nil {
		return fetch(ctx)
	}
	return s.cache.Product(ctx, productID, fetch)
}

// GetVariant reads a variant through the cache.
func (s *CatalogService) GetVariant(ctx context.Context, variantID string) (*domain.Variant, error) {
	if strings.TrimSpace(variantID) == "" {
		return nil, apperrors.NewBadRequestError(domain.ErrVariantIDRequired, "variant ID is required")
	}
	fetch := func(ctx context.Context) (*domain.Variant, error) {
		return s.repo.GetVariant(ctx, variantID)
	}
	if s.cache == nil {
		return fetch(ctx)
	}
	return s.cache.Variant(ctx, variantID, fetch)
}

// ChangePrice reprices a product and raises a PriceChange.
func (s *CatalogService) ChangePrice(ctx context.Context, params ports.ChangePriceParams) (*domain.Product, error) {
	if strings.TrimSpace(params.ProductID) == "" {
		return nil, apperrors.NewBadRequestError(domain.ErrProductIDRequired, "product ID is required")
	}
	if params.NewPrice < 0 {
		return nil, apperrors.ErrInvalidPrice
	}

	var updated *domain.Product
	err := s.txm.WithTransaction(ctx, func(ctx context.Context) error {
		product, err := s.repo.GetProductForUpdate(ctx, params.ProductID)
		if err != nil {
			return err
		}
		change, err := product.SetPrice(params.NewPrice)
		if err != nil {
			return apperrors.ErrInvalidPrice
		}
		if err := s.repo.UpdateProductPrice(ctx, product); err != nil {
			return err
		}
		if change.HasPriceChanged() {
			s.notifier.OnEntityChanged(ctx, domain.NewChangeEvent(change,
				domain.WithActor(params.Actor),
				domain.WithReason(params.Reason),
			))
		}
		updated = product
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "product repriced",
		"product_id", updated.ID,
		"price", updated.Price,
		"actor", params.Actor,
	)
	return updated, nil
}

// AdjustStock changes a variant's stock level and raises an InventoryUpdate.
func (s *CatalogService) AdjustStock(ctx context.Context, params ports.AdjustStockParams) (*domain.Variant, error) {
	if strings.TrimSpace(params.VariantID) == "" {
		return nil, apperrors.NewBadRequestError(domain.ErrVariantIDRequired, "variant ID is required")
	}
	if params.Quantity != nil && *params.Quantity < 0 {
		return nil, apperrors.ErrInvalidQuantity
	}

	var updated *domain.Variant
	err := s.txm.WithTransaction(ctx, func(ctx context.Context) error {
		variant, err := s.repo.GetVariantForUpdate(ctx, params.VariantID)
		if err != nil {
			return err
		}

		var update domain.InventoryUpdate
		if params.Quantity != nil {
			update, err = variant.SetQuantity(*params.Quantity)
		} else {
			update, err = variant.Adjust(params.Delta)
		}
		if errors.Is(err, domain.ErrNegativeQuantity) {
			return apperrors.ErrStockUnderflow
		}
		if err != nil {
			return err
		}

		if err := s.repo.UpdateVariantQuantity(ctx, variant); err != nil {
			return err
		}
		if update.HasQuantityChanged() {
			s.notifier.OnEntityChanged(ctx, domain.NewChangeEvent(update,
				domain.WithActor(params.Actor),
				domain.WithReason(params.Reason),
			))
		}
		updated = variant
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "stock adjusted",
		"variant_id", updated.ID,
		"quantity", updated.Quantity,
		"actor", params.Actor,
	)
	return updated, nil
}

// TriggerInvalidation raises an operator-driven coordinated invalidation.
func (s *CatalogService) TriggerInvalidation(ctx context.Context, params ports.TriggerInvalidationParams) error {
	if strings.TrimSpace(params.EntityType) == "" {
		return apperrors.ErrEntityTypeRequired
	}
	patterns := nonBlank(params.Patterns)
	if len(patterns) == 0 {
		return apperrors.ErrPatternsRequired
	}

	opts := []domain.EventOption{
		domain.WithCachePatterns(patterns...),
		domain.WithActor(params.Actor),
		domain.WithReason(params.Reason),
	}
	if topics := nonBlank(params.Topics); len(topics) > 0 {
		opts = append(opts, domain.WithTopics(topics...))
	}

	event := domain.NewChangeEvent(domain.CoordinatedInvalidation{
		EntityType: params.EntityType,
		EntityIDs:  nonBlank(params.EntityIDs),
	}, opts...)
	if err := event.Validate(); err != nil {
		return apperrors.NewBadRequestError(err, err.Error())
	}

	s.notifier.OnEntityChanged(ctx, event)
	s.logger.InfoContext(ctx, "coordinated invalidation triggered",
		"entity_type", params.EntityType,
		"patterns", patterns,
		"actor", params.Actor,
	)
	return nil
}

func nonBlank(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
