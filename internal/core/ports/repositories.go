package ports

import (
	"context"

	"github.com/lorrc/backoffice-realtime/internal/core/domain"
)

// CatalogRepository persists products and variants. Reads inside a
// transaction see that transaction's writes.
type CatalogRepository interface {
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
	GetProductForUpdate(ctx context.Context, productID string) (*domain.Product, error)
	UpdateProductPrice(ctx context.Context, product *domain.Product) error
	GetVariant(ctx context.Context, variantID string) (*domain.Variant, error)
	GetVariantForUpdate(ctx context.Context, variantID string) (*domain.Variant, error)
	UpdateVariantQuantity(ctx context.Context, variant *domain.Variant) error
}
