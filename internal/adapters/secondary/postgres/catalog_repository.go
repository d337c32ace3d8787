package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lorrc/backoffice-realtime/internal/core/domain"
	apperrors "github.com/lorrc/backoffice-realtime/internal/core/errors"
	"github.com/lorrc/backoffice-realtime/internal/core/ports"
)

// CatalogRepository is the secondary adapter for product and variant
// persistence. Every query runs in the transaction carried by ctx, if any.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

var _ ports.CatalogRepository = (*CatalogRepository)(nil)

// NewCatalogRepository creates a new catalog repository.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

const (
	productColumns = `id, name, price, currency, created_at, updated_at`
	variantColumns = `id, product_id, sku, quantity, low_stock_threshold, updated_at`
)

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var (
		p         domain.Product
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Currency, &p.CreatedAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrProductNotFound
		}
		return nil, err
	}
	if updatedAt.Valid {
		p.UpdatedAt = &updatedAt.Time
	}
	return &p, nil
}

func scanVariant(row pgx.Row) (*domain.Variant, error) {
	var (
		v         domain.Variant
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&v.ID, &v.ProductID, &v.SKU, &v.Quantity, &v.LowStockThreshold, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrVariantNotFound
		}
		return nil, err
	}
	if updatedAt.Valid {
		v.UpdatedAt = &updatedAt.Time
	}
	return &v, nil
}

// GetProduct retrieves a single product by its ID.
func (r *CatalogRepository) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	row := GetDBTX(ctx, r.pool).QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, productID)
	return scanProduct(row)
}

// GetProductForUpdate reads a product and locks its row until the
// surrounding transaction ends.
func (r *CatalogRepository) GetProductForUpdate(ctx context.Context, productID string) (*domain.Product, error) {
	row := GetDBTX(ctx, r.pool).QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, productID)
	return scanProduct(row)
}

// UpdateProductPrice stores the product's current price.
func (r *CatalogRepository) UpdateProductPrice(ctx context.Context, product *domain.Product) error {
	tag, err := GetDBTX(ctx, r.pool).Exec(ctx,
		`UPDATE products SET price = $2, updated_at = NOW() WHERE id = $1`,
		product.ID, product.Price)
	if err != nil {
		return fmt.Errorf("update product %s price: %w", product.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrProductNotFound
	}
	return nil
}

// GetVariant retrieves a single variant by its ID.
func (r *CatalogRepository) GetVariant(ctx context.Context, variantID string) (*domain.Variant, error) {
	row := GetDBTX(ctx, r.pool).QueryRow(ctx,
		`SELECT `+variantColumns+` FROM variants WHERE id = $1`, variantID)
	return scanVariant(row)
}

// GetVariantForUpdate reads a variant and locks its row.
func (r *CatalogRepository) GetVariantForUpdate(ctx context.Context, variantID string) (*domain.Variant, error) {
	row := GetDBTX(ctx, r.pool).QueryRow(ctx,
		`SELECT `+variantColumns+` FROM variants WHERE id = $1 FOR UPDATE`, variantID)
	return scanVariant(row)
}

// UpdateVariantQuantity stores the variant's current stock level.
func (r *CatalogRepository) UpdateVariantQuantity(ctx context.Context, variant *domain.Variant) error {
	tag, err := GetDBTX(ctx, r.pool).Exec(ctx,
		`UPDATE variants SET quantity = $2, updated_at = NOW() WHERE id = $1`,
		variant.ID, variant.Quantity)
	if err != nil {
		return fmt.Errorf("update variant %s quantity: %w", variant.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrVariantNotFound
	}
	return nil
}
