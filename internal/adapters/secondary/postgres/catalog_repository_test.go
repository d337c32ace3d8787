package postgres

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lorrc/backoffice-realtime/internal/core/errors"
)

// seedCatalog inserts a product with one variant and returns their ids.
func seedCatalog(t *testing.T, price int64, quantity int) (string, string) {
	t.Helper()
	require.NotNil(t, testPool, "testPool is nil. TestMain may not have run.")
	ctx := context.Background()

	productID := "P-" + uuid.NewString()
	variantID := "V-" + uuid.NewString()
	_, err := testPool.Exec(ctx,
		`INSERT INTO products (id, name, price, currency) VALUES ($1, 'Linen shirt', $2, 'VND')`,
		productID, price)
	require.NoError(t, err)
	_, err = testPool.Exec(ctx,
		`INSERT INTO variants (id, product_id, sku, quantity, low_stock_threshold) VALUES ($1, $2, $3, $4, 5)`,
		variantID, productID, "SKU-"+variantID, quantity)
	require.NoError(t, err)
	return productID, variantID
}

func TestCatalogRepository_Product(t *testing.T) {
	ctx := context.Background()
	repo := NewCatalogRepository(testPool)
	productID, _ := seedCatalog(t, 150000, 3)

	p, err := repo.GetProduct(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, "Linen shirt", p.Name)
	assert.Equal(t, int64(150000), p.Price)
	assert.Nil(t, p.UpdatedAt)

	_, err = p.SetPrice(120000)
	require.NoError(t, err)
	require.NoError(t, repo.UpdateProductPrice(ctx, p))

	p, err = repo.GetProduct(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, int64(120000), p.Price)
	assert.NotNil(t, p.UpdatedAt)
}

func TestCatalogRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewCatalogRepository(testPool)

	_, err := repo.GetProduct(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrProductNotFound)

	_, err = repo.GetVariantForUpdate(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrVariantNotFound)
}

func TestCatalogRepository_VariantInTransaction(t *testing.T) {
	ctx := context.Background()
	repo := NewCatalogRepository(testPool)
	txm := newTestTxManager()
	_, variantID := seedCatalog(t, 1000, 12)

	err := txm.WithTransaction(ctx, func(ctx context.Context) error {
		v, err := repo.GetVariantForUpdate(ctx, variantID)
		if err != nil {
			return err
		}
		if _, err := v.Adjust(-12); err != nil {
			return err
		}
		if err := repo.UpdateVariantQuantity(ctx, v); err != nil {
			return err
		}

		inside, err := repo.GetVariant(ctx, variantID)
		require.NoError(t, err)
		assert.Zero(t, inside.Quantity, "reads in the transaction see its writes")
		return nil
	})
	require.NoError(t, err)

	v, err := repo.GetVariant(ctx, variantID)
	require.NoError(t, err)
	assert.Zero(t, v.Quantity)
	assert.False(t, v.InStock())
}
