package rediscache_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/backoffice-realtime/internal/adapters/secondary/rediscache"
	"github.com/lorrc/backoffice-realtime/internal/core/ports"
)

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *rediscache.Invalidator) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return mr, rediscache.NewInvalidator(client, "bo:", logger)
}

func seed(t *testing.T, mr *miniredis.Miniredis, keys ...string) {
	t.Helper()
	for _, k := range keys {
		require.NoError(t, mr.Set(k, "x"))
	}
}

func TestInvalidator_InvalidateEntity(t *testing.T) {
	mr, inv := setupMiniRedis(t)
	seed(t, mr, "bo:price:P1", "bo:price:P1:history", "bo:price:P10", "bo:inventory:P1")

	err := inv.InvalidateEntity(context.Background(), ports.EntityPrice, "P1")

	require.NoError(t, err)
	assert.False(t, mr.Exists("bo:price:P1"))
	assert.False(t, mr.Exists("bo:price:P1:history"))
	assert.True(t, mr.Exists("bo:price:P10"), "sibling ids are untouched")
	assert.True(t, mr.Exists("bo:inventory:P1"))
	assert.Equal(t, int64(2), inv.Stats().KeysRemoved)
}

func TestInvalidator_Invalidate(t *testing.T) {
	mr, inv := setupMiniRedis(t)
	seed(t, mr, "bo:product-listings", "bo:product-listings:page:1", "bo:product-listings:page:2", "bo:active-vouchers")

	err := inv.Invalidate(context.Background(), "product-listings")

	require.NoError(t, err)
	assert.Equal(t, []string{"bo:active-vouchers"}, mr.Keys())
}

func TestInvalidator_InvalidateByPattern(t *testing.T) {
	mr, inv := setupMiniRedis(t)
	seed(t, mr, "bo:product:P1:detail", "bo:product:P1:images", "bo:product:P2:detail", "other:product:P1:detail")

	err := inv.InvalidateByPattern(context.Background(), "product:P1:*")

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bo:product:P2:detail", "other:product:P1:detail"}, mr.Keys())
}

func TestInvalidator_MissingKeysAreFine(t *testing.T) {
	_, inv := setupMiniRedis(t)

	assert.NoError(t, inv.Invalidate(context.Background(), "inventory-summary"))
	assert.NoError(t, inv.InvalidateEntity(context.Background(), ports.EntityOrder, "O1"))
	assert.Zero(t, inv.Stats().KeysRemoved)
}

func TestInvalidator_ServerDown(t *testing.T) {
	mr, inv := setupMiniRedis(t)
	mr.Close()

	err := inv.Invalidate(context.Background(), "product-listings")

	assert.Error(t, err)
	assert.Equal(t, int64(1), inv.Stats().Failures)
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := rediscache.Connect(context.Background(), rediscache.Config{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	_, err = rediscache.Connect(context.Background(), rediscache.Config{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
