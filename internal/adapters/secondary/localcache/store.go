// Package localcache is the in-process read-through cache for catalog
// entities. It is also a cache invalidation backend so committed changes
// evict stale entries.
package localcache

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/viccon/sturdyc"

	"github.com/lorrc/backoffice-realtime/internal/core/domain"
	"github.com/lorrc/backoffice-realtime/internal/core/ports"
	"github.com/lorrc/backoffice-realtime/internal/core/services"
)

// Store wraps a sturdyc client holding products and variants.
type Store struct {
	client *sturdyc.Client[any]
	logger *slog.Logger
}

var (
	_ ports.CacheInvalidator    = (*Store)(nil)
	_ services.CatalogReadCache = (*Store)(nil)
)

// New validates cfg and creates the store.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := sturdyc.New[any](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.Options()...,
	)
	return &Store{client: client, logger: logger.With("component", "local_cache")}, nil
}

// ProductKey and VariantKey are the cache keys of catalog entities.
func ProductKey(id string) string { return "product:" + id }
func VariantKey(id string) string { return "variant:" + id }

// EntityKey maps an entity kind onto the key its cached form lives under.
// Prices are cached with their product and stock levels with their variant.
func EntityKey(kind ports.EntityKind, id string) string {
	switch kind {
	case ports.EntityPrice, ports.EntityProduct:
		return ProductKey(id)
	case ports.EntityInventory, ports.EntityVariant:
		return VariantKey(id)
	default:
		return string(kind) + ":" + id
	}
}

// Product returns the cached product or loads it with fetch.
func (s *Store) Product(ctx context.Context, productID string, fetch func(ctx context.Context) (*domain.Product, error)) (*domain.Product, error) {
	v, err := s.client.GetOrFetch(ctx, ProductKey(productID), func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return nil, err
	}
	p, ok := v.(*domain.Product)
	if !ok {
		return nil, fmt.Errorf("cached product %s has type %T", productID, v)
	}
	return p, nil
}

// Variant returns the cached variant or loads it with fetch.
func (s *Store) Variant(ctx context.Context, variantID string, fetch func(ctx context.Context) (*domain.Variant, error)) (*domain.Variant, error) {
	v, err := s.client.GetOrFetch(ctx, VariantKey(variantID), func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return nil, err
	}
	variant, ok := v.(*domain.Variant)
	if !ok {
		return nil, fmt.Errorf("cached variant %s has type %T", variantID, v)
	}
	return variant, nil
}

// Invalidate drops every key in the named cache, that is the name itself
// and any key under "name:".
func (s *Store) Invalidate(_ context.Context, name string) error {
	removed := 0
	for _, key := range s.client.ScanKeys() {
		if key == name || strings.HasPrefix(key, name+":") {
			s.client.Delete(key)
			removed++
		}
	}
	s.logger.Debug("named cache cleared", "name", name, "removed", removed)
	return nil
}

// InvalidateByPattern drops every key matching a glob pattern.
func (s *Store) InvalidateByPattern(_ context.Context, pattern string) error {
	if _, err := path.Match(pattern, ""); err != nil {
		return fmt.Errorf("cache pattern %q: %w", pattern, err)
	}
	removed := 0
	for _, key := range s.client.ScanKeys() {
		if ok, _ := path.Match(pattern, key); ok {
			s.client.Delete(key)
			removed++
		}
	}
	s.logger.Debug("cache pattern cleared", "pattern", pattern, "removed", removed)
	return nil
}

// InvalidateEntity drops one entity's cached form.
func (s *Store) InvalidateEntity(_ context.Context, kind ports.EntityKind, id string) error {
	s.client.Delete(EntityKey(kind, id))
	return nil
}
