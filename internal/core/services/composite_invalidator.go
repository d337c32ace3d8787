package services

import (
	"context"
	"errors"

	"github.com/lorrc/backoffice-realtime/internal/core/ports"
)

// CompositeInvalidator applies every call to each backend in order. A failing
// backend does not stop the others; their errors are joined.
type CompositeInvalidator struct {
	backends []ports.CacheInvalidator
}

// NewCompositeInvalidator combines backends, skipping nil ones.
func NewCompositeInvalidator(backends ...ports.CacheInvalidator) *CompositeInvalidator {
	c := &CompositeInvalidator{}
	for _, b := range backends {
		if b != nil {
			c.backends = append(c.backends, b)
		}
	}
	return c
}

func (c *CompositeInvalidator) Invalidate(ctx context.Context, name string) error {
	return c.each(func(b ports.CacheInvalidator) error { return b.Invalidate(ctx, name) })
}

func (c *CompositeInvalidator) InvalidateByPattern(ctx context.Context, pattern string) error {
	return c.each(func(b ports.CacheInvalidator) error { return b.InvalidateByPattern(ctx, pattern) })
}

func (c *CompositeInvalidator) InvalidateEntity(ctx context.Context, kind ports.EntityKind, id string) error {
	return c.each(func(b ports.CacheInvalidator) error { return b.InvalidateEntity(ctx, kind, id) })
}

func (c *CompositeInvalidator) each(fn func(ports.CacheInvalidator) error) error {
	var errs []error
	for _, b := range c.backends {
		if err := fn(b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
