package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/lorrc/backoffice-realtime/internal/core/domain"
	"github.com/lorrc/backoffice-realtime/internal/core/ports"
)

// Named caches evicted as a whole.
const (
	CacheProductListings  = "product-listings"
	CacheInventorySummary = "inventory-summary"
	CacheActiveVouchers   = "active-vouchers"
	CacheOrderStatistics  = "order-statistics"
)

// InvalidationOp is the kind of cache eviction a step performs.
type InvalidationOp string

const (
	OpInvalidateName    InvalidationOp = "name"
	OpInvalidatePattern InvalidationOp = "pattern"
	OpInvalidateEntity  InvalidationOp = "entity"
)

// InvalidationStep is one call on the Cache Invalidation Port.
type InvalidationStep struct {
	Op     InvalidationOp
	Target string
	Kind   ports.EntityKind
}

func invalidateName(name string) InvalidationStep {
	return InvalidationStep{Op: OpInvalidateName, Target: name}
}

func invalidatePattern(pattern string) InvalidationStep {
	return InvalidationStep{Op: OpInvalidatePattern, Target: pattern}
}

func invalidateEntity(kind ports.EntityKind, id string) InvalidationStep {
	return InvalidationStep{Op: OpInvalidateEntity, Target: id, Kind: kind}
}

// Apply performs the step against cache.
func (s InvalidationStep) Apply(ctx context.Context, cache ports.CacheInvalidator) error {
	switch s.Op {
	case OpInvalidateEntity:
		return cache.InvalidateEntity(ctx, s.Kind, s.Target)
	case OpInvalidatePattern:
		return cache.InvalidateByPattern(ctx, s.Target)
	default:
		return cache.Invalidate(ctx, s.Target)
	}
}

func (s InvalidationStep) String() string {
	if s.Op == OpInvalidateEntity {
		return fmt.Sprintf("entity(%s,%s)", s.Kind, s.Target)
	}
	return fmt.Sprintf("%s(%s)", s.Op, s.Target)
}

// IsGlobPattern reports whether entry should be matched as a pattern rather
// than evicted as a named cache.
func IsGlobPattern(entry string) bool {
	return strings.ContainsAny(entry, "*?")
}

// ProductKeyPattern matches every derived key of a product.
func ProductKeyPattern(productID string) string {
	return "product:" + productID + ":*"
}

// InvalidationPlanner is the single place that maps a change to the caches it
// invalidates. Explicit cache patterns on the event replace the derived steps.
type InvalidationPlanner struct{}

// Plan returns the steps in the order they must run.
func (InvalidationPlanner) Plan(event domain.ChangeEvent) []InvalidationStep {
	if event.HasExplicitCachePatterns() {
		steps := make([]InvalidationStep, 0, len(event.CachePatterns))
		for _, entry := range event.CachePatterns {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			if IsGlobPattern(entry) {
				steps = append(steps, invalidatePattern(entry))
			} else {
				steps = append(steps, invalidateName(entry))
			}
		}
		return steps
	}
	if event.Change == nil {
		return nil
	}
	v := &invalidationVisitor{}
	event.Change.Accept(v)
	return v.steps
}

type invalidationVisitor struct {
	steps []InvalidationStep
}

func (v *invalidationVisitor) add(steps ...InvalidationStep) {
	v.steps = append(v.steps, steps...)
}

func (v *invalidationVisitor) VisitPrice(c domain.PriceChange) {
	v.add(
		invalidateEntity(ports.EntityPrice, c.ProductID),
		invalidatePattern(ProductKeyPattern(c.ProductID)),
		invalidateName(CacheProductListings),
	)
}

func (v *invalidationVisitor) VisitInventory(c domain.InventoryUpdate) {
	v.add(invalidateEntity(ports.EntityInventory, c.VariantID))
	if c.StockStatusChanged() {
		v.add(invalidateName(CacheInventorySummary))
	}
}

func (v *invalidationVisitor) VisitVoucher(c domain.VoucherChange) {
	v.add(
		invalidateEntity(ports.EntityVoucher, c.VoucherID),
		invalidateName(CacheActiveVouchers),
	)
}

func (v *invalidationVisitor) VisitOrder(c domain.OrderChange) {
	v.add(invalidateEntity(ports.EntityOrder, c.OrderID))
	if c.IsOrderCompleted() || c.IsOrderCancelled() {
		v.add(invalidateName(CacheOrderStatistics))
	}
}

// Coordinated invalidations only ever carry explicit patterns.
func (v *invalidationVisitor) VisitCoordinated(domain.CoordinatedInvalidation) {}
