package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Priority expresses how urgently a change should reach clients.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityNormal Priority = "NORMAL"
	PriorityLow    Priority = "LOW"
)

// IsValid checks if the priority is one of the known values
func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// ChangeKind discriminates the change carried by a ChangeEvent.
type ChangeKind string

const (
	KindPriceChange             ChangeKind = "PRICE_CHANGE"
	KindInventoryUpdate         ChangeKind = "INVENTORY_UPDATE"
	KindVoucherChange           ChangeKind = "VOUCHER_CHANGE"
	KindOrderChange             ChangeKind = "ORDER_CHANGE"
	KindCoordinatedInvalidation ChangeKind = "COORDINATED_INVALIDATION"
)

// ChangeVisitor has one method per change kind. Code that branches on the kind
// implements it, so a new kind fails to compile until every visitor handles it.
type ChangeVisitor interface {
	VisitPrice(c PriceChange)
	VisitInventory(c InventoryUpdate)
	VisitVoucher(c VoucherChange)
	VisitOrder(c OrderChange)
	VisitCoordinated(c CoordinatedInvalidation)
}

// Change is the closed set of kind-specific payloads.
type Change interface {
	Kind() ChangeKind
	Accept(v ChangeVisitor)
	validate() error
}

// ChangeEvent describes a business mutation relevant to caches and clients.
// Events are values; nothing downstream mutates them.
type ChangeEvent struct {
	EntityID  string
	Data      EventData
	Actor     string
	Reason    string
	Timestamp time.Time
	Priority  Priority

	// CachePatterns overrides the cache keys derived from the kind when set.
	CachePatterns []string
	// Topics overrides the data-update destinations derived from the kind when set.
	Topics []string

	Change Change
}

var (
	ErrEventEntityRequired  = errors.New("change event entity id is required")
	ErrEventChangeRequired  = errors.New("change event payload is required")
	ErrEventInvalidPriority = errors.New("change event priority is invalid")
	ErrEventPatternsMissing = errors.New("coordinated invalidation requires cache patterns")
)

// EventOption customizes a ChangeEvent at construction.
type EventOption func(*ChangeEvent)

// WithActor records who made the change.
func WithActor(actor string) EventOption {
	return func(e *ChangeEvent) { e.Actor = actor }
}

// WithReason records why the change was made.
func WithReason(reason string) EventOption {
	return func(e *ChangeEvent) { e.Reason = reason }
}

// WithPriority overrides the default priority.
func WithPriority(p Priority) EventOption {
	return func(e *ChangeEvent) { e.Priority = p }
}

// WithCachePatterns sets explicit cache names or patterns.
func WithCachePatterns(patterns ...string) EventOption {
	return func(e *ChangeEvent) { e.CachePatterns = append([]string(nil), patterns...) }
}

// WithTopics sets explicit notification destinations.
func WithTopics(topics ...string) EventOption {
	return func(e *ChangeEvent) { e.Topics = append([]string(nil), topics...) }
}

// WithData appends an entry to the event data.
func WithData(key string, value any) EventOption {
	return func(e *ChangeEvent) { e.Data = e.Data.With(key, value) }
}

// WithTimestamp pins the event time.
func WithTimestamp(ts time.Time) EventOption {
	return func(e *ChangeEvent) { e.Timestamp = ts }
}

// NewChangeEvent builds an event for the given change. The entity id is taken
// from the change itself.
func NewChangeEvent(change Change, opts ...EventOption) ChangeEvent {
	event := ChangeEvent{
		Timestamp: time.Now().UTC(),
		Priority:  defaultPriority(change),
		Change:    change,
	}
	if change != nil {
		event.EntityID = entityIDOf(change)
	}
	for _, opt := range opts {
		opt(&event)
	}
	return event
}

// Kind returns the kind of the carried change, or "" when none is set.
func (e ChangeEvent) Kind() ChangeKind {
	if e.Change == nil {
		return ""
	}
	return e.Change.Kind()
}

// HasExplicitCachePatterns reports whether the event overrides derived cache
// keys. Blank entries do not count.
func (e ChangeEvent) HasExplicitCachePatterns() bool {
	return hasNonBlank(e.CachePatterns)
}

// HasExplicitTopics reports whether the event overrides derived destinations.
func (e ChangeEvent) HasExplicitTopics() bool {
	return hasNonBlank(e.Topics)
}

func hasNonBlank(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// Validate checks the invariants shared by all kinds plus the kind's own.
func (e ChangeEvent) Validate() error {
	if e.Change == nil {
		return ErrEventChangeRequired
	}
	if strings.TrimSpace(e.EntityID) == "" {
		return ErrEventEntityRequired
	}
	if !e.Priority.IsValid() {
		return fmt.Errorf("%w: %q", ErrEventInvalidPriority, e.Priority)
	}
	if e.Kind() == KindCoordinatedInvalidation && !e.HasExplicitCachePatterns() {
		return ErrEventPatternsMissing
	}
	return e.Change.validate()
}

// String renders a compact description used in logs.
func (e ChangeEvent) String() string {
	return fmt.Sprintf("%s[%s]", e.Kind(), e.EntityID)
}

type priorityVisitor struct{ p Priority }

func (v *priorityVisitor) VisitPrice(PriceChange) {}
func (v *priorityVisitor) VisitInventory(c InventoryUpdate) {
	if c.IsNowOutOfStock() {
		v.p = PriorityHigh
	}
}
func (v *priorityVisitor) VisitVoucher(VoucherChange)               {}
func (v *priorityVisitor) VisitOrder(OrderChange)                   { v.p = PriorityHigh }
func (v *priorityVisitor) VisitCoordinated(CoordinatedInvalidation) { v.p = PriorityHigh }

func defaultPriority(change Change) Priority {
	if change == nil {
		return PriorityNormal
	}
	v := &priorityVisitor{p: PriorityNormal}
	change.Accept(v)
	return v.p
}

type entityIDVisitor struct{ id string }

func (v *entityIDVisitor) VisitPrice(c PriceChange)         { v.id = c.ProductID }
func (v *entityIDVisitor) VisitInventory(c InventoryUpdate) { v.id = c.VariantID }
func (v *entityIDVisitor) VisitVoucher(c VoucherChange)     { v.id = c.VoucherID }
func (v *entityIDVisitor) VisitOrder(c OrderChange)         { v.id = c.OrderID }
func (v *entityIDVisitor) VisitCoordinated(c CoordinatedInvalidation) {
	v.id = c.EntityType
	if len(c.EntityIDs) == 1 {
		v.id = c.EntityType + ":" + c.EntityIDs[0]
	}
}

func entityIDOf(change Change) string {
	v := &entityIDVisitor{}
	change.Accept(v)
	return v.id
}
