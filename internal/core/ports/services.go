package ports

import (
	"context"

	"github.com/lorrc/backoffice-realtime/internal/core/domain"
)

// ChangePriceParams defines the input for repricing a product.
type ChangePriceParams struct {
	ProductID string
	NewPrice  int64
	Actor     string
	Reason    string
}

// AdjustStockParams defines the input for changing a variant's stock level.
// Delta is applied when Quantity is nil.
type AdjustStockParams struct {
	VariantID string
	Delta     int
	Quantity  *int
	Actor     string
	Reason    string
}

// TriggerInvalidationParams defines an operator-driven cache purge.
type TriggerInvalidationParams struct {
	EntityType string
	EntityIDs  []string
	Patterns   []string
	Topics     []string
	Actor      string
	Reason     string
}

// CatalogService defines the catalog operations that raise change events.
type CatalogService interface {
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
	GetVariant(ctx context.Context, variantID string) (*domain.Variant, error)
	ChangePrice(ctx context.Context, params ChangePriceParams) (*domain.Product, error)
	AdjustStock(ctx context.Context, params AdjustStockParams) (*domain.Variant, error)
	TriggerInvalidation(ctx context.Context, params TriggerInvalidationParams) error
}

// ChangeNotifier receives change events raised by entity services.
type ChangeNotifier interface {
	OnEntityChanged(ctx context.Context, event domain.ChangeEvent)
}

// MessageRouter routes envelopes to broker channels.
type MessageRouter interface {
	Route(ctx context.Context, destination string, payload any, messageType, sourceService string)
	RouteToUser(ctx context.Context, username, destination string, payload any, messageType string)
}

// HealthReporter is the read and control surface of the connection health monitor.
type HealthReporter interface {
	Snapshot() domain.HealthSnapshot
	Connections() []domain.ConnectionInfo
	TriggerHealthCheck() domain.HealthSnapshot
	TriggerHealthBroadcast(ctx context.Context) domain.HealthSnapshot
}

// ErrorReporter is the read and control surface of the error recovery manager.
type ErrorReporter interface {
	SessionErrorRecorder
	Stats() domain.ErrorStats
	Errors() []domain.ErrorInfo
}

// TransactionManager defines the port for running atomic operations.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
