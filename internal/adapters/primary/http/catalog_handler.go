package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/lorrc/backoffice-realtime/internal/adapters/primary/http/middleware"
	"github.com/lorrc/backoffice-realtime/internal/adapters/primary/validation"
	"github.com/lorrc/backoffice-realtime/internal/core/ports"
)

// CatalogHandler serves product and variant endpoints.
type CatalogHandler struct {
	catalog      ports.CatalogService
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewCatalogHandler creates a catalog handler.
func NewCatalogHandler(catalog ports.CatalogService, errorHandler *ErrorHandler, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog:      catalog,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// ChangePriceRequest sets a product price in minor units.
type ChangePriceRequest struct {
	Price  *int64 `json:"price"`
	Reason string `json:"reason"`
}

// AdjustStockRequest either applies a delta or replaces the quantity.
type AdjustStockRequest struct {
	Delta    *int   `json:"delta"`
	Quantity *int   `json:"quantity"`
	Reason   string `json:"reason"`
}

// HandleGetProduct returns one product.
func (h *CatalogHandler) HandleGetProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")
	if HandleError(w, r, validateID("id", productID), h.errorHandler) {
		return
	}

	product, err := h.catalog.GetProduct(r.Context(), productID)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}
	WriteSuccess(w, product)
}

// HandleChangePrice reprices a product.
func (h *CatalogHandler) HandleChangePrice(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")
	if HandleError(w, r, validateID("id", productID), h.errorHandler) {
		return
	}

	req, err := validation.DecodeAndValidate[ChangePriceRequest](r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	v := validation.NewValidator()
	v.Custom("price", req.Price != nil, "This field is required")
	if req.Price != nil {
		v.MinInt64("price", *req.Price, 0)
	}
	v.MaxLength("reason", req.Reason, 500)
	if HandleError(w, r, v.Err(), h.errorHandler) {
		return
	}

	product, err := h.catalog.ChangePrice(r.Context(), ports.ChangePriceParams{
		ProductID: productID,
		NewPrice:  *req.Price,
		Actor:     actorFrom(r),
		Reason:    req.Reason,
	})
	if HandleError(w, r, err, h.errorHandler) {
		return
	}
	WriteSuccess(w, product)
}

// HandleGetVariant returns one variant.
func (h *CatalogHandler) HandleGetVariant(w http.ResponseWriter, r *http.Request) {
	variantID := chi.URLParam(r, "id")
	if HandleError(w, r, validateID("id", variantID), h.errorHandler) {
		return
	}

	variant, err := h.catalog.GetVariant(r.Context(), variantID)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}
	WriteSuccess(w, variant)
}

// HandleAdjustStock changes a variant's stock level.
func (h *CatalogHandler) HandleAdjustStock(w http.ResponseWriter, r *http.Request) {
	variantID := chi.URLParam(r, "id")
	if HandleError(w, r, validateID("id", variantID), h.errorHandler) {
		return
	}

	req, err := validation.DecodeAndValidate[AdjustStockRequest](r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	v := validation.NewValidator()
	v.Custom("delta", (req.Delta == nil) != (req.Quantity == nil), "Exactly one of delta or quantity is required")
	if req.Quantity != nil {
		v.MinInt64("quantity", int64(*req.Quantity), 0)
	}
	v.MaxLength("reason", req.Reason, 500)
	if HandleError(w, r, v.Err(), h.errorHandler) {
		return
	}

	params := ports.AdjustStockParams{
		VariantID: variantID,
		Quantity:  req.Quantity,
		Actor:     actorFrom(r),
		Reason:    req.Reason,
	}
	if req.Delta != nil {
		params.Delta = *req.Delta
	}

	variant, err := h.catalog.AdjustStock(r.Context(), params)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}
	WriteSuccess(w, variant)
}

func validateID(field, id string) error {
	return validation.NewValidator().
		Required(field, id).
		MaxLength(field, id, 64).
		Identifier(field, id).
		Err()
}

func actorFrom(r *http.Request) string {
	if claims, ok := mw.GetClaims(r.Context()); ok {
		return claims.Username
	}
	return ""
}
