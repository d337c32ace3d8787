package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	mw "github.com/lorrc/backoffice-realtime/internal/adapters/primary/http/middleware"
	"github.com/lorrc/backoffice-realtime/internal/auth"
)

// RouterConfig collects the handlers and middleware the API is built from.
type RouterConfig struct {
	Logger         *slog.Logger
	TokenManager   *auth.TokenManager
	RateLimiter    *mw.RateLimiter
	AllowedOrigins []string
	MetricsHandler http.Handler

	Health    *HealthHandler
	Realtime  *RealtimeHandler
	Catalog   *CatalogHandler
	WebSocket *WebSocketHandler
}

// NewRouter builds the HTTP surface.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(cfg.Logger))
	r.Use(mw.RecoveryLogger(cfg.Logger))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", mw.RequestIDHeader},
		ExposedHeaders:   []string{mw.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoints (outside /api/v1 for standard probe paths)
	r.Get("/health", cfg.Health.HandleHealth)
	r.Get("/health/live", cfg.Health.HandleLiveness)
	r.Get("/health/ready", cfg.Health.HandleReadiness)

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// WebSocket route (Authentication is handled inside the handler)
	r.Get("/ws", cfg.WebSocket.ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Middleware)
		}
		r.Use(mw.JWTMiddleware(cfg.TokenManager))
		r.Use(mw.RequireRole(auth.RoleAdmin, auth.RoleStaff))

		r.Route("/realtime", cfg.Realtime.RegisterRoutes)
		cfg.Catalog.RegisterRoutes(r)
	})

	return r
}

// RegisterRoutes mounts the realtime operator routes.
func (h *RealtimeHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Post("/health/check", h.HandleHealthCheck)
	r.Post("/health/broadcast", h.HandleHealthBroadcast)
	r.Get("/errors", h.HandleErrors)
	r.Post("/errors/test", h.HandleTestError)
	r.Get("/stats", h.HandleStats)
	r.Post("/invalidations", h.HandleInvalidation)
}

// RegisterRoutes mounts the catalog routes.
func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/products/{id}", h.HandleGetProduct)
	r.Put("/products/{id}/price", h.HandleChangePrice)
	r.Get("/variants/{id}", h.HandleGetVariant)
	r.Put("/variants/{id}/stock", h.HandleAdjustStock)
}
