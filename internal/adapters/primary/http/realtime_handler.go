package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/lorrc/backoffice-realtime/internal/adapters/primary/validation"
	"github.com/lorrc/backoffice-realtime/internal/core/domain"
	apperrors "github.com/lorrc/backoffice-realtime/internal/core/errors"
	"github.com/lorrc/backoffice-realtime/internal/core/ports"
)

// maxInvalidationEntries bounds each list in an invalidation request.
const maxInvalidationEntries = 100

// StatsFunc returns a point-in-time view of one pipeline component.
type StatsFunc func() any

// RealtimeHandler exposes the operator surface of the realtime pipeline.
type RealtimeHandler struct {
	health       ports.HealthReporter
	errors       ports.ErrorReporter
	catalog      ports.CatalogService
	stats        map[string]StatsFunc
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewRealtimeHandler creates a realtime handler. stats is keyed by component name.
func NewRealtimeHandler(
	health ports.HealthReporter,
	errs ports.ErrorReporter,
	catalog ports.CatalogService,
	stats map[string]StatsFunc,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *RealtimeHandler {
	return &RealtimeHandler{
		health:       health,
		errors:       errs,
		catalog:      catalog,
		stats:        stats,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// HealthResponseBody is the realtime health view.
type HealthResponseBody struct {
	domain.HealthSnapshot
	Connections []domain.ConnectionInfo `json:"connections"`
}

// ErrorsResponseBody is the per-session error view.
type ErrorsResponseBody struct {
	Stats    domain.ErrorStats  `json:"stats"`
	Sessions []domain.ErrorInfo `json:"sessions"`
}

// HandleHealth returns the current snapshot and live connections.
func (h *RealtimeHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	connections := h.health.Connections()
	if connections == nil {
		connections = []domain.ConnectionInfo{}
	}
	WriteSuccess(w, HealthResponseBody{
		HealthSnapshot: h.health.Snapshot(),
		Connections:    connections,
	})
}

// HandleHealthCheck runs a sweep immediately.
func (h *RealtimeHandler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	WriteOperation(w, "health check completed", h.health.TriggerHealthCheck())
}

// HandleHealthBroadcast publishes the current snapshot to subscribers.
func (h *RealtimeHandler) HandleHealthBroadcast(w http.ResponseWriter, r *http.Request) {
	WriteOperation(w, "health status broadcast", h.health.TriggerHealthBroadcast(r.Context()))
}

// HandleErrors returns error statistics and open error episodes.
func (h *RealtimeHandler) HandleErrors(w http.ResponseWriter, r *http.Request) {
	sessions := h.errors.Errors()
	if sessions == nil {
		sessions = []domain.ErrorInfo{}
	}
	WriteSuccess(w, ErrorsResponseBody{
		Stats:    h.errors.Stats(),
		Sessions: sessions,
	})
}

// TestErrorRequest records a synthetic session error.
type TestErrorRequest struct {
	SessionID string `json:"sessionId"`
	ErrorType string `json:"errorType"`
	Message   string `json:"message"`
}

// HandleTestError injects an error so operators can exercise recovery.
func (h *RealtimeHandler) HandleTestError(w http.ResponseWriter, r *http.Request) {
	req, err := validation.DecodeAndValidate[TestErrorRequest](r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	if strings.TrimSpace(req.SessionID) == "" {
		h.errorHandler.Handle(w, r, apperrors.ErrSessionRequired)
		return
	}
	v := validation.NewValidator()
	v.MaxLength("sessionId", req.SessionID, 128)
	v.MaxLength("message", req.Message, 500)
	if HandleError(w, r, v.Err(), h.errorHandler) {
		return
	}

	errorType := domain.ParseErrorType(req.ErrorType)
	message := req.Message
	if strings.TrimSpace(message) == "" {
		message = "operator test error"
	}
	h.errors.RecordError(req.SessionID, message, errorType)

	h.logger.InfoContext(r.Context(), "test error recorded",
		"session_id", req.SessionID,
		"error_type", errorType,
	)
	WriteOperation(w, "test error recorded for session "+req.SessionID, nil)
}

// HandleStats returns per-component counters.
func (h *RealtimeHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]any, len(h.stats)+2)
	for name, fn := range h.stats {
		out[name] = fn()
	}
	out["health"] = h.health.Snapshot()
	out["errors"] = h.errors.Stats()
	WriteSuccess(w, out)
}

// InvalidationRequest is an operator-driven cache purge.
type InvalidationRequest struct {
	EntityType string   `json:"entityType"`
	EntityIDs  []string `json:"entityIds"`
	Patterns   []string `json:"patterns"`
	Topics     []string `json:"topics"`
	Reason     string   `json:"reason"`
}

// HandleInvalidation raises a coordinated invalidation.
func (h *RealtimeHandler) HandleInvalidation(w http.ResponseWriter, r *http.Request) {
	req, err := validation.DecodeAndValidate[InvalidationRequest](r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	v := validation.NewValidator()
	v.Required("entityType", req.EntityType).MaxLength("entityType", req.EntityType, 64)
	v.Custom("patterns", len(req.Patterns) > 0, "At least one pattern is required")
	v.MaxItems("patterns", len(req.Patterns), maxInvalidationEntries)
	v.MaxItems("entityIds", len(req.EntityIDs), maxInvalidationEntries)
	v.MaxItems("topics", len(req.Topics), maxInvalidationEntries)
	for _, topic := range req.Topics {
		v.Custom("topics", strings.HasPrefix(topic, domain.TopicPrefix), "Topics must start with "+domain.TopicPrefix)
	}
	v.MaxLength("reason", req.Reason, 500)
	if HandleError(w, r, v.Err(), h.errorHandler) {
		return
	}

	err = h.catalog.TriggerInvalidation(r.Context(), ports.TriggerInvalidationParams{
		EntityType: req.EntityType,
		EntityIDs:  req.EntityIDs,
		Patterns:   req.Patterns,
		Topics:     req.Topics,
		Actor:      actorFrom(r),
		Reason:     req.Reason,
	})
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteOperation(w, "invalidation scheduled", nil)
}
