// package http implements the HTTP transport layer for the service.
// It handles incoming requests, decodes them, calls the appropriate service
// methods, and encodes the responses.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lgdx/activity-service/internal/apperrors"
	"github.com/lgdx/activity-service/internal/domain"
	"github.com/lgdx/activity-service/internal/service"
	"github.com/lgdx/activity-service/internal/stats"
	"github.com/lgdx/activity-service/internal/validation"
	"github.com/lgdx/activity-service/internal/webhook"
	"github.com/lgdx/activity-service/pkg/logger/sl"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const timeLayout = time.RFC3339

// maxWebhookBody caps delivery payloads; GitHub itself caps them at 25 MB.
const maxWebhookBody = 25 << 20

// Server holds the dependencies for the HTTP server, including the logger and service interfaces.
type Server struct {
	log           *slog.Logger
	webhookSecret string
	ingest        service.IngestService
	sync          service.SyncService
	activity      service.ActivityService
	integration   service.IntegrationService
}

// NewServer creates a new instance of the HTTP server.
func NewServer(
	log *slog.Logger,
	webhookSecret string,
	ingest service.IngestService,
	syncSvc service.SyncService,
	activity service.ActivityService,
	integration service.IntegrationService,
) *Server {
	return &Server{
		log:           log,
		webhookSecret: webhookSecret,
		ingest:        ingest,
		sync:          syncSvc,
		activity:      activity,
		integration:   integration,
	}
}

// Routes sets up the router with all middleware and API endpoints.
func (s *Server) Routes() http.Handler {
	mux := chi.NewRouter()

	mux.Use(s.requestID)
	mux.Use(s.logRequest)
	mux.Use(s.metricsMiddleware)

	mux.Handle("/metrics", promhttp.Handler())

	mux.Route("/api/github", func(r chi.Router) {
		r.Post("/webhook", s.handleWebhook)
		r.Post("/sync", s.handleSyncTrigger)
		r.Get("/sync", s.handleSyncStatus)
		r.Get("/activities", s.handleActivities)
		r.Post("/connect", s.handleConnect)
		r.Get("/connect", s.handleConnectStatus)
		r.Delete("/connect", s.handleDisconnect)
	})

	return mux
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	const op = "internal.transport.http.handleWebhook"

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		s.handleServiceError(w, r, op, fmt.Errorf("%w: failed to read body", apperrors.ErrInvalidRequest))
		return
	}
	defer r.Body.Close()

	eventType := r.Header.Get(webhook.EventHeader)

	// The signature covers the raw body, so it is verified before any parsing.
	if err := webhook.VerifySignature(body, r.Header.Get(webhook.SignatureHeader), s.webhookSecret); err != nil {
		observeWebhookDelivery(eventType, "rejected")
		s.handleServiceError(w, r, op, err)
		return
	}

	if !webhook.SupportedEvent(eventType) {
		observeWebhookDelivery(eventType, "ignored")
		s.respond(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	deliveryID := r.Header.Get(webhook.DeliveryHeader)

	if err := s.ingest.ProcessDelivery(r.Context(), deliveryID, eventType, body); err != nil {
		observeWebhookDelivery(eventType, "error")
		s.handleServiceError(w, r, op, err)
		return
	}

	observeWebhookDelivery(eventType, "processed")
	s.respond(w, http.StatusOK, map[string]string{"status": "processed"})
}

func (s *Server) handleSyncTrigger(w http.ResponseWriter, r *http.Request) {
	const op = "internal.transport.http.handleSyncTrigger"

	var req syncRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.handleServiceError(w, r, op, err)
		return
	}

	state, err := s.sync.Trigger(r.Context(), req.UserID, req.ForceSync)
	if err != nil {
		// A conflicting trigger still reports the run it lost to.
		if errors.Is(err, apperrors.ErrSyncInProgress) && state != nil {
			s.respond(w, http.StatusConflict, map[string]any{
				"error":       "sync already in progress",
				"sync_status": toSyncStateResponse(state),
			})
			return
		}

		s.handleServiceError(w, r, op, err)
		return
	}

	s.respond(w, http.StatusOK, map[string]*syncStateResponse{"sync_status": toSyncStateResponse(state)})
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	const op = "internal.transport.http.handleSyncStatus"

	userID := r.URL.Query().Get("user_id")
	if err := validation.ValidateStruct(disconnectRequest{UserID: userID}); err != nil {
		s.handleServiceError(w, r, op, err)
		return
	}

	state, err := s.sync.Status(r.Context(), userID)
	if err != nil {
		// A user who never synced is idle, not missing.
		if errors.Is(err, apperrors.ErrNotFound) {
			state = &domain.SyncState{UserID: userID, Status: domain.SyncStatusIdle}
			s.respond(w, http.StatusOK, map[string]*syncStateResponse{"sync_status": toSyncStateResponse(state)})
			return
		}

		s.handleServiceError(w, r, op, err)
		return
	}

	s.respond(w, http.StatusOK, map[string]*syncStateResponse{"sync_status": toSyncStateResponse(state)})
}

func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	const op = "internal.transport.http.handleActivities"

	query, err := parseActivitiesQuery(r)
	if err != nil {
		s.handleServiceError(w, r, op, err)
		return
	}

	var data any

	switch query.Format {
	case "chart":
		data, err = s.activity.Chart(r.Context(), query.UserID, query.Period)
	case "stats":
		var detailed *stats.Detailed
		detailed, err = s.activity.Stats(r.Context(), query.UserID, query.Period)
		if err == nil {
			data = statsEnvelope(detailed)
		}
	default:
		data, err = s.activity.Heatmap(r.Context(), query.UserID, query.Period)
	}

	if err != nil {
		s.handleServiceError(w, r, op, err)
		return
	}

	s.respond(w, http.StatusOK, activitiesResponse{
		UserID: query.UserID,
		Period: query.Period,
		Format: query.Format,
		Data:   data,
	})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	const op = "internal.transport.http.handleConnect"

	var req connectRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.handleServiceError(w, r, op, err)
		return
	}

	integration, err := s.integration.Connect(r.Context(), req.UserID, req.Code)
	if err != nil {
		s.handleServiceError(w, r, op, err)
		return
	}

	s.respond(w, http.StatusCreated, map[string]any{
		"connected":   true,
		"integration": toIntegrationResponse(integration),
	})
}

func (s *Server) handleConnectStatus(w http.ResponseWriter, r *http.Request) {
	const op = "internal.transport.http.handleConnectStatus"

	userID := r.URL.Query().Get("user_id")
	if err := validation.ValidateStruct(disconnectRequest{UserID: userID}); err != nil {
		s.handleServiceError(w, r, op, err)
		return
	}

	integration, err := s.integration.Status(r.Context(), userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.respond(w, http.StatusOK, map[string]any{"connected": false})
			return
		}

		s.handleServiceError(w, r, op, err)
		return
	}

	s.respond(w, http.StatusOK, map[string]any{
		"connected":   true,
		"integration": toIntegrationResponse(integration),
	})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	const op = "internal.transport.http.handleDisconnect"

	var req disconnectRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.handleServiceError(w, r, op, err)
		return
	}

	if err := s.integration.Disconnect(r.Context(), req.UserID); err != nil {
		s.handleServiceError(w, r, op, err)
		return
	}

	s.respond(w, http.StatusOK, map[string]bool{"disconnected": true})
}

func parseActivitiesQuery(r *http.Request) (*activitiesQuery, error) {
	q := r.URL.Query()

	query := &activitiesQuery{
		UserID: q.Get("user_id"),
		Format: q.Get("format"),
	}

	if raw := q.Get("period"); raw != "" {
		period, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: period must be an integer", apperrors.ErrInvalidRequest)
		}

		query.Period = period
	}

	if err := validation.ValidateStruct(query); err != nil {
		return nil, err
	}

	if query.Format == "" {
		query.Format = "heatmap"
	}

	if query.Period == 0 {
		query.Period = service.DefaultPeriodDays
	}

	return query, nil
}

// respond is a helper function to encode data to JSON and write it to the response.
// It centralizes setting the Content-Type header and writing the status code.
func (s *Server) respond(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.log.Error("failed to encode response", sl.Err(err))
		}
	}
}

// respondError is a convenience wrapper around respond for sending simple error messages.
func (s *Server) respondError(w http.ResponseWriter, code int, message string) {
	s.respond(w, code, map[string]string{"error": message})
}

// decodeAndValidate is a helper that deserializes a JSON request body into a struct
// and then runs validation checks on it.
func (s *Server) decodeAndValidate(r *http.Request, v interface{}) error {
	if err := s.decode(r.Body, v); err != nil {
		return err
	}

	if err := validation.ValidateStruct(v); err != nil {
		return err
	}

	return nil
}

func (s *Server) decode(body io.ReadCloser, v interface{}) error {
	defer body.Close()

	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrInvalidRequest, err)
	}

	return nil
}

// handleServiceError provides centralized error handling for all HTTP handlers.
// It logs the internal error and maps it to a user-friendly HTTP response.
func (s *Server) handleServiceError(w http.ResponseWriter, _ *http.Request, op string, err error) {
	log := s.log.With(slog.String("op", op))
	log.Error("service error occurred", sl.Err(err))

	var validationErr *validation.ValidationError

	switch {
	case errors.As(err, &validationErr):
		wrappedErr := fmt.Errorf("%w: %s", apperrors.ErrValidation, validationErr.Error())
		s.respondError(w, http.StatusBadRequest, wrappedErr.Error())
	case errors.Is(err, apperrors.ErrInvalidRequest):
		s.respondError(w, http.StatusBadRequest, "invalid request body")
	case errors.Is(err, apperrors.ErrSignature):
		s.respondError(w, http.StatusUnauthorized, "invalid webhook signature")
	case errors.Is(err, apperrors.ErrNoCredential):
		s.respondError(w, http.StatusUnauthorized, "no github credential available")
	case errors.Is(err, apperrors.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, apperrors.ErrSyncInProgress):
		s.respondError(w, http.StatusConflict, "sync already in progress")
	case errors.Is(err, apperrors.ErrRateLimited):
		s.respondError(w, http.StatusBadGateway, "github api rate limit exceeded")
	case errors.Is(err, apperrors.ErrUpstream):
		s.respondError(w, http.StatusBadGateway, "github api request failed")
	default:
		s.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
