// Package api exposes the scheduling engine over HTTP JSON.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/goncalojustino/tempusfugit-public-sub000/internal/civiltime"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/config"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/metrics"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/models"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/service"
)

// Engine is the slice of the reservation service the HTTP layer needs.
type Engine interface {
	Resources() []models.Resource
	Create(ctx context.Context, req service.CreateRequest) (*models.Reservation, error)
	Get(ctx context.Context, id int64) (*models.Reservation, error)
	Approve(ctx context.Context, id int64, actor string, privileged bool) (*models.Reservation, error)
	Deny(ctx context.Context, id int64, actor string, privileged bool) (*models.Reservation, error)
	Cancel(ctx context.Context, id int64, requester string, privileged bool, reason string) (*models.Reservation, error)
	ResolveCancel(ctx context.Context, id int64, actor string, privileged bool, accept bool) (*models.Reservation, error)
	Remove(ctx context.Context, id int64, actor string, privileged bool, reason string) (*models.Reservation, error)
	ListSlots(ctx context.Context, resourceID int64, day civiltime.Date, privileged bool) ([]models.Slot, error)
	DaySheet(ctx context.Context, resourceID int64, day civiltime.Date, privileged bool) (*models.DaySheet, error)
	ListOccupied(ctx context.Context, resourceID int64, from, to time.Time, privileged bool) ([]models.Reservation, error)
	ListBlackouts(ctx context.Context, resourceID int64, from, to time.Time, privileged bool) ([]models.Blackout, error)
	ListPending(ctx context.Context) ([]models.Reservation, error)
	ListAll(ctx context.Context, f models.ReservationFilter) ([]models.Reservation, error)
}

// HTTPServer serves the reservation API.
type HTTPServer struct {
	cfg    config.APIConfig
	engine Engine
	auth   *Auth
	server *http.Server
	logger zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, engine Engine, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:    cfg,
		engine: engine,
		auth:   NewAuth(cfg),
		logger: logger.With().Str("component", "http").Logger(),
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

// Handler builds the routed, authenticated handler chain.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/resources", s.handleResources)
	mux.HandleFunc("GET /api/v1/resources/{id}/slots", s.handleSlots)
	mux.HandleFunc("GET /api/v1/resources/{id}/sheet", s.handleSheet)
	mux.HandleFunc("GET /api/v1/resources/{id}/occupied", s.handleOccupied)
	mux.HandleFunc("GET /api/v1/resources/{id}/blackouts", s.handleBlackouts)

	mux.HandleFunc("POST /api/v1/reservations", s.handleCreate)
	mux.HandleFunc("GET /api/v1/reservations", s.handleList)
	mux.HandleFunc("GET /api/v1/reservations/pending", s.handlePending)
	mux.HandleFunc("GET /api/v1/reservations/{id}", s.handleGet)
	mux.HandleFunc("POST /api/v1/reservations/{id}/approve", s.handleApprove)
	mux.HandleFunc("POST /api/v1/reservations/{id}/deny", s.handleDeny)
	mux.HandleFunc("POST /api/v1/reservations/{id}/cancel", s.handleCancel)
	mux.HandleFunc("POST /api/v1/reservations/{id}/resolve-cancel", s.handleResolveCancel)
	mux.HandleFunc("POST /api/v1/reservations/{id}/remove", s.handleRemove)

	return s.loggingMiddleware(s.authMiddleware(mux))
}

func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("http api listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type identityKey struct{}

func identityFrom(r *http.Request) Identity {
	if id, ok := r.Context().Value(identityKey{}).(Identity); ok {
		return id
	}
	return Identity{}
}

func (s *HTTPServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.auth.Authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if err := s.auth.CheckRateLimit(r); err != nil {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		dur := time.Since(start)

		metrics.ObserveHTTPRequest(r.URL.Path, strconv.Itoa(recorder.status), dur.Seconds())
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", dur).
			Msg("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// writeEngineError maps engine error kinds onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	switch service.KindOf(err) {
	case service.KindValidation:
		statusCode = http.StatusBadRequest
	case service.KindAuthorization:
		statusCode = http.StatusForbidden
	case service.KindNotFound:
		statusCode = http.StatusNotFound
	case service.KindConflict:
		statusCode = http.StatusConflict
	case service.KindPolicy:
		statusCode = http.StatusUnprocessableEntity
	}
	writeError(w, statusCode, err.Error())
}
