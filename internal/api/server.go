package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"agendamento/internal/config"
	"agendamento/internal/export"
	"agendamento/internal/service"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Pinger reports whether the store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Services are the application components served over HTTP.
type Services struct {
	Reservations *service.ReservationService
	Drafts       *service.DraftService
	Users        *service.UserService
	Exporter     *export.Exporter
	Health       Pinger
	TimeSlots    []string
}

// HTTPServer exposes the booking API to the school's web front end.
type HTTPServer struct {
	cfg      config.APIConfig
	services Services
	auth     *Auth
	router   *mux.Router
	server   *http.Server
	log      zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, services Services, logger *zerolog.Logger) *HTTPServer {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "http").Logger()
	}

	s := &HTTPServer{
		cfg:      cfg,
		services: services,
		log:      base,
	}
	s.auth = NewAuth(cfg, services.Users, logger)
	s.router = s.routes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

func (s *HTTPServer) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(recoverMiddleware(s.log), loggingMiddleware(s.log))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.auth.Middleware)

	api.HandleFunc("/resources", s.handleResources).Methods(http.MethodGet)
	api.HandleFunc("/time-slots", s.handleTimeSlots).Methods(http.MethodGet)
	api.HandleFunc("/occupancy", s.handleOccupancy).Methods(http.MethodGet)

	api.HandleFunc("/reservations/check", s.handleCheck).Methods(http.MethodPost)
	api.HandleFunc("/reservations/summary", s.handleSummary).Methods(http.MethodGet)
	api.HandleFunc("/reservations", s.handleListReservations).Methods(http.MethodGet)
	api.HandleFunc("/reservations", s.handleCreateReservations).Methods(http.MethodPost)
	api.HandleFunc("/reservations/{id}", s.handleEditReservation).Methods(http.MethodPatch)
	api.HandleFunc("/reservations/{id}", s.handleDeleteReservation).Methods(http.MethodDelete)
	api.HandleFunc("/reservations/{id}/confirm", s.handleConfirmReservation).Methods(http.MethodPost)
	api.HandleFunc("/reservations/{id}/cancel", s.handleCancelReservation).Methods(http.MethodPost)

	api.HandleFunc("/draft", s.handleGetDraft).Methods(http.MethodGet)
	api.HandleFunc("/draft", s.handleSaveDraft).Methods(http.MethodPut)
	api.HandleFunc("/draft", s.handleClearDraft).Methods(http.MethodDelete)

	api.HandleFunc("/me", s.handleMe).Methods(http.MethodGet)
	api.HandleFunc("/me/telegram", s.handleLinkTelegram).Methods(http.MethodPut)

	api.HandleFunc("/export.xlsx", s.handleExport).Methods(http.MethodGet)
	return r
}

// Handler returns the routed handler, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.services.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.services.Health.PingContext(ctx); err != nil {
			s.log.Error().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
