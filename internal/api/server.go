// Package api exposes the scheduling core over JSON/HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"telecare/internal/appointments"
	"telecare/internal/domain"
	"telecare/internal/schedule"
	"telecare/internal/slots"
	"telecare/shared/access"
	"telecare/shared/audit"

	"github.com/rs/zerolog"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Config holds the HTTP server settings.
type Config struct {
	Port           int
	APIKeys        []string
	RateLimitRPS   float64
	RateLimitBurst int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Deps are the services behind the endpoints.
type Deps struct {
	Appointments *appointments.Service
	Schedule     *schedule.Service
	Generator    *slots.Generator
	Access       *access.Service
	Audit        *audit.Service
	Clock        domain.Clock
	// Ready lists the dependencies checked by /readyz.
	Ready map[string]Pinger
}

// HTTPServer serves the API.
type HTTPServer struct {
	server  *http.Server
	deps    Deps
	keys    map[string]struct{}
	limiter *clientLimiter
	logger  zerolog.Logger
}

// NewHTTPServer builds the server and its routes.
func NewHTTPServer(cfg Config, deps Deps, logger zerolog.Logger) *HTTPServer {
	if deps.Clock == nil {
		deps.Clock = domain.SystemClock
	}

	keys := make(map[string]struct{}, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = struct{}{}
		}
	}

	s := &HTTPServer{
		deps:    deps,
		keys:    keys,
		limiter: newClientLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		logger:  logger.With().Str("component", "api").Logger(),
	}

	mux := http.NewServeMux()
	s.routes(mux)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.recoverer(mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	s.handle(mux, "GET /doctor/appointments", "doctor_appointments", s.handleDoctorAppointments)
	s.handle(mux, "PATCH /doctor/cancelAppointment", "cancel_appointment", s.handleCancelAppointment)
	s.handle(mux, "GET /doctor/sessions", "list_sessions", s.handleListSessions)
	s.handle(mux, "POST /doctor/sessions", "create_session", s.handleCreateSession)
	s.handle(mux, "PATCH /doctor/sessions", "update_session", s.handleUpdateSession)
	s.handle(mux, "DELETE /doctor/sessions", "delete_session", s.handleDeleteSession)
	s.handle(mux, "PATCH /doctor/availability/day", "day_availability", s.handleDayAvailability)
	s.handle(mux, "PATCH /doctor/availability/session", "session_availability", s.handleSessionAvailability)
	s.handle(mux, "GET /doctor/slots", "doctor_slots", s.handleDoctorSlots)

	s.handle(mux, "GET /slots", "slots", s.handlePublicSlots)
	s.handle(mux, "POST /appointments", "book", s.handleBook)
	s.handle(mux, "GET /users/wallet", "wallet", s.handleWallet)

	s.handle(mux, "GET /admin/users/block", "list_blocked", s.handleListBlocked)
	s.handle(mux, "POST /admin/users/block", "block_user", s.handleBlockUser)
	s.handle(mux, "DELETE /admin/users/block", "unblock_user", s.handleUnblockUser)
	s.handle(mux, "GET /admin/transactions/export", "export_transactions", s.handleExportTransactions)
}

// handle registers an authenticated, rate limited and instrumented route.
func (s *HTTPServer) handle(mux *http.ServeMux, pattern, name string, h http.HandlerFunc) {
	mux.Handle(pattern, s.instrument(name, s.authenticate(s.rateLimit(h))))
}

// Handler returns the root handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("api server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.deps.Ready))
	status := http.StatusOK
	for name, p := range s.deps.Ready {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, status, map[string]any{"ready": status == http.StatusOK, "checks": checks})
}
