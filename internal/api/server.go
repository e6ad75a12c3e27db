package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mattjoyce/hwcd/internal/auth"
	"github.com/mattjoyce/hwcd/internal/display"
	"github.com/mattjoyce/hwcd/internal/events"
	"github.com/mattjoyce/hwcd/internal/metrics"
	"github.com/mattjoyce/hwcd/internal/state"
)

// Display is the session surface exposed over HTTP.
type Display interface {
	Perform(op display.Operation) error
	Refresh() error
	SetSecureDisplay(active bool)
	SetPaused(paused bool)
	Snapshot() display.Snapshot
}

// SessionHistory lists past display sessions.
type SessionHistory interface {
	Recent(ctx context.Context, displayID string, limit int) ([]state.SessionRecord, error)
}

// PropertyStore is the reloadable property source.
type PropertyStore interface {
	Reload() error
	Snapshot() map[string]int
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is the legacy single bearer token (admin/full access).
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens []auth.TokenConfig
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	keys      *auth.Keyring
	display   Display
	events    *events.Hub
	history   SessionHistory
	props     PropertyStore
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance. history and props may be nil; their
// routes then answer 404.
func New(config Config, d Display, hub *events.Hub, history SessionHistory, props PropertyStore, logger *slog.Logger) *Server {
	if hub == nil {
		hub = events.NewHub(256)
	}
	return &Server{
		config:    config,
		keys:      auth.NewKeyring(config.APIKey, config.Tokens),
		display:   d,
		events:    hub,
		history:   history,
		props:     props,
		logger:    logger.With("component", "api"),
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: /events streams indefinitely.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed API without binding a listener.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoints.
	r.Get("/healthz", s.handleHealthz)
	r.Get("/openapi.json", s.handleOpenAPI)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.With(s.requireScopes(auth.ScopeMetricsRead)).Handle("/metrics", promhttp.Handler())
		r.With(s.requireScopes(auth.ScopeEventsRead)).Get("/events", s.handleEvents)

		r.Route("/display", func(r chi.Router) {
			r.With(s.requireScopes(auth.ScopeDisplayRead)).Get("/", s.handleStatus)
			r.With(s.requireScopes(auth.ScopeDisplayRead)).Get("/sessions", s.handleSessions)
			r.With(s.requireScopes(auth.ScopeDisplayWrite)).Post("/perform", s.handlePerform)
			r.With(s.requireScopes(auth.ScopeDisplayWrite)).Post("/refresh", s.handleRefresh)
			r.With(s.requireScopes(auth.ScopeDisplayWrite)).Put("/secure", s.handleSecure)
			r.With(s.requireScopes(auth.ScopeDisplayWrite)).Put("/paused", s.handlePaused)
		})

		r.With(s.requireScopes(auth.ScopeDisplayRead)).Get("/properties", s.handleProperties)
		r.With(s.requireScopes(auth.ScopeDisplayWrite)).Post("/properties/reload", s.handleReloadProperties)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.APIRequestsTotal.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()

		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
