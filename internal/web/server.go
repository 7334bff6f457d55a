// Package web serves the import API over HTTP.
//
// All routes live under /api/imports and answer JSON. Errors are mapped to
// status codes and coded user messages in one place (errors.go), so
// handlers only return what the importer service gave them.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/JonMunkholm/sheetimport/internal/config"
	"github.com/JonMunkholm/sheetimport/internal/importer"
	"github.com/JonMunkholm/sheetimport/internal/web/middleware"
)

const defaultEventInterval = 500 * time.Millisecond

// Server is the HTTP front of the importer service.
type Server struct {
	service *importer.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server

	limiters      []*rateLimiter
	eventInterval time.Duration
	healthCheck   func(context.Context) error
}

// Option configures a Server.
type Option func(*Server)

// WithEventInterval sets how often the event stream re-reads a job.
func WithEventInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.eventInterval = d
		}
	}
}

// WithHealthCheck makes /healthz report 503 while check fails.
func WithHealthCheck(check func(context.Context) error) Option {
	return func(s *Server) {
		s.healthCheck = check
	}
}

// NewServer creates a Server with its middleware and routes in place.
func NewServer(service *importer.Service, cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		service:       service,
		cfg:           cfg,
		router:        chi.NewRouter(),
		eventInterval: defaultEventInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware shared by every route.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Server.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(securityHeaders)
	s.router.Use(cors.New(cors.Options{
		AllowedOrigins: s.cfg.Server.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Accept", "X-Request-Id"},
		ExposedHeaders: []string{"Location", "Retry-After", "X-Request-Id"},
		MaxAge:         300,
	}).Handler)

	if s.cfg.Rate.Enabled {
		s.router.Use(s.newLimiter(s.cfg.Rate.RequestsPerMinute).middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api/imports", func(r chi.Router) {
		// The event stream stays open until the job finishes, so it runs
		// outside the request timeout and compression.
		r.Get("/jobs/{jobID}/events", s.handleJobEvents)

		r.Group(func(r chi.Router) {
			if s.cfg.Server.RequestTimeout > 0 {
				r.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
			}
			r.Use(chimw.Compress(5))

			r.Get("/modules", s.handleListModules)
			r.Get("/jobs/{jobID}", s.handleJobStatus)
			r.Post("/jobs/{jobID}/cancel", s.handleCancelJob)
			r.Get("/{moduleKey}/fields", s.handleFields)
			r.Get("/{moduleKey}/template", s.handleTemplate)

			r.Group(func(r chi.Router) {
				if s.cfg.Rate.Enabled && s.cfg.Rate.UploadLimit > 0 {
					r.Use(s.newLimiter(s.cfg.Rate.UploadLimit).middleware)
				}
				r.Post("/{moduleKey}/preview", s.handlePreview)
				r.Post("/{moduleKey}/confirm", s.handleConfirm)
			})
		})
	})
}

func (s *Server) newLimiter(perMinute int) *rateLimiter {
	rl := newRateLimiter(perMinute, time.Minute)
	s.limiters = append(s.limiters, rl)
	return rl
}

// Start begins listening for HTTP requests. It returns
// http.ErrServerClosed after Shutdown.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server and its rate limiters.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, rl := range s.limiters {
		rl.stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are only logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
