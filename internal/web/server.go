// Package web provides the HTTP API over open JSON documents: document
// creation, paging, search and Server-Sent Event streams of ingestion
// progress.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/JonMunkholm/jsonview/internal/config"
	"github.com/JonMunkholm/jsonview/internal/core"
	"github.com/JonMunkholm/jsonview/internal/logging"
	"github.com/JonMunkholm/jsonview/internal/metrics"
	mw "github.com/JonMunkholm/jsonview/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP server for the document API.
type Server struct {
	cfg     *config.Config
	service *core.Service
	metrics *metrics.Metrics
	router  *chi.Mux
	server  *http.Server

	limiters []*mw.RateLimiter

	// heartbeat is the interval of SSE keep-alive comments.
	heartbeat time.Duration
}

// NewServer creates a new Server instance. m may be nil, which disables
// the metrics route.
func NewServer(cfg *config.Config, service *core.Service, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:       cfg,
		service:   service,
		metrics:   m,
		router:    chi.NewRouter(),
		heartbeat: 15 * time.Second,
	}
	s.setupMiddleware()
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.securityHeaders)
	s.router.Use(requestMetadata)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.metrics != nil && s.cfg.Metrics.Enabled {
		s.router.Handle(s.cfg.Metrics.Path, s.metrics.Handler())
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(&s.cfg.Security))
		if s.cfg.Rate.Enabled {
			r.Use(s.rateLimit(s.cfg.Rate.RequestsPerMinute, "api"))
		}

		// Streams stay open for as long as the client listens.
		r.Get("/documents/{id}/events", s.handleEvents)
		r.Get("/documents/{id}/search", s.handleSearch)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Compress(5))
			if s.cfg.Server.RequestTimeout > 0 {
				r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
			}

			r.Get("/documents", s.handleListDocuments)
			r.With(s.uploadLimit()).Post("/documents", s.handleCreateDocument)

			r.Get("/documents/{id}", s.handleGetDocument)
			r.Delete("/documents/{id}", s.handleCloseDocument)
			r.Get("/documents/{id}/preview", s.handlePreview)
			r.Get("/documents/{id}/page", s.handlePage)
			r.Post("/documents/{id}/reset", s.handleReset)
			r.Post("/documents/{id}/cancel", s.handleCancel)
			r.Post("/documents/{id}/reload", s.handleReload)
		})
	})
}

func (s *Server) rateLimit(perMinute int, scope string) func(http.Handler) http.Handler {
	l := mw.NewRateLimiter(perMinute, time.Minute, 0)
	s.limiters = append(s.limiters, l)
	return mw.RateLimit(l, scope)
}

// uploadLimit is the stricter limit on document creation.
func (s *Server) uploadLimit() func(http.Handler) http.Handler {
	if !s.cfg.Rate.Enabled || s.cfg.Rate.UploadLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return s.rateLimit(s.cfg.Rate.UploadLimit, "upload")
}

// Start begins listening for HTTP requests.
// It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	logging.FromContext(context.Background()).Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, l := range s.limiters {
		l.Close()
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if s.cfg.Security.EnableCSP {
			// The API serves no documents of its own.
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are only logged since headers are already sent.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Warn("json encode error", "error", err)
	}
}
