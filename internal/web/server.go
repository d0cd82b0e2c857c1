// Package web provides the HTTP server and handlers for the shapefile
// ingest/export service.
package web

import (
	"context"
	"io"
	"net/http"

	"github.com/geostage/shpgate/internal/config"
	"github.com/geostage/shpgate/internal/core"
	ownmw "github.com/geostage/shpgate/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Service is the pipeline surface the handlers depend on.
// *core.Service satisfies it; handler tests substitute a stub.
type Service interface {
	UploadArchive(ctx context.Context, fileName string, size int64, r io.Reader) (core.IngestResult, error)
	ExportArchive(ctx context.Context, sel core.Selector) (*core.ExportResult, error)
	MaxUploadBytes() int64
	GateStatus() core.GateStatus
}

// Server is the HTTP server for the ingest/export service.
type Server struct {
	service Service
	db      pinger
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server
}

// pinger is the health-check view of the database pool.
type pinger interface {
	Ping(ctx context.Context) error
}

// NewServer creates a new Server instance.
func NewServer(service Service, db pinger, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		db:      db,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(ownmw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(ownmw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

	// Security hardening
	s.router.Use(securityHeaders)

	// Shared-secret auth covers every route when a key is configured
	s.router.Use(ownmw.APIKeyAuth(s.cfg.Security.APIKey))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/status", s.handleStatus)

	s.router.Post("/upload", s.handleUpload)

	s.router.Get("/download/all", s.handleDownloadAll)
	s.router.Get("/download/id/{featureID}", s.handleDownloadByID)
	s.router.Get("/download/ids", s.handleDownloadByIDs)
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout, // 0: archive downloads may be slow
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
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
		// Prevent MIME type sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		// Control referrer information
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}
