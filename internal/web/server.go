// Package web provides the HTTP API for driving import sessions: upload,
// mapping, review, preview and confirm.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/personimport/internal/config"
	"github.com/JonMunkholm/personimport/internal/core"
	"github.com/JonMunkholm/personimport/internal/metrics"
	"github.com/JonMunkholm/personimport/internal/web/middleware"
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

// Server is the HTTP server for the import API.
type Server struct {
	service *core.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server

	limiter       *middleware.RateLimiter
	uploadLimiter *middleware.RateLimiter
}

// NewServer creates a server with routes and middleware installed.
func NewServer(service *core.Service, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	if cfg.Rate.Enabled {
		s.limiter = middleware.NewRateLimiter(cfg.Rate.RequestsPerMinute, time.Minute)
		s.uploadLimiter = middleware.NewRateLimiter(cfg.Rate.UploadLimit, time.Minute)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Metrics)
	s.router.Use(chimw.Recoverer)
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
	}
	s.router.Use(securityHeaders)
	if s.limiter != nil {
		s.router.Use(s.limiter.Handler)
	}
}

// heavy wraps routes that decode files or call the backend with the
// stricter upload limit.
func (s *Server) heavy(h http.HandlerFunc) http.Handler {
	if s.uploadLimiter == nil {
		return h
	}
	return s.uploadLimiter.Handler(h)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(s.cfg.Security))

		r.Get("/catalog", s.handleCatalog)
		r.Get("/template.csv", s.handleTemplateCSV)
		r.Get("/template.xlsx", s.handleTemplateXLSX)
		r.Get("/status", s.handleStatus)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Method(http.MethodPost, "/", s.heavy(s.handleCreateSession))

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleCloseSession)
				r.Get("/summary", s.handleSessionSummary)

				// Map phase
				r.Get("/mapping", s.handleGetMapping)
				r.Put("/mapping", s.handleSetMapping)
				r.Post("/mapping/confirm", s.handleConfirmMapping)
				r.Post("/mapping/reopen", s.handleReturnToMap)
				r.Post("/mapping/save", s.handleSaveSessionTemplate)

				// Review phase
				r.Get("/rows", s.handleListRows)
				r.Get("/rows/{row}", s.handleGetRow)
				r.Put("/rows/{row}", s.handleEditRow)
				r.Post("/rows/{row}/exclude", s.handleSetExcluded)
				r.Post("/auto-exclude", s.handleAutoExclude)
				r.Get("/duplicates", s.handleDuplicates)

				// Preview and confirm
				r.Method(http.MethodPost, "/preview", s.heavy(s.handlePreview))
				r.Get("/decisions", s.handleDecisions)
				r.Put("/decisions/{row}", s.handleSetAction)
				r.Post("/review", s.handleReturnToReview)
				r.Method(http.MethodPost, "/confirm", s.heavy(s.handleConfirm))
			})
		})

		r.Route("/mapping-templates", func(r chi.Router) {
			r.Get("/", s.handleListTemplates)
			r.Post("/", s.handleCreateTemplate)
			r.Post("/match", s.handleMatchTemplates)
			r.Get("/{id}", s.handleGetTemplate)
			r.Put("/{id}", s.handleUpdateTemplate)
			r.Delete("/{id}", s.handleDeleteTemplate)
		})

		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
	})
}

// Start listens until Shutdown is called. Rate limiter janitors stop with ctx.
func (s *Server) Start(ctx context.Context) error {
	for _, rl := range []*middleware.RateLimiter{s.limiter, s.uploadLimiter} {
		if rl != nil {
			go rl.Run(ctx)
		}
	}

	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
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

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus reports live sessions and backend call capacity.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions":  len(s.service.Sessions()),
		"calls":     s.service.Limiter().Status(),
		"templates": s.service.TemplatesEnabled(),
		"history":   s.service.RunsEnabled(),
	})
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v with the given status. Encoding errors are logged
// since the header is already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

// decodeJSON reads a JSON body into v, bounded by maxJSONBody.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return &badRequestError{msg: "invalid JSON body", err: err}
	}
	return nil
}
