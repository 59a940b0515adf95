// Package api exposes the HTTP interface: the /api site and crawl surface,
// the /v1 job endpoints, snapshot serving, and operational routes.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tchan1002/pathfinder/internal/config"
	"github.com/tchan1002/pathfinder/internal/crawler"
	"github.com/tchan1002/pathfinder/internal/metrics"
	"github.com/tchan1002/pathfinder/internal/search"
	"github.com/tchan1002/pathfinder/internal/storage"
)

// Crawl runs one blocking crawl over a site.
type Crawl interface {
	Run(ctx context.Context, siteID, startURL string, maxPages int, onEvent crawler.EventFunc) ([]crawler.Outcome, error)
}

// JobRunner starts background crawl jobs.
type JobRunner interface {
	Start(ctx context.Context, site storage.Site, startURL string, maxPages int) (string, error)
}

// Searcher answers one question against a site's index.
type Searcher interface {
	Query(ctx context.Context, siteID, question string) (search.Result, error)
}

// Server wires HTTP handlers to the store, crawler, job runner, and the
// question pipeline.
type Server struct {
	router   chi.Router
	store    storage.Store
	crawler  Crawl
	runner   JobRunner
	searcher Searcher
	snapDir  string
	cfg      config.Config
	logger   *zap.Logger

	// now is swappable in tests that exercise result freshness.
	now func() time.Time
}

// NewServer constructs a Server with middleware and routes. snapDir may be
// empty, in which case screenshot files are not served.
func NewServer(
	store storage.Store,
	cr Crawl,
	runner JobRunner,
	searcher Searcher,
	snapDir string,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:    store,
		crawler:  cr,
		runner:   runner,
		searcher: searcher,
		snapDir:  snapDir,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))

	timeout := time.Duration(cfg.Server.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	// The crawl stream stays outside the timeout handler: http.TimeoutHandler
	// buffers responses and hides the flusher SSE needs.
	r.Get("/api/crawl/stream", s.streamCrawl)

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(timeout))

		r.Get("/healthz", s.healthz)
		r.Method(http.MethodGet, "/metrics", metrics.Handler())

		r.Route("/api", func(r chi.Router) {
			r.Route("/sites", func(r chi.Router) {
				r.Post("/", s.createSite)
				r.Get("/", s.listSites)
				r.Route("/{siteID}", func(r chi.Router) {
					r.Delete("/", s.deleteSite)
					r.Get("/pages", s.listSitePages)
				})
			})
			r.Post("/crawl", s.runCrawl)
			r.Post("/query", s.query)
		})

		r.Route("/v1", func(r chi.Router) {
			r.Post("/analyze", s.analyze)
			r.Post("/check", s.checkDomain)
			r.Get("/jobs/{job_id}/status", s.jobStatus)
			r.Get("/results/head", s.resultsHead)
			r.Post("/results/advance", s.advance)
			r.Post("/feedback", s.feedback)
		})
	})

	if snapDir != "" {
		fs := http.StripPrefix("/snapshots/", http.FileServer(http.Dir(snapDir)))
		r.Get("/snapshots/*", fs.ServeHTTP)
	}

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("request_id", requestIDFrom(r.Context())),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(logger, w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && logger != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, map[string]string{"error": msg})
}
