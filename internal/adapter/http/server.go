package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/couchcryptid/sitaware/internal/domain"
	"github.com/couchcryptid/sitaware/internal/engine"
	"github.com/couchcryptid/sitaware/internal/observability"
)

// Engine is the state the API reads and the operations it triggers.
type Engine interface {
	sharedobs.ReadinessChecker
	Snapshot() engine.Snapshot
	Feeds() []engine.FeedSummary
	Records(kind domain.FeedKind, raw bool) (engine.FeedSummary, any, error)
	RefreshAll(ctx context.Context) (engine.Snapshot, error)
	RefreshFeed(ctx context.Context, kind domain.FeedKind) (engine.Snapshot, error)
	Scope() domain.Scope
	SetScope(ctx context.Context, s domain.Scope) (engine.Snapshot, error)
	Subscribe(fn func(engine.Event)) (unsubscribe func())
}

// ThemeStore persists the display theme preference.
type ThemeStore interface {
	LoadTheme(ctx context.Context) (domain.Theme, error)
	SaveTheme(ctx context.Context, t domain.Theme) error
}

// Server exposes health, readiness, metrics and the consumer API.
type Server struct {
	httpServer *http.Server
	engine     Engine
	themes     ThemeStore
	limiter    *rate.Limiter
	closing    chan struct{}
	closeOnce  sync.Once
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewServer creates an HTTP server. Manual refreshes are limited to one per
// refreshInterval across all callers.
func NewServer(addr string, eng Engine, themes ThemeStore, refreshInterval time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Server {
	r := chi.NewRouter()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		engine:  eng,
		themes:  themes,
		limiter: rate.NewLimiter(rate.Every(refreshInterval), 1),
		closing: make(chan struct{}),
		logger:  logger,
		metrics: metrics,
	}

	// Event streams never go idle, so end them when shutdown begins.
	s.httpServer.RegisterOnShutdown(func() {
		s.closeOnce.Do(func() { close(s.closing) })
	})

	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(eng))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(func(next http.Handler) http.Handler { return gzhttp.GzipHandler(next) })

			r.Get("/snapshot", s.handleSnapshot)
			r.Get("/feeds", s.handleFeeds)
			r.Get("/feeds/{feed}", s.handleFeed)
			r.Post("/refresh", s.handleRefreshAll)
			r.Post("/feeds/{feed}/refresh", s.handleRefreshFeed)
			r.Get("/scope", s.handleGetScope)
			r.Put("/scope", s.handlePutScope)
			r.Get("/theme", s.handleGetTheme)
			r.Put("/theme", s.handlePutTheme)
			r.Get("/regions", s.handleRegions)
		})
	})

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
