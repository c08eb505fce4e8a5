package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/sitaware/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/sitaware/internal/adapter/kafka"
	"github.com/couchcryptid/sitaware/internal/adapter/prefs"
	"github.com/couchcryptid/sitaware/internal/adapter/session"
	"github.com/couchcryptid/sitaware/internal/adapter/upstream"
	"github.com/couchcryptid/sitaware/internal/config"
	"github.com/couchcryptid/sitaware/internal/domain"
	"github.com/couchcryptid/sitaware/internal/engine"
	"github.com/couchcryptid/sitaware/internal/observability"
)

const snapshotQueueSize = 8

func main() {
	// Missing .env is fine; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := prefs.Open(ctx, cfg.PrefsPath)
	if err != nil {
		logger.Error("failed to open preferences", "path", cfg.PrefsPath, "error", err)
		os.Exit(1)
	}

	scope, err := store.LoadScope(ctx)
	switch {
	case errors.Is(err, prefs.ErrNotFound):
		logger.Info("no saved scope, showing all regions")
	case err != nil:
		logger.Warn("ignoring saved scope", "error", err)
		scope = domain.Scope{}
	default:
		logger.Info("restored saved scope", "scope", scope.String())
	}

	clock := clockwork.NewRealClock()
	cache, err := session.Open(cfg.SessionCacheDir, cfg.Feeds.SessionCacheBytes, cfg.Feeds.SessionCacheTTL, clock)
	switch {
	case cache == nil:
		logger.Warn("session cache dir unusable, caching in memory", "dir", cfg.SessionCacheDir, "error", err)
		cache = session.NewStore(cfg.Feeds.SessionCacheBytes, cfg.Feeds.SessionCacheTTL, clock)
	case err != nil:
		logger.Warn("session cache discarded", "dir", cfg.SessionCacheDir, "error", err)
		metrics.SessionCacheClears.WithLabelValues("corrupt").Inc()
	}

	opts := cfg.UpstreamOptions()

	sources := engine.Sources{
		Weather:      upstream.NewWeatherClient(cfg.WeatherURL, opts, logger, metrics),
		Declarations: upstream.NewDeclarationsClient(cfg.DeclarationsURL, cfg.Feeds.DeclarationsDaysBack, cfg.Feeds.DeclarationsPageSize, opts, logger, metrics),
		Wildfire:     upstream.NewWildfireClient(cfg.WildfireURL, cfg.Feeds.WildfireRecordCount, opts, logger, metrics),
		Seismic:      upstream.NewSeismicClient(cfg.SeismicURL, opts, logger, metrics),
	}

	eng := engine.New(sources, engine.Options{
		Policy:  cfg.Feeds.Policy(),
		Matcher: cfg.Feeds.Matcher(),
		Scope:   scope,
		Cache:   cache,
		Prefs:   store,
	}, logger, metrics)

	var publisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled() {
		publisher = kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, snapshotQueueSize, logger, metrics)
		eng.Subscribe(publisher.Handle)
		go publisher.Run(ctx)
		logger.Info("snapshot publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("snapshot publishing disabled")
	}

	eng.Hydrate()

	srv := httpadapter.NewServer(cfg.HTTPAddr, eng, store, cfg.Feeds.RefreshMinInterval, logger, metrics)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Initial load, then periodic refresh.
	go func() {
		if _, err := eng.RefreshAll(ctx); err != nil {
			logger.Warn("initial refresh incomplete", "error", err)
		}
	}()

	scheduler := engine.NewScheduler(eng, cfg.Feeds.Intervals(), clock, logger, metrics)
	scheduler.Start(ctx)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Both share one deadline; a refresh still in flight when it passes is abandoned.
	if err := scheduler.Shutdown(shutdownCtx); err != nil {
		logger.Warn("scheduled refresh still running at shutdown", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		logger.Error("preferences close error", "error", err)
	}

	logger.Info("shutdown complete")
}
