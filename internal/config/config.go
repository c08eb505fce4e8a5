package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"

	"github.com/couchcryptid/sitaware/internal/adapter/upstream"
	"github.com/couchcryptid/sitaware/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Kafka publishing is disabled when no brokers are configured.
	KafkaBrokers []string
	KafkaTopic   string

	PrefsPath string

	// Empty keeps the session cache in memory only.
	SessionCacheDir string

	UpstreamUserAgent string
	WeatherURL        string
	DeclarationsURL   string
	WildfireURL       string
	SeismicURL        string

	Feeds FeedPolicy
}

// FeedPolicy holds refresh cadence, request shaping and the thresholds that
// drive filtering and status synthesis.
type FeedPolicy struct {
	WeatherInterval      time.Duration `envconfig:"WEATHER_INTERVAL" default:"2m" validate:"gt=0"`
	DeclarationsInterval time.Duration `envconfig:"DECLARATIONS_INTERVAL" default:"5m" validate:"gt=0"`
	WildfireInterval     time.Duration `envconfig:"WILDFIRE_INTERVAL" default:"15m" validate:"gt=0"`
	SeismicInterval      time.Duration `envconfig:"SEISMIC_INTERVAL" default:"5m" validate:"gt=0"`

	UpstreamTimeout      time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"20s" validate:"gt=0"`
	DeclarationsDaysBack int           `envconfig:"DECLARATIONS_DAYS_BACK" default:"30" validate:"min=1"`
	DeclarationsPageSize int           `envconfig:"DECLARATIONS_PAGE_SIZE" default:"1000" validate:"min=1,max=10000"`
	WildfireRecordCount  int           `envconfig:"WILDFIRE_RECORD_COUNT" default:"2000" validate:"min=1"`

	NeedsActionLookback      time.Duration `envconfig:"NEEDS_ACTION_LOOKBACK" default:"48h" validate:"gt=0"`
	FireAcresThreshold       float64       `envconfig:"FIRE_ACRES_THRESHOLD" default:"10000" validate:"gte=0"`
	FireContainmentThreshold float64       `envconfig:"FIRE_CONTAINMENT_THRESHOLD" default:"50" validate:"gte=0,lte=100"`
	QuakeMinMagnitude        float64       `envconfig:"QUAKE_MIN_MAGNITUDE" default:"4.0" validate:"gte=0"`
	QuakeActionMagnitude     float64       `envconfig:"QUAKE_ACTION_MAGNITUDE" default:"5.0" validate:"gtefield=QuakeMinMagnitude"`
	ScopeMatchMode           string        `envconfig:"SCOPE_MATCH_MODE" default:"substring" validate:"oneof=substring word"`

	SessionCacheBytes int           `envconfig:"SESSION_CACHE_BYTES" default:"5242880" validate:"min=1024"`
	SessionCacheTTL   time.Duration `envconfig:"SESSION_CACHE_TTL" default:"30m" validate:"gte=0"`

	RefreshMinInterval time.Duration `envconfig:"REFRESH_MIN_INTERVAL" default:"10s" validate:"gte=0"`
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	var feeds FeedPolicy
	if err := envconfig.Process("", &feeds); err != nil {
		return nil, fmt.Errorf("process feed policy: %w", err)
	}
	if err := validator.New().Struct(feeds); err != nil {
		return nil, fmt.Errorf("validate feed policy: %w", err)
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "sitaware-snapshots"),

		PrefsPath:       sharedcfg.EnvOrDefault("PREFS_PATH", "sitaware.db"),
		SessionCacheDir: sessionCacheDir(),

		UpstreamUserAgent: sharedcfg.EnvOrDefault("UPSTREAM_USER_AGENT", "(sitaware, disaster-response@example.org)"),
		WeatherURL:        sharedcfg.EnvOrDefault("NWS_ALERTS_URL", upstream.DefaultWeatherURL),
		DeclarationsURL:   sharedcfg.EnvOrDefault("FEMA_URL", upstream.DefaultDeclarationsURL),
		WildfireURL:       sharedcfg.EnvOrDefault("NIFC_URL", upstream.DefaultWildfireURL),
		SeismicURL:        sharedcfg.EnvOrDefault("USGS_URL", upstream.DefaultSeismicURL),

		Feeds: feeds,
	}

	return cfg, nil
}

// sessionCacheDir reads SESSION_CACHE_DIR. Unset means a directory under the
// system temp dir; "-" disables on-disk mirroring.
func sessionCacheDir() string {
	v, ok := os.LookupEnv("SESSION_CACHE_DIR")
	switch {
	case !ok || v == "":
		return filepath.Join(os.TempDir(), "sitaware-session")
	case v == "-":
		return ""
	default:
		return v
	}
}

// KafkaEnabled reports whether snapshots should be published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Policy returns the filtering and synthesis thresholds.
func (p FeedPolicy) Policy() domain.Policy {
	return domain.Policy{
		QuakeMinMagnitude:        p.QuakeMinMagnitude,
		QuakeActionMagnitude:     p.QuakeActionMagnitude,
		FireAcresThreshold:       p.FireAcresThreshold,
		FireContainmentThreshold: p.FireContainmentThreshold,
		NeedsActionLookback:      p.NeedsActionLookback,
	}
}

// Matcher returns the scope matcher for the configured mode. The mode is
// validated on load.
func (p FeedPolicy) Matcher() domain.Matcher {
	m := domain.DefaultMatcher()
	m.Mode = domain.MatchMode(p.ScopeMatchMode)
	return m
}

// Intervals returns the per-feed scheduler cadence.
func (p FeedPolicy) Intervals() map[domain.FeedKind]time.Duration {
	return map[domain.FeedKind]time.Duration{
		domain.FeedWeather:      p.WeatherInterval,
		domain.FeedDeclarations: p.DeclarationsInterval,
		domain.FeedWildfire:     p.WildfireInterval,
		domain.FeedSeismic:      p.SeismicInterval,
	}
}

// UpstreamOptions returns the shared HTTP client settings.
func (c *Config) UpstreamOptions() upstream.Options {
	return upstream.Options{
		Timeout:   c.Feeds.UpstreamTimeout,
		UserAgent: c.UpstreamUserAgent,
	}
}
