package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/sitaware/internal/adapter/upstream"
	"github.com/couchcryptid/sitaware/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.KafkaEnabled())
	assert.Equal(t, "sitaware-snapshots", cfg.KafkaTopic)
	assert.Equal(t, "sitaware.db", cfg.PrefsPath)
	assert.Equal(t, filepath.Join(os.TempDir(), "sitaware-session"), cfg.SessionCacheDir)
	assert.Equal(t, upstream.DefaultWeatherURL, cfg.WeatherURL)
	assert.Equal(t, upstream.DefaultSeismicURL, cfg.SeismicURL)

	f := cfg.Feeds
	assert.Equal(t, 2*time.Minute, f.WeatherInterval)
	assert.Equal(t, 5*time.Minute, f.DeclarationsInterval)
	assert.Equal(t, 15*time.Minute, f.WildfireInterval)
	assert.Equal(t, 5*time.Minute, f.SeismicInterval)
	assert.Equal(t, 20*time.Second, f.UpstreamTimeout)
	assert.Equal(t, 30, f.DeclarationsDaysBack)
	assert.Equal(t, 1000, f.DeclarationsPageSize)
	assert.Equal(t, 2000, f.WildfireRecordCount)
	assert.Equal(t, 5242880, f.SessionCacheBytes)
	assert.Equal(t, 30*time.Minute, f.SessionCacheTTL)
	assert.Equal(t, 10*time.Second, f.RefreshMinInterval)

	assert.Equal(t, domain.DefaultPolicy(), f.Policy())
	assert.Equal(t, domain.MatchSubstring, f.Matcher().Mode)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("KAFKA_TOPIC", "custom-snapshots")
	t.Setenv("PREFS_PATH", "/var/lib/sitaware/prefs.db")
	t.Setenv("SESSION_CACHE_DIR", "/run/sitaware/session")
	t.Setenv("UPSTREAM_USER_AGENT", "(ops, ops@example.org)")
	t.Setenv("USGS_URL", "http://localhost:9999/quakes")
	t.Setenv("WEATHER_INTERVAL", "30s")
	t.Setenv("QUAKE_MIN_MAGNITUDE", "3.5")
	t.Setenv("QUAKE_ACTION_MAGNITUDE", "6")
	t.Setenv("FIRE_ACRES_THRESHOLD", "5000")
	t.Setenv("SCOPE_MATCH_MODE", "word")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, "custom-snapshots", cfg.KafkaTopic)
	assert.Equal(t, "/var/lib/sitaware/prefs.db", cfg.PrefsPath)
	assert.Equal(t, "/run/sitaware/session", cfg.SessionCacheDir)
	assert.Equal(t, "http://localhost:9999/quakes", cfg.SeismicURL)
	assert.Equal(t, "(ops, ops@example.org)", cfg.UpstreamOptions().UserAgent)

	assert.Equal(t, 30*time.Second, cfg.Feeds.Intervals()[domain.FeedWeather])
	p := cfg.Feeds.Policy()
	assert.InDelta(t, 3.5, p.QuakeMinMagnitude, 1e-9)
	assert.InDelta(t, 6.0, p.QuakeActionMagnitude, 1e-9)
	assert.InDelta(t, 5000.0, p.FireAcresThreshold, 1e-9)
	assert.Equal(t, domain.MatchWord, cfg.Feeds.Matcher().Mode)
}

func TestLoad_SessionCacheInMemory(t *testing.T) {
	t.Setenv("SESSION_CACHE_DIR", "-")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.SessionCacheDir)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad shutdown timeout", "SHUTDOWN_TIMEOUT", "soon"},
		{"unparseable interval", "SEISMIC_INTERVAL", "often"},
		{"zero interval", "WILDFIRE_INTERVAL", "0s"},
		{"unknown match mode", "SCOPE_MATCH_MODE", "fuzzy"},
		{"containment above 100", "FIRE_CONTAINMENT_THRESHOLD", "150"},
		{"action below minimum magnitude", "QUAKE_ACTION_MAGNITUDE", "3.0"},
		{"page size too large", "DECLARATIONS_PAGE_SIZE", "50000"},
		{"tiny session cache", "SESSION_CACHE_BYTES", "10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
