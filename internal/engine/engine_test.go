package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/sitaware/internal/adapter/session"
	"github.com/couchcryptid/sitaware/internal/domain"
	"github.com/couchcryptid/sitaware/internal/engine"
	"github.com/couchcryptid/sitaware/internal/observability"
)

func freezeClock(t *testing.T) *clockwork.FakeClock {
	t.Helper()
	fc := clockwork.NewFakeClockAt(time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC))
	domain.SetClock(fc)
	t.Cleanup(func() { domain.SetClock(nil) })
	return fc
}

func newEngine(t *testing.T, src engine.Sources, opts engine.Options) *engine.Engine {
	t.Helper()
	if opts.Policy == (domain.Policy{}) {
		opts.Policy = domain.DefaultPolicy()
	}
	if opts.Matcher.Regions == nil {
		opts.Matcher = domain.DefaultMatcher()
	}
	return engine.New(src, opts, discardLogger(), observability.NewMetricsForTesting())
}

func TestEngine_RefreshAll(t *testing.T) {
	freezeClock(t)
	stubs := newStubSources()
	e := newEngine(t, stubs.sources(), engine.Options{})

	require.Error(t, e.CheckReadiness(context.Background()))

	snap, err := e.RefreshAll(context.Background())
	require.NoError(t, err)

	assert.Len(t, snap.Weather, 2)
	assert.Len(t, snap.Declarations, 1)
	assert.Len(t, snap.Wildfires, 1)
	assert.Len(t, snap.Quakes, 1)
	assert.Equal(t, domain.LevelWarning, snap.StatusLevel, "severe weather raises warning without items")
	assert.Empty(t, snap.NeedsAction)
	assert.NotEqual(t, snap.ID.String(), "")
	for _, fs := range snap.Feeds {
		assert.Equal(t, domain.StatusOK, fs.Status, fs.Feed)
		require.NotNil(t, fs.LastFetchAt)
		assert.False(t, fs.Stale)
	}

	assert.NoError(t, e.CheckReadiness(context.Background()))
	assert.Equal(t, snap.ID, e.Snapshot().ID)
}

func TestEngine_EmptyFeedsYieldSuccess(t *testing.T) {
	freezeClock(t)
	stubs := newStubSources()
	stubs.weather.set(emptyFeatures, nil)
	stubs.declarations.set(emptyDeclarations, nil)
	stubs.wildfire.set(emptyFeatures, nil)
	stubs.seismic.set(emptyFeatures, nil)
	e := newEngine(t, stubs.sources(), engine.Options{})

	snap, err := e.RefreshAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.LevelSuccess, snap.StatusLevel)
	assert.NotNil(t, snap.NeedsAction)
	assert.Empty(t, snap.NeedsAction)
	assert.Equal(t, "All clear: no critical events nationally", snap.Banner.Title)
}

func TestEngine_OneFeedFailureKeepsPreviousData(t *testing.T) {
	freezeClock(t)
	stubs := newStubSources()
	e := newEngine(t, stubs.sources(), engine.Options{})

	_, err := e.RefreshAll(context.Background())
	require.NoError(t, err)

	stubs.seismic.set("", errTransport)
	snap, err := e.RefreshAll(context.Background())
	require.ErrorIs(t, err, errTransport)

	summary, records, err := e.Records(domain.FeedSeismic, true)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, summary.Status)
	assert.Equal(t, 1, summary.Raw)
	assert.Contains(t, summary.LastError, "connection reset")
	assert.Len(t, records, 1)

	assert.Len(t, snap.Quakes, 1, "filtered set retained")
	assert.Len(t, snap.Weather, 2)
	assert.Equal(t, domain.LevelWarning, snap.StatusLevel)
	for _, fs := range snap.Feeds {
		if fs.Feed != domain.FeedSeismic {
			assert.Equal(t, domain.StatusOK, fs.Status, fs.Feed)
		}
	}
}

func TestEngine_FailureBeforeAnySuccess(t *testing.T) {
	freezeClock(t)
	stubs := newStubSources()
	stubs.wildfire.set("", errTransport)
	e := newEngine(t, stubs.sources(), engine.Options{})

	snap, err := e.RefreshAll(context.Background())
	require.Error(t, err)

	assert.Empty(t, snap.Wildfires)
	assert.Len(t, snap.Weather, 2)
	require.NoError(t, e.CheckReadiness(context.Background()), "ready after first full cycle even with a failure")
}

func TestEngine_NotificationsDuringRefreshAll(t *testing.T) {
	freezeClock(t)
	stubs := newStubSources()
	stubs.declarations.set("", errTransport)
	e := newEngine(t, stubs.sources(), engine.Options{})

	var log eventLog
	unsubscribe := e.Subscribe(log.record)

	_, _ = e.RefreshAll(context.Background())

	assert.Equal(t, []domain.FeedStatus{domain.StatusLoading, domain.StatusOK}, log.feedStatuses(domain.FeedWeather))
	assert.Equal(t, []domain.FeedStatus{domain.StatusLoading, domain.StatusError}, log.feedStatuses(domain.FeedDeclarations))
	assert.Equal(t, 1, log.count(engine.EventDataReady))

	unsubscribe()
	_, _ = e.RefreshAll(context.Background())
	assert.Equal(t, 1, log.count(engine.EventDataReady))
}

func TestEngine_SetScope(t *testing.T) {
	freezeClock(t)
	stubs := newStubSources()
	prefs := &stubScopeStore{}
	e := newEngine(t, stubs.sources(), engine.Options{Prefs: prefs})
	_, err := e.RefreshAll(context.Background())
	require.NoError(t, err)

	snap, err := e.SetScope(context.Background(), domain.NewScope("CA"))
	require.NoError(t, err)

	require.Len(t, snap.Weather, 1)
	assert.Equal(t, "w1", snap.Weather[0].ID)
	assert.Empty(t, snap.Declarations)
	assert.Len(t, snap.Wildfires, 1)
	assert.Len(t, snap.Quakes, 1, "matched by place suffix")
	assert.Equal(t, []string{"CA"}, snap.Scope.Codes())
	require.Len(t, prefs.saved, 1)
	assert.True(t, prefs.saved[0].Equal(domain.NewScope("CA")))

	for _, fs := range snap.Feeds {
		assert.LessOrEqual(t, fs.Filtered, fs.Raw, fs.Feed)
	}

	snap, err = e.SetScope(context.Background(), domain.Scope{})
	require.NoError(t, err)
	assert.Len(t, snap.Weather, 2)
	assert.Len(t, snap.Declarations, 1)
}

func TestEngine_SetScopePersistFailure(t *testing.T) {
	freezeClock(t)
	prefs := &stubScopeStore{err: assert.AnError}
	e := newEngine(t, newStubSources().sources(), engine.Options{Prefs: prefs})

	_, err := e.SetScope(context.Background(), domain.NewScope("TX"))
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, []string{"TX"}, e.Scope().Codes(), "scope applied even when persistence fails")
}

func TestEngine_RefreshPersistsToCache(t *testing.T) {
	fc := freezeClock(t)
	cache := newMapCache()
	e := newEngine(t, newStubSources().sources(), engine.Options{Cache: cache})

	_, err := e.RefreshAll(context.Background())
	require.NoError(t, err)

	for _, kind := range domain.FeedKinds {
		_, ok := cache.Get(engine.CacheKey(kind))
		assert.True(t, ok, kind)
		ts, ok := cache.Get(engine.CacheTimestampKey(kind))
		require.True(t, ok, kind)
		assert.Equal(t, fc.Now().UTC().Format(time.RFC3339Nano), string(ts))
	}
}

func TestEngine_CacheWriteFailureClearsCache(t *testing.T) {
	freezeClock(t)
	cache := newMapCache()
	cache.failSet = assert.AnError
	e := newEngine(t, newStubSources().sources(), engine.Options{Cache: cache})

	snap, err := e.RefreshAll(context.Background())
	require.NoError(t, err, "cache failures are never fatal")

	assert.Len(t, snap.Weather, 2)
	assert.Positive(t, cache.clears)
}

func TestEngine_HydrateRestoresLastKnownState(t *testing.T) {
	fc := freezeClock(t)
	cache := newMapCache()
	first := newEngine(t, newStubSources().sources(), engine.Options{Cache: cache})
	_, err := first.RefreshAll(context.Background())
	require.NoError(t, err)

	fc.Advance(3 * time.Minute)

	failing := newStubSources()
	for _, s := range []*stubSource{failing.weather, failing.declarations, failing.wildfire, failing.seismic} {
		s.set("", errTransport)
	}
	second := newEngine(t, failing.sources(), engine.Options{Cache: cache, Scope: domain.NewScope("CA")})

	var log eventLog
	second.Subscribe(log.record)
	snap := second.Hydrate()

	assert.Equal(t, 1, log.count(engine.EventDataReady))
	assert.Len(t, snap.Weather, 1, "hydrated records filtered by the current scope")
	assert.Len(t, snap.Quakes, 1)
	for _, fs := range snap.Feeds {
		assert.Equal(t, domain.StatusOK, fs.Status, fs.Feed)
		assert.Equal(t, "3m ago", fs.Age, fs.Feed)
	}
	assert.Equal(t, int32(0), failing.weather.calls.Load(), "no network during hydration")
}

func TestEngine_HydrateAfterRestart(t *testing.T) {
	fc := freezeClock(t)
	dir := t.TempDir()

	cache, err := session.Open(dir, 1<<20, 30*time.Minute, fc)
	require.NoError(t, err)
	first := newEngine(t, newStubSources().sources(), engine.Options{Cache: cache})
	before, err := first.RefreshAll(context.Background())
	require.NoError(t, err)

	fc.Advance(10 * time.Minute)

	reopened, err := session.Open(dir, 1<<20, 30*time.Minute, fc)
	require.NoError(t, err)
	failing := newStubSources()
	for _, s := range []*stubSource{failing.weather, failing.declarations, failing.wildfire, failing.seismic} {
		s.set("", errTransport)
	}
	second := newEngine(t, failing.sources(), engine.Options{Cache: reopened})
	snap := second.Hydrate()

	for _, fs := range second.Feeds() {
		assert.Equal(t, domain.StatusOK, fs.Status, fs.Feed)
		assert.Equal(t, "10m ago", fs.Age, fs.Feed)
	}
	assert.Len(t, snap.Weather, len(before.Weather))
	assert.Len(t, snap.Declarations, len(before.Declarations))
	assert.Len(t, snap.Wildfires, len(before.Wildfires))
	assert.Len(t, snap.Quakes, len(before.Quakes))
	assert.Equal(t, int32(0), failing.weather.calls.Load())
}

func TestEngine_HydrateCorruptEntryClearsCache(t *testing.T) {
	freezeClock(t)
	cache := newMapCache()
	seed := newEngine(t, newStubSources().sources(), engine.Options{Cache: cache})
	_, err := seed.RefreshAll(context.Background())
	require.NoError(t, err)

	require.NoError(t, cache.Set(engine.CacheKey(domain.FeedSeismic), []byte(`{not json`)))

	e := newEngine(t, newStubSources().sources(), engine.Options{Cache: cache})
	snap := e.Hydrate()

	assert.Equal(t, 1, cache.clears)
	_, ok := cache.Get(engine.CacheKey(domain.FeedWeather))
	assert.False(t, ok, "cache wiped wholesale")

	assert.Len(t, snap.Weather, 2, "feeds hydrated before the corrupt entry keep their data")
	assert.Empty(t, snap.Quakes)
	summary, _, err := e.Records(domain.FeedSeismic, true)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIdle, summary.Status)
}

func TestEngine_RefreshFeed(t *testing.T) {
	freezeClock(t)
	stubs := newStubSources()
	e := newEngine(t, stubs.sources(), engine.Options{})

	snap, err := e.RefreshFeed(context.Background(), domain.FeedSeismic)
	require.NoError(t, err)
	assert.Len(t, snap.Quakes, 1)
	assert.Empty(t, snap.Weather)
	assert.Equal(t, int32(0), stubs.weather.calls.Load())

	_, err = e.RefreshFeed(context.Background(), domain.FeedKind("tsunami"))
	require.ErrorIs(t, err, engine.ErrUnknownFeed)
}

func TestEngine_NeedsActionFromFeeds(t *testing.T) {
	freezeClock(t)
	stubs := newStubSources()
	stubs.weather.set(`{"features": [{"properties": {"id": "x", "event": "Hurricane Warning", "severity": "Extreme",
	  "areaDesc": "Miami-Dade; Broward"}}]}`, nil)
	stubs.declarations.set(`{"DisasterDeclarationsSummaries": [{"disasterNumber": 4802, "state": "FL",
	  "declarationDate": "2026-10-16T18:00:00.000Z", "incidentType": "Hurricane", "declarationTitle": "HURRICANE MILO"}]}`, nil)
	e := newEngine(t, stubs.sources(), engine.Options{})

	snap, err := e.RefreshAll(context.Background())
	require.NoError(t, err)

	require.Len(t, snap.NeedsAction, 2)
	assert.Equal(t, domain.FeedWeather, snap.NeedsAction[0].Source)
	assert.Equal(t, "Miami-Dade", snap.NeedsAction[0].Detail)
	assert.Equal(t, domain.FeedDeclarations, snap.NeedsAction[1].Source)
	assert.Equal(t, domain.LevelDanger, snap.StatusLevel)
}
