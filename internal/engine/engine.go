package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/sitaware/internal/domain"
	"github.com/couchcryptid/sitaware/internal/observability"
)

// ErrUnknownFeed is returned when a caller names a feed the engine does not run.
var ErrUnknownFeed = errors.New("unknown feed")

// ScopeStore durably persists the consumer's selected scope.
type ScopeStore interface {
	SaveScope(ctx context.Context, s domain.Scope) error
}

// Sources are the four upstream feeds.
type Sources struct {
	Weather      Source
	Declarations Source
	Wildfire     Source
	Seismic      Source
}

// Options configure an Engine. Cache and Prefs may be nil.
type Options struct {
	Policy  domain.Policy
	Matcher domain.Matcher
	Scope   domain.Scope
	Cache   Cache
	Prefs   ScopeStore
}

// Snapshot is a coherent view of every feed's filtered set and the derived
// status at one instant.
type Snapshot struct {
	ID           uuid.UUID                `json:"id"`
	GeneratedAt  time.Time                `json:"generated_at"`
	Scope        domain.Scope             `json:"scope"`
	StatusLevel  domain.StatusLevel       `json:"status_level"`
	Banner       domain.BannerText        `json:"banner"`
	NeedsAction  []domain.NeedsActionItem `json:"needs_action"`
	Weather      []domain.WeatherAlert    `json:"weather"`
	Declarations []domain.Declaration     `json:"declarations"`
	Wildfires    []domain.Wildfire        `json:"wildfires"`
	Quakes       []domain.Quake           `json:"quakes"`
	Feeds        []FeedSummary            `json:"feeds"`
}

// Engine is the application state object: four feeds, the selected scope and
// the latest assessment. All mutation goes through its methods.
type Engine struct {
	weather      *feed[domain.WeatherAlert]
	declarations *feed[domain.Declaration]
	wildfires    *feed[domain.Wildfire]
	quakes       *feed[domain.Quake]
	feeds        map[domain.FeedKind]feedRunner

	policy  domain.Policy
	cache   Cache
	prefs   ScopeStore
	logger  *slog.Logger
	metrics *observability.Metrics

	mu       sync.RWMutex
	scope    domain.Scope
	snapshot Snapshot

	subsMu  sync.RWMutex
	subs    map[int]func(Event)
	nextSub int

	ready atomic.Bool
}

// New wires the four feed clients to their sources and builds an idle engine.
func New(src Sources, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	e := &Engine{
		policy:  opts.Policy,
		cache:   opts.Cache,
		prefs:   opts.Prefs,
		logger:  logger,
		metrics: metrics,
		scope:   opts.Scope,
		subs:    make(map[int]func(Event)),
	}
	m := opts.Matcher
	minMag := opts.Policy.QuakeMinMagnitude

	e.weather = newFeed(e, domain.FeedWeather, src.Weather, domain.NormalizeWeather,
		func(a domain.WeatherAlert, _ time.Time) bool { return domain.WeatherActive(a) },
		m.Weather)
	e.declarations = newFeed(e, domain.FeedDeclarations, src.Declarations, domain.NormalizeDeclarations,
		domain.DeclarationActive,
		m.Declaration)
	e.wildfires = newFeed(e, domain.FeedWildfire, src.Wildfire, domain.NormalizeWildfires,
		func(f domain.Wildfire, _ time.Time) bool { return domain.WildfireActive(f) },
		m.Wildfire)
	e.quakes = newFeed(e, domain.FeedSeismic, src.Seismic, domain.NormalizeQuakes,
		func(q domain.Quake, _ time.Time) bool { return domain.QuakeSignificant(q, minMag) },
		m.Quake)

	e.feeds = map[domain.FeedKind]feedRunner{
		domain.FeedWeather:      e.weather,
		domain.FeedDeclarations: e.declarations,
		domain.FeedWildfire:     e.wildfires,
		domain.FeedSeismic:      e.quakes,
	}
	e.snapshot = e.buildSnapshot(domain.Assessment{Level: domain.LevelSuccess, NeedsAction: []domain.NeedsActionItem{}})
	return e
}

func newFeed[T any](
	e *Engine,
	kind domain.FeedKind,
	src Source,
	normalize func([]byte) ([]T, error),
	active func(T, time.Time) bool,
	match func(T, domain.Scope) bool,
) *feed[T] {
	return &feed[T]{
		feedKind:  kind,
		source:    src,
		normalize: normalize,
		active:    active,
		match:     match,
		scope:     e.Scope,
		cache:     e.cache,
		notify:    e.emit,
		logger:    e.logger,
		metrics:   e.metrics,
		status:    domain.StatusIdle,
	}
}

// Hydrate restores every feed from the session cache, then recomputes and
// notifies. A corrupt entry clears the cache wholesale; feeds already restored
// keep their data and the rest start empty.
func (e *Engine) Hydrate() Snapshot {
	if e.cache != nil {
		restored := 0
		for _, kind := range domain.FeedKinds {
			ok, err := e.feeds[kind].hydrate(e.cache)
			if err != nil {
				e.logger.Warn("session cache corrupt, clearing", "feed", kind, "error", err)
				e.metrics.SessionCacheClears.WithLabelValues("corrupt").Inc()
				e.cache.Clear()
				break
			}
			if ok {
				restored++
			}
		}
		e.logger.Info("hydrated from session cache", "feeds", restored)
	}
	return e.publish()
}

// RefreshAll refreshes all four feeds in parallel and waits for every one to
// finish before recomputing and notifying once. A failing feed does not stop
// the others; the first failure is returned.
func (e *Engine) RefreshAll(ctx context.Context) (Snapshot, error) {
	var g errgroup.Group
	for _, kind := range domain.FeedKinds {
		f := e.feeds[kind]
		g.Go(func() error {
			return f.refresh(ctx)
		})
	}
	err := g.Wait()

	snap := e.publish()
	e.ready.Store(true)
	if err != nil {
		return snap, fmt.Errorf("refresh all: %w", err)
	}
	return snap, nil
}

// RefreshFeed refreshes one feed, then recomputes and notifies.
func (e *Engine) RefreshFeed(ctx context.Context, kind domain.FeedKind) (Snapshot, error) {
	f, ok := e.feeds[kind]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownFeed, kind)
	}
	err := f.refresh(ctx)
	snap := e.publish()
	return snap, err
}

// Scope returns the current geographic scope.
func (e *Engine) Scope() domain.Scope {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scope
}

// SetScope replaces the scope, recomputes every filtered set and notifies.
// A persistence failure is returned but the new scope stays in effect.
func (e *Engine) SetScope(ctx context.Context, s domain.Scope) (Snapshot, error) {
	e.mu.Lock()
	e.scope = s
	e.mu.Unlock()
	e.logger.Info("scope changed", "scope", s.String())

	snap := e.publish()
	if e.prefs != nil {
		if err := e.prefs.SaveScope(ctx, s); err != nil {
			return snap, fmt.Errorf("persist scope: %w", err)
		}
	}
	return snap, nil
}

// Snapshot returns the most recently published snapshot.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot
}

// Feeds returns a summary of every feed in display order.
func (e *Engine) Feeds() []FeedSummary {
	out := make([]FeedSummary, 0, len(domain.FeedKinds))
	for _, kind := range domain.FeedKinds {
		out = append(out, e.feeds[kind].summary())
	}
	return out
}

// Records returns one feed's summary and its filtered records, or its raw
// records when raw is true.
func (e *Engine) Records(kind domain.FeedKind, raw bool) (FeedSummary, any, error) {
	f, ok := e.feeds[kind]
	if !ok {
		return FeedSummary{}, nil, fmt.Errorf("%w: %q", ErrUnknownFeed, kind)
	}
	return f.summary(), f.records(raw), nil
}

// CheckReadiness returns nil once the first full refresh has completed.
func (e *Engine) CheckReadiness(_ context.Context) error {
	if !e.ready.Load() {
		return errors.New("engine has not completed an initial refresh")
	}
	return nil
}

// publish recomputes every filtered set against the current scope, runs
// status synthesis, stores the snapshot and emits data-ready.
func (e *Engine) publish() Snapshot {
	e.mu.Lock()
	scope := e.scope
	now := domain.Now()
	for _, kind := range domain.FeedKinds {
		e.feeds[kind].apply(scope, now)
	}
	a := domain.Synthesize(domain.SynthesisInput{
		Weather:      e.weather.filteredSet(),
		Declarations: e.declarations.filteredSet(),
		Wildfires:    e.wildfires.filteredSet(),
		Quakes:       e.quakes.filteredSet(),
		Now:          now,
	}, e.policy)
	snap := e.buildSnapshot(a)
	e.snapshot = snap
	e.mu.Unlock()

	e.metrics.StatusLevel.Set(levelValue(a.Level))
	e.metrics.NeedsActionItems.Set(float64(len(a.NeedsAction)))
	e.emit(Event{Type: EventDataReady, Snapshot: &snap})
	return snap
}

// buildSnapshot must be called with e.mu held.
func (e *Engine) buildSnapshot(a domain.Assessment) Snapshot {
	snap := Snapshot{
		ID:           uuid.New(),
		GeneratedAt:  domain.Now(),
		Scope:        e.scope,
		StatusLevel:  a.Level,
		NeedsAction:  a.NeedsAction,
		Weather:      e.weather.filteredSet(),
		Declarations: e.declarations.filteredSet(),
		Wildfires:    e.wildfires.filteredSet(),
		Quakes:       e.quakes.filteredSet(),
		Feeds:        e.Feeds(),
	}
	snap.Banner = domain.Banner(a.Level, e.scope, len(a.NeedsAction), domain.Counts{
		Declarations: len(snap.Declarations),
		Weather:      len(snap.Weather),
		Wildfires:    len(snap.Wildfires),
		Quakes:       len(snap.Quakes),
	})
	return snap
}

func levelValue(l domain.StatusLevel) float64 {
	switch l {
	case domain.LevelDanger:
		return 2
	case domain.LevelWarning:
		return 1
	default:
		return 0
	}
}
