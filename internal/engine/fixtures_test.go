package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/couchcryptid/sitaware/internal/domain"
	"github.com/couchcryptid/sitaware/internal/engine"
)

// --- mocks ---

type stubSource struct {
	mu    sync.Mutex
	body  []byte
	err   error
	calls atomic.Int32
}

func (s *stubSource) Fetch(_ context.Context) ([]byte, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.body, nil
}

func (s *stubSource) set(body string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.body = []byte(body)
	s.err = err
}

type mapCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	failSet error
	clears  int
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string][]byte)}
}

func (c *mapCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *mapCache) Set(key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSet != nil {
		return c.failSet
	}
	c.data[key] = value
	return nil
}

func (c *mapCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]byte)
	c.clears++
}

type stubScopeStore struct {
	saved []domain.Scope
	err   error
}

func (s *stubScopeStore) SaveScope(_ context.Context, sc domain.Scope) error {
	s.saved = append(s.saved, sc)
	return s.err
}

type eventLog struct {
	mu     sync.Mutex
	events []engine.Event
}

func (l *eventLog) record(ev engine.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) count(t engine.EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (l *eventLog) feedStatuses(kind domain.FeedKind) []domain.FeedStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.FeedStatus
	for _, ev := range l.events {
		if ev.Type == engine.EventFeedUpdate && ev.Feed == kind {
			out = append(out, ev.Status)
		}
	}
	return out
}

var errTransport = errors.New("connection reset by peer")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- fixtures ---

const (
	weatherBody = `{"features": [
	  {"id": "w1", "properties": {"id": "w1", "event": "Red Flag Warning", "severity": "Severe",
	   "areaDesc": "Los Angeles County; Ventura County, California"}},
	  {"id": "w2", "properties": {"id": "w2", "event": "Flood Watch", "severity": "Moderate",
	   "areaDesc": "Harris County, Texas"}}
	]}`

	declarationsBody = `{"DisasterDeclarationsSummaries": [
	  {"disasterNumber": 4790, "state": "TX", "declarationType": "DR", "declarationDate": "2026-09-20T00:00:00.000Z",
	   "incidentType": "Flood", "declarationTitle": "SEVERE STORMS AND FLOODING", "incidentEndDate": null}
	]}`

	wildfireBody = `{"features": [
	  {"attributes": {"IncidentName": "Canyon", "DailyAcres": 800, "PercentContained": 60, "POOState": "California"},
	   "geometry": {"x": -118.6, "y": 34.2}}
	]}`

	seismicBody = `{"features": [
	  {"id": "ci1", "properties": {"mag": 4.3, "place": "34km NW of Anza, CA", "time": 1760600000000},
	   "geometry": {"coordinates": [-116.9, 33.8, 10.0]}}
	]}`

	emptyFeatures     = `{"features": []}`
	emptyDeclarations = `{"DisasterDeclarationsSummaries": []}`
)

type stubSources struct {
	weather, declarations, wildfire, seismic *stubSource
}

func newStubSources() stubSources {
	s := stubSources{
		weather:      &stubSource{},
		declarations: &stubSource{},
		wildfire:     &stubSource{},
		seismic:      &stubSource{},
	}
	s.weather.set(weatherBody, nil)
	s.declarations.set(declarationsBody, nil)
	s.wildfire.set(wildfireBody, nil)
	s.seismic.set(seismicBody, nil)
	return s
}

func (s stubSources) sources() engine.Sources {
	return engine.Sources{
		Weather:      s.weather,
		Declarations: s.declarations,
		Wildfire:     s.wildfire,
		Seismic:      s.seismic,
	}
}
