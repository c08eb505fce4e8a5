package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/sitaware/internal/domain"
	"github.com/couchcryptid/sitaware/internal/observability"
)

// Source fetches one upstream feed's raw response body.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// Cache is short-lived session storage for last-known feed data.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte) error
	Clear()
}

// CacheKey is the session cache key holding a feed's raw records.
func CacheKey(kind domain.FeedKind) string {
	return "sitaware-" + string(kind)
}

// CacheTimestampKey is the session cache key holding a feed's last fetch time.
func CacheTimestampKey(kind domain.FeedKind) string {
	return CacheKey(kind) + "-ts"
}

// FeedSummary describes one feed's state for consumers.
type FeedSummary struct {
	Feed        domain.FeedKind   `json:"feed"`
	Status      domain.FeedStatus `json:"status"`
	Raw         int               `json:"raw"`
	Filtered    int               `json:"filtered"`
	LastFetchAt *time.Time        `json:"last_fetch_at,omitempty"`
	Age         string            `json:"age"`
	Stale       bool              `json:"stale"`
	LastError   string            `json:"last_error,omitempty"`
}

// feedRunner is the type-erased view of a feed the engine iterates over.
type feedRunner interface {
	kind() domain.FeedKind
	refresh(ctx context.Context) error
	hydrate(c Cache) (bool, error)
	apply(scope domain.Scope, now time.Time)
	summary() FeedSummary
	records(raw bool) any
}

// feed holds one upstream's state: raw records from the latest successful
// fetch and the subset that is both active and inside the current scope.
type feed[T any] struct {
	feedKind  domain.FeedKind
	source    Source
	normalize func([]byte) ([]T, error)
	active    func(T, time.Time) bool
	match     func(T, domain.Scope) bool

	scope   func() domain.Scope
	cache   Cache
	notify  func(Event)
	logger  *slog.Logger
	metrics *observability.Metrics

	mu          sync.RWMutex
	raw         []T
	filtered    []T
	status      domain.FeedStatus
	lastFetchAt time.Time
	lastErr     string
}

func (f *feed[T]) kind() domain.FeedKind { return f.feedKind }

// refresh fetches, normalizes and replaces raw, then recomputes filtered
// against the scope at completion time. On failure the previous raw and
// filtered sets are kept and only status changes. Concurrent refreshes of the
// same feed are not serialized; whichever finishes last wins.
func (f *feed[T]) refresh(ctx context.Context) error {
	start := time.Now()
	f.setStatus(domain.StatusLoading, "")

	records, err := f.fetch(ctx)
	if err != nil {
		f.setStatus(domain.StatusError, err.Error())
		f.metrics.FeedRefreshes.WithLabelValues(string(f.feedKind), "error").Inc()
		f.logger.Error("feed refresh failed", "feed", f.feedKind, "error", err)
		return fmt.Errorf("refresh %s: %w", f.feedKind, err)
	}

	scope := f.scope()
	now := domain.Now()
	filtered := f.filter(records, scope, now)

	f.mu.Lock()
	f.raw = records
	f.filtered = filtered
	f.status = domain.StatusOK
	f.lastFetchAt = now
	f.lastErr = ""
	f.mu.Unlock()

	f.persist(records, now)

	f.metrics.FeedRefreshes.WithLabelValues(string(f.feedKind), "ok").Inc()
	f.metrics.FeedRefreshDuration.WithLabelValues(string(f.feedKind)).Observe(time.Since(start).Seconds())
	f.metrics.FeedRecords.WithLabelValues(string(f.feedKind), "raw").Set(float64(len(records)))
	f.metrics.FeedRecords.WithLabelValues(string(f.feedKind), "filtered").Set(float64(len(filtered)))
	f.logger.Info("feed refreshed", "feed", f.feedKind, "records", len(records), "filtered", len(filtered),
		"duration", time.Since(start))

	f.notify(Event{Type: EventFeedUpdate, Feed: f.feedKind, Status: domain.StatusOK})
	return nil
}

func (f *feed[T]) fetch(ctx context.Context) ([]T, error) {
	body, err := f.source.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return f.normalize(body)
}

func (f *feed[T]) setStatus(s domain.FeedStatus, errMsg string) {
	f.mu.Lock()
	f.status = s
	if s == domain.StatusError {
		f.lastErr = errMsg
	}
	f.mu.Unlock()
	f.notify(Event{Type: EventFeedUpdate, Feed: f.feedKind, Status: s})
}

func (f *feed[T]) filter(records []T, scope domain.Scope, now time.Time) []T {
	out := make([]T, 0, len(records))
	for _, r := range records {
		if f.active(r, now) && f.match(r, scope) {
			out = append(out, r)
		}
	}
	return out
}

// apply recomputes filtered from raw for a new scope or evaluation time.
func (f *feed[T]) apply(scope domain.Scope, now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filtered = f.filter(f.raw, scope, now)
	f.metrics.FeedRecords.WithLabelValues(string(f.feedKind), "filtered").Set(float64(len(f.filtered)))
}

// persist writes raw records and the fetch time to the session cache. A write
// failure clears the whole cache; the in-memory state is unaffected.
func (f *feed[T]) persist(records []T, fetchedAt time.Time) {
	if f.cache == nil {
		return
	}
	body, err := json.Marshal(records)
	if err != nil {
		f.logger.Warn("encode feed cache entry failed", "feed", f.feedKind, "error", err)
		return
	}
	if err := f.cache.Set(CacheKey(f.feedKind), body); err != nil {
		f.clearCache("quota", err)
		return
	}
	ts := []byte(fetchedAt.UTC().Format(time.RFC3339Nano))
	if err := f.cache.Set(CacheTimestampKey(f.feedKind), ts); err != nil {
		f.clearCache("quota", err)
	}
}

func (f *feed[T]) clearCache(reason string, err error) {
	f.logger.Warn("session cache cleared", "feed", f.feedKind, "reason", reason, "error", err)
	f.metrics.SessionCacheClears.WithLabelValues(reason).Inc()
	f.cache.Clear()
}

// hydrate restores raw and lastFetchAt from the session cache. It reports
// false when no entry exists. A corrupt entry is returned as an error and
// leaves the feed untouched.
func (f *feed[T]) hydrate(c Cache) (bool, error) {
	body, ok := c.Get(CacheKey(f.feedKind))
	if !ok {
		return false, nil
	}
	var records []T
	if err := json.Unmarshal(body, &records); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", f.feedKind, err)
	}

	var fetchedAt time.Time
	if ts, ok := c.Get(CacheTimestampKey(f.feedKind)); ok {
		t, err := time.Parse(time.RFC3339Nano, string(ts))
		if err != nil {
			return false, fmt.Errorf("decode cached %s timestamp: %w", f.feedKind, err)
		}
		fetchedAt = t
	}

	if records == nil {
		records = []T{}
	}

	f.mu.Lock()
	f.raw = records
	f.status = domain.StatusOK
	f.lastFetchAt = fetchedAt
	f.mu.Unlock()
	f.metrics.FeedRecords.WithLabelValues(string(f.feedKind), "raw").Set(float64(len(records)))
	return true, nil
}

func (f *feed[T]) summary() FeedSummary {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s := FeedSummary{
		Feed:      f.feedKind,
		Status:    f.status,
		Raw:       len(f.raw),
		Filtered:  len(f.filtered),
		Age:       domain.FeedAge(f.lastFetchAt),
		Stale:     domain.IsFeedStale(f.lastFetchAt),
		LastError: f.lastErr,
	}
	if !f.lastFetchAt.IsZero() {
		at := f.lastFetchAt
		s.LastFetchAt = &at
	}
	return s
}

// filteredSet returns the current filtered records. The slice is replaced,
// never mutated, so callers may read it without holding the lock.
func (f *feed[T]) filteredSet() []T {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.filtered == nil {
		return []T{}
	}
	return f.filtered
}

func (f *feed[T]) rawSet() []T {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.raw == nil {
		return []T{}
	}
	return f.raw
}

func (f *feed[T]) records(raw bool) any {
	if raw {
		return f.rawSet()
	}
	return f.filteredSet()
}
