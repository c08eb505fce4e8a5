package session

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrQuotaExceeded is returned when a write would push the store past its byte quota.
var ErrQuotaExceeded = errors.New("session store quota exceeded")

const tmpSuffix = ".tmp"

// Store is a byte-quota-bounded key/value store whose entries expire after a
// fixed TTL. A store created with Open mirrors every entry to one file per
// key so a restarted process can pick up where the last one left off; a store
// created with NewStore lives in memory only.
type Store struct {
	dir      string
	maxBytes int
	ttl      time.Duration
	clock    clockwork.Clock

	mu      sync.Mutex
	entries map[string]entry
	used    int
}

type entry struct {
	value    []byte
	storedAt time.Time
}

// NewStore creates an in-memory store. A non-positive ttl disables expiry.
func NewStore(maxBytes int, ttl time.Duration, clock clockwork.Clock) *Store {
	return &Store{
		maxBytes: maxBytes,
		ttl:      ttl,
		clock:    clock,
		entries:  make(map[string]entry),
	}
}

// Open creates a store backed by dir, loading the entries a previous process
// left there. Expired entries are discarded. If any file is unreadable or the
// entries no longer fit the quota, the directory is wiped and the empty store
// is returned together with the error. An empty dir gives an in-memory store.
func Open(dir string, maxBytes int, ttl time.Duration, clock clockwork.Clock) (*Store, error) {
	s := NewStore(maxBytes, ttl, clock)
	if dir == "" {
		return s, nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create session cache dir: %w", err)
	}
	s.dir = dir

	if err := s.load(); err != nil {
		s.Clear()
		return s, fmt.Errorf("load session cache: %w", err)
	}
	return s, nil
}

// Get returns a copy of the value for key, or false if it is absent or expired.
func (s *Store) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if s.expired(e) {
		s.deleteLocked(key)
		return nil, false
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true
}

// Set stores a copy of value under key. A write that would exceed the quota,
// or that cannot reach disk, is rejected and leaves the previous value in place.
func (s *Store) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictExpiredLocked()

	size := len(key) + len(value)
	used := s.used
	if old, ok := s.entries[key]; ok {
		used -= len(key) + len(old.value)
	}
	if used+size > s.maxBytes {
		return fmt.Errorf("%w: %d of %d bytes in use, %q needs %d", ErrQuotaExceeded, used, s.maxBytes, key, size)
	}

	e := entry{value: bytes.Clone(value), storedAt: s.clock.Now()}
	if err := s.writeFile(key, e); err != nil {
		return err
	}
	s.entries[key] = e
	s.used = used + size
	return nil
}

// Clear removes every entry, on disk as well.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]entry)
	s.used = 0
	if s.dir == "" {
		return
	}
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, f := range files {
		_ = os.Remove(filepath.Join(s.dir, f.Name()))
	}
}

// Used returns the bytes currently held, keys included.
func (s *Store) Used() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

func (s *Store) expired(e entry) bool {
	return s.ttl > 0 && s.clock.Since(e.storedAt) > s.ttl
}

func (s *Store) evictExpiredLocked() {
	for k, e := range s.entries {
		if s.expired(e) {
			s.deleteLocked(k)
		}
	}
}

func (s *Store) deleteLocked(key string) {
	if e, ok := s.entries[key]; ok {
		s.used -= len(key) + len(e.value)
		delete(s.entries, key)
	}
	if s.dir != "" {
		_ = os.Remove(s.path(key))
	}
}

// Entry files hold the RFC 3339 store time on the first line and the raw value after it.

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key))
}

func (s *Store) writeFile(key string, e entry) error {
	if s.dir == "" {
		return nil
	}
	var buf bytes.Buffer
	buf.WriteString(e.storedAt.UTC().Format(time.RFC3339Nano))
	buf.WriteByte('\n')
	buf.Write(e.value)

	tmp := s.path(key) + tmpSuffix
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write session entry %q: %w", key, err)
	}
	if err := os.Rename(tmp, s.path(key)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write session entry %q: %w", key, err)
	}
	return nil
}

func (s *Store) load() error {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range files {
		name := f.Name()
		full := filepath.Join(s.dir, name)
		if f.IsDir() {
			continue
		}
		if strings.HasSuffix(name, tmpSuffix) {
			_ = os.Remove(full)
			continue
		}

		key, err := url.PathUnescape(name)
		if err != nil {
			return fmt.Errorf("entry name %q: %w", name, err)
		}
		raw, err := os.ReadFile(full)
		if err != nil {
			return fmt.Errorf("read entry %q: %w", key, err)
		}
		stamp, value, ok := bytes.Cut(raw, []byte{'\n'})
		if !ok {
			return fmt.Errorf("entry %q has no timestamp", key)
		}
		storedAt, err := time.Parse(time.RFC3339Nano, string(stamp))
		if err != nil {
			return fmt.Errorf("entry %q timestamp: %w", key, err)
		}

		e := entry{value: value, storedAt: storedAt}
		if s.expired(e) {
			_ = os.Remove(full)
			continue
		}
		s.entries[key] = e
		s.used += len(key) + len(value)
	}

	if s.used > s.maxBytes {
		return fmt.Errorf("%w: %d of %d bytes on disk", ErrQuotaExceeded, s.used, s.maxBytes)
	}
	return nil
}
