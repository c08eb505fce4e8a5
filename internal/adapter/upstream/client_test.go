package upstream

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/sitaware/internal/domain"
	"github.com/couchcryptid/sitaware/internal/observability"
)

const testUserAgent = "(sitaware-test, ops@example.org)"

func testOptions() Options {
	return Options{Timeout: 5 * time.Second, UserAgent: testUserAgent}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWeatherClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/alerts/active", r.URL.Path)
		assert.Equal(t, "actual", r.URL.Query().Get("status"))
		assert.Equal(t, testUserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = w.Write([]byte(`{"features": []}`))
	}))
	defer srv.Close()

	c := NewWeatherClient(srv.URL+"/alerts/active", testOptions(), discardLogger(), observability.NewMetricsForTesting())
	body, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"features": []}`, string(body))
}

func TestDeclarationsClient_Query(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })

	var rawQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		q := r.URL.Query()
		assert.Equal(t, "declarationDate ge '2026-09-17'", q.Get("$filter"))
		assert.Equal(t, "declarationDate desc", q.Get("$orderby"))
		assert.Equal(t, "1000", q.Get("$top"))
		_, _ = w.Write([]byte(`{"DisasterDeclarationsSummaries": []}`))
	}))
	defer srv.Close()

	c := NewDeclarationsClient(srv.URL, 30, 1000, testOptions(), discardLogger(), observability.NewMetricsForTesting())
	_, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, rawQuery, "+", "spaces are percent-encoded")
}

func TestWildfireClient_Query(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "1=1", q.Get("where"))
		assert.Equal(t, domain.WildfireFields, q.Get("outFields"))
		assert.Equal(t, "json", q.Get("f"))
		assert.Equal(t, "2000", q.Get("resultRecordCount"))
		_, _ = w.Write([]byte(`{"features": []}`))
	}))
	defer srv.Close()

	c := NewWildfireClient(srv.URL, 2000, testOptions(), discardLogger(), observability.NewMetricsForTesting())
	_, err := c.Fetch(context.Background())
	require.NoError(t, err)
}

func TestSeismicClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)
		_, _ = w.Write([]byte(`{"features": [{"id": "ci1"}]}`))
	}))
	defer srv.Close()

	c := NewSeismicClient(srv.URL, testOptions(), discardLogger(), observability.NewMetricsForTesting())
	body, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(body), "ci1")
}

func TestClient_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance"))
	}))
	defer srv.Close()

	c := NewSeismicClient(srv.URL, testOptions(), discardLogger(), observability.NewMetricsForTesting())
	_, err := c.Fetch(context.Background())
	require.ErrorIs(t, err, ErrUpstreamStatus)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "maintenance")
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewSeismicClient(url, testOptions(), discardLogger(), observability.NewMetricsForTesting())
	_, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUpstreamStatus)
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c := NewSeismicClient(srv.URL, Options{Timeout: 50 * time.Millisecond}, discardLogger(), observability.NewMetricsForTesting())
	_, err := c.Fetch(context.Background())
	require.Error(t, err)
}

func TestClient_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewWeatherClient(srv.URL, testOptions(), discardLogger(), observability.NewMetricsForTesting())
	for range 6 {
		_, err := c.Fetch(context.Background())
		require.ErrorIs(t, err, ErrUpstreamStatus)
	}

	_, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "circuit breaker is open"), err.Error())
	assert.Equal(t, int32(6), hits.Load(), "open circuit fails fast without a request")
}
