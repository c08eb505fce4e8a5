package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/couchcryptid/sitaware/internal/domain"
	"github.com/couchcryptid/sitaware/internal/observability"
)

// ErrUpstreamStatus is returned when a feed responds with a non-2xx status.
var ErrUpstreamStatus = errors.New("upstream returned non-success status")

// maxErrorBody bounds how much of a failed response is echoed into the error.
const maxErrorBody = 512

// Options are shared by every feed client.
type Options struct {
	Timeout   time.Duration
	UserAgent string
}

// Client performs GET requests against one upstream feed behind a circuit
// breaker. It never retries; the next scheduled refresh is the retry.
type Client struct {
	feed       domain.FeedKind
	httpClient *http.Client
	baseURL    string
	userAgent  string
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a client for one feed's endpoint.
func NewClient(feed domain.FeedKind, baseURL string, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Client {
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        string(feed),
		MaxRequests: 1,
		Interval:    10 * time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("upstream circuit state changed", "feed", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		feed:       feed,
		httpClient: &http.Client{Timeout: opts.Timeout},
		baseURL:    baseURL,
		userAgent:  opts.UserAgent,
		breaker:    cb,
		logger:     logger,
		metrics:    metrics,
	}
}

// get fetches baseURL with the given raw query string and returns the body.
func (c *Client) get(ctx context.Context, rawQuery string) ([]byte, error) {
	fullURL := c.baseURL
	if rawQuery != "" {
		sep := "?"
		if strings.Contains(fullURL, "?") {
			sep = "&"
		}
		fullURL += sep + rawQuery
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.doRequest(ctx, fullURL)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.metrics.UpstreamRequests.WithLabelValues(string(c.feed), "circuit_open").Inc()
		return nil, fmt.Errorf("%s request: %w", c.feed, err)
	case err != nil:
		c.metrics.UpstreamRequests.WithLabelValues(string(c.feed), "error").Inc()
		return nil, err
	}
	c.metrics.UpstreamRequests.WithLabelValues(string(c.feed), "success").Inc()
	return body, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json, application/geo+json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", c.feed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: %s status %d: %s", ErrUpstreamStatus, c.feed, resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", c.feed, err)
	}
	return body, nil
}
