package upstream

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/couchcryptid/sitaware/internal/domain"
	"github.com/couchcryptid/sitaware/internal/observability"
)

// Public endpoints for the four feeds.
const (
	DefaultWeatherURL      = "https://api.weather.gov/alerts/active"
	DefaultDeclarationsURL = "https://www.fema.gov/api/open/v2/DisasterDeclarationsSummaries"
	DefaultWildfireURL     = "https://services9.arcgis.com/RHVPKKiFTONKtxq3/arcgis/rest/services/USA_Wildfires_v1/FeatureServer/0/query"
	DefaultSeismicURL      = "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/2.5_week.geojson"
)

// WeatherClient fetches active NWS alerts. The service requires an
// identifying User-Agent.
type WeatherClient struct {
	client *Client
}

// NewWeatherClient creates a weather alerts client.
func NewWeatherClient(baseURL string, opts Options, logger *slog.Logger, metrics *observability.Metrics) *WeatherClient {
	return &WeatherClient{client: NewClient(domain.FeedWeather, baseURL, opts, logger, metrics)}
}

// Fetch returns the raw alerts collection, limited to actual (non-test) alerts.
func (c *WeatherClient) Fetch(ctx context.Context) ([]byte, error) {
	return c.client.get(ctx, url.Values{"status": {"actual"}}.Encode())
}

// DeclarationsClient fetches recent FEMA disaster declaration summaries.
type DeclarationsClient struct {
	client   *Client
	daysBack int
	pageSize int
}

// NewDeclarationsClient creates a client requesting the trailing daysBack
// days, newest first, capped at pageSize rows.
func NewDeclarationsClient(baseURL string, daysBack, pageSize int, opts Options, logger *slog.Logger, metrics *observability.Metrics) *DeclarationsClient {
	return &DeclarationsClient{
		client:   NewClient(domain.FeedDeclarations, baseURL, opts, logger, metrics),
		daysBack: daysBack,
		pageSize: pageSize,
	}
}

// Fetch returns the raw declarations page.
func (c *DeclarationsClient) Fetch(ctx context.Context) ([]byte, error) {
	return c.client.get(ctx, c.query())
}

func (c *DeclarationsClient) query() string {
	cutoff := domain.Now().UTC().AddDate(0, 0, -c.daysBack).Format("2006-01-02")
	params := url.Values{
		"$filter":  {"declarationDate ge '" + cutoff + "'"},
		"$orderby": {"declarationDate desc"},
		"$top":     {strconv.Itoa(c.pageSize)},
	}
	// OData expects %20 rather than form-encoded '+' for spaces.
	return strings.ReplaceAll(params.Encode(), "+", "%20")
}

// WildfireClient queries the NIFC incident feature service.
type WildfireClient struct {
	client      *Client
	recordCount int
}

// NewWildfireClient creates a client requesting up to recordCount incidents.
func NewWildfireClient(baseURL string, recordCount int, opts Options, logger *slog.Logger, metrics *observability.Metrics) *WildfireClient {
	return &WildfireClient{
		client:      NewClient(domain.FeedWildfire, baseURL, opts, logger, metrics),
		recordCount: recordCount,
	}
}

// Fetch returns the raw ArcGIS query result.
func (c *WildfireClient) Fetch(ctx context.Context) ([]byte, error) {
	params := url.Values{
		"where":             {"1=1"},
		"outFields":         {domain.WildfireFields},
		"f":                 {"json"},
		"resultRecordCount": {strconv.Itoa(c.recordCount)},
	}
	return c.client.get(ctx, params.Encode())
}

// SeismicClient fetches the USGS significant-magnitude weekly summary.
type SeismicClient struct {
	client *Client
}

// NewSeismicClient creates a seismic summary client.
func NewSeismicClient(baseURL string, opts Options, logger *slog.Logger, metrics *observability.Metrics) *SeismicClient {
	return &SeismicClient{client: NewClient(domain.FeedSeismic, baseURL, opts, logger, metrics)}
}

// Fetch returns the raw GeoJSON summary.
func (c *SeismicClient) Fetch(ctx context.Context) ([]byte, error) {
	return c.client.get(ctx, "")
}
