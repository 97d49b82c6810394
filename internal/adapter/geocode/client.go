// Package geocode resolves site addresses to coordinates via an external
// geocoding API, fronted by a persistent store-backed cache.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/ozalerts/exposure-sites-etl/internal/domain"
	"github.com/ozalerts/exposure-sites-etl/internal/observability"
)

// regionBounds biases results toward the area the feeds cover. The API may
// still return matches outside it; first result wins either way.
const regionBounds = "-34.21832861798514,140.97232382930986|-38.780983886239156,147.920293027031"

// Client implements domain.Geocoder against a Google-style geocoding API:
// GET with an address query and key, coordinates under
// results[0].geometry.location.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a geocoding API client.
func NewClient(apiKey string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    "https://maps.googleapis.com/maps/api/geocode/json",
		metrics:    metrics,
		logger:     logger,
	}
}

// Geocode resolves a free-text address query. Zero results is
// domain.ErrNoGeocodeMatch; the first result's coordinate is taken
// otherwise.
func (c *Client) Geocode(ctx context.Context, query string) (domain.Coordinate, error) {
	params := url.Values{
		"address":    {query},
		"bounds":     {regionBounds},
		"components": {"country:AU"},
		"key":        {c.apiKey},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.GeocodeAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return domain.Coordinate{}, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		body, _ := io.ReadAll(resp.Body)
		return domain.Coordinate{}, fmt.Errorf("geocode API error: status %d: %s", resp.StatusCode, body)
	}

	var apiResp response
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return domain.Coordinate{}, fmt.Errorf("decode response: %w", err)
	}

	if len(apiResp.Results) == 0 {
		c.metrics.GeocodeRequests.WithLabelValues("no_match").Inc()
		return domain.Coordinate{}, fmt.Errorf("%q: %w", query, domain.ErrNoGeocodeMatch)
	}

	c.metrics.GeocodeRequests.WithLabelValues("success").Inc()
	loc := apiResp.Results[0].Geometry.Location
	return domain.Coordinate{Lat: loc.Lat, Lng: loc.Lng}, nil
}

// Geocoding API response types.

type response struct {
	Results []result `json:"results"`
}

type result struct {
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
}
