// Package upstream fetches raw exposure-site records from the government
// open-data feeds.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/ozalerts/exposure-sites-etl/internal/config"
	"github.com/ozalerts/exposure-sites-etl/internal/domain"
	"github.com/ozalerts/exposure-sites-etl/internal/observability"
)

// ckanPageSize is the number of records datastore_search returns per GET.
const ckanPageSize = 100

// Client retrieves all raw records from a feed. There is no retry: any
// transport or decode failure aborts the fetch with a FetchError and the
// caller treats the cycle as "no update".
type Client struct {
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an upstream fetcher.
func NewClient(timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		metrics:    metrics,
		logger:     logger,
	}
}

// FetchAll retrieves every raw record the feed currently publishes,
// dispatching on the feed kind.
func (c *Client) FetchAll(ctx context.Context, feed config.Feed) ([]domain.RawRecord, error) {
	source := domain.SourceKind(feed.State)

	var (
		records []domain.RawRecord
		err     error
	)
	switch feed.Kind {
	case config.FeedKindCKAN:
		records, err = c.fetchCKAN(ctx, source, feed)
	case config.FeedKindEmbedded:
		records, err = c.fetchEmbedded(ctx, source, feed)
	default:
		err = fmt.Errorf("unknown feed kind %q", feed.Kind)
	}
	if err != nil {
		return nil, &domain.FetchError{Source: source, Err: err}
	}

	c.metrics.RecordsFetched.WithLabelValues(feed.State).Add(float64(len(records)))
	c.logger.Info("fetched upstream records", "feed", feed.State, "records", len(records))
	return records, nil
}

// ckanResponse is the envelope of a CKAN datastore_search page.
type ckanResponse struct {
	Result struct {
		Records []domain.RawVicRecord `json:"records"`
		Total   int                   `json:"total"`
	} `json:"result"`
}

// fetchCKAN pages through datastore_search with offset-based GETs,
// accumulating records until the offset reaches the source-reported total.
func (c *Client) fetchCKAN(ctx context.Context, source domain.SourceKind, feed config.Feed) ([]domain.RawRecord, error) {
	var records []domain.RawRecord

	offset := 0
	for {
		params := url.Values{
			"offset":      {fmt.Sprintf("%d", offset)},
			"resource_id": {feed.ResourceID},
		}

		var page ckanResponse
		if err := c.getJSON(ctx, feed.URL+"?"+params.Encode(), &page); err != nil {
			return nil, fmt.Errorf("offset %d: %w", offset, err)
		}

		for i := range page.Result.Records {
			records = append(records, domain.RawRecord{Source: source, Vic: &page.Result.Records[i]})
		}

		// An empty page before the reported total means the source is
		// lying about its count; stop rather than loop forever.
		if len(page.Result.Records) == 0 {
			return records, nil
		}

		offset += ckanPageSize
		if offset >= page.Result.Total {
			return records, nil
		}
	}
}

// embeddedResponse is the single-shot feed: everything under data.monitor[].
type embeddedResponse struct {
	Data struct {
		Monitor []domain.RawNswRecord `json:"monitor"`
	} `json:"data"`
}

func (c *Client) fetchEmbedded(ctx context.Context, source domain.SourceKind, feed config.Feed) ([]domain.RawRecord, error) {
	var body embeddedResponse
	if err := c.getJSON(ctx, feed.URL, &body); err != nil {
		return nil, err
	}

	records := make([]domain.RawRecord, 0, len(body.Data.Monitor))
	for i := range body.Data.Monitor {
		records = append(records, domain.RawRecord{Source: source, Nsw: &body.Data.Monitor[i]})
	}
	return records, nil
}

func (c *Client) getJSON(ctx context.Context, fullURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upstream API error: status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
