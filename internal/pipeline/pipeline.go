// Package pipeline orchestrates the fetch-fold-geocode-publish cycle and
// serves reads of the published snapshot.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/ozalerts/exposure-sites-etl/internal/config"
	"github.com/ozalerts/exposure-sites-etl/internal/domain"
	"github.com/ozalerts/exposure-sites-etl/internal/observability"
)

// Fetcher retrieves all raw records a feed currently publishes.
type Fetcher interface {
	FetchAll(ctx context.Context, feed config.Feed) ([]domain.RawRecord, error)
}

// Notifier announces a successful publish to downstream consumers.
type Notifier interface {
	SnapshotPublished(ctx context.Context, feed string, sites int, hotLabel string, publishedAt time.Time) error
}

// Pipeline runs the per-feed refresh cycle on a fixed interval. Feeds are
// refreshed sequentially within a cycle and a cycle must finish before the
// next tick is acted on, so at most one run per feed is ever in flight.
type Pipeline struct {
	fetcher   Fetcher
	publisher *Publisher
	reader    *Reader
	notifier  Notifier // nil when notifications are disabled
	feeds     []config.Feed
	interval  time.Duration
	clock     clockwork.Clock
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// New creates a Pipeline over the given stages. notifier may be nil.
func New(fetcher Fetcher, publisher *Publisher, reader *Reader, notifier Notifier, feeds []config.Feed, interval time.Duration, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		fetcher:   fetcher,
		publisher: publisher,
		reader:    reader,
		notifier:  notifier,
		feeds:     feeds,
		interval:  interval,
		clock:     clock,
		metrics:   metrics,
		logger:    logger,
	}
}

// Reader exposes the snapshot reader for the HTTP layer.
func (p *Pipeline) Reader() *Reader { return p.reader }

// CheckReadiness returns nil once at least one feed has a live snapshot,
// whether published by this process or a previous one.
func (p *Pipeline) CheckReadiness(ctx context.Context) error {
	for _, feed := range p.feeds {
		if _, err := p.reader.LastUpdated(ctx, feed.State); err == nil {
			return nil
		}
	}
	return errors.New("no feed has a published snapshot yet")
}

// Run refreshes all feeds immediately, then on every interval tick, until
// the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "feeds", len(p.feeds), "interval", p.interval)

	p.RefreshAll(ctx)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			p.RefreshAll(ctx)
		}
	}
}

// RefreshAll runs one refresh cycle over every feed. Per-feed failures are
// logged and counted; they never stop the other feeds.
func (p *Pipeline) RefreshAll(ctx context.Context) {
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	for _, feed := range p.feeds {
		if ctx.Err() != nil {
			return
		}
		if err := p.RefreshFeed(ctx, feed); err != nil {
			p.logger.Error("refresh failed", "feed", feed.State, "error", err)
		}
	}
}

// RefreshFeed runs one fetch-fold-geocode-publish cycle for a single feed.
func (p *Pipeline) RefreshFeed(ctx context.Context, feed config.Feed) error {
	start := p.clock.Now()

	records, err := p.fetcher.FetchAll(ctx, feed)
	if err != nil {
		// No update this cycle; the previous snapshot stays live.
		p.metrics.PublishRuns.WithLabelValues(feed.State, "fetch_error").Inc()
		return err
	}

	fragments := make([]domain.Site, 0, len(records))
	malformed := 0
	for _, rec := range records {
		site, err := domain.Normalize(rec)
		if err != nil {
			malformed++
			p.logger.Warn("skipping malformed record", "feed", feed.State, "error", err)
			continue
		}
		fragments = append(fragments, site)
	}
	if malformed > 0 {
		p.metrics.MalformedRecords.WithLabelValues(feed.State).Add(float64(malformed))
	}

	folded := domain.FoldSites(fragments, domain.SamePlace)
	p.metrics.FoldedSites.WithLabelValues(feed.State).Set(float64(len(folded)))

	if len(folded) == 0 {
		p.metrics.PublishRuns.WithLabelValues(feed.State, "empty").Inc()
		p.logger.Info("feed has no sites, keeping previous snapshot", "feed", feed.State)
		return nil
	}

	result, err := p.publisher.Publish(ctx, feed.State, folded)
	if err != nil {
		var incomplete *domain.PublishIncompleteError
		if errors.As(err, &incomplete) {
			p.metrics.PublishRuns.WithLabelValues(feed.State, "incomplete").Inc()
		} else {
			p.metrics.PublishRuns.WithLabelValues(feed.State, "error").Inc()
		}
		return err
	}

	p.metrics.PublishRuns.WithLabelValues(feed.State, "success").Inc()
	p.metrics.PublishDuration.WithLabelValues(feed.State).Observe(p.clock.Since(start).Seconds())

	if p.notifier != nil {
		if err := p.notifier.SnapshotPublished(ctx, result.Feed, result.Sites, result.HotLabel, result.PublishedAt); err != nil {
			p.logger.Warn("snapshot notification failed", "feed", feed.State, "error", err)
		}
	}
	return nil
}
