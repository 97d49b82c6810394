package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/ozalerts/exposure-sites-etl/internal/domain"
	"github.com/ozalerts/exposure-sites-etl/internal/observability"
	"github.com/ozalerts/exposure-sites-etl/internal/store"
)

// DefaultPageWriteBudget spaces the array-append writes so that all writes
// landing on one page span roughly a second, respecting the backing
// store's per-document write-rate limits. A fixed throttle, not a backoff.
const DefaultPageWriteBudget = time.Second

// Resolver turns a folded site into a coordinate (geocode cache + API).
type Resolver interface {
	Resolve(ctx context.Context, site domain.Site) (domain.Coordinate, error)
}

// PublishResult describes one successful hot/cold flip.
type PublishResult struct {
	Feed        string
	HotLabel    string
	Sites       int
	PublishedAt time.Time
}

// Publisher writes a folded, geocoded result set into the cold page area
// and atomically flips it live. The hot area a reader might be scanning is
// never touched; on a partial run the flip is skipped, the failure
// timestamp recorded, and the half-written cold area left for the next
// run's clear step to overwrite.
type Publisher struct {
	store           store.Store
	resolver        Resolver
	clock           clockwork.Clock
	metrics         *observability.Metrics
	logger          *slog.Logger
	pageSize        int
	deleteBatchSize int
	pageWriteBudget time.Duration
}

// NewPublisher creates a Publisher. pageWriteBudget is the target duration
// for all writes to a single page; pass 0 to disable throttling (tests).
func NewPublisher(st store.Store, resolver Resolver, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger, pageSize, deleteBatchSize int, pageWriteBudget time.Duration) *Publisher {
	return &Publisher{
		store:           st,
		resolver:        resolver,
		clock:           clock,
		metrics:         metrics,
		logger:          logger,
		pageSize:        pageSize,
		deleteBatchSize: deleteBatchSize,
		pageWriteBudget: pageWriteBudget,
	}
}

// Publish runs one Building phase for the feed: clear the cold area,
// pre-create pages, geocode and append every site, then flip. Returns
// PublishIncompleteError (failure timestamp recorded, no flip) when any
// site failed to geocode or write.
func (p *Publisher) Publish(ctx context.Context, feed string, sites []domain.Site) (PublishResult, error) {
	if len(sites) == 0 {
		return PublishResult{}, errors.New("nothing to publish")
	}

	labels, err := p.loadLabels(ctx, feed)
	if err != nil {
		return PublishResult{}, err
	}
	cold := labels.ColdCollection

	// The no-location set is rebuilt every run.
	if err := p.store.DeleteAll(ctx, noLocationCollection(feed), p.deleteBatchSize); err != nil {
		return PublishResult{}, fmt.Errorf("clear no-location set: %w", err)
	}

	if err := p.store.DeleteAll(ctx, cold, p.deleteBatchSize); err != nil {
		return PublishResult{}, fmt.Errorf("clear cold area %s: %w", cold, err)
	}

	// floor(total/pageSize), but never zero: a result set smaller than one
	// page still needs somewhere to go, so one page minimum.
	numPages := len(sites) / p.pageSize
	if numPages < 1 {
		numPages = 1
	}
	for i := 0; i < numPages; i++ {
		if err := p.store.Set(ctx, cold, pageKey(i), pageDoc{Sites: []domain.Site{}}); err != nil {
			return PublishResult{}, fmt.Errorf("create page %d: %w", i, err)
		}
	}

	// Consecutive writes hit pages round-robin, so spacing every write by
	// budget/numPages puts ~budget between writes to the same page.
	delay := p.pageWriteBudget / time.Duration(numPages)

	counter := 0
	for _, site := range sites {
		coord, err := p.resolver.Resolve(ctx, site)
		if err != nil {
			p.logger.Warn("could not geocode site, skipping",
				"feed", feed, "title", site.Title, "address", site.StreetAddress, "error", err)
			// Keep hash and search param here; they make the entry debuggable.
			if err := p.store.Set(ctx, noLocationCollection(feed), site.Hash, site); err != nil {
				p.logger.Warn("could not record no-location site", "hash", site.Hash, "error", err)
			}
			continue
		}
		site.Lat = coord.Lat
		site.Lng = coord.Lng

		page := pageKey((counter + 1) % numPages)
		if err := p.store.AppendToArray(ctx, cold, page, pageField, site.ForPublish()); err != nil {
			p.logger.Error("page write failed, skipping site",
				"feed", feed, "page", page, "title", site.Title, "error", err)
			continue
		}
		counter++

		if !sleepWithClock(ctx, p.clock, delay) {
			return PublishResult{}, ctx.Err()
		}
	}

	if counter != len(sites) {
		p.logger.Error("publish incomplete, keeping previous snapshot live",
			"feed", feed, "folded", len(sites), "published", counter)
		if err := p.recordTimestamp(ctx, failureKey(feed)); err != nil {
			p.logger.Error("could not record failure timestamp", "feed", feed, "error", err)
		}
		return PublishResult{}, &domain.PublishIncompleteError{Folded: len(sites), Published: counter}
	}

	// The flip: one metadata write makes the rebuilt area hot. Readers
	// mid-scan keep the old area, which this run never modified.
	flipped := paginationDoc{HotCollection: cold, ColdCollection: labels.HotCollection}
	if err := p.store.Set(ctx, metadataCollection, paginationKey(feed), flipped); err != nil {
		return PublishResult{}, fmt.Errorf("flip hot/cold: %w", err)
	}
	now := p.clock.Now()
	if err := p.store.Set(ctx, metadataCollection, successKey(feed), timestampDoc{Time: now.UnixMilli()}); err != nil {
		return PublishResult{}, fmt.Errorf("record success timestamp: %w", err)
	}

	p.metrics.SnapshotSites.WithLabelValues(feed).Set(float64(counter))
	p.metrics.LastPublishSuccess.WithLabelValues(feed).Set(float64(now.Unix()))
	p.logger.Info("snapshot published", "feed", feed, "hot", cold, "sites", counter, "pages", numPages)

	return PublishResult{Feed: feed, HotLabel: cold, Sites: counter, PublishedAt: now}, nil
}

// loadLabels reads the feed's pagination pointer, defaulting to
// hot=blue/cold=green before the first ever flip.
func (p *Publisher) loadLabels(ctx context.Context, feed string) (paginationDoc, error) {
	raw, err := p.store.Get(ctx, metadataCollection, paginationKey(feed))
	if errors.Is(err, store.ErrNotFound) {
		return paginationDoc{
			HotCollection:  blueCollection(feed),
			ColdCollection: greenCollection(feed),
		}, nil
	}
	if err != nil {
		return paginationDoc{}, fmt.Errorf("read pagination metadata: %w", err)
	}

	var doc paginationDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return paginationDoc{}, fmt.Errorf("decode pagination metadata: %w", err)
	}
	return doc, nil
}

func (p *Publisher) recordTimestamp(ctx context.Context, key string) error {
	return p.store.Set(ctx, metadataCollection, key, timestampDoc{Time: p.clock.Now().UnixMilli()})
}

func sleepWithClock(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
