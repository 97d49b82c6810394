package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ozalerts/exposure-sites-etl/internal/domain"
	"github.com/ozalerts/exposure-sites-etl/internal/store"
)

// Snapshot is one windowed view of the current hot snapshot.
type Snapshot struct {
	Results     []domain.Site `json:"results"`
	Offset      int           `json:"offset"`
	Total       int           `json:"total"`
	LastUpdated int64         `json:"lastUpdated"` // unix milliseconds
}

// Reader serves windows of whatever snapshot the publisher last flipped
// live. It only ever touches the hot area and the metadata documents, so it
// never observes a build in progress.
type Reader struct {
	store  store.Store
	logger *slog.Logger
}

// NewReader creates a snapshot reader.
func NewReader(st store.Store, logger *slog.Logger) *Reader {
	return &Reader{store: st, logger: logger}
}

// Read returns sites [offset, offset+limit) of the feed's hot snapshot,
// the pre-window total, and the last publish time. domain.ErrNeverPublished
// when no run has ever flipped for this feed. limit < 1 returns an empty
// window with total 0 rather than meaning "no limit".
func (r *Reader) Read(ctx context.Context, feed string, offset, limit int) (Snapshot, error) {
	lastUpdated, err := r.lastUpdated(ctx, feed)
	if err != nil {
		return Snapshot{}, err
	}

	hot, err := r.hotCollection(ctx, feed)
	if err != nil {
		return Snapshot{}, err
	}

	if limit < 1 {
		return Snapshot{Results: []domain.Site{}, Offset: offset, Total: 0, LastUpdated: lastUpdated}, nil
	}

	sites, err := r.allSites(ctx, hot)
	if err != nil {
		return Snapshot{}, err
	}

	total := len(sites)
	start := min(max(offset, 0), total)
	end := min(start+limit, total)

	return Snapshot{
		Results:     sites[start:end],
		Offset:      offset,
		Total:       total,
		LastUpdated: lastUpdated,
	}, nil
}

// LastUpdated returns the feed's last successful publish time, or
// domain.ErrNeverPublished. Cheap: two metadata reads, no page scan.
func (r *Reader) LastUpdated(ctx context.Context, feed string) (int64, error) {
	return r.lastUpdated(ctx, feed)
}

func (r *Reader) lastUpdated(ctx context.Context, feed string) (int64, error) {
	raw, err := r.store.Get(ctx, metadataCollection, successKey(feed))
	if errors.Is(err, store.ErrNotFound) {
		return 0, fmt.Errorf("feed %s: %w", feed, domain.ErrNeverPublished)
	}
	if err != nil {
		return 0, fmt.Errorf("read success timestamp: %w", err)
	}

	var ts timestampDoc
	if err := json.Unmarshal(raw, &ts); err != nil {
		return 0, fmt.Errorf("decode success timestamp: %w", err)
	}
	return ts.Time, nil
}

func (r *Reader) hotCollection(ctx context.Context, feed string) (string, error) {
	raw, err := r.store.Get(ctx, metadataCollection, paginationKey(feed))
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("feed %s: %w", feed, domain.ErrNeverPublished)
	}
	if err != nil {
		return "", fmt.Errorf("read pagination metadata: %w", err)
	}

	var doc paginationDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("decode pagination metadata: %w", err)
	}
	return doc.HotCollection, nil
}

// allSites concatenates every page of the hot area, in page order, into
// one flat array the offset/limit window indexes into.
func (r *Reader) allSites(ctx context.Context, hot string) ([]domain.Site, error) {
	docs, err := r.store.List(ctx, hot)
	if err != nil {
		return nil, fmt.Errorf("list hot area %s: %w", hot, err)
	}

	var sites []domain.Site
	for _, doc := range docs {
		var page pageDoc
		if err := json.Unmarshal(doc.Value, &page); err != nil {
			return nil, fmt.Errorf("decode page %s: %w", doc.Key, err)
		}
		sites = append(sites, page.Sites...)
	}
	return sites, nil
}
