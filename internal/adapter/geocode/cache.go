package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/ozalerts/exposure-sites-etl/internal/domain"
	"github.com/ozalerts/exposure-sites-etl/internal/observability"
	"github.com/ozalerts/exposure-sites-etl/internal/store"
)

// CacheCollection is the store collection holding resolved coordinates,
// keyed by site identity hash. Entries are written once and never updated;
// an address resolving differently later is out of scope.
const CacheCollection = "sites"

// cacheEntry is the persisted document shape.
type cacheEntry struct {
	Location domain.Coordinate `json:"location"`
}

// CachedResolver resolves a site to a coordinate, consulting the persistent
// cache before calling the external geocoder. New resolutions are written
// back fire-and-forget: a cache-write failure is logged, never surfaced.
type CachedResolver struct {
	inner   domain.Geocoder
	store   store.Store
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewCachedResolver creates a cache decorator around a geocoder.
func NewCachedResolver(inner domain.Geocoder, st store.Store, metrics *observability.Metrics, logger *slog.Logger) *CachedResolver {
	return &CachedResolver{
		inner:   inner,
		store:   st,
		metrics: metrics,
		logger:  logger,
	}
}

// Resolve returns the site's coordinate. Failures come back as a
// domain.GeocodeError; the caller skips the site for this publish cycle.
func (r *CachedResolver) Resolve(ctx context.Context, site domain.Site) (domain.Coordinate, error) {
	raw, err := r.store.Get(ctx, CacheCollection, site.Hash)
	if err == nil {
		var entry cacheEntry
		if err := json.Unmarshal(raw, &entry); err == nil {
			r.metrics.GeocodeCache.WithLabelValues("hit").Inc()
			r.logger.Debug("geocode cache hit", "title", site.Title, "hash", site.Hash)
			return entry.Location, nil
		}
		r.logger.Warn("corrupt geocode cache entry, re-resolving", "hash", site.Hash)
	} else if !errors.Is(err, store.ErrNotFound) {
		// A cache read failure degrades to a miss rather than failing the site.
		r.logger.Warn("geocode cache read failed", "hash", site.Hash, "error", err)
	}
	r.metrics.GeocodeCache.WithLabelValues("miss").Inc()

	coord, err := r.inner.Geocode(ctx, site.SearchParam)
	if err != nil {
		return domain.Coordinate{}, &domain.GeocodeError{Query: site.SearchParam, Err: err}
	}

	if err := r.store.Set(ctx, CacheCollection, site.Hash, cacheEntry{Location: coord}); err != nil {
		r.logger.Warn("geocode cache write failed", "hash", site.Hash, "error", err)
	}

	return coord, nil
}
