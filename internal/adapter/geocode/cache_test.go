package geocode

import (
	"context"
	"errors"
	"testing"

	"github.com/ozalerts/exposure-sites-etl/internal/domain"
	"github.com/ozalerts/exposure-sites-etl/internal/observability"
	"github.com/ozalerts/exposure-sites-etl/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock geocoder ---

type countingGeocoder struct {
	calls  int
	result domain.Coordinate
	err    error
}

func (m *countingGeocoder) Geocode(_ context.Context, _ string) (domain.Coordinate, error) {
	m.calls++
	if m.err != nil {
		return domain.Coordinate{}, m.err
	}
	return m.result, nil
}

func testSite() domain.Site {
	return domain.Site{
		Hash:        "cafex1mainst",
		Title:       "Cafe X",
		SearchParam: "Cafe X 1 Main St 3000",
	}
}

func newResolver(inner domain.Geocoder, st store.Store) *CachedResolver {
	return NewCachedResolver(inner, st, observability.NewMetricsForTesting(), testLogger())
}

// --- tests ---

func TestCachedResolver_HitAvoidsNetwork(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, CacheCollection, "cafex1mainst", cacheEntry{
		Location: domain.Coordinate{Lat: -37.81, Lng: 144.96},
	}))

	inner := &countingGeocoder{}
	r := newResolver(inner, st)

	coord, err := r.Resolve(ctx, testSite())
	require.NoError(t, err)
	assert.Equal(t, -37.81, coord.Lat)
	assert.Equal(t, 144.96, coord.Lng)
	assert.Zero(t, inner.calls, "cache hit must not invoke the external geocoder")
}

func TestCachedResolver_MissCallsAPIAndWritesThrough(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	inner := &countingGeocoder{result: domain.Coordinate{Lat: -37.81, Lng: 144.96}}
	r := newResolver(inner, st)

	coord, err := r.Resolve(ctx, testSite())
	require.NoError(t, err)
	assert.Equal(t, -37.81, coord.Lat)
	assert.Equal(t, 1, inner.calls)

	// A second resolve for the same identity hash is served from the cache.
	_, err = r.Resolve(ctx, testSite())
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedResolver_NoMatchIsGeocodeError(t *testing.T) {
	inner := &countingGeocoder{err: domain.ErrNoGeocodeMatch}
	r := newResolver(inner, store.NewMemory())

	_, err := r.Resolve(context.Background(), testSite())

	var geoErr *domain.GeocodeError
	require.ErrorAs(t, err, &geoErr)
	assert.Equal(t, "Cafe X 1 Main St 3000", geoErr.Query)
	assert.ErrorIs(t, err, domain.ErrNoGeocodeMatch)
}

func TestCachedResolver_APIErrorNotCached(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	inner := &countingGeocoder{err: errors.New("boom")}
	r := newResolver(inner, st)

	_, err := r.Resolve(ctx, testSite())
	require.Error(t, err)

	// Failure must not leave a cache entry behind.
	_, err = st.Get(ctx, CacheCollection, "cafex1mainst")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCachedResolver_CorruptEntryReResolves(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, CacheCollection, "cafex1mainst", "not an object"))

	inner := &countingGeocoder{result: domain.Coordinate{Lat: -37.81, Lng: 144.96}}
	r := newResolver(inner, st)

	coord, err := r.Resolve(ctx, testSite())
	require.NoError(t, err)
	assert.Equal(t, -37.81, coord.Lat)
	assert.Equal(t, 1, inner.calls)
}
