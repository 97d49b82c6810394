package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/ozalerts/exposure-sites-etl/internal/domain"
	"github.com/ozalerts/exposure-sites-etl/internal/observability"
	"github.com/ozalerts/exposure-sites-etl/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks and helpers ---

type mockResolver struct {
	fail  map[string]bool // by identity hash
	calls int
}

func (m *mockResolver) Resolve(_ context.Context, s domain.Site) (domain.Coordinate, error) {
	m.calls++
	if m.fail[s.Hash] {
		return domain.Coordinate{}, &domain.GeocodeError{Query: s.SearchParam, Err: domain.ErrNoGeocodeMatch}
	}
	return domain.Coordinate{Lat: -37.81, Lng: 144.96}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testEpoch = time.Date(2021, 7, 15, 3, 0, 0, 0, time.UTC)

// newTestPublisher builds a Publisher over the in-memory store with the
// throttle disabled and a frozen clock.
func newTestPublisher(st store.Store, resolver Resolver, pageSize int) (*Publisher, *clockwork.FakeClock) {
	fc := clockwork.NewFakeClockAt(testEpoch)
	p := NewPublisher(st, resolver, fc, observability.NewMetricsForTesting(), testLogger(), pageSize, 40, 0)
	return p, fc
}

func makeSites(n int) []domain.Site {
	sites := make([]domain.Site, n)
	for i := range sites {
		title := fmt.Sprintf("Site %03d", i)
		sites[i] = domain.Site{
			Hash:        domain.IdentityHash(title, ""),
			Title:       title,
			SearchParam: title,
			Exposures:   []domain.Exposure{{Date: "2021-07-01", Tier: 1}},
		}
	}
	return sites
}

func readPage(t *testing.T, st store.Store, collection, key string) pageDoc {
	t.Helper()
	raw, err := st.Get(context.Background(), collection, key)
	require.NoError(t, err)
	var page pageDoc
	require.NoError(t, json.Unmarshal(raw, &page))
	return page
}

func readPagination(t *testing.T, st store.Store, feed string) paginationDoc {
	t.Helper()
	raw, err := st.Get(context.Background(), metadataCollection, paginationKey(feed))
	require.NoError(t, err)
	var doc paginationDoc
	require.NoError(t, json.Unmarshal(raw, &doc))
	return doc
}

// --- tests ---

func TestPublish_DistributesAcrossPagesAndFlips(t *testing.T) {
	// 250 sites at pageSize 100: exactly 2 pages, every site placed,
	// no page left empty.
	st := store.NewMemory()
	p, _ := newTestPublisher(st, &mockResolver{}, 100)

	result, err := p.Publish(context.Background(), "vic", makeSites(250))
	require.NoError(t, err)

	assert.Equal(t, 250, result.Sites)
	assert.Equal(t, "vic-green", result.HotLabel, "first run builds into the default cold area")

	meta := readPagination(t, st, "vic")
	assert.Equal(t, "vic-green", meta.HotCollection)
	assert.Equal(t, "vic-blue", meta.ColdCollection)

	docs, err := st.List(context.Background(), "vic-green")
	require.NoError(t, err)
	require.Len(t, docs, 2)

	p0 := readPage(t, st, "vic-green", pageKey(0))
	p1 := readPage(t, st, "vic-green", pageKey(1))
	assert.NotEmpty(t, p0.Sites)
	assert.NotEmpty(t, p1.Sites)
	assert.Equal(t, 250, len(p0.Sites)+len(p1.Sites))

	// Round-robin assignment starts at page 1: counter 0 -> (0+1) mod 2.
	assert.Equal(t, "Site 000", p1.Sites[0].Title)
	assert.Equal(t, "Site 001", p0.Sites[0].Title)
}

func TestPublish_StripsWorkingFields(t *testing.T) {
	st := store.NewMemory()
	p, _ := newTestPublisher(st, &mockResolver{}, 100)

	sites := makeSites(1)
	sites[0].Postcode = "3000"

	_, err := p.Publish(context.Background(), "vic", sites)
	require.NoError(t, err)

	page := readPage(t, st, "vic-green", pageKey(0))
	require.Len(t, page.Sites, 1)
	published := page.Sites[0]
	assert.Empty(t, published.Hash)
	assert.Empty(t, published.SearchParam)
	assert.Empty(t, published.Postcode)
	assert.Equal(t, -37.81, published.Lat)
	assert.Equal(t, 144.96, published.Lng)
	require.Len(t, published.Exposures, 1)
}

func TestPublish_FewerSitesThanOnePage(t *testing.T) {
	// floor(50/100) would be zero pages; the guard allocates one page so
	// the modulo assignment never divides by zero.
	st := store.NewMemory()
	p, _ := newTestPublisher(st, &mockResolver{}, 100)

	result, err := p.Publish(context.Background(), "vic", makeSites(50))
	require.NoError(t, err)
	assert.Equal(t, 50, result.Sites)

	docs, err := st.List(context.Background(), "vic-green")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Len(t, readPage(t, st, "vic-green", pageKey(0)).Sites, 50)
}

func TestPublish_SuccessTimestampRecorded(t *testing.T) {
	st := store.NewMemory()
	p, fc := newTestPublisher(st, &mockResolver{}, 100)

	_, err := p.Publish(context.Background(), "vic", makeSites(3))
	require.NoError(t, err)

	raw, err := st.Get(context.Background(), metadataCollection, successKey("vic"))
	require.NoError(t, err)
	var ts timestampDoc
	require.NoError(t, json.Unmarshal(raw, &ts))
	assert.Equal(t, fc.Now().UnixMilli(), ts.Time)

	_, err = st.Get(context.Background(), metadataCollection, failureKey("vic"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPublish_NoFlipOnGeocodeFailure(t *testing.T) {
	st := store.NewMemory()
	sites := makeSites(5)
	resolver := &mockResolver{fail: map[string]bool{sites[2].Hash: true}}
	p, fc := newTestPublisher(st, resolver, 100)

	_, err := p.Publish(context.Background(), "vic", sites)

	var incomplete *domain.PublishIncompleteError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, 5, incomplete.Folded)
	assert.Equal(t, 4, incomplete.Published)

	// No flip: the pagination pointer was never written.
	_, err = st.Get(context.Background(), metadataCollection, paginationKey("vic"))
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Failure timestamp recorded, success absent.
	raw, err := st.Get(context.Background(), metadataCollection, failureKey("vic"))
	require.NoError(t, err)
	var ts timestampDoc
	require.NoError(t, json.Unmarshal(raw, &ts))
	assert.Equal(t, fc.Now().UnixMilli(), ts.Time)

	_, err = st.Get(context.Background(), metadataCollection, successKey("vic"))
	assert.ErrorIs(t, err, store.ErrNotFound)

	// The unresolvable site landed in the no-location set.
	raw, err = st.Get(context.Background(), noLocationCollection("vic"), sites[2].Hash)
	require.NoError(t, err)
	var recorded domain.Site
	require.NoError(t, json.Unmarshal(raw, &recorded))
	assert.Equal(t, sites[2].Title, recorded.Title)
	assert.NotEmpty(t, recorded.Hash, "no-location entries keep their hash for debugging")
}

func TestPublish_HotAreaUntouchedDuringFailedRebuild(t *testing.T) {
	// Double-buffer isolation: a failed second run leaves the reader-visible
	// area byte-for-byte what the first run published.
	st := store.NewMemory()
	ctx := context.Background()

	p, _ := newTestPublisher(st, &mockResolver{}, 100)
	first, err := p.Publish(ctx, "vic", makeSites(5))
	require.NoError(t, err)
	require.Equal(t, "vic-green", first.HotLabel)

	before, err := st.Get(ctx, "vic-green", pageKey(0))
	require.NoError(t, err)

	// Second run: every site fails to geocode. It clears and scribbles on
	// the cold area (vic-blue) but must not flip or touch vic-green.
	failing := &mockResolver{fail: map[string]bool{}}
	sites := makeSites(5)
	for _, s := range sites {
		failing.fail[s.Hash] = true
	}
	p2, _ := newTestPublisher(st, failing, 100)
	_, err = p2.Publish(ctx, "vic", sites)
	var incomplete *domain.PublishIncompleteError
	require.ErrorAs(t, err, &incomplete)

	after, err := st.Get(ctx, "vic-green", pageKey(0))
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))

	meta := readPagination(t, st, "vic")
	assert.Equal(t, "vic-green", meta.HotCollection, "hot label must survive a failed run")
}

func TestPublish_ColdAreaClearedBeforeBuild(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	// Leftovers from an interrupted previous run.
	require.NoError(t, st.Set(ctx, "vic-green", "page-999", map[string]any{"sites": []string{"stale"}}))
	require.NoError(t, st.Set(ctx, noLocationCollection("vic"), "stalehash", map[string]any{}))

	p, _ := newTestPublisher(st, &mockResolver{}, 100)
	_, err := p.Publish(ctx, "vic", makeSites(3))
	require.NoError(t, err)

	_, err = st.Get(ctx, "vic-green", "page-999")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.Get(ctx, noLocationCollection("vic"), "stalehash")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPublish_AlternatesAreas(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	p, _ := newTestPublisher(st, &mockResolver{}, 100)

	first, err := p.Publish(ctx, "vic", makeSites(3))
	require.NoError(t, err)
	assert.Equal(t, "vic-green", first.HotLabel)

	second, err := p.Publish(ctx, "vic", makeSites(4))
	require.NoError(t, err)
	assert.Equal(t, "vic-blue", second.HotLabel)

	meta := readPagination(t, st, "vic")
	assert.Equal(t, "vic-blue", meta.HotCollection)
	assert.Equal(t, "vic-green", meta.ColdCollection)
}

func TestPublish_ThrottleSpacesPageWrites(t *testing.T) {
	// 4 sites over 2 pages with a 1s per-page budget: 500ms between
	// consecutive writes, ~1s between writes to the same page.
	st := store.NewMemory()
	fc := clockwork.NewFakeClockAt(testEpoch)
	p := NewPublisher(st, &mockResolver{}, fc, observability.NewMetricsForTesting(), testLogger(), 2, 40, time.Second)

	ctx := context.Background()
	done := make(chan error, 1)
	go func() {
		_, err := p.Publish(ctx, "vic", makeSites(4))
		done <- err
	}()

	for i := 0; i < 4; i++ {
		require.NoError(t, fc.BlockUntilContext(ctx, 1))
		fc.Advance(500 * time.Millisecond)
	}
	require.NoError(t, <-done)

	assert.Equal(t, testEpoch.Add(2*time.Second).UnixMilli(), fc.Now().UnixMilli())
}
