package pipeline

import (
	"context"
	"testing"

	"github.com/ozalerts/exposure-sites-etl/internal/domain"
	"github.com/ozalerts/exposure-sites-etl/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedSnapshot writes a published snapshot directly: pagination pointer,
// success timestamp, and the given sites split across pages of pageSize.
func seedSnapshot(t *testing.T, st store.Store, feed string, sites []domain.Site, pageSize int, updatedAt int64) {
	t.Helper()
	ctx := context.Background()
	hot := blueCollection(feed)

	for i := 0; i*pageSize < len(sites); i++ {
		end := min((i+1)*pageSize, len(sites))
		require.NoError(t, st.Set(ctx, hot, pageKey(i), pageDoc{Sites: sites[i*pageSize : end]}))
	}
	require.NoError(t, st.Set(ctx, metadataCollection, paginationKey(feed), paginationDoc{
		HotCollection:  hot,
		ColdCollection: greenCollection(feed),
	}))
	require.NoError(t, st.Set(ctx, metadataCollection, successKey(feed), timestampDoc{Time: updatedAt}))
}

func TestRead_WindowSpansPages(t *testing.T) {
	st := store.NewMemory()
	sites := makeSites(5)
	seedSnapshot(t, st, "vic", sites, 2, 1626318000000)

	r := NewReader(st, testLogger())
	snap, err := r.Read(context.Background(), "vic", 1, 3)
	require.NoError(t, err)

	assert.Equal(t, 5, snap.Total)
	assert.Equal(t, 1, snap.Offset)
	assert.Equal(t, int64(1626318000000), snap.LastUpdated)
	require.Len(t, snap.Results, 3)
	// The window crosses the page-000/page-001 boundary without a seam.
	assert.Equal(t, "Site 001", snap.Results[0].Title)
	assert.Equal(t, "Site 002", snap.Results[1].Title)
	assert.Equal(t, "Site 003", snap.Results[2].Title)
}

func TestRead_FullSnapshot(t *testing.T) {
	st := store.NewMemory()
	seedSnapshot(t, st, "nsw", makeSites(7), 3, 1626318000000)

	r := NewReader(st, testLogger())
	snap, err := r.Read(context.Background(), "nsw", 0, 100)
	require.NoError(t, err)

	assert.Equal(t, 7, snap.Total)
	require.Len(t, snap.Results, 7)
	for i, s := range snap.Results {
		assert.Equal(t, makeSites(7)[i].Title, s.Title, "pages must concatenate in order")
	}
}

func TestRead_NeverPublished(t *testing.T) {
	r := NewReader(store.NewMemory(), testLogger())
	_, err := r.Read(context.Background(), "vic", 0, 10)
	assert.ErrorIs(t, err, domain.ErrNeverPublished)

	_, err = r.LastUpdated(context.Background(), "vic")
	assert.ErrorIs(t, err, domain.ErrNeverPublished)
}

func TestRead_LimitBelowOne(t *testing.T) {
	st := store.NewMemory()
	seedSnapshot(t, st, "vic", makeSites(4), 2, 1626318000000)

	r := NewReader(st, testLogger())
	for _, limit := range []int{0, -5} {
		snap, err := r.Read(context.Background(), "vic", 0, limit)
		require.NoError(t, err)
		assert.Empty(t, snap.Results)
		assert.Zero(t, snap.Total)
		assert.Equal(t, int64(1626318000000), snap.LastUpdated)
	}
}

func TestRead_OffsetBeyondTotal(t *testing.T) {
	st := store.NewMemory()
	seedSnapshot(t, st, "vic", makeSites(3), 2, 1626318000000)

	r := NewReader(st, testLogger())
	snap, err := r.Read(context.Background(), "vic", 10, 5)
	require.NoError(t, err)
	assert.Empty(t, snap.Results)
	assert.Equal(t, 3, snap.Total)
}

func TestRead_NegativeOffsetClamped(t *testing.T) {
	st := store.NewMemory()
	seedSnapshot(t, st, "vic", makeSites(3), 2, 1626318000000)

	r := NewReader(st, testLogger())
	snap, err := r.Read(context.Background(), "vic", -4, 2)
	require.NoError(t, err)
	require.Len(t, snap.Results, 2)
	assert.Equal(t, "Site 000", snap.Results[0].Title)
}

func TestRead_AfterPublish(t *testing.T) {
	// End to end through the publisher: what Publish flips live is what
	// Read returns.
	st := store.NewMemory()
	p, fc := newTestPublisher(st, &mockResolver{}, 2)

	_, err := p.Publish(context.Background(), "vic", makeSites(5))
	require.NoError(t, err)

	r := NewReader(st, testLogger())
	snap, err := r.Read(context.Background(), "vic", 0, 10)
	require.NoError(t, err)

	assert.Equal(t, 5, snap.Total)
	assert.Equal(t, fc.Now().UnixMilli(), snap.LastUpdated)
	for _, s := range snap.Results {
		assert.Empty(t, s.Hash)
		assert.NotZero(t, s.Lat)
	}
}
