package pipeline

import (
	"fmt"

	"github.com/ozalerts/exposure-sites-etl/internal/domain"
)

// Storage layout. Each feed owns two alternating page areas (blue/green), a
// no-location side collection, and three metadata documents: the pagination
// pointer and the success/failure timestamps.
const (
	metadataCollection = "metadata"
	pageField          = "sites"
)

// paginationDoc tracks which page area is hot (reader-visible) and which is
// cold (being rebuilt). Flipping it is the single atomic step that makes a
// new snapshot live.
type paginationDoc struct {
	HotCollection  string `json:"hotCollection"`
	ColdCollection string `json:"coldCollection"`
}

// timestampDoc holds a unix-milliseconds instant.
type timestampDoc struct {
	Time int64 `json:"time"`
}

// pageDoc is one fixed-capacity page of the published site array.
type pageDoc struct {
	Sites []domain.Site `json:"sites"`
}

func blueCollection(feed string) string  { return feed + "-blue" }
func greenCollection(feed string) string { return feed + "-green" }

func noLocationCollection(feed string) string { return feed + "-noLocationSites" }

func paginationKey(feed string) string { return feed + "-pagination" }
func successKey(feed string) string    { return feed + "-lastUpdateSuccess" }
func failureKey(feed string) string    { return feed + "-lastUpdateFailure" }

// pageKey zero-pads the page number so key-ordered listing equals page
// order ("page-010" sorts after "page-002").
func pageKey(n int) string { return fmt.Sprintf("page-%03d", n) }
