package domain

import (
	"errors"
	"fmt"
)

// ErrNoGeocodeMatch signals that the geocoding API returned zero results for
// a site's search query.
var ErrNoGeocodeMatch = errors.New("geocoder returned no match")

// ErrNeverPublished is returned by the snapshot reader when no publish run
// has ever completed for the requested feed.
var ErrNeverPublished = errors.New("snapshot has never been published")

// FetchError aborts a whole refresh cycle: the upstream fetch failed, so the
// previous snapshot stays live and nothing is updated.
type FetchError struct {
	Source SourceKind
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s feed: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// MalformedRecordError fails a single record. The batch continues; the
// record is counted and logged, never retried.
type MalformedRecordError struct {
	Source SourceKind
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed %s record: %s", e.Source, e.Reason)
}

// GeocodeError fails a single site for this publish cycle. The site goes
// into the no-location set and the run continues.
type GeocodeError struct {
	Query string
	Err   error
}

func (e *GeocodeError) Error() string {
	return fmt.Sprintf("geocode %q: %v", e.Query, e.Err)
}

func (e *GeocodeError) Unwrap() error { return e.Err }

// PublishIncompleteError records that fewer sites were published than were
// folded. The hot/cold flip is skipped and the failure timestamp recorded;
// readers keep the previous snapshot.
type PublishIncompleteError struct {
	Folded    int
	Published int
}

func (e *PublishIncompleteError) Error() string {
	return fmt.Sprintf("published %d of %d folded sites, keeping previous snapshot", e.Published, e.Folded)
}
