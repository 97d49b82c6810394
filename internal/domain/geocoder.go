package domain

import "context"

// Geocoder resolves a free-text address query to a coordinate.
type Geocoder interface {
	// Geocode returns the best-match coordinate for the query.
	// Zero results is an error (ErrNoGeocodeMatch), not an empty value.
	Geocode(ctx context.Context, query string) (Coordinate, error)
}
