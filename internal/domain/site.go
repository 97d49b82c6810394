package domain

import "slices"

// SourceKind identifies which upstream feed a record came from.
type SourceKind string

const (
	SourceVic SourceKind = "vic"
	SourceNsw SourceKind = "nsw"
)

// TierUnknown is the sentinel tier for records whose advice text is missing
// or contains no digit.
const TierUnknown = 0

// RawVicRecord is one row from the VIC CKAN datastore.
type RawVicRecord struct {
	SiteTitle         string `json:"Site_title"`
	SiteStreetAddress string `json:"Site_streetaddress"`
	SitePostcode      string `json:"Site_postcode"`
	Suburb            string `json:"Suburb"`
	ExposureDate      string `json:"Exposure_date_dtm"`
	ExposureTime      string `json:"Exposure_time"`
	AddedDate         string `json:"Added_date_dtm"`
	AdviceTitle       string `json:"Advice_title"`
	Notes             string `json:"Notes"`
}

// RawNswRecord is one entry of the NSW case-locations file's data.monitor[].
type RawNswRecord struct {
	Venue        string `json:"Venue"`
	Address      string `json:"Address"`
	Suburb       string `json:"Suburb"`
	Date         string `json:"Date"`
	Time         string `json:"Time"`
	LastUpdated  string `json:"Last updated date"`
	Alert        string `json:"Alert"`
	HealthAdvice string `json:"HealthAdviceHTML"`
}

// RawRecord is a tagged union over the per-feed record shapes. Exactly one
// of Vic/Nsw is set, matching Source.
type RawRecord struct {
	Source SourceKind
	Vic    *RawVicRecord
	Nsw    *RawNswRecord
}

// Exposure is one dated visit/contact event at a site. Immutable once
// created; owned by exactly one Site.
type Exposure struct {
	Date      string `json:"dateDtm"`
	Time      string `json:"time,omitempty"`
	DateAdded string `json:"dateAddedDtm,omitempty"`
	Tier      int    `json:"tier"`
	Notes     string `json:"notes,omitempty"`
}

// Site is a canonical deduplicated place carrying one or more exposures.
// Hash, SearchParam and Postcode are working fields; ForPublish strips them
// before a site is written into a page.
type Site struct {
	Hash          string     `json:"hash,omitempty"`
	Title         string     `json:"title"`
	StreetAddress string     `json:"streetAddress,omitempty"`
	Suburb        string     `json:"suburb,omitempty"`
	Postcode      string     `json:"postcode,omitempty"`
	SearchParam   string     `json:"searchParam,omitempty"`
	Lat           float64    `json:"lat,omitempty"`
	Lng           float64    `json:"lng,omitempty"`
	Exposures     []Exposure `json:"exposures"`
}

// Coordinate is a WGS-84 latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ForPublish returns a copy stripped of the fields clients never need:
// the identity hash, the geocoder query and the postcode.
func (s Site) ForPublish() Site {
	s.Hash = ""
	s.SearchParam = ""
	s.Postcode = ""
	s.Exposures = slices.Clone(s.Exposures)
	return s
}

// Equal reports full structural equality, exposures included. This is the
// exact-duplicate test used during folding: a site that has already absorbed
// extra exposures no longer compares equal to the single-exposure fragment
// it was created from.
func (s Site) Equal(o Site) bool {
	return s.Hash == o.Hash &&
		s.Title == o.Title &&
		s.StreetAddress == o.StreetAddress &&
		s.Suburb == o.Suburb &&
		s.Postcode == o.Postcode &&
		s.SearchParam == o.SearchParam &&
		s.Lat == o.Lat &&
		s.Lng == o.Lng &&
		slices.Equal(s.Exposures, o.Exposures)
}
