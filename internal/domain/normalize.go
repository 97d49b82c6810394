package domain

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// nonWordRe strips everything outside [0-9A-Za-z_]; used for both the
	// identity hash and the same-place comparison.
	nonWordRe = regexp.MustCompile(`\W`)

	// digitRe finds the first digit in free-text advice, e.g.
	// "Tier 2 - Get tested..." -> "2".
	digitRe = regexp.MustCompile(`\d`)
)

// Normalize maps one raw upstream record into a canonical single-exposure
// Site fragment, dispatching on the record's source tag. A record missing
// its title fails with MalformedRecordError; the caller skips it and keeps
// the batch.
func Normalize(raw RawRecord) (Site, error) {
	switch raw.Source {
	case SourceVic:
		if raw.Vic == nil {
			return Site{}, &MalformedRecordError{Source: SourceVic, Reason: "missing record body"}
		}
		return normalizeVic(*raw.Vic)
	case SourceNsw:
		if raw.Nsw == nil {
			return Site{}, &MalformedRecordError{Source: SourceNsw, Reason: "missing record body"}
		}
		return normalizeNsw(*raw.Nsw)
	default:
		return Site{}, &MalformedRecordError{Source: raw.Source, Reason: fmt.Sprintf("unknown source kind %q", raw.Source)}
	}
}

func normalizeVic(rec RawVicRecord) (Site, error) {
	if rec.SiteTitle == "" {
		return Site{}, &MalformedRecordError{Source: SourceVic, Reason: "missing Site_title"}
	}

	return Site{
		Hash:          IdentityHash(rec.SiteTitle, rec.SiteStreetAddress),
		Title:         rec.SiteTitle,
		StreetAddress: rec.SiteStreetAddress,
		Suburb:        rec.Suburb,
		Postcode:      rec.SitePostcode,
		SearchParam:   SearchParam(rec.SiteTitle, rec.SiteStreetAddress, rec.SitePostcode),
		Exposures: []Exposure{{
			Date:      rec.ExposureDate,
			Time:      rec.ExposureTime,
			DateAdded: rec.AddedDate,
			Tier:      ExtractTier(rec.AdviceTitle),
			Notes:     rec.Notes,
		}},
	}, nil
}

func normalizeNsw(rec RawNswRecord) (Site, error) {
	if rec.Venue == "" {
		return Site{}, &MalformedRecordError{Source: SourceNsw, Reason: "missing Venue"}
	}

	return Site{
		Hash:          IdentityHash(rec.Venue, rec.Address),
		Title:         rec.Venue,
		StreetAddress: rec.Address,
		Suburb:        rec.Suburb,
		SearchParam:   SearchParam(rec.Venue, rec.Address, ""),
		Exposures: []Exposure{{
			Date:      rec.Date,
			Time:      rec.Time,
			DateAdded: rec.LastUpdated,
			Tier:      ExtractTier(rec.Alert),
			Notes:     rec.HealthAdvice,
		}},
	}, nil
}

// IdentityHash derives the storage key for a site: lower-cased title plus
// street address (when present) with all non-word characters removed.
// Storage document ids may not contain path separators; stripping \W
// guarantees that while also absorbing upstream punctuation noise.
func IdentityHash(title, streetAddress string) string {
	h := title
	if streetAddress != "" {
		h += streetAddress
	}
	return nonWordRe.ReplaceAllString(strings.ToLower(h), "")
}

// SearchParam builds the geocoding query: title, street address and
// postcode joined with spaces. Ampersands are stripped because the upstream
// geocoding API rejects them.
func SearchParam(title, streetAddress, postcode string) string {
	param := title
	if streetAddress != "" {
		param += " " + streetAddress
	}
	if postcode != "" {
		param += " " + postcode
	}
	return strings.ReplaceAll(param, "&", "")
}

// ExtractTier pulls the severity tier out of free-text advice by taking the
// first digit found. Returns TierUnknown when the text is empty or has no
// digit.
func ExtractTier(advice string) int {
	m := digitRe.FindString(advice)
	if m == "" {
		return TierUnknown
	}
	return int(m[0] - '0')
}

// SamePlace is the source-defined equality rule for folding: titles must
// match after normalization, and street addresses must match when both
// sites have one. A site with a street address never matches one without.
func SamePlace(a, b Site) bool {
	switch {
	case a.StreetAddress != "" && b.StreetAddress != "":
		return normalizeForCompare(a.Title) == normalizeForCompare(b.Title) &&
			normalizeForCompare(a.StreetAddress) == normalizeForCompare(b.StreetAddress)
	case a.StreetAddress == "" && b.StreetAddress == "":
		return normalizeForCompare(a.Title) == normalizeForCompare(b.Title)
	default:
		return false
	}
}

func normalizeForCompare(s string) string {
	return nonWordRe.ReplaceAllString(s, "")
}
