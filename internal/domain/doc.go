// Package domain models public exposure-site data from two government
// open-data feeds.
//
// # Data Sources
//
// The VIC feed is a CKAN datastore (discover.data.vic.gov.au). Records are
// fetched with repeated offset-paginated GETs against datastore_search; the
// body carries result.records[] and result.total. Field names follow the
// dataset schema: Site_title, Site_streetaddress, Site_postcode, Suburb,
// Exposure_date_dtm, Exposure_time, Added_date_dtm, Advice_title, Notes.
//
// The NSW feed is a single JSON file (data.nsw.gov.au) with all case
// locations embedded under data.monitor[] and no pagination. Its records use
// a different shape (Venue, Address, Date, Time, Alert, HealthAdviceHTML)
// but normalize into the same Site fragment.
//
// # Identity Hash
//
// A site's identity is the lower-cased concatenation of its title and street
// address with every non-word character removed. Sites without a street
// address hash on title alone. The hash doubles as the geocode-cache
// document key, so it must not contain characters that are illegal in a
// storage key (path separators in particular); stripping \W covers that.
// The same normalization drives the same-place predicate used during
// folding, which is what keeps unclean upstream data ("Cafe X," vs
// "Cafe X") from producing duplicate sites.
//
// # Alert Tiers
//
// The advice field is free text ("Tier 2 - Get tested and isolate...").
// The tier code is the first digit found anywhere in that text. Records
// whose advice field is missing or digit-free get TierUnknown rather than
// failing; some upstream rows genuinely lack the field.
//
// # Folding
//
// Each raw record describes one visit to one place, so a place that appears
// in several rows arrives as several single-exposure fragments. FoldSites
// merges them: exact duplicates are discarded, same-place fragments
// contribute their exposure to the first matching folded site, and
// everything else starts a new site. See [FoldSites] for the scan rules.
//
// # Dates
//
// Date and time fields are carried through exactly as the source provides
// them. Both feeds publish local-time strings without offsets, so no
// timezone normalization is attempted here.
package domain
