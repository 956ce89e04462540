// Package domain models the location-selection widget's values and ports.
//
// # Selection
//
// A [Selection] is a latitude/longitude pair plus a human-readable address.
// The address is never empty: whenever an address cannot be resolved it is
// replaced by the coordinate string produced by [FallbackAddress], e.g.
// "10.850721, 106.771395". Numbers are rendered in their shortest decimal
// form that round-trips.
//
// # Ports
//
//	ReverseGeocoder  coordinates -> address (Nominatim, Mapbox, geo-golang OSM)
//	Suggester        free text   -> ranked []Candidate (autocomplete)
//	Geolocator       device      -> Position
//
// [Resolver] wraps a ReverseGeocoder with the guaranteed fallback, so callers
// consume a string and never handle an error.
//
// # Geolocation errors
//
// Position failures are classified into the taxonomy below; each kind carries
// a default user-facing message.
//
//	permission_denied     the user or platform refused access
//	position_unavailable  no fix could be determined
//	timeout               no fix within PositionOptions.Timeout
//	unknown               anything else
//	unsupported_feature   no position source exists at all
//
// [FixCache] implements PositionOptions.MaximumAge: a fix younger than the
// maximum age is reused without a new network read. Wrap only sources that
// perform such reads; a report the client sends with the request is always
// fresher than anything cached.
package domain
