// Package domain models geotagged road-accident reports and the hotspot view
// derived from them.
//
// # Data Source
//
// Incident reports are emitted by roadside detection devices and published as
// flat JSON to the Kafka source topic:
//
//	{"lat": 26.9124, "lon": 75.7873, "timestamp": "2024-05-01T09:30:00Z"}
//
// Coordinates may be JSON numbers or numeric strings. The timestamp may be an
// RFC 3339 string, epoch seconds or epoch milliseconds (values above 1e11 are
// milliseconds). A missing timestamp falls back to the Kafka message time.
//
// # Cells
//
// Events are grouped into cells by rounding each axis to four decimal digits
// (about 11 m of latitude), half away from zero, on the shortest decimal form
// of the float:
//
//	(26.91245, 75.78734)  →  "26.9125,75.7873"
//	(-0.00004, 0)         →  "0.0000,0.0000"
//
// A cell keeps the coordinates of the first event that created it. Later
// events only bump the count and, monotonically, the last-seen time.
//
// # Ranking
//
// Hotspots order by count (descending), then last-seen time (most recent
// first), then CellID (ascending). Rank is the 0-based position.
//
// # Danger Zones
//
// Danger zones come from an external analytics service as
//
//	{"lat": 26.9124, "lng": 75.7873, "count": 7, "severity": "high", "color": "#ef4444"}
//
// and are matched to hotspots by cell. Severity labels are opaque; the known
// ones (low, medium, high, critical and their synonyms) get a display rank.
// Zone circles are sized by a [RadiusPolicy]: a fixed radius (300 m) or a
// count-scaled one (120 m per incident).
package domain
