package domain

import "strings"

// Severity is the label an external analytics service assigns to a danger zone.
type Severity string

// SeverityUnclassified marks hotspots that no danger zone matched.
const SeverityUnclassified Severity = "unclassified"

// UnclassifiedColor is the display color of unclassified hotspots.
const UnclassifiedColor = "#9ca3af"

var severityRanks = map[Severity]int{
	"low":      1,
	"minor":    1,
	"medium":   2,
	"moderate": 2,
	"high":     3,
	"severe":   3,
	"critical": 4,
	"extreme":  4,
}

// NormalizeSeverity lowercases and trims a label; blank labels become unclassified.
func NormalizeSeverity(s string) Severity {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return SeverityUnclassified
	}
	return Severity(s)
}

// Rank orders severities for display. Unknown labels and unclassified rank 0.
func (s Severity) Rank() int {
	return severityRanks[s]
}

// DangerZone is one externally classified circle. The engine only reads it.
type DangerZone struct {
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	Count    int      `json:"count"`
	Severity Severity `json:"severity"`
	Color    string   `json:"color"`
}

// ZoneOverlay is a danger zone ready to be drawn as a circle.
type ZoneOverlay struct {
	CellID       CellID   `json:"cell_id"`
	Lat          float64  `json:"lat"`
	Lng          float64  `json:"lng"`
	RadiusMeters float64  `json:"radius_meters"`
	Count        int      `json:"count"`
	Severity     Severity `json:"severity"`
	SeverityRank int      `json:"severity_rank"`
	Color        string   `json:"color"`
}

// RadiusPolicy decides how large a zone circle is drawn.
type RadiusPolicy interface {
	RadiusMeters(z DangerZone) float64
}

// FixedRadius draws every zone with the same radius in meters.
type FixedRadius float64

// RadiusMeters implements RadiusPolicy.
func (r FixedRadius) RadiusMeters(DangerZone) float64 { return float64(r) }

// CountScaledRadius grows the radius by a fixed number of meters per reported
// incident. Zones reporting fewer than one incident are drawn as one.
type CountScaledRadius float64

// RadiusMeters implements RadiusPolicy.
func (r CountScaledRadius) RadiusMeters(z DangerZone) float64 {
	return float64(r) * float64(max(z.Count, 1))
}
