package domain

import "time"

// RankedHotspot is a read-only projection of one aggregated cell.
type RankedHotspot struct {
	Rank       int       `json:"rank"`
	CellID     CellID    `json:"cell_id"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Count      uint64    `json:"count"`
	LastSeenAt time.Time `json:"last_seen_at,omitzero"`
}

// RanksBefore reports whether h orders strictly before o: higher count first,
// then the more recent lastSeenAt, then the lexicographically smaller CellID.
func (h RankedHotspot) RanksBefore(o RankedHotspot) bool {
	if h.Count != o.Count {
		return h.Count > o.Count
	}
	if !h.LastSeenAt.Equal(o.LastSeenAt) {
		return h.LastSeenAt.After(o.LastSeenAt)
	}
	return h.CellID < o.CellID
}

// Origin tells where a visual entry came from.
type Origin string

const (
	// OriginLocal entries come from locally ingested incidents.
	OriginLocal Origin = "local"
	// OriginZone entries exist only because an external danger zone was reported.
	OriginZone Origin = "zone"
)

// VisualHotspot is a RankedHotspot annotated with the external classification.
// Zone-only entries carry Rank -1 and a zero local Count.
type VisualHotspot struct {
	RankedHotspot
	Origin       Origin   `json:"origin"`
	Severity     Severity `json:"severity"`
	SeverityRank int      `json:"severity_rank"`
	Color        string   `json:"color"`
	Classified   bool     `json:"classified"`
	ZoneCount    int      `json:"zone_count,omitempty"`
}
