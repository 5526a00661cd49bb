package domain

import "time"

// Viewport is the map window centered on the focus.
type Viewport struct {
	MinLat    float64 `json:"min_lat"`
	MinLon    float64 `json:"min_lon"`
	MaxLat    float64 `json:"max_lat"`
	MaxLon    float64 `json:"max_lon"`
	MarkerLat float64 `json:"marker_lat"`
	MarkerLon float64 `json:"marker_lon"`
}

// FocusView is everything a map needs to center on the focused hotspot.
type FocusView struct {
	Hotspot       VisualHotspot `json:"hotspot"`
	UserSelected  bool          `json:"user_selected"`
	Viewport      Viewport      `json:"viewport"`
	CoveringZones []ZoneOverlay `json:"covering_zones"`
	PlaceName     string        `json:"place_name,omitempty"`
}

// ViewModel is the read-only structure handed to rendering collaborators: the
// ranked table, the zone circles and the current focus.
type ViewModel struct {
	InstanceID     string          `json:"instance_id"`
	GeneratedAt    time.Time       `json:"generated_at"`
	Hotspots       []VisualHotspot `json:"hotspots"`
	Zones          []ZoneOverlay   `json:"zones"`
	ZonesFetchedAt time.Time       `json:"zones_fetched_at,omitzero"`
	Focus          *FocusView      `json:"focus"`
}
