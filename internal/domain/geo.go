package domain

import "github.com/golang/geo/s2"

// EarthRadiusMeters is the mean Earth radius.
const EarthRadiusMeters = 6371008.8

// DistanceMeters returns the great-circle distance between two points.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// NewViewport returns a box of +-halfSpan degrees around a marker.
func NewViewport(lat, lon, halfSpan float64) Viewport {
	return Viewport{
		MinLat:    lat - halfSpan,
		MinLon:    lon - halfSpan,
		MaxLat:    lat + halfSpan,
		MaxLon:    lon + halfSpan,
		MarkerLat: lat,
		MarkerLon: lon,
	}
}

// CoveringZones returns the overlays whose circle contains the point, in the
// order given.
func CoveringZones(lat, lon float64, zones []ZoneOverlay) []ZoneOverlay {
	out := make([]ZoneOverlay, 0)
	for _, z := range zones {
		if DistanceMeters(lat, lon, z.Lat, z.Lng) <= z.RadiusMeters {
			out = append(out, z)
		}
	}
	return out
}
