// Package zone merges externally classified danger zones into the ranked
// hotspot list and keeps the last good zone snapshot fresh.
package zone

import (
	"cmp"
	"slices"

	"github.com/couchcryptid/incident-hotspot-service/internal/domain"
)

// binnedZone is a validated zone together with its cell.
type binnedZone struct {
	cell domain.CellID
	zone domain.DangerZone
}

// Merge annotates every ranked hotspot with the classification of the first
// zone in its cell and appends one zone-only entry per cell that has zones
// but no local hotspot. Inputs are not modified and the result does not
// depend on the order of zones.
func Merge(ranked []domain.RankedHotspot, zones []domain.DangerZone) []domain.VisualHotspot {
	sorted := sortZones(zones)

	byCell := make(map[domain.CellID]domain.DangerZone, len(sorted))
	for _, bz := range sorted {
		if _, ok := byCell[bz.cell]; !ok {
			byCell[bz.cell] = bz.zone
		}
	}

	out := make([]domain.VisualHotspot, 0, len(ranked)+len(byCell))
	local := make(map[domain.CellID]struct{}, len(ranked))
	for _, h := range ranked {
		local[h.CellID] = struct{}{}
		v := domain.VisualHotspot{
			RankedHotspot: h,
			Origin:        domain.OriginLocal,
			Severity:      domain.SeverityUnclassified,
			Color:         domain.UnclassifiedColor,
		}
		if z, ok := byCell[h.CellID]; ok {
			classify(&v, z)
		}
		out = append(out, v)
	}

	emitted := make(map[domain.CellID]struct{})
	for _, bz := range sorted {
		if _, ok := local[bz.cell]; ok {
			continue
		}
		if _, ok := emitted[bz.cell]; ok {
			continue
		}
		emitted[bz.cell] = struct{}{}

		v := domain.VisualHotspot{
			RankedHotspot: domain.RankedHotspot{
				Rank:   -1,
				CellID: bz.cell,
				Lat:    bz.zone.Lat,
				Lon:    bz.zone.Lng,
			},
			Origin: domain.OriginZone,
		}
		classify(&v, bz.zone)
		out = append(out, v)
	}
	return out
}

// Overlays returns one circle per valid zone, in the same deterministic order
// Merge uses.
func Overlays(zones []domain.DangerZone, policy domain.RadiusPolicy) []domain.ZoneOverlay {
	sorted := sortZones(zones)
	out := make([]domain.ZoneOverlay, 0, len(sorted))
	for _, bz := range sorted {
		out = append(out, domain.ZoneOverlay{
			CellID:       bz.cell,
			Lat:          bz.zone.Lat,
			Lng:          bz.zone.Lng,
			RadiusMeters: policy.RadiusMeters(bz.zone),
			Count:        bz.zone.Count,
			Severity:     bz.zone.Severity,
			SeverityRank: bz.zone.Severity.Rank(),
			Color:        bz.zone.Color,
		})
	}
	return out
}

func classify(v *domain.VisualHotspot, z domain.DangerZone) {
	v.Severity = z.Severity
	v.SeverityRank = z.Severity.Rank()
	v.Color = z.Color
	v.Classified = true
	v.ZoneCount = z.Count
}

// sortZones bins, normalizes and totally orders a copy of zones. Zones with a
// non-finite center are dropped.
func sortZones(zones []domain.DangerZone) []binnedZone {
	out := make([]binnedZone, 0, len(zones))
	for _, z := range zones {
		cell, err := domain.Bin(z.Lat, z.Lng)
		if err != nil {
			continue
		}
		z.Severity = domain.NormalizeSeverity(string(z.Severity))
		if z.Color == "" {
			z.Color = domain.UnclassifiedColor
		}
		out = append(out, binnedZone{cell: cell, zone: z})
	}

	slices.SortFunc(out, func(a, b binnedZone) int {
		if c := cmp.Compare(b.zone.Count, a.zone.Count); c != 0 {
			return c
		}
		if c := cmp.Compare(a.cell, b.cell); c != 0 {
			return c
		}
		if c := cmp.Compare(a.zone.Lat, b.zone.Lat); c != 0 {
			return c
		}
		if c := cmp.Compare(a.zone.Lng, b.zone.Lng); c != 0 {
			return c
		}
		if c := cmp.Compare(a.zone.Severity, b.zone.Severity); c != 0 {
			return c
		}
		return cmp.Compare(a.zone.Color, b.zone.Color)
	})
	return out
}
