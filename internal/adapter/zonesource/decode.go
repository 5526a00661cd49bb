// Package zonesource fetches danger-zone arrays from external collaborators.
package zonesource

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/couchcryptid/incident-hotspot-service/internal/domain"
)

// zoneRecord is the wire shape of one danger zone. Coordinates may be JSON
// numbers or numeric strings.
type zoneRecord struct {
	Lat      domain.FlexFloat `json:"lat"`
	Lng      domain.FlexFloat `json:"lng"`
	Count    int              `json:"count"`
	Severity string           `json:"severity"`
	Color    string           `json:"color"`
}

// decodeZones parses a JSON array of zones. Records without both coordinates
// are dropped; null decodes to an empty array.
func decodeZones(data []byte) ([]domain.DangerZone, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []domain.DangerZone{}, nil
	}

	var records []zoneRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode zones: %w", err)
	}

	zones := make([]domain.DangerZone, 0, len(records))
	for _, r := range records {
		if !r.Lat.Set || !r.Lng.Set {
			continue
		}
		zones = append(zones, domain.DangerZone{
			Lat:      r.Lat.Value,
			Lng:      r.Lng.Value,
			Count:    r.Count,
			Severity: domain.Severity(r.Severity),
			Color:    r.Color,
		})
	}
	return zones, nil
}
