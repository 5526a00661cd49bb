package pipeline

import (
	"context"

	"github.com/couchcryptid/incident-hotspot-service/internal/domain"
)

// IncidentTransformer implements Transformer by decoding the device payload.
type IncidentTransformer struct{}

// NewTransformer creates an IncidentTransformer.
func NewTransformer() *IncidentTransformer {
	return &IncidentTransformer{}
}

// Transform decodes raw into an incident. Messages without a timestamp take
// the broker timestamp.
func (t *IncidentTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.IncidentEvent, error) {
	return domain.ParseRawEvent(raw)
}
