// Package engine assembles the view model handed to rendering collaborators:
// the merged hotspot ranking, the zone circles and the current focus.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/incident-hotspot-service/internal/domain"
	"github.com/couchcryptid/incident-hotspot-service/internal/focus"
	"github.com/couchcryptid/incident-hotspot-service/internal/hotspot"
	"github.com/couchcryptid/incident-hotspot-service/internal/observability"
	"github.com/couchcryptid/incident-hotspot-service/internal/zone"
)

// DefaultViewportDegrees is the half-span of the focus map window.
const DefaultViewportDegrees = 0.005

// ZoneProvider serves the last good zone snapshot and can be asked to refresh it.
type ZoneProvider interface {
	Latest() zone.Snapshot
	Refresh(ctx context.Context) error
}

// Engine wires the hotspot store, the zone snapshot, the merger and the focus
// controller. It is safe for concurrent use.
type Engine struct {
	// mu spans snapshot, merge and focus update, so a reconcile never sees
	// entries older than a concurrent selection.
	mu sync.Mutex

	store    *hotspot.Store
	zones    ZoneProvider
	focus    *focus.Controller
	policy   domain.RadiusPolicy
	viewport float64
	geocoder domain.Geocoder
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics

	instanceID string
}

// Option configures an Engine.
type Option func(*Engine)

// WithRadiusPolicy sets how zone circles are sized. Defaults to a fixed 300 m.
func WithRadiusPolicy(p domain.RadiusPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithViewportDegrees sets the half-span of the focus viewport.
func WithViewportDegrees(d float64) Option {
	return func(e *Engine) { e.viewport = d }
}

// WithGeocoder enables place names for the focused hotspot.
func WithGeocoder(g domain.Geocoder) Option {
	return func(e *Engine) { e.geocoder = g }
}

// WithClock overrides the time source for GeneratedAt.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// New creates an Engine. zones may be nil when no zone source is configured.
func New(store *hotspot.Store, zones ZoneProvider, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		zones:      zones,
		focus:      focus.NewController(),
		policy:     domain.FixedRadius(300),
		viewport:   DefaultViewportDegrees,
		clock:      clockwork.NewRealClock(),
		logger:     logger,
		metrics:    metrics,
		instanceID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.geocoder != nil {
		metrics.GeocodeEnabled.Set(1)
	}
	return e
}

// InstanceID identifies this process in every view model, so renderers can
// tell a restart (and its empty state) from a data reset.
func (e *Engine) InstanceID() string {
	return e.instanceID
}

// Ingest adds one incident.
func (e *Engine) Ingest(_ context.Context, event domain.IncidentEvent) error {
	if err := e.store.Ingest(event); err != nil {
		e.metrics.InvalidEvents.Inc()
		return err
	}
	e.metrics.EventsIngested.Inc()
	e.metrics.Cells.Set(float64(e.store.Len()))
	return nil
}

// IngestBatch adds every valid incident and reports the rest in err.
func (e *Engine) IngestBatch(_ context.Context, events []domain.IncidentEvent) (int, error) {
	n, err := e.store.IngestBatch(events)
	e.metrics.EventsIngested.Add(float64(n))
	e.metrics.InvalidEvents.Add(float64(len(events) - n))
	e.metrics.Cells.Set(float64(e.store.Len()))
	return n, err
}

// LoadBatch implements the pipeline's loader. Invalid events are logged and
// dropped rather than failing the batch, so offsets still get committed.
func (e *Engine) LoadBatch(ctx context.Context, events []domain.IncidentEvent) error {
	if _, err := e.IngestBatch(ctx, events); err != nil {
		e.logger.Warn("dropped invalid incidents", "error", err)
	}
	return nil
}

// View builds the current view model and applies the automatic focus rules.
func (e *Engine) View(ctx context.Context) domain.ViewModel {
	e.mu.Lock()
	snap, entries := e.mergedEntries()
	tr, changed := e.focus.Reconcile(entries)
	cur, focused := e.focus.Current(entries)
	userSelected := e.focus.State().UserSelected
	e.mu.Unlock()

	if changed {
		e.recordTransition(tr)
	}
	overlays := zone.Overlays(snap.Zones, e.policy)

	vm := domain.ViewModel{
		InstanceID:     e.instanceID,
		GeneratedAt:    e.clock.Now().UTC(),
		Hotspots:       entries,
		Zones:          overlays,
		ZonesFetchedAt: snap.FetchedAt,
	}
	if focused {
		vm.Focus = e.focusView(ctx, cur, userSelected, overlays)
	}
	return vm
}

// CurrentFocus returns the focused hotspot, or nil while nothing is focused.
func (e *Engine) CurrentFocus(ctx context.Context) *domain.FocusView {
	return e.View(ctx).Focus
}

// Select focuses id if it is among the current entries. An unknown id is not
// an error; Select reports false and the focus is unchanged.
func (e *Engine) Select(_ context.Context, id domain.CellID) bool {
	e.mu.Lock()
	_, entries := e.mergedEntries()
	tr, ok := e.focus.Select(id, entries)
	e.mu.Unlock()

	if !ok {
		e.logger.Debug("selection ignored, cell not present", "cell_id", id)
		return false
	}
	e.recordTransition(tr)
	return true
}

// RefreshZones asks the zone provider for a fresh snapshot. A failure leaves
// the previous snapshot in use.
func (e *Engine) RefreshZones(ctx context.Context) error {
	if e.zones == nil {
		return nil
	}
	return e.zones.Refresh(ctx)
}

// Reset drops every aggregated cell. The focus is kept until a new non-empty
// ranking replaces it.
func (e *Engine) Reset() {
	e.store.Reset()
	e.metrics.Cells.Set(0)
	e.logger.Info("hotspot store reset")
}

// CheckReadiness reports ready once at least one cell exists.
func (e *Engine) CheckReadiness(_ context.Context) error {
	if e.store.Len() == 0 {
		return errors.New("no incidents ingested yet")
	}
	return nil
}

func (e *Engine) zoneSnapshot() zone.Snapshot {
	if e.zones == nil {
		return zone.Snapshot{}
	}
	return e.zones.Latest()
}

// mergedEntries must be called with e.mu held.
func (e *Engine) mergedEntries() (zone.Snapshot, []domain.VisualHotspot) {
	snap := e.zoneSnapshot()
	return snap, zone.Merge(e.store.Snapshot(), snap.Zones)
}

func (e *Engine) focusView(ctx context.Context, cur domain.VisualHotspot, userSelected bool, overlays []domain.ZoneOverlay) *domain.FocusView {
	return &domain.FocusView{
		Hotspot:       cur,
		UserSelected:  userSelected,
		Viewport:      domain.NewViewport(cur.Lat, cur.Lon, e.viewport),
		CoveringZones: domain.CoveringZones(cur.Lat, cur.Lon, overlays),
		PlaceName:     e.placeName(ctx, cur),
	}
}

// placeName degrades to an empty name on any geocoding failure.
func (e *Engine) placeName(ctx context.Context, h domain.VisualHotspot) string {
	if e.geocoder == nil {
		return ""
	}
	place, err := e.geocoder.ReverseGeocode(ctx, h.Lat, h.Lon)
	if err != nil {
		e.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		e.logger.Warn("reverse geocode failed", "error", err, "cell_id", h.CellID)
		return ""
	}
	if place.PlaceName == "" {
		e.metrics.GeocodeRequests.WithLabelValues("empty").Inc()
		return place.FormattedAddress
	}
	e.metrics.GeocodeRequests.WithLabelValues("success").Inc()
	return place.PlaceName
}

func (e *Engine) recordTransition(tr focus.Transition) {
	e.metrics.FocusTransitions.WithLabelValues(string(tr.Reason)).Inc()
	e.logger.Info("focus changed", "from", tr.From, "to", tr.To, "reason", tr.Reason)
}
