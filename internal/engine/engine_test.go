package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/incident-hotspot-service/internal/domain"
	"github.com/couchcryptid/incident-hotspot-service/internal/hotspot"
	"github.com/couchcryptid/incident-hotspot-service/internal/observability"
	"github.com/couchcryptid/incident-hotspot-service/internal/zone"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type staticZones struct {
	snap       zone.Snapshot
	refreshErr error
	refreshes  int
}

func (s *staticZones) Latest() zone.Snapshot { return s.snap }

func (s *staticZones) Refresh(context.Context) error {
	s.refreshes++
	return s.refreshErr
}

type mockGeocoder struct {
	place domain.Place
	err   error
	calls int
}

func (m *mockGeocoder) ReverseGeocode(context.Context, float64, float64) (domain.Place, error) {
	m.calls++
	return m.place, m.err
}

func newTestEngine(zones ZoneProvider, opts ...Option) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithClock(clockwork.NewFakeClockAt(t0))}, opts...)
	return New(hotspot.NewStore(), zones, logger, observability.NewMetricsForTesting(), opts...)
}

func ingestJaipur(t *testing.T, e *Engine) {
	t.Helper()
	ctx := context.Background()
	for i := range 3 {
		require.NoError(t, e.Ingest(ctx, domain.IncidentEvent{
			Latitude: 26.9124000, Longitude: 75.7873000, OccurredAt: t0.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, e.Ingest(ctx, domain.IncidentEvent{
		Latitude: 26.9000000, Longitude: 75.7000000, OccurredAt: t0,
	}))
}

func TestEngine_JaipurScenario(t *testing.T) {
	e := newTestEngine(&staticZones{})
	ingestJaipur(t, e)

	vm := e.View(context.Background())
	require.Len(t, vm.Hotspots, 2)
	assert.Equal(t, domain.CellID("26.9124,75.7873"), vm.Hotspots[0].CellID)
	assert.Equal(t, uint64(3), vm.Hotspots[0].Count)
	assert.Equal(t, uint64(1), vm.Hotspots[1].Count)

	require.NotNil(t, vm.Focus)
	assert.Equal(t, domain.CellID("26.9124,75.7873"), vm.Focus.Hotspot.CellID)
	assert.False(t, vm.Focus.UserSelected)
	assert.Equal(t, e.InstanceID(), vm.InstanceID)
	assert.Equal(t, t0, vm.GeneratedAt)
}

func TestEngine_EmptyStoreHasNoFocus(t *testing.T) {
	e := newTestEngine(&staticZones{})
	vm := e.View(context.Background())

	assert.Empty(t, vm.Hotspots)
	assert.Nil(t, vm.Focus)
	assert.Nil(t, e.CurrentFocus(context.Background()))
	assert.Error(t, e.CheckReadiness(context.Background()))
}

func TestEngine_SelectAbsentLeavesFocus(t *testing.T) {
	e := newTestEngine(&staticZones{})
	ingestJaipur(t, e)
	before := e.CurrentFocus(context.Background())
	require.NotNil(t, before)

	assert.False(t, e.Select(context.Background(), "0.0000,0.0000"))

	after := e.CurrentFocus(context.Background())
	require.NotNil(t, after)
	assert.Equal(t, before.Hotspot.CellID, after.Hotspot.CellID)
}

func TestEngine_SelectSticksAcrossNewEvents(t *testing.T) {
	e := newTestEngine(&staticZones{})
	ingestJaipur(t, e)
	e.View(context.Background())

	require.True(t, e.Select(context.Background(), "26.9000,75.7000"))

	for range 5 {
		require.NoError(t, e.Ingest(context.Background(), domain.IncidentEvent{Latitude: 26.9124, Longitude: 75.7873, OccurredAt: t0}))
	}

	f := e.CurrentFocus(context.Background())
	require.NotNil(t, f)
	assert.Equal(t, domain.CellID("26.9000,75.7000"), f.Hotspot.CellID)
	assert.True(t, f.UserSelected)
}

func TestEngine_EmptyZonesAreUnclassified(t *testing.T) {
	e := newTestEngine(&staticZones{snap: zone.Snapshot{Zones: []domain.DangerZone{}, FetchedAt: t0}})
	ingestJaipur(t, e)

	vm := e.View(context.Background())
	for _, h := range vm.Hotspots {
		assert.Equal(t, domain.SeverityUnclassified, h.Severity)
		assert.Equal(t, domain.UnclassifiedColor, h.Color)
	}
	assert.Empty(t, vm.Zones)
	assert.Equal(t, t0, vm.ZonesFetchedAt)
}

func TestEngine_ZonesDriveOverlaysAndCoverage(t *testing.T) {
	zones := &staticZones{snap: zone.Snapshot{Zones: []domain.DangerZone{
		{Lat: 26.9124, Lng: 75.7873, Count: 5, Severity: "high", Color: "#ef4444"},
		{Lat: 27.2000, Lng: 75.9000, Count: 2, Severity: "low", Color: "#22c55e"},
	}}}
	e := newTestEngine(zones, WithRadiusPolicy(domain.CountScaledRadius(120)))
	ingestJaipur(t, e)

	vm := e.View(context.Background())
	require.Len(t, vm.Hotspots, 3)
	assert.Equal(t, domain.Severity("high"), vm.Hotspots[0].Severity)
	assert.Equal(t, domain.OriginZone, vm.Hotspots[2].Origin)

	require.Len(t, vm.Zones, 2)
	assert.InDelta(t, 600.0, vm.Zones[0].RadiusMeters, 1e-9)

	require.NotNil(t, vm.Focus)
	require.Len(t, vm.Focus.CoveringZones, 1)
	assert.Equal(t, domain.CellID("26.9124,75.7873"), vm.Focus.CoveringZones[0].CellID)
	assert.InDelta(t, 26.9074, vm.Focus.Viewport.MinLat, 1e-9)
}

func TestEngine_ZoneOnlyEntriesCanBeSelected(t *testing.T) {
	zones := &staticZones{snap: zone.Snapshot{Zones: []domain.DangerZone{
		{Lat: 27.2, Lng: 75.9, Count: 2, Severity: "low", Color: "#22c55e"},
	}}}
	e := newTestEngine(zones)

	vm := e.View(context.Background())
	require.NotNil(t, vm.Focus)
	assert.Equal(t, domain.OriginZone, vm.Focus.Hotspot.Origin)

	ingestJaipur(t, e)
	assert.True(t, e.Select(context.Background(), "27.2000,75.9000"))
}

func TestEngine_InvalidIncident(t *testing.T) {
	e := newTestEngine(&staticZones{})
	err := e.Ingest(context.Background(), domain.IncidentEvent{Latitude: math.NaN(), Longitude: 1})
	require.ErrorIs(t, err, domain.ErrInvalidCoordinate)

	n, err := e.IngestBatch(context.Background(), []domain.IncidentEvent{
		{Latitude: 1, Longitude: 1, OccurredAt: t0},
		{Latitude: 1, Longitude: math.Inf(-1)},
	})
	assert.Equal(t, 1, n)
	require.ErrorIs(t, err, domain.ErrInvalidCoordinate)

	assert.NoError(t, e.LoadBatch(context.Background(), []domain.IncidentEvent{{Latitude: math.NaN()}}))
	assert.NoError(t, e.CheckReadiness(context.Background()))
}

func TestEngine_ResetFallsBackToNewTop(t *testing.T) {
	e := newTestEngine(&staticZones{})
	ingestJaipur(t, e)
	require.True(t, e.Select(context.Background(), "26.9000,75.7000"))

	e.Reset()
	assert.Nil(t, e.CurrentFocus(context.Background()))

	require.NoError(t, e.Ingest(context.Background(), domain.IncidentEvent{Latitude: 10, Longitude: 10, OccurredAt: t0}))
	f := e.CurrentFocus(context.Background())
	require.NotNil(t, f)
	assert.Equal(t, domain.CellID("10.0000,10.0000"), f.Hotspot.CellID)
	assert.False(t, f.UserSelected)
}

func TestEngine_RefreshZones(t *testing.T) {
	zones := &staticZones{refreshErr: domain.ErrZoneSourceUnavailable}
	e := newTestEngine(zones)

	err := e.RefreshZones(context.Background())
	assert.ErrorIs(t, err, domain.ErrZoneSourceUnavailable)
	assert.Equal(t, 1, zones.refreshes)

	assert.NoError(t, newTestEngine(nil).RefreshZones(context.Background()))
}

func TestEngine_PlaceName(t *testing.T) {
	geo := &mockGeocoder{place: domain.Place{PlaceName: "Jaipur, Rajasthan"}}
	e := newTestEngine(&staticZones{}, WithGeocoder(geo))
	ingestJaipur(t, e)

	f := e.CurrentFocus(context.Background())
	require.NotNil(t, f)
	assert.Equal(t, "Jaipur, Rajasthan", f.PlaceName)

	geo.err = errors.New("mapbox down")
	f = e.CurrentFocus(context.Background())
	require.NotNil(t, f)
	assert.Empty(t, f.PlaceName)
}

func TestEngine_SelectDuringStaleViewIsKept(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var block atomic.Bool
	store := hotspot.NewStore(hotspot.WithRebuildHook(func() {
		if block.CompareAndSwap(true, false) {
			close(entered)
			<-release
		}
	}))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := New(store, &staticZones{}, logger, observability.NewMetricsForTesting(), WithClock(clockwork.NewFakeClockAt(t0)))

	ctx := context.Background()
	top := domain.IncidentEvent{Latitude: 26.9124, Longitude: 75.7873, OccurredAt: t0}
	for range 2 {
		require.NoError(t, e.Ingest(ctx, top))
	}
	require.NotNil(t, e.View(ctx).Focus)

	// Invalidate the cached ranking so the next View rebuilds and parks in the hook.
	require.NoError(t, e.Ingest(ctx, top))
	block.Store(true)
	viewDone := make(chan struct{})
	go func() {
		defer close(viewDone)
		e.View(ctx)
	}()
	<-entered

	// A new cell arrives and is selected while the View above holds a ranking without it.
	require.NoError(t, e.Ingest(ctx, domain.IncidentEvent{Latitude: 26.9, Longitude: 75.7, OccurredAt: t0}))
	selected := make(chan bool, 1)
	go func() { selected <- e.Select(ctx, "26.9000,75.7000") }()

	close(release)
	<-viewDone
	require.True(t, <-selected)

	f := e.CurrentFocus(ctx)
	require.NotNil(t, f)
	assert.Equal(t, domain.CellID("26.9000,75.7000"), f.Hotspot.CellID)
	assert.True(t, f.UserSelected)
}
