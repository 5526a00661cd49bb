package pipeline_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/incident-hotspot-service/internal/domain"
	"github.com/couchcryptid/incident-hotspot-service/internal/engine"
	"github.com/couchcryptid/incident-hotspot-service/internal/hotspot"
	"github.com/couchcryptid/incident-hotspot-service/internal/pipeline"
)

func TestIncidentTransformer_WithFixtureData(t *testing.T) {
	transformer := pipeline.NewTransformer()
	brokerTime := time.Date(2024, time.May, 1, 9, 10, 0, 0, time.UTC)

	var (
		events  []domain.IncidentEvent
		invalid int
	)
	for _, value := range readFixture(t) {
		ev, err := transformer.Transform(context.Background(), domain.RawEvent{Value: value, Timestamp: brokerTime})
		if err != nil {
			invalid++
			continue
		}
		events = append(events, ev)
	}
	assert.Equal(t, 3, invalid)
	require.Len(t, events, 6)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(hotspot.NewStore(), nil, logger, newTestMetrics())
	require.NoError(t, eng.LoadBatch(context.Background(), events))

	type row struct {
		Cell     domain.CellID
		Count    uint64
		LastSeen time.Time
	}
	var got []row
	for _, h := range eng.View(context.Background()).Hotspots {
		got = append(got, row{Cell: h.CellID, Count: h.Count, LastSeen: h.LastSeenAt})
	}

	want := []row{
		{Cell: "26.9124,75.7873", Count: 3, LastSeen: time.Date(2024, time.May, 1, 9, 2, 0, 0, time.UTC)},
		{Cell: "26.8500,75.8000", Count: 2, LastSeen: brokerTime},
		{Cell: "26.9000,75.7000", Count: 1, LastSeen: time.Date(2024, time.May, 1, 9, 0, 0, 0, time.UTC)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("fixture ranking mismatch (-want +got):\n%s", diff)
	}
}

func readFixture(t *testing.T) []json.RawMessage {
	t.Helper()

	data, err := os.ReadFile(filepath.Join("testdata", "incidents.json"))
	require.NoError(t, err)

	var values []json.RawMessage
	require.NoError(t, json.Unmarshal(data, &values))
	return values
}
