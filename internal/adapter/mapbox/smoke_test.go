//go:build mapbox

package mapbox

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/incident-hotspot-service/internal/observability"
)

// These tests hit the real Mapbox API and require a valid MAPBOX_TOKEN env var.
// Run with: go test -tags=mapbox ./internal/adapter/mapbox/ -v -count=1

func smokeClient(t *testing.T) *Client {
	t.Helper()
	token := os.Getenv("MAPBOX_TOKEN")
	if token == "" {
		t.Fatal("MAPBOX_TOKEN must be set to run smoke tests")
	}
	return &Client{
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    "https://api.mapbox.com/geocoding/v5/mapbox.places",
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestSmoke_ReverseGeocode(t *testing.T) {
	c := smokeClient(t)

	// Central Jaipur.
	place, err := c.ReverseGeocode(context.Background(), 26.9124, 75.7873)
	require.NoError(t, err)

	assert.Contains(t, place.FormattedAddress, "Jaipur")
	assert.NotEmpty(t, place.PlaceName)
	assert.Greater(t, place.Confidence, 0.0)
}

func TestSmoke_ReverseGeocode_OpenOcean(t *testing.T) {
	c := smokeClient(t)

	// Mid-Pacific: Mapbox may return nothing, which must not be an error.
	_, err := c.ReverseGeocode(context.Background(), 0, -150)
	require.NoError(t, err)
}

func TestSmoke_CachedGeocoder(t *testing.T) {
	c := smokeClient(t)
	cached := NewCachedGeocoder(c, 10, observability.NewMetricsForTesting())

	p1, err := cached.ReverseGeocode(context.Background(), 26.9124, 75.7873)
	require.NoError(t, err)

	p2, err := cached.ReverseGeocode(context.Background(), 26.91241, 75.78731)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}
