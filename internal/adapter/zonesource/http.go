package zonesource

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/incident-hotspot-service/internal/domain"
)

// maxBodyBytes caps the zone payload read from the analytics endpoint.
const maxBodyBytes = 8 << 20

// HTTPSource polls a JSON endpoint that returns an array of danger zones.
// It implements zone.Source.
type HTTPSource struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPSource creates a source for url. The timeout bounds the whole
// request, including reading the body.
func NewHTTPSource(url string, timeout time.Duration, logger *slog.Logger) *HTTPSource {
	return &HTTPSource{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Fetch retrieves the current zone array.
func (s *HTTPSource) Fetch(ctx context.Context) ([]domain.DangerZone, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("zone request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("zone API error: status %d: %s", resp.StatusCode, body)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read zone response: %w", err)
	}

	zones, err := decodeZones(data)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("zones fetched", "source", "http", "zones", len(zones))
	return zones, nil
}
