package zone

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/incident-hotspot-service/internal/domain"
	"github.com/couchcryptid/incident-hotspot-service/internal/observability"
)

// Source fetches the current danger-zone array from an external collaborator.
type Source interface {
	Fetch(ctx context.Context) ([]domain.DangerZone, error)
}

// Snapshot is the last successfully fetched zone array. Zones must be treated
// as read-only.
type Snapshot struct {
	Zones     []domain.DangerZone
	FetchedAt time.Time
}

// Poller periodically refreshes the zone snapshot. A failed fetch never
// replaces the last good snapshot.
type Poller struct {
	source   Source
	interval time.Duration
	timeout  time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu     sync.Mutex // serializes fetches
	latest atomic.Pointer[Snapshot]
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithClock overrides the time source used for ticks and fetch timestamps.
func WithClock(c clockwork.Clock) PollerOption {
	return func(p *Poller) { p.clock = c }
}

// NewPoller creates a Poller. A nil source yields a poller that always serves
// an empty snapshot.
func NewPoller(source Source, interval, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics, opts ...PollerOption) *Poller {
	p := &Poller{
		source:   source,
		interval: interval,
		timeout:  timeout,
		clock:    clockwork.NewRealClock(),
		logger:   logger,
		metrics:  metrics,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Latest returns the last good snapshot, or an empty one before the first
// successful fetch.
func (p *Poller) Latest() Snapshot {
	if s := p.latest.Load(); s != nil {
		return *s
	}
	return Snapshot{}
}

// Refresh fetches zones once, bounded by the poller timeout. On failure the
// previous snapshot stays in place and the returned error wraps
// domain.ErrZoneSourceUnavailable.
func (p *Poller) Refresh(ctx context.Context) error {
	if p.source == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := p.clock.Now()
	zones, err := p.source.Fetch(fetchCtx)
	p.metrics.ZoneFetchDuration.Observe(p.clock.Since(start).Seconds())
	if err != nil {
		p.metrics.ZoneFetches.WithLabelValues("error").Inc()
		p.logger.Warn("zone fetch failed, keeping last snapshot",
			"error", err,
			"last_fetched_at", p.Latest().FetchedAt,
		)
		return fmt.Errorf("%w: %w", domain.ErrZoneSourceUnavailable, err)
	}

	p.latest.Store(&Snapshot{Zones: zones, FetchedAt: p.clock.Now()})
	p.metrics.ZoneFetches.WithLabelValues("success").Inc()
	p.metrics.Zones.Set(float64(len(zones)))
	p.logger.Debug("zones refreshed", "zones", len(zones))
	return nil
}

// Run refreshes immediately and then on every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	if p.source == nil {
		return
	}
	p.logger.Info("zone poller started", "interval", p.interval, "timeout", p.timeout)

	_ = p.Refresh(ctx)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("zone poller stopping", "reason", ctx.Err())
			return
		case <-ticker.Chan():
			_ = p.Refresh(ctx)
		}
	}
}
