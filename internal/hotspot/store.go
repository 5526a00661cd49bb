// Package hotspot aggregates incident events into ranked spatial cells.
package hotspot

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/incident-hotspot-service/internal/domain"
)

// cellStats is the mutable aggregate for one cell. It is only touched under
// Store.mu.
type cellStats struct {
	id         domain.CellID
	lat, lon   float64
	count      uint64
	lastSeenAt time.Time
}

// Store is the in-memory aggregation table keyed by cell. It is safe for
// concurrent use: writers hold the lock for O(1) work and readers copy the
// table before sorting, so a snapshot never sees a count without its matching
// timestamp.
type Store struct {
	mu    sync.RWMutex
	cells map[domain.CellID]*cellStats

	// generation increments on every write; the cached snapshot is valid only
	// for the generation it was built from.
	generation uint64
	cached     []domain.RankedHotspot
	cachedGen  uint64
	hasCache   bool

	rebuilds func()
}

// Option configures a Store.
type Option func(*Store)

// WithRebuildHook registers fn to be called each time the ranked snapshot is
// recomputed rather than served from cache.
func WithRebuildHook(fn func()) Option {
	return func(s *Store) { s.rebuilds = fn }
}

// NewStore returns an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{cells: make(map[domain.CellID]*cellStats)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest adds one event to its cell. The first event in a cell fixes the
// cell's representative coordinates; lastSeenAt never moves backward.
func (s *Store) Ingest(event domain.IncidentEvent) error {
	id, err := domain.Bin(event.Latitude, event.Longitude)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cells[id]
	if !ok {
		c = &cellStats{id: id, lat: event.Latitude, lon: event.Longitude, lastSeenAt: event.OccurredAt}
		s.cells[id] = c
	}
	c.count++
	if event.OccurredAt.After(c.lastSeenAt) {
		c.lastSeenAt = event.OccurredAt
	}
	s.generation++
	return nil
}

// IngestBatch ingests every valid event and returns how many were stored.
// Invalid events are skipped; their errors are joined into err.
func (s *Store) IngestBatch(events []domain.IncidentEvent) (int, error) {
	var errs []error
	ingested := 0
	for i, e := range events {
		if err := s.Ingest(e); err != nil {
			errs = append(errs, fmt.Errorf("event %d: %w", i, err))
			continue
		}
		ingested++
	}
	return ingested, errors.Join(errs...)
}

// Snapshot returns the full ranking. The result is cached until the next
// write and each caller receives its own copy.
func (s *Store) Snapshot() []domain.RankedHotspot {
	s.mu.RLock()
	if s.hasCache && s.cachedGen == s.generation {
		out := slices.Clone(s.cached)
		s.mu.RUnlock()
		return out
	}
	gen := s.generation
	ranked := make([]domain.RankedHotspot, 0, len(s.cells))
	for _, c := range s.cells {
		ranked = append(ranked, domain.RankedHotspot{
			CellID:     c.id,
			Lat:        c.lat,
			Lon:        c.lon,
			Count:      c.count,
			LastSeenAt: c.lastSeenAt,
		})
	}
	s.mu.RUnlock()

	Rank(ranked)
	if s.rebuilds != nil {
		s.rebuilds()
	}

	s.mu.Lock()
	if s.generation == gen {
		s.cached = ranked
		s.cachedGen = gen
		s.hasCache = true
	}
	s.mu.Unlock()

	return slices.Clone(ranked)
}

// Lookup returns the current stats of one cell. Rank is -1 because ranking
// needs the whole table.
func (s *Store) Lookup(id domain.CellID) (domain.RankedHotspot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cells[id]
	if !ok {
		return domain.RankedHotspot{}, false
	}
	return domain.RankedHotspot{
		Rank:       -1,
		CellID:     c.id,
		Lat:        c.lat,
		Lon:        c.lon,
		Count:      c.count,
		LastSeenAt: c.lastSeenAt,
	}, true
}

// Len returns the number of distinct cells.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cells)
}

// Reset drops every cell, as when the upstream data source is replaced.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cells = make(map[domain.CellID]*cellStats)
	s.generation++
}

// Rank sorts hotspots into their total order and assigns 0-based ranks.
func Rank(hotspots []domain.RankedHotspot) {
	slices.SortFunc(hotspots, func(a, b domain.RankedHotspot) int {
		switch {
		case a.RanksBefore(b):
			return -1
		case b.RanksBefore(a):
			return 1
		default:
			return 0
		}
	})
	for i := range hotspots {
		hotspots[i].Rank = i
	}
}
