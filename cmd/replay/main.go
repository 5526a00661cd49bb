// Command replay feeds an incident fixture, and optionally a danger-zone
// fixture, through the real engine and checks the resulting view model:
// parsing, ranking order, zone classification and focus behavior.
//
// Usage:
//
//	go run ./cmd/replay \
//	  -incidents internal/pipeline/testdata/incidents.json \
//	  -zones data/mock/zones.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/incident-hotspot-service/internal/domain"
	"github.com/couchcryptid/incident-hotspot-service/internal/engine"
	"github.com/couchcryptid/incident-hotspot-service/internal/hotspot"
	"github.com/couchcryptid/incident-hotspot-service/internal/observability"
	"github.com/couchcryptid/incident-hotspot-service/internal/zone"
)

var replayTime = time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// staticZones serves a fixed zone fixture to the engine.
type staticZones struct {
	snap zone.Snapshot
}

func (s staticZones) Latest() zone.Snapshot         { return s.snap }
func (s staticZones) Refresh(context.Context) error { return nil }

func main() {
	incidentsPath := flag.String("incidents", "", "path to an incident JSON fixture (array of records)")
	zonesPath := flag.String("zones", "", "optional path to a danger-zone JSON fixture")
	flag.Parse()

	if *incidentsPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(*incidentsPath, *zonesPath))
}

func run(incidentsPath, zonesPath string) int {
	domain.SetClock(clockwork.NewFakeClockAt(replayTime))
	defer domain.SetClock(nil)

	fmt.Println("=== Incident Hotspot Replay ===")
	fmt.Println()

	raws, err := loadJSON[json.RawMessage](incidentsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load incidents: %v\n", err)
		return 1
	}

	var zones []domain.DangerZone
	if zonesPath != "" {
		if zones, err = loadJSON[domain.DangerZone](zonesPath); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load zones: %v\n", err)
			return 1
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(hotspot.NewStore(), staticZones{snap: zone.Snapshot{Zones: zones, FetchedAt: replayTime}},
		logger, observability.NewMetricsForTesting(), engine.WithClock(clockwork.NewFakeClockAt(replayTime)))

	parsing, events := validateParsing(raws)
	ctx := context.Background()
	if _, err := eng.IngestBatch(ctx, events); err != nil {
		parsing.errorf("ingest: %v", err)
	}
	vm := eng.View(ctx)

	phases := []*phase{
		parsing,
		validateRanking(vm, len(events)),
		validateClassification(vm, zones),
		validateFocus(eng, vm),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d incidents (%d valid), %d zones, %d entries\n",
		len(raws), len(events), len(zones), len(vm.Hotspots))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadJSON[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// validateParsing parses every record. Rejections are reported but only
// count as failures when the record had usable coordinates.
func validateParsing(raws []json.RawMessage) (*phase, []domain.IncidentEvent) {
	p := &phase{name: "Phase 1: Incident parsing"}
	events := make([]domain.IncidentEvent, 0, len(raws))
	var rejected int
	for i, raw := range raws {
		ev, err := domain.ParseRawEvent(domain.RawEvent{Value: raw})
		if err != nil {
			rejected++
			continue
		}
		if _, err := domain.Bin(ev.Latitude, ev.Longitude); err != nil {
			p.errorf("record %d: parsed but cannot be binned: %v", i, err)
			continue
		}
		if ev.OccurredAt.IsZero() {
			p.errorf("record %d: zero timestamp after parsing", i)
		}
		events = append(events, ev)
	}
	fmt.Printf("  parsed %d, rejected %d\n", len(events), rejected)
	return p, events
}

func validateRanking(vm domain.ViewModel, valid int) *phase {
	p := &phase{name: "Phase 2: Ranking order and counts"}

	var total uint64
	var local []domain.RankedHotspot
	seen := map[domain.CellID]bool{}
	for _, h := range vm.Hotspots {
		if seen[h.CellID] {
			p.errorf("duplicate entry for cell %s", h.CellID)
		}
		seen[h.CellID] = true
		if h.Origin == domain.OriginLocal {
			local = append(local, h.RankedHotspot)
			total += h.Count
		}
	}

	if total != uint64(valid) {
		p.errorf("cell counts sum to %d, want %d valid incidents", total, valid)
	}
	for i := range local {
		if local[i].Rank != i {
			p.errorf("cell %s has rank %d at position %d", local[i].CellID, local[i].Rank, i)
		}
		if i > 0 && !local[i-1].RanksBefore(local[i]) {
			p.errorf("cell %s does not rank before %s", local[i-1].CellID, local[i].CellID)
		}
		if id, _ := domain.Bin(local[i].Lat, local[i].Lon); id != local[i].CellID {
			p.errorf("cell %s re-bins to %s", local[i].CellID, id)
		}
	}
	return p
}

func validateClassification(vm domain.ViewModel, zones []domain.DangerZone) *phase {
	p := &phase{name: "Phase 3: Zone classification"}

	zoneCells := map[domain.CellID]bool{}
	for _, z := range zones {
		if id, err := domain.Bin(z.Lat, z.Lng); err == nil {
			zoneCells[id] = true
		}
	}

	for _, h := range vm.Hotspots {
		switch {
		case h.Origin == domain.OriginZone:
			if !zoneCells[h.CellID] {
				p.errorf("zone-only entry %s has no zone", h.CellID)
			}
			if h.Rank != -1 || h.Count != 0 {
				p.errorf("zone-only entry %s has rank %d count %d", h.CellID, h.Rank, h.Count)
			}
		case zoneCells[h.CellID]:
			if !h.Classified {
				p.errorf("cell %s overlaps a zone but is unclassified", h.CellID)
			}
		default:
			if h.Classified || h.Severity != domain.SeverityUnclassified || h.Color != domain.UnclassifiedColor {
				p.errorf("cell %s has no zone but is classified %q %q", h.CellID, h.Severity, h.Color)
			}
		}
	}

	if len(vm.Zones) > len(zones) {
		p.errorf("%d overlays for %d zones", len(vm.Zones), len(zones))
	}
	return p
}

func validateFocus(eng *engine.Engine, vm domain.ViewModel) *phase {
	p := &phase{name: "Phase 4: Focus behavior"}
	ctx := context.Background()

	if len(vm.Hotspots) == 0 {
		if vm.Focus != nil {
			p.errorf("focus set with no entries")
		}
		return p
	}
	if vm.Focus == nil {
		p.errorf("no focus with %d entries", len(vm.Hotspots))
		return p
	}
	if vm.Focus.Hotspot.CellID != vm.Hotspots[0].CellID {
		p.errorf("initial focus %s, want top entry %s", vm.Focus.Hotspot.CellID, vm.Hotspots[0].CellID)
	}

	last := vm.Hotspots[len(vm.Hotspots)-1]
	if !eng.Select(ctx, last.CellID) {
		p.errorf("select %s rejected", last.CellID)
		return p
	}
	if eng.Select(ctx, "not-a-cell") {
		p.errorf("select of unknown cell accepted")
	}

	// Push the top cell further ahead; the selection must not move.
	top := vm.Hotspots[0]
	for range 3 {
		if err := eng.Ingest(ctx, domain.IncidentEvent{Latitude: top.Lat, Longitude: top.Lon, OccurredAt: replayTime}); err != nil {
			p.errorf("ingest: %v", err)
		}
	}
	f := eng.CurrentFocus(ctx)
	switch {
	case f == nil:
		p.errorf("focus lost after new incidents")
	case f.Hotspot.CellID != last.CellID:
		p.errorf("focus moved to %s, want %s", f.Hotspot.CellID, last.CellID)
	case !f.UserSelected:
		p.errorf("focus on %s not marked user selected", f.Hotspot.CellID)
	}
	return p
}
