// Command genmock generates synthetic incident fixtures clustered around a set
// of centers. It runs every record through the real parsing and aggregation
// code so the printed ranking matches what the service would produce.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out data/mock/incidents.json \
//	  -count 500 -seed 42 \
//	  -centers "26.9124,75.7873;26.8500,75.8000;26.9000,75.7000"
//
// With -brokers and -topic the records are also produced to Kafka.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/incident-hotspot-service/internal/domain"
	"github.com/couchcryptid/incident-hotspot-service/internal/hotspot"
)

var baseTime = time.Date(2024, time.May, 1, 9, 0, 0, 0, time.UTC)

type center struct {
	lat, lon float64
	weight   int
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the incident JSON fixture")
	count := flag.Int("count", 200, "number of incidents to generate")
	seed := flag.Uint64("seed", 42, "random seed")
	centersFlag := flag.String("centers", "26.9124,75.7873;26.8500,75.8000;26.9000,75.7000", "semicolon-separated lat,lon[,weight] cluster centers")
	spread := flag.Float64("spread", 0.0002, "max offset in degrees from a center")
	brokers := flag.String("brokers", "", "comma-separated Kafka brokers to produce to")
	topic := flag.String("topic", "incident-events", "Kafka topic to produce to")
	flag.Parse()

	if *out == "" && *brokers == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -out or -brokers")
	}
	if *count <= 0 {
		return fmt.Errorf("-count must be positive")
	}

	centers, err := parseCenters(*centersFlag)
	if err != nil {
		return err
	}

	// Fixed clock so records without a timestamp stay reproducible.
	domain.SetClock(clockwork.NewFakeClockAt(baseTime))
	defer domain.SetClock(nil)

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	records := generate(rng, centers, *count, *spread)

	if *out != "" {
		if err := writeJSON(*out, records); err != nil {
			return fmt.Errorf("writing fixture: %w", err)
		}
		log.Printf("wrote %d incidents: %s", len(records), *out)
	}

	if *brokers != "" {
		if err := produce(sharedcfg.ParseBrokers(*brokers), *topic, records); err != nil {
			return fmt.Errorf("producing to kafka: %w", err)
		}
		log.Printf("produced %d incidents to %s", len(records), *topic)
	}

	return printRanking(records)
}

func parseCenters(raw string) ([]center, error) {
	var centers []center
	for part := range strings.SplitSeq(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ",")
		if len(fields) < 2 || len(fields) > 3 {
			return nil, fmt.Errorf("invalid center %q", part)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid center latitude %q: %w", fields[0], err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid center longitude %q: %w", fields[1], err)
		}
		c := center{lat: lat, lon: lon, weight: 1}
		if len(fields) == 3 {
			if c.weight, err = strconv.Atoi(strings.TrimSpace(fields[2])); err != nil || c.weight <= 0 {
				return nil, fmt.Errorf("invalid center weight %q", fields[2])
			}
		}
		centers = append(centers, c)
	}
	if len(centers) == 0 {
		return nil, fmt.Errorf("no centers given")
	}
	return centers, nil
}

// generate picks a center per record, weighted, with earlier centers getting
// an extra share so the ranking has a clear leader.
func generate(rng *rand.Rand, centers []center, n int, spread float64) []domain.IncidentRecord {
	var total int
	weights := make([]int, len(centers))
	for i, c := range centers {
		weights[i] = c.weight * (len(centers) - i)
		total += weights[i]
	}

	records := make([]domain.IncidentRecord, 0, n)
	for i := range n {
		pick := rng.IntN(total)
		idx := 0
		for pick >= weights[idx] {
			pick -= weights[idx]
			idx++
		}
		c := centers[idx]
		ts := baseTime.Add(time.Duration(i) * 7 * time.Second)
		records = append(records, domain.IncidentRecord{
			Lat:       domain.NewFlexFloat(c.lat + (rng.Float64()*2-1)*spread),
			Lon:       domain.NewFlexFloat(c.lon + (rng.Float64()*2-1)*spread),
			Timestamp: json.RawMessage(strconv.Quote(ts.Format(time.RFC3339))),
		})
	}
	return records
}

func produce(brokers []string, topic string, records []domain.IncidentRecord) error {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
	}
	defer w.Close()

	msgs := make([]kafkago.Message, 0, len(records))
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal incident: %w", err)
		}
		msgs = append(msgs, kafkago.Message{Value: data})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return w.WriteMessages(ctx, msgs...)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

func printRanking(records []domain.IncidentRecord) error {
	store := hotspot.NewStore()
	for _, rec := range records {
		ev, err := rec.ToEvent(time.Time{})
		if err != nil {
			return fmt.Errorf("generated invalid incident: %w", err)
		}
		if err := store.Ingest(ev); err != nil {
			return err
		}
	}

	ranked := store.Snapshot()
	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Total: %d incidents, %d cells\n", len(records), len(ranked))
	for _, h := range ranked[:min(10, len(ranked))] {
		fmt.Printf("  #%d %s count=%d last_seen=%s\n", h.Rank, h.CellID, h.Count, h.LastSeenAt.Format(time.RFC3339))
	}
	return nil
}
