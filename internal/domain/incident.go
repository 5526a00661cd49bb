package domain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// IncidentEvent is a single geotagged road-accident report. Arrival order is
// arbitrary and duplicates are allowed.
type IncidentEvent struct {
	Latitude   float64   `json:"lat"`
	Longitude  float64   `json:"lon"`
	OccurredAt time.Time `json:"timestamp"`
}

// IncidentRecord is the wire shape produced by the detection devices. Coordinates
// may arrive as JSON numbers or numeric strings; the timestamp may be ISO 8601
// (offset-less values are UTC), epoch seconds or epoch milliseconds.
type IncidentRecord struct {
	Lat       FlexFloat       `json:"lat"`
	Lon       FlexFloat       `json:"lon"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

// epochMillisThreshold separates epoch seconds from epoch milliseconds. Any
// value above it is read as milliseconds (1e11 s is the year 5138).
const epochMillisThreshold = 1e11

// maxEpochMillis is 9999-12-31T23:59:59.999Z. Larger epoch values are rejected.
const maxEpochMillis = 253402300799999

// timestampLayouts are tried in order. Layouts without an offset parse as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// ParseRawEvent decodes a RawEvent's value into an IncidentEvent. A missing
// timestamp falls back to the message timestamp, then to the package clock.
func ParseRawEvent(raw RawEvent) (IncidentEvent, error) {
	var rec IncidentRecord
	if err := json.Unmarshal(raw.Value, &rec); err != nil {
		return IncidentEvent{}, fmt.Errorf("parse incident: %w", err)
	}
	return rec.ToEvent(raw.Timestamp)
}

// ToEvent converts the record, using fallback when no timestamp was sent.
// Non-finite coordinates are rejected with ErrInvalidCoordinate.
func (r IncidentRecord) ToEvent(fallback time.Time) (IncidentEvent, error) {
	if !r.Lat.Set || !r.Lon.Set {
		return IncidentEvent{}, errors.New("parse incident: lat and lon are required")
	}
	lat, lon := r.Lat.Value, r.Lon.Value
	if !ValidCoordinate(lat, lon) {
		return IncidentEvent{}, fmt.Errorf("parse incident (%v, %v): %w", lat, lon, ErrInvalidCoordinate)
	}

	occurred, err := parseTimestamp(r.Timestamp)
	if err != nil {
		return IncidentEvent{}, err
	}
	if occurred.IsZero() {
		occurred = fallback
	}
	if occurred.IsZero() {
		occurred = clock.Now()
	}

	return IncidentEvent{Latitude: lat, Longitude: lon, OccurredAt: occurred.UTC()}, nil
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("parse timestamp: %w", err)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return time.Time{}, nil
		}
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return fromEpoch(n)
		}
		return time.Time{}, fmt.Errorf("parse timestamp %q: unsupported format", s)
	}

	n, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %s: %w", raw, err)
	}
	return fromEpoch(n)
}

// fromEpoch reads n as epoch seconds, or as milliseconds above
// epochMillisThreshold.
func fromEpoch(n float64) (time.Time, error) {
	if math.IsNaN(n) || math.IsInf(n, 0) || math.Abs(n) > maxEpochMillis {
		return time.Time{}, fmt.Errorf("parse timestamp %v: epoch out of range", n)
	}
	if math.Abs(n) > epochMillisThreshold {
		return time.UnixMilli(int64(n)).UTC(), nil
	}
	sec, frac := math.Modf(n)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}

// FlexFloat decodes a float64 from a JSON number or a numeric string.
type FlexFloat struct {
	Value float64
	Set   bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = FlexFloat{}
		return nil
	}
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse coordinate %q: %w", s, err)
	}
	*f = FlexFloat{Value: v, Set: true}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (f FlexFloat) MarshalJSON() ([]byte, error) {
	if !f.Set {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// NewFlexFloat returns a set FlexFloat.
func NewFlexFloat(v float64) FlexFloat {
	return FlexFloat{Value: v, Set: true}
}
