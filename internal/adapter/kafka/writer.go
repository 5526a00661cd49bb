package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/incident-hotspot-service/internal/config"
	"github.com/couchcryptid/incident-hotspot-service/internal/domain"
)

// messageWriter is the subset of *kafkago.Writer the adapter uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes view models to a Kafka topic.
// It implements pipeline.Publisher.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		BatchTimeout: 250 * time.Millisecond,
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish writes one view model. Views from the same instance share a key and
// therefore a partition, so consumers see them in order.
func (w *Writer) Publish(ctx context.Context, vm domain.ViewModel) error {
	msg, err := serializeToMessage(vm)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish view: %w", err)
	}
	w.logger.Debug("view published", "hotspots", len(vm.Hotspots), "zones", len(vm.Zones))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a ViewModel into a Kafka message.
func serializeToMessage(vm domain.ViewModel) (kafkago.Message, error) {
	data, err := json.Marshal(vm)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize view: %w", err)
	}
	focusCell := ""
	if vm.Focus != nil {
		focusCell = string(vm.Focus.Hotspot.CellID)
	}
	return kafkago.Message{
		Key:   []byte(vm.InstanceID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "focus_cell", Value: []byte(focusCell)},
			{Key: "generated_at", Value: []byte(vm.GeneratedAt.Format(time.RFC3339Nano))},
		},
	}, nil
}
