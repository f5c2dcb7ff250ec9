package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/tsunami-playback-service/internal/config"
	"github.com/couchcryptid/tsunami-playback-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces station status messages to a Kafka topic.
// It implements monitor.BatchLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured status topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaStatusTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch serializes and publishes station statuses in a single
// WriteMessages call. Messages are keyed by station ID so each station's
// history stays ordered within one partition.
func (w *Writer) LoadBatch(ctx context.Context, statuses []domain.StationStatus) error {
	if len(statuses) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(statuses))
	for i := range statuses {
		msg, err := serializeToMessage(statuses[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write status messages: %w", err)
	}
	w.logger.Debug("published station statuses", "topic", w.writer.Topic, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a StationStatus into a Kafka message.
func serializeToMessage(s domain.StationStatus) (kafkago.Message, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize station status: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(s.StationID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "level", Value: []byte(s.Level.String())},
			{Key: "event_id", Value: []byte(s.EventID)},
			{Key: "updated_at", Value: []byte(s.UpdatedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
