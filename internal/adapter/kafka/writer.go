package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/repeater-data-etl/internal/config"
	"github.com/couchcryptid/repeater-data-etl/internal/domain"
)

// Writer publishes normalized repeaters to a Kafka topic.
// It implements pipeline.Saver.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// Save publishes one state group in a single WriteMessages call. Messages
// are keyed by location so the same repeater lands on the same partition.
func (w *Writer) Save(ctx context.Context, state string, records []domain.NormalizedRecord) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}
	runID := domain.RunID(ctx)
	publishedAt := domain.Now()
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(records[i], runID, publishedAt)
		if err != nil {
			return nil, err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return nil, fmt.Errorf("publish state %s: %w", state, err)
	}
	w.logger.Debug("state published", "state", state, "messages", len(msgs), "topic", w.writer.Topic)
	return []string{fmt.Sprintf("kafka://%s/%s", w.writer.Topic, state)}, nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// MessageKey returns the location identity "sp:Campinas" or "sp:Campinas:1".
func MessageKey(r domain.NormalizedRecord) string {
	key := r.Location.Key()
	if r.Location.Index > 0 {
		key = fmt.Sprintf("%s:%d", key, r.Location.Index)
	}
	return key
}

// serializeToMessage marshals a NormalizedRecord into a Kafka message.
func serializeToMessage(r domain.NormalizedRecord, runID string, publishedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize repeater %s: %w", MessageKey(r), err)
	}
	headers := []kafkago.Header{
		{Key: "state", Value: []byte(strings.ToUpper(r.State()))},
		{Key: "published_at", Value: []byte(publishedAt.Format(time.RFC3339))},
	}
	if runID != "" {
		headers = append(headers, kafkago.Header{Key: "run_id", Value: []byte(runID)})
	}
	return kafkago.Message{
		Key:     []byte(MessageKey(r)),
		Value:   data,
		Headers: headers,
	}, nil
}
