package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/location-picker/internal/domain"
)

// Writer produces selection events to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the selection topic. Messages are
// keyed by picker ID so one widget's selections stay ordered on a partition.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch serializes and publishes selection events in a single
// WriteMessages call.
func (w *Writer) LoadBatch(ctx context.Context, events []domain.SelectionEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msg, err := serializeToMessage(events[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write selection events: %w", err)
	}
	w.logger.Debug("published selection events", "count", len(msgs), "topic", w.writer.Topic)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a SelectionEvent into a Kafka message.
func serializeToMessage(event domain.SelectionEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize selection event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.PickerID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_id", Value: []byte(event.ID)},
			{Key: "source", Value: []byte(event.Source)},
			{Key: "selected_at", Value: []byte(event.SelectedAt.Format(time.RFC3339))},
		},
	}, nil
}

// ParseMessage decodes a message written by Writer.
func ParseMessage(msg kafkago.Message) (domain.SelectionEvent, error) {
	var event domain.SelectionEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return domain.SelectionEvent{}, fmt.Errorf("parse selection event: %w", err)
	}
	return event, nil
}
