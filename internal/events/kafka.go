package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// KafkaPublisher publishes envelopes to a single Kafka topic.
type KafkaPublisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewKafkaPublisher creates a producer for topic across brokers.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &KafkaPublisher{writer: w, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, envelope Envelope) error {
	msg, err := serializeToMessage(envelope)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: publish %s: %w", envelope.Kind, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func serializeToMessage(envelope Envelope) (kafkago.Message, error) {
	data, err := json.Marshal(envelope)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("events: serialize %s: %w", envelope.Kind, err)
	}
	return kafkago.Message{
		Key:   []byte(envelope.StationID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(envelope.Kind)},
			{Key: "processed_at", Value: []byte(envelope.ProcessedAt.Format(time.RFC3339))},
		},
	}, nil
}
