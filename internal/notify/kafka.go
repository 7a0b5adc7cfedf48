package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

// KafkaSink writes one message per delivery, keyed by subscriber so each
// subscriber's deliveries stay ordered within a partition.
type KafkaSink struct {
	writer *kafkago.Writer
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &KafkaSink{writer: w}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Publish(ctx context.Context, _ models.NotificationEvent, deliveries []models.Delivery) error {
	if len(deliveries) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(deliveries))
	for i := range deliveries {
		msg, err := serializeToMessage(deliveries[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return s.writer.WriteMessages(ctx, msgs...)
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

func serializeToMessage(d models.Delivery) (kafkago.Message, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize delivery: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(d.Subscriber),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(d.Event.Type)},
			{Key: "channel", Value: []byte(d.Channel)},
			{Key: "severity", Value: []byte(d.Event.Severity.String())},
			{Key: "occurred_at", Value: []byte(d.Event.Timestamp.Format(time.RFC3339))},
		},
	}, nil
}
