package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"weather-ready/internal/logging"
	"weather-ready/internal/weather"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaNotifier publishes one message per alert event to a Kafka topic.
type KafkaNotifier struct {
	writer messageWriter
	logger zerolog.Logger
}

// NewKafkaNotifier creates a producer for the alert topic.
func NewKafkaNotifier(brokers []string, topic string, writeTimeout time.Duration, logger zerolog.Logger) *KafkaNotifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		WriteTimeout: writeTimeout,
	}
	return newKafkaNotifier(w, logger)
}

func newKafkaNotifier(w messageWriter, logger zerolog.Logger) *KafkaNotifier {
	return &KafkaNotifier{writer: w, logger: logging.Component(logger, "alert_kafka")}
}

// Channel implements Notifier.
func (k *KafkaNotifier) Channel() string {
	return "kafka"
}

// Notify writes all alert events of the notification in a single batch.
func (k *KafkaNotifier) Notify(ctx context.Context, note Notification) error {
	if len(note.Alerts) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(note.Alerts))
	for i := range note.Alerts {
		msg, err := serializeToMessage(note, note.Alerts[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write kafka messages: %w", err)
	}
	k.logger.Debug().Str("location", note.Location).Int("messages", len(msgs)).Msg("alerts published (kafka)")
	return nil
}

// Close flushes and closes the producer.
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}

type alertMessage struct {
	Location    string                `json:"location"`
	Date        weather.Date          `json:"date"`
	Kind        weather.ThresholdKind `json:"kind"`
	Metric      weather.Metric        `json:"metric"`
	Value       float64               `json:"observed_value"`
	Threshold   float64               `json:"threshold"`
	Timestamp   time.Time             `json:"timestamp"`
	Message     string                `json:"message"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// serializeToMessage marshals one alert event, keyed by location so a
// location's alerts stay ordered on one partition.
func serializeToMessage(note Notification, event weather.AlertEvent) (kafkago.Message, error) {
	data, err := json.Marshal(alertMessage{
		Location:    note.Location,
		Date:        note.Date,
		Kind:        event.Kind,
		Metric:      event.Metric,
		Value:       event.Value,
		Threshold:   event.Threshold,
		Timestamp:   event.Time,
		Message:     event.Message,
		GeneratedAt: note.GeneratedAt,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize alert event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(note.Location),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "alert_kind", Value: []byte(event.Kind)},
			{Key: "generated_at", Value: []byte(note.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}

var _ Notifier = (*KafkaNotifier)(nil)
