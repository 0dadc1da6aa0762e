package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"weather-ready/internal/logging"
	"weather-ready/internal/weather"
)

const publishTimeout = 5 * time.Second

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTOptions parameterise the MQTT notifier.
type MQTTOptions struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	QoS            byte
	ConnectTimeout time.Duration
}

// MQTTNotifier publishes a JSON summary per notification to
// <prefix>/<location>.
type MQTTNotifier struct {
	client publisher
	prefix string
	qos    byte
	logger zerolog.Logger
	close  func()
}

// NewMQTTNotifier connects to the broker and returns a notifier.
func NewMQTTNotifier(ctx context.Context, opts MQTTOptions, logger zerolog.Logger) (*MQTTNotifier, error) {
	log := logging.Component(logger, "alert_mqtt")

	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}
	co.SetCleanSession(true)
	co.SetAutoReconnect(true)
	co.SetKeepAlive(30 * time.Second)
	co.SetPingTimeout(10 * time.Second)
	co.SetOnConnectHandler(func(_ mqtt.Client) {
		log.Info().Str("broker", opts.Broker).Msg("mqtt connected")
	})
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt connection lost")
	})

	client := mqtt.NewClient(co)
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if err := waitToken(ctx, client.Connect(), timeout); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	n := newMQTTNotifier(client, opts.TopicPrefix, opts.QoS, logger)
	n.close = func() { client.Disconnect(250) }
	return n, nil
}

func newMQTTNotifier(client publisher, prefix string, qos byte, logger zerolog.Logger) *MQTTNotifier {
	if prefix == "" {
		prefix = "weatherready/alerts"
	}
	return &MQTTNotifier{
		client: client,
		prefix: strings.TrimRight(prefix, "/"),
		qos:    qos,
		logger: logging.Component(logger, "alert_mqtt"),
	}
}

// Channel implements Notifier.
func (m *MQTTNotifier) Channel() string {
	return "mqtt"
}

type mqttPayload struct {
	Location    string               `json:"location"`
	Date        weather.Date         `json:"date"`
	Timezone    string               `json:"timezone,omitempty"`
	Alerts      []weather.AlertEvent `json:"alerts"`
	Change      string               `json:"change"`
	GeneratedAt time.Time            `json:"generated_at"`
}

// Notify publishes the notification to the location topic.
func (m *MQTTNotifier) Notify(ctx context.Context, note Notification) error {
	data, err := json.Marshal(mqttPayload{
		Location:    note.Location,
		Date:        note.Date,
		Timezone:    note.Timezone,
		Alerts:      note.Alerts,
		Change:      note.Change.Message,
		GeneratedAt: note.GeneratedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal mqtt payload: %w", err)
	}

	topic := m.Topic(note.Location)
	if err := waitToken(ctx, m.client.Publish(topic, m.qos, false, data), publishTimeout); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	m.logger.Debug().Str("topic", topic).Int("alerts", len(note.Alerts)).Msg("alerts published (mqtt)")
	return nil
}

// Topic returns the topic used for location.
func (m *MQTTNotifier) Topic(location string) string {
	slug := strings.ToLower(strings.Join(strings.Fields(location), "_"))
	return m.prefix + "/" + slug
}

// Close disconnects from the broker.
func (m *MQTTNotifier) Close() error {
	if m.close != nil {
		m.close()
	}
	return nil
}

func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Notifier = (*MQTTNotifier)(nil)
