package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-ready/internal/weather"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func sampleNotification() Notification {
	at := time.Date(2024, time.May, 1, 14, 0, 0, 0, time.UTC)
	return Notification{
		Location: "NEW YORK",
		Date:     weather.Date{Year: 2024, Month: time.May, Day: 1},
		Timezone: "UTC",
		Alerts: []weather.AlertEvent{
			{Kind: weather.KindMaxTemp, Metric: weather.MetricTemperature, Value: 35, Threshold: 30, Time: at, Message: "Temp 35.0°C at 2024-05-01 14:00"},
			{Kind: weather.KindMaxWind, Metric: weather.MetricWindSpeed, Value: 40, Threshold: 30, Time: at, Message: "Wind 40.0 km/h at 2024-05-01 14:00"},
		},
		Change:      weather.ChangeSummary{Message: weather.NoChangeMessage},
		GeneratedAt: at.Add(time.Minute),
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottoken/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL+"/", time.Second, testLogger())
	require.NoError(t, notifier.Notify(context.Background(), sampleNotification()))

	assert.Equal(t, "chat", received["chat_id"])
	assert.Contains(t, received["text"], "[Weather Alert] NEW YORK 2024-05-01")
	assert.Contains(t, received["text"], "Temp 35.0°C at 2024-05-01 14:00")
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	assert.Error(t, notifier.Notify(context.Background(), sampleNotification()))
}

func TestTelegramNotifierHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	err := notifier.Notify(context.Background(), sampleNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestRenderMessage(t *testing.T) {
	note := sampleNotification()
	note.Channels = []string{"telegram", "mqtt"}

	lines := strings.Split(strings.TrimSpace(RenderMessage(note)), "\n")
	assert.Equal(t, []string{
		"[Weather Alert] NEW YORK 2024-05-01",
		"Timezone: UTC",
		"Temp 35.0°C at 2024-05-01 14:00",
		"Wind 40.0 km/h at 2024-05-01 14:00",
		"Last hour: " + weather.NoChangeMessage,
		"Channels: telegram,mqtt",
	}, lines)
}

type recordingWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaNotifierWritesOneMessagePerAlert(t *testing.T) {
	w := &recordingWriter{}
	notifier := newKafkaNotifier(w, testLogger())

	require.NoError(t, notifier.Notify(context.Background(), sampleNotification()))
	require.Len(t, w.msgs, 2)

	first := w.msgs[0]
	assert.Equal(t, "NEW YORK", string(first.Key))
	assert.Equal(t, "alert_kind", first.Headers[0].Key)
	assert.Equal(t, "max_temp", string(first.Headers[0].Value))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(first.Value, &decoded))
	assert.Equal(t, "2024-05-01", decoded["date"])
	assert.Equal(t, "max_temp", decoded["kind"])
	assert.InDelta(t, 35.0, decoded["observed_value"], 1e-9)
	assert.InDelta(t, 30.0, decoded["threshold"], 1e-9)

	require.NoError(t, notifier.Close())
	assert.True(t, w.closed)
}

func TestKafkaNotifierSkipsEmpty(t *testing.T) {
	w := &recordingWriter{err: errors.New("must not be called")}
	notifier := newKafkaNotifier(w, testLogger())

	note := sampleNotification()
	note.Alerts = nil
	assert.NoError(t, notifier.Notify(context.Background(), note))
}

func TestKafkaNotifierWrapsWriteError(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	notifier := newKafkaNotifier(w, testLogger())

	err := notifier.Notify(context.Background(), sampleNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

type doneToken struct {
	err  error
	done chan struct{}
}

func newDoneToken(err error) *doneToken {
	t := &doneToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *doneToken) Wait() bool { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{} { return t.done }
func (t *doneToken) Error() error { return t.err }

type recordingPublisher struct {
	topic   string
	qos     byte
	payload []byte
	err     error
}

func (p *recordingPublisher) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	p.topic = topic
	p.qos = qos
	p.payload, _ = payload.([]byte)
	return newDoneToken(p.err)
}

func TestMQTTNotifierPublishesToLocationTopic(t *testing.T) {
	pub := &recordingPublisher{}
	notifier := newMQTTNotifier(pub, "weatherready/alerts/", 1, testLogger())

	require.NoError(t, notifier.Notify(context.Background(), sampleNotification()))
	assert.Equal(t, "weatherready/alerts/new_york", pub.topic)
	assert.Equal(t, byte(1), pub.qos)

	var decoded mqttPayload
	require.NoError(t, json.Unmarshal(pub.payload, &decoded))
	assert.Equal(t, "NEW YORK", decoded.Location)
	assert.Len(t, decoded.Alerts, 2)
	assert.Equal(t, weather.NoChangeMessage, decoded.Change)
}

func TestMQTTNotifierPublishError(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("not connected")}
	notifier := newMQTTNotifier(pub, "", 0, testLogger())

	err := notifier.Notify(context.Background(), sampleNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weatherready/alerts/new_york")
}

type stubNotifier struct {
	name  string
	err   error
	calls []Notification
}

func (s *stubNotifier) Channel() string { return s.name }

func (s *stubNotifier) Notify(_ context.Context, note Notification) error {
	s.calls = append(s.calls, note)
	return s.err
}

func TestFanoutContinuesPastFailures(t *testing.T) {
	failing := &stubNotifier{name: "kafka", err: errors.New("boom")}
	ok := &stubNotifier{name: "mqtt"}

	observed := map[string]error{}
	fan := NewFanout([]Notifier{failing, ok}, func(channel string, err error) {
		observed[channel] = err
	}, testLogger())

	err := fan.Notify(context.Background(), sampleNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka: boom")

	require.Len(t, ok.calls, 1)
	assert.Equal(t, []string{"kafka", "mqtt"}, ok.calls[0].Channels)
	assert.Error(t, observed["kafka"])
	assert.NoError(t, observed["mqtt"])
	assert.Equal(t, "kafka,mqtt", fan.Channel())
}
