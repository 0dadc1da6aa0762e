package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"weather-ready/internal/logging"
	"weather-ready/internal/weather"
)

// Notification carries the alerts of one watched query.
type Notification struct {
	Location    string
	Date        weather.Date
	Timezone    string
	Alerts      []weather.AlertEvent
	Change      weather.ChangeSummary
	GeneratedAt time.Time
	Channels    []string
}

// Notifier delivers notifications to one channel.
type Notifier interface {
	Channel() string
	Notify(ctx context.Context, notification Notification) error
}

// DeliveryObserver is told about every per-channel delivery attempt.
type DeliveryObserver func(channel string, err error)

// Fanout sends a notification to several notifiers, continuing past failures.
type Fanout struct {
	notifiers []Notifier
	observe   DeliveryObserver
	logger    zerolog.Logger
}

// NewFanout combines notifiers. observe may be nil.
func NewFanout(notifiers []Notifier, observe DeliveryObserver, logger zerolog.Logger) *Fanout {
	return &Fanout{
		notifiers: notifiers,
		observe:   observe,
		logger:    logging.Component(logger, "alert_fanout"),
	}
}

// Channel lists the combined channel names.
func (f *Fanout) Channel() string {
	return strings.Join(f.Channels(), ",")
}

// Channels returns the channel name of each notifier.
func (f *Fanout) Channels() []string {
	names := make([]string, 0, len(f.notifiers))
	for _, n := range f.notifiers {
		names = append(names, n.Channel())
	}
	return names
}

// Notify delivers to every notifier and joins their errors.
func (f *Fanout) Notify(ctx context.Context, note Notification) error {
	if len(note.Channels) == 0 {
		note.Channels = f.Channels()
	}
	var errs []error
	for _, n := range f.notifiers {
		err := n.Notify(ctx, note)
		if f.observe != nil {
			f.observe(n.Channel(), err)
		}
		if err != nil {
			f.logger.Error().Err(err).Str("channel", n.Channel()).Str("location", note.Location).Msg("alert delivery failed")
			errs = append(errs, fmt.Errorf("%s: %w", n.Channel(), err))
		}
	}
	return errors.Join(errs...)
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logging.Component(logger, "alert_telegram"),
	}
}

// Channel implements Notifier.
func (n *TelegramNotifier) Channel() string {
	return "telegram"
}

// Notify calls sendMessage with the rendered text.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    RenderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().
		Str("location", note.Location).
		Str("date", note.Date.String()).
		Int("alerts", len(note.Alerts)).
		Msg("alert sent (telegram)")
	return nil
}

// RenderMessage formats a notification as plain text.
func RenderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[Weather Alert] %s %s\n", note.Location, note.Date.String()))
	if note.Timezone != "" {
		builder.WriteString(fmt.Sprintf("Timezone: %s\n", note.Timezone))
	}
	for _, a := range note.Alerts {
		builder.WriteString(a.Message)
		builder.WriteString("\n")
	}
	if note.Change.Message != "" {
		builder.WriteString(fmt.Sprintf("Last hour: %s\n", note.Change.Message))
	}
	if len(note.Channels) > 0 {
		builder.WriteString(fmt.Sprintf("Channels: %s\n", strings.Join(note.Channels, ",")))
	}
	return builder.String()
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*Fanout)(nil)
)
