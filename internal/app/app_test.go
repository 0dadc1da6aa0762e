package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-ready/internal/config"
	"weather-ready/internal/weather"
)

var testNow = time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)

// forecastServer serves 2024-05-01 in UTC: 25 °C all day except 35 °C at 14:00.
func forecastServer(t *testing.T) *httptest.Server {
	t.Helper()
	times := make([]string, 24)
	temps := make([]*float64, 24)
	wind := make([]*float64, 24)
	humidity := make([]*float64, 24)
	precip := make([]*float64, 24)
	for i := range times {
		times[i] = fmt.Sprintf("2024-05-01T%02d:00", i)
		temp := 25.0
		if i == 14 {
			temp = 35
		}
		temps[i] = weather.Float(temp)
		wind[i] = weather.Float(12)
		humidity[i] = weather.Float(60)
		precip[i] = weather.Float(0.2)
	}
	humidity[3] = nil

	body := map[string]any{
		"timezone":              "UTC",
		"timezone_abbreviation": "UTC",
		"utc_offset_seconds":    0,
		"hourly": map[string]any{
			"time":                 times,
			"temperature_2m":       temps,
			"wind_speed_10m":       wind,
			"relative_humidity_2m": humidity,
			"precipitation":        precip,
		},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forecast", r.URL.Path)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	app *App
	out *bytes.Buffer
	dir string
}

func newTestApp(t *testing.T, extra string) *testEnv {
	t.Helper()
	srv := forecastServer(t)
	dir := t.TempDir()

	body := fmt.Sprintf(`
feed:
  base_url: %s
snapshots:
  raw_dir: %s
  clean_dir: %s
  report_dir: %s
export:
  dir: %s
%s`, srv.URL,
		filepath.Join(dir, "raw"),
		filepath.Join(dir, "cleaned"),
		filepath.Join(dir, "reports"),
		filepath.Join(dir, "exports"),
		extra)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	a := NewApp(cfg, zerolog.Nop())
	a.Out = out
	a.Clock = clockwork.NewFakeClockAt(testNow)
	return &testEnv{app: a, out: out, dir: dir}
}

func (e *testEnv) files(t *testing.T, sub string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(e.dir, sub))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func londonRequest() weather.QueryRequest {
	return weather.QueryRequest{
		Location:   "London",
		Date:       weather.DateOf(testNow),
		Unit:       weather.Celsius,
		Thresholds: weather.Thresholds{MaxTemp: weather.Float(30)},
	}
}

func TestReportPrintsBundle(t *testing.T) {
	env := newTestApp(t, "")

	require.NoError(t, env.app.Report(context.Background(), ReportOptions{Request: londonRequest()}))

	out := env.out.String()
	assert.Contains(t, out, "LONDON  2024-05-01  (UTC)")
	assert.Contains(t, out, "  - Temp 35.0°C at 2024-05-01 14:00")
	assert.Contains(t, out, "Last hour: Temperature changed by 10.0 °C in last hour.")
	assert.Contains(t, out, "Temp (°C)")
	assert.Contains(t, out, "2024-05-01 23:00")

	assert.Equal(t, []string{"LONDON_raw_20240501_120000.csv"}, env.files(t, "raw"))
	assert.Equal(t, []string{"LONDON_cleaned_20240501_120000.csv"}, env.files(t, "cleaned"))
	assert.Equal(t, []string{"LONDON_hourly_report_20240501.csv"}, env.files(t, "reports"))
}

func TestReportJSON(t *testing.T) {
	env := newTestApp(t, "")
	req := londonRequest()
	req.AlertStartHour = intPtr(20)

	require.NoError(t, env.app.Report(context.Background(), ReportOptions{Request: req, JSON: true}))

	var bundle weather.ResultBundle
	require.NoError(t, json.Unmarshal(env.out.Bytes(), &bundle))
	assert.Len(t, bundle.Report, 3)
	assert.Empty(t, bundle.Alerts)
	assert.Equal(t, weather.NoChangeMessage, bundle.Change.Message)
}

func TestReportRejectsDistantDate(t *testing.T) {
	env := newTestApp(t, "")
	req := londonRequest()
	req.Date = req.Date.AddDays(10)

	err := env.app.Report(context.Background(), ReportOptions{Request: req})
	assert.ErrorIs(t, err, weather.ErrInvalidQuery)
	assert.Empty(t, env.files(t, "raw"))
}

func TestExportDefaultPaths(t *testing.T) {
	env := newTestApp(t, "")

	require.NoError(t, env.app.Export(context.Background(), ExportOptions{Request: londonRequest(), Width: 640, Height: 360}))

	csvPath := filepath.Join(env.dir, "exports", "LONDON_20240501.csv")
	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 25)
	assert.Equal(t, weather.ReportColumns(weather.Celsius), records[0])
	assert.Equal(t, []string{"2024-05-01 03:00", "25", "12", "60", "0.2"}, records[4], "missing humidity is forward-filled")

	info, err := os.Stat(filepath.Join(env.dir, "exports", "LONDON_20240501.png"))
	require.NoError(t, err)
	assert.Positive(t, info.Size())
	assert.Contains(t, env.out.String(), "LONDON_20240501.png")
}

func TestExportCSVOnly(t *testing.T) {
	env := newTestApp(t, "")
	path := filepath.Join(env.dir, "custom", "out.csv")

	req := londonRequest()
	req.Unit = weather.Fahrenheit
	require.NoError(t, env.app.Export(context.Background(), ExportOptions{Request: req, CSVPath: path}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Time,Temp (°F),"))
	assert.Contains(t, string(data), "2024-05-01 14:00,95,")
	assert.Empty(t, env.files(t, "exports"))
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()

	ok := filepath.Join(dir, "ok.txt")
	require.NoError(t, writeFile(ok, func(w io.Writer) error {
		_, err := io.WriteString(w, "done")
		return err
	}))
	data, err := os.ReadFile(ok)
	require.NoError(t, err)
	assert.Equal(t, "done", string(data))

	broken := filepath.Join(dir, "broken.png")
	err = writeFile(broken, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return errors.New("render failed")
	})
	assert.ErrorContains(t, err, "render failed")
	assert.NoFileExists(t, broken)
}

func TestShowListsSnapshots(t *testing.T) {
	env := newTestApp(t, "")
	require.NoError(t, env.app.Report(context.Background(), ReportOptions{Request: londonRequest()}))
	env.out.Reset()

	require.NoError(t, env.app.Show(context.Background(), ShowOptions{Limit: 10}))

	out := env.out.String()
	assert.Contains(t, out, "hourly_report")
	assert.Contains(t, out, "LONDON_raw_20240501_120000.csv")
	assert.Equal(t, 4, strings.Count(out, "\n"), "header plus three snapshots")
}

func TestShowAlertsNeedsDatabaseBackend(t *testing.T) {
	env := newTestApp(t, "")
	assert.Error(t, env.app.Show(context.Background(), ShowOptions{Limit: 10, Alerts: true}))
}

func TestBackfillDryRun(t *testing.T) {
	env := newTestApp(t, "")
	day := weather.DateOf(testNow)

	err := env.app.Backfill(context.Background(), BackfillOptions{
		From:      day.AddDays(-1),
		To:        day,
		Locations: []string{"london", "tokyo"},
		Unit:      weather.Celsius,
		DryRun:    true,
	})
	require.NoError(t, err)
	assert.Contains(t, env.out.String(), "processed 4, failed 0")
	assert.Empty(t, env.files(t, "raw"))
}

func TestBackfillCountsFailures(t *testing.T) {
	env := newTestApp(t, "")
	day := weather.DateOf(testNow)

	err := env.app.Backfill(context.Background(), BackfillOptions{
		From:      day,
		To:        day,
		Locations: []string{"london", "atlantis"},
		Unit:      weather.Celsius,
	})
	require.Error(t, err)
	assert.Contains(t, env.out.String(), "processed 1, failed 1")
	assert.Len(t, env.files(t, "raw"), 1)
}

func TestBackfillRejectsReversedRange(t *testing.T) {
	env := newTestApp(t, "")
	day := weather.DateOf(testNow)
	assert.Error(t, env.app.Backfill(context.Background(), BackfillOptions{From: day, To: day.AddDays(-1)}))
}

func TestSimulateAlertRequiresAlerting(t *testing.T) {
	env := newTestApp(t, "")
	err := env.app.SimulateAlert(context.Background(), SimulateOptions{Query: config.WatchQuery{Location: "london"}})
	assert.EqualError(t, err, "alerting is not enabled")
}

func TestSimulateAlertSendsTelegram(t *testing.T) {
	var texts []string
	tg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		texts = append(texts, payload["text"])
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer tg.Close()

	env := newTestApp(t, fmt.Sprintf(`
alerting:
  enabled: true
  channels: [telegram]
  telegram:
    enabled: true
    bot_token: token
    chat_id: chat
    api_base: %s
`, tg.URL))

	err := env.app.SimulateAlert(context.Background(), SimulateOptions{
		Query: config.WatchQuery{Location: "berlin", MaxWind: weather.Float(50)},
		Spike: weather.Observation{WindSpeedKmh: weather.Float(72)},
	})
	require.NoError(t, err)

	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "[Weather Alert] BERLIN 2024-05-01")
	assert.Contains(t, texts[0], "Wind 72.0 km/h at 2024-05-01 12:00")
	assert.Contains(t, env.out.String(), "sent 1 alert(s) for BERLIN")
}

func TestLocations(t *testing.T) {
	env := newTestApp(t, "")
	require.NoError(t, env.app.Locations())

	lines := strings.Split(strings.TrimSpace(env.out.String()), "\n")
	require.Len(t, lines, 9)
	assert.True(t, strings.HasPrefix(lines[1], "BERLIN"))
	assert.Contains(t, lines[1], "52.5200")
}

func intPtr(v int) *int { return &v }
