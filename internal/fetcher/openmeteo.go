package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"weather-ready/internal/logging"
	"weather-ready/internal/weather"
)

const (
	forecastPath     = "/forecast"
	hourlyVariables  = "temperature_2m,wind_speed_10m,relative_humidity_2m,precipitation"
	feedTimeLayout   = "2006-01-02T15:04"
	defaultUserAgent = "weatherready/1.0"
)

// OpenMeteoOptions parameterise the Open-Meteo fetcher.
type OpenMeteoOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// OpenMeteo fetches hourly forecasts from the Open-Meteo API.
type OpenMeteo struct {
	opts    OpenMeteoOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewOpenMeteo constructs an Open-Meteo feed.
func NewOpenMeteo(opts OpenMeteoOptions, logger zerolog.Logger) *OpenMeteo {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.open-meteo.com/v1"
	}

	return &OpenMeteo{
		opts:    opts,
		logger:  logging.Component(logger, "open_meteo"),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Fetch requests the hourly series covering the day at dayOffset from today.
func (o *OpenMeteo) Fetch(ctx context.Context, loc weather.Location, dayOffset int) (weather.Series, error) {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	params.Set("hourly", hourlyVariables)
	params.Set("timezone", "auto")
	past, forecast := dayRange(dayOffset)
	params.Set("past_days", strconv.Itoa(past))
	params.Set("forecast_days", strconv.Itoa(forecast))

	endpoint := o.baseURL + forecastPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return weather.Series{}, fmt.Errorf("%w: build request: %v", ErrFeed, err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(o.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", defaultUserAgent)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return weather.Series{}, fmt.Errorf("%w: %v", ErrFeed, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return weather.Series{}, fmt.Errorf("%w: read body: %v", ErrFeed, err)
	}

	if resp.StatusCode != http.StatusOK {
		return weather.Series{}, parseHTTPError(resp.StatusCode, payload)
	}

	var fr forecastResponse
	if err := json.Unmarshal(payload, &fr); err != nil {
		return weather.Series{}, fmt.Errorf("%w: decode forecast: %v", ErrFeed, err)
	}

	series, err := fr.series(loc.Name)
	if err != nil {
		return weather.Series{}, err
	}

	o.logger.Debug().
		Str("location", loc.Name).
		Int("day_offset", dayOffset).
		Str("timezone", series.Zone().String()).
		Int("observations", series.Len()).
		Msg("forecast fetched")

	return series, nil
}

// dayRange converts a day offset from the caller's today into Open-Meteo
// past_days/forecast_days. The feed counts days from the location's today,
// which can be one day either side of the caller's, so both ends get one
// extra day; Window drops the surplus.
func dayRange(dayOffset int) (past, forecast int) {
	if dayOffset < 0 {
		return -dayOffset + 1, 1
	}
	return 1, dayOffset + 2
}

type forecastResponse struct {
	Timezone             string       `json:"timezone"`
	TimezoneAbbreviation string       `json:"timezone_abbreviation"`
	UTCOffsetSeconds     int          `json:"utc_offset_seconds"`
	Hourly               *hourlyBlock `json:"hourly"`
}

type hourlyBlock struct {
	Time             []string   `json:"time"`
	Temperature2m    []*float64 `json:"temperature_2m"`
	WindSpeed10m     []*float64 `json:"wind_speed_10m"`
	RelativeHumidity []*float64 `json:"relative_humidity_2m"`
	Precipitation    []*float64 `json:"precipitation"`
}

func (fr forecastResponse) zone() *time.Location {
	if fr.Timezone != "" {
		if loc, err := time.LoadLocation(fr.Timezone); err == nil {
			return loc
		}
	}
	name := fr.TimezoneAbbreviation
	if name == "" {
		name = fr.Timezone
	}
	return time.FixedZone(name, fr.UTCOffsetSeconds)
}

// series converts the hourly block. Every requested column must be present
// and aligned with time; individual entries may be null.
func (fr forecastResponse) series(location string) (weather.Series, error) {
	h := fr.Hourly
	if h == nil {
		return weather.Series{}, fmt.Errorf("%w: response has no hourly block", ErrFeed)
	}
	if h.Time == nil {
		return weather.Series{}, fmt.Errorf("%w: hourly block has no time column", ErrFeed)
	}
	n := len(h.Time)
	columns := []struct {
		name   string
		values []*float64
	}{
		{"temperature_2m", h.Temperature2m},
		{"wind_speed_10m", h.WindSpeed10m},
		{"relative_humidity_2m", h.RelativeHumidity},
		{"precipitation", h.Precipitation},
	}
	for _, col := range columns {
		if col.values == nil {
			return weather.Series{}, fmt.Errorf("%w: hourly block has no %s column", ErrFeed, col.name)
		}
		if len(col.values) != n {
			return weather.Series{}, fmt.Errorf("%w: hourly %s has %d values, expected %d", ErrFeed, col.name, len(col.values), n)
		}
	}

	zone := fr.zone()
	obs := make([]weather.Observation, 0, n)
	for i, raw := range h.Time {
		ts, err := time.ParseInLocation(feedTimeLayout, raw, zone)
		if err != nil {
			return weather.Series{}, fmt.Errorf("%w: parse time %q: %v", ErrFeed, raw, err)
		}
		obs = append(obs, weather.Observation{
			Time:            ts,
			TemperatureC:    h.Temperature2m[i],
			WindSpeedKmh:    h.WindSpeed10m[i],
			HumidityPct:     h.RelativeHumidity[i],
			PrecipitationMm: h.Precipitation[i],
		})
	}

	return weather.Series{Location: location, Timezone: zone, Observations: obs}, nil
}

type errorResponse struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.Reason != "" {
		return fmt.Errorf("%w: open-meteo error (%d): %s", ErrFeed, status, apiErr.Reason)
	}
	if len(payload) > 0 {
		return fmt.Errorf("%w: open-meteo error (%d): %s", ErrFeed, status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("%w: open-meteo error (%d)", ErrFeed, status)
}

var _ Feed = (*OpenMeteo)(nil)
