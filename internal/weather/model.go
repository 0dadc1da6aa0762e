package weather

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrUnknownLocation indicates the requested location is not in the registry.
	ErrUnknownLocation = errors.New("unknown location")
	// ErrInvalidQuery indicates a malformed query request.
	ErrInvalidQuery = errors.New("invalid query")
)

// Metric identifies one observed quantity.
type Metric string

const (
	MetricNone          Metric = ""
	MetricTemperature   Metric = "temperature"
	MetricWindSpeed     Metric = "wind_speed"
	MetricHumidity      Metric = "humidity"
	MetricPrecipitation Metric = "precipitation"
)

// AllMetrics lists every metric in report column order.
var AllMetrics = []Metric{MetricTemperature, MetricWindSpeed, MetricHumidity, MetricPrecipitation}

// ParseMetric accepts the canonical metric names used by the CLI and HTTP API.
func ParseMetric(s string) (Metric, error) {
	switch Metric(strings.ToLower(strings.TrimSpace(s))) {
	case MetricTemperature:
		return MetricTemperature, nil
	case MetricWindSpeed:
		return MetricWindSpeed, nil
	case MetricHumidity:
		return MetricHumidity, nil
	case MetricPrecipitation:
		return MetricPrecipitation, nil
	}
	return MetricNone, fmt.Errorf("%w: unknown metric %q", ErrInvalidQuery, s)
}

// MetricsAll selects every metric.
const MetricsAll = "all"

// ParseMetrics parses a metric selection. "all" anywhere in names selects
// every metric and yields nil; duplicates are dropped and blanks ignored.
func ParseMetrics(names []string) ([]Metric, error) {
	var out []Metric
	seen := make(map[Metric]bool)
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if strings.EqualFold(name, MetricsAll) {
			return nil, nil
		}
		m, err := ParseMetric(name)
		if err != nil {
			return nil, err
		}
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out, nil
}

// Label returns the human readable metric name.
func (m Metric) Label() string {
	switch m {
	case MetricTemperature:
		return "Temperature"
	case MetricWindSpeed:
		return "Wind Speed"
	case MetricHumidity:
		return "Humidity"
	case MetricPrecipitation:
		return "Precipitation"
	default:
		return "None"
	}
}

// Observation is one hourly sample. A nil field means the value is missing.
type Observation struct {
	Time            time.Time `json:"time"`
	TemperatureC    *float64  `json:"temperature_c"`
	WindSpeedKmh    *float64  `json:"wind_speed_kmh"`
	HumidityPct     *float64  `json:"humidity_pct"`
	PrecipitationMm *float64  `json:"precipitation_mm"`
}

// Value returns the metric value and whether it is present.
func (o Observation) Value(m Metric) (float64, bool) {
	p := o.field(m)
	if p == nil {
		return 0, false
	}
	return *p, true
}

func (o Observation) field(m Metric) *float64 {
	switch m {
	case MetricTemperature:
		return o.TemperatureC
	case MetricWindSpeed:
		return o.WindSpeedKmh
	case MetricHumidity:
		return o.HumidityPct
	case MetricPrecipitation:
		return o.PrecipitationMm
	default:
		return nil
	}
}

// with returns a copy of o with the metric field replaced.
func (o Observation) with(m Metric, v *float64) Observation {
	switch m {
	case MetricTemperature:
		o.TemperatureC = v
	case MetricWindSpeed:
		o.WindSpeedKmh = v
	case MetricHumidity:
		o.HumidityPct = v
	case MetricPrecipitation:
		o.PrecipitationMm = v
	}
	return o
}

// Float returns a pointer to v, handy for building observations.
func Float(v float64) *float64 {
	return &v
}

// Series is an ordered run of observations for one location. Stages never
// mutate a series; they derive a new one.
type Series struct {
	Location     string         `json:"location"`
	Timezone     *time.Location `json:"-"`
	Observations []Observation  `json:"observations"`
}

// Len reports the number of observations.
func (s Series) Len() int {
	return len(s.Observations)
}

// Zone returns the series timezone, defaulting to UTC.
func (s Series) Zone() *time.Location {
	if s.Timezone == nil {
		return time.UTC
	}
	return s.Timezone
}

func (s Series) derive(obs []Observation) Series {
	return Series{Location: s.Location, Timezone: s.Timezone, Observations: obs}
}

// Thresholds holds the optional alert bounds. Temperatures are in Celsius.
type Thresholds struct {
	MaxTemp       *float64 `json:"max_temp,omitempty"`
	MinTemp       *float64 `json:"min_temp,omitempty"`
	MaxWind       *float64 `json:"max_wind,omitempty"`
	MinHumidity   *float64 `json:"min_humidity,omitempty"`
	Precipitation *float64 `json:"precip_threshold,omitempty"`
}

// QueryRequest captures one pipeline invocation.
type QueryRequest struct {
	Location       string          `json:"location"`
	Date           Date            `json:"date"`
	Unit           TemperatureUnit `json:"unit"`
	AlertStartHour *int            `json:"alert_start_hour,omitempty"`
	Thresholds     Thresholds      `json:"thresholds"`
	Metrics        []Metric        `json:"metrics,omitempty"`
}

// Validate checks the request fields that do not depend on the registry or clock.
func (q QueryRequest) Validate() error {
	if strings.TrimSpace(q.Location) == "" {
		return fmt.Errorf("%w: location is required", ErrInvalidQuery)
	}
	if q.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidQuery)
	}
	if q.Unit != Celsius && q.Unit != Fahrenheit {
		return fmt.Errorf("%w: unsupported temperature unit %q", ErrInvalidQuery, q.Unit)
	}
	if h := q.AlertStartHour; h != nil && (*h < 0 || *h > 23) {
		return fmt.Errorf("%w: alert start hour must be within 0-23, got %d", ErrInvalidQuery, *h)
	}
	for _, m := range q.Metrics {
		if _, err := ParseMetric(string(m)); err != nil {
			return err
		}
	}
	return nil
}

// SelectedMetrics returns the requested metrics, or all of them when none were chosen.
func (q QueryRequest) SelectedMetrics() []Metric {
	if len(q.Metrics) == 0 {
		return AllMetrics
	}
	out := make([]Metric, 0, len(q.Metrics))
	seen := make(map[Metric]bool, len(q.Metrics))
	for _, m := range q.Metrics {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// ThresholdKind names which threshold an alert violated.
type ThresholdKind string

const (
	KindMaxTemp       ThresholdKind = "max_temp"
	KindMinTemp       ThresholdKind = "min_temp"
	KindMaxWind       ThresholdKind = "max_wind"
	KindMinHumidity   ThresholdKind = "min_humidity"
	KindPrecipitation ThresholdKind = "precip_threshold"
)

// AlertEvent is one threshold violation.
type AlertEvent struct {
	Kind      ThresholdKind `json:"kind"`
	Metric    Metric        `json:"metric"`
	Value     float64       `json:"observed_value"`
	Threshold float64       `json:"threshold"`
	Time      time.Time     `json:"timestamp"`
	Message   string        `json:"message"`
}

// ChangeSummary describes the largest change within the trailing hour.
type ChangeSummary struct {
	Metric    Metric  `json:"metric"`
	Magnitude float64 `json:"magnitude"`
	Message   string  `json:"message"`
}

// ReportRow is one formatted hourly row; Temperature is in the report unit.
type ReportRow struct {
	Time          string   `json:"time"`
	Temperature   *float64 `json:"temperature"`
	WindSpeed     *float64 `json:"wind_speed"`
	Humidity      *float64 `json:"humidity"`
	Precipitation *float64 `json:"precipitation"`
}

// ResultBundle is everything a single query produces.
type ResultBundle struct {
	Location string           `json:"location"`
	Date     Date             `json:"date"`
	Timezone string           `json:"timezone"`
	Unit     TemperatureUnit  `json:"unit"`
	Window   Series           `json:"window"`
	Alerts   []AlertEvent     `json:"alerts"`
	Change   ChangeSummary    `json:"change"`
	Columns  []string         `json:"columns"`
	Report   []ReportRow      `json:"report"`
	Overview []MetricOverview `json:"overview"`
}
