package storage

import (
	"strconv"
	"time"

	"weather-ready/internal/weather"
)

// SnapshotKind identifies which pipeline stage a snapshot captured.
type SnapshotKind string

const (
	KindRaw     SnapshotKind = "raw"
	KindCleaned SnapshotKind = "cleaned"
	KindReport  SnapshotKind = "hourly_report"
)

const (
	timestampKeyLayout = "20060102_150405"
	dateKeyLayout      = "20060102"
)

// SnapshotRef describes one persisted snapshot.
type SnapshotRef struct {
	ID        string
	Kind      SnapshotKind
	Location  string
	Key       string
	Rows      int
	CreatedAt time.Time
}

// AlertRecord captures a dispatched alert for de-duplication and auditing.
type AlertRecord struct {
	ID         int64
	Location   string
	Kind       weather.ThresholdKind
	ObservedAt time.Time
	Value      float64
	Threshold  float64
	Channels   []string
	CreatedAt  time.Time
}

// snapshotKey returns the (location, write time) key component for kind.
func snapshotKey(kind SnapshotKind, at time.Time) string {
	if kind == KindReport {
		return at.Format(dateKeyLayout)
	}
	return at.Format(timestampKeyLayout)
}

// seriesPayload is the stored form of a raw or cleaned series.
type seriesPayload struct {
	Location     string                `json:"location"`
	Timezone     string                `json:"timezone"`
	Observations []weather.Observation `json:"observations"`
}

func newSeriesPayload(s weather.Series) seriesPayload {
	return seriesPayload{Location: s.Location, Timezone: s.Zone().String(), Observations: s.Observations}
}

// reportPayload is the stored form of a formatted report.
type reportPayload struct {
	Location string                  `json:"location"`
	Unit     weather.TemperatureUnit `json:"unit"`
	Columns  []string                `json:"columns"`
	Rows     []weather.ReportRow     `json:"rows"`
}

var seriesHeader = []string{"Time", "temperature", "wind_speed", "humidity", "precipitation"}

func seriesRecords(s weather.Series) [][]string {
	zone := s.Zone()
	out := make([][]string, 0, len(s.Observations))
	for _, o := range s.Observations {
		out = append(out, []string{
			o.Time.In(zone).Format(time.RFC3339),
			formatValue(o.TemperatureC),
			formatValue(o.WindSpeedKmh),
			formatValue(o.HumidityPct),
			formatValue(o.PrecipitationMm),
		})
	}
	return out
}

func formatValue(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
