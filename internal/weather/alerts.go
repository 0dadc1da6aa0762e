package weather

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const alertTimeLayout = "2006-01-02 15:04"

type thresholdRule struct {
	kind     ThresholdKind
	metric   Metric
	limit    func(Thresholds) *float64
	violates func(value, limit float64) bool
}

func above(v, limit float64) bool { return v > limit }
func below(v, limit float64) bool { return v < limit }

// thresholdRules is evaluated in order; each rule scans the whole series
// before the next one starts.
var thresholdRules = []thresholdRule{
	{kind: KindMaxTemp, metric: MetricTemperature, limit: func(t Thresholds) *float64 { return t.MaxTemp }, violates: above},
	{kind: KindMinTemp, metric: MetricTemperature, limit: func(t Thresholds) *float64 { return t.MinTemp }, violates: below},
	{kind: KindMaxWind, metric: MetricWindSpeed, limit: func(t Thresholds) *float64 { return t.MaxWind }, violates: above},
	{kind: KindMinHumidity, metric: MetricHumidity, limit: func(t Thresholds) *float64 { return t.MinHumidity }, violates: below},
	{kind: KindPrecipitation, metric: MetricPrecipitation, limit: func(t Thresholds) *float64 { return t.Precipitation }, violates: above},
}

// EvaluateAlerts emits one event per observation violating each set threshold.
// Events are grouped by threshold (max temp, min temp, max wind, min humidity,
// precipitation) and ordered by time within each group.
func EvaluateAlerts(s Series, t Thresholds) []AlertEvent {
	zone := s.Zone()
	events := make([]AlertEvent, 0)
	for _, rule := range thresholdRules {
		limit := rule.limit(t)
		if limit == nil {
			continue
		}
		for _, o := range s.Observations {
			v, ok := o.Value(rule.metric)
			if !ok || !rule.violates(v, *limit) {
				continue
			}
			events = append(events, AlertEvent{
				Kind:      rule.kind,
				Metric:    rule.metric,
				Value:     v,
				Threshold: *limit,
				Time:      o.Time,
				Message:   alertMessage(rule.metric, v, o.Time.In(zone)),
			})
		}
	}
	return events
}

func alertMessage(m Metric, v float64, at time.Time) string {
	value := decimal.NewFromFloat(v).StringFixed(1)
	when := at.Format(alertTimeLayout)
	switch m {
	case MetricTemperature:
		return fmt.Sprintf("Temp %s°C at %s", value, when)
	case MetricWindSpeed:
		return fmt.Sprintf("Wind %s km/h at %s", value, when)
	case MetricHumidity:
		return fmt.Sprintf("Humidity %s%% at %s", value, when)
	case MetricPrecipitation:
		return fmt.Sprintf("Precip %s mm at %s", value, when)
	default:
		return fmt.Sprintf("%s %s at %s", m.Label(), value, when)
	}
}
