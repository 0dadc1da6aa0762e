package weather

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// NoChangeMessage is reported when nothing moved in the trailing hour.
const NoChangeMessage = "No significant changes in last hour."

// changeMetrics is also the tie-break priority: earlier entries win ties.
var changeMetrics = []Metric{MetricTemperature, MetricWindSpeed, MetricHumidity}

// SummarizeChange finds the largest step between adjacent observations
// within [now-1h, ...] across temperature, wind speed and humidity.
func SummarizeChange(s Series, now time.Time) ChangeSummary {
	cutoff := now.Add(-time.Hour)
	recent := make([]Observation, 0, len(s.Observations))
	for _, o := range s.Observations {
		if !o.Time.Before(cutoff) {
			recent = append(recent, o)
		}
	}
	slices.SortStableFunc(recent, func(a, b Observation) int {
		return a.Time.Compare(b.Time)
	})

	best := ChangeSummary{Metric: MetricNone, Message: NoChangeMessage}
	for _, m := range changeMetrics {
		diff, ok := maxAdjacentChange(recent, m)
		if !ok || diff <= best.Magnitude {
			continue
		}
		best.Metric = m
		best.Magnitude = diff
	}

	if best.Metric == MetricNone {
		return best
	}
	best.Message = changeMessage(best.Metric, best.Magnitude)
	return best
}

// maxAdjacentChange skips pairs where either side is missing.
func maxAdjacentChange(obs []Observation, m Metric) (float64, bool) {
	var (
		maxDiff float64
		found   bool
	)
	for i := 1; i < len(obs); i++ {
		prev, okPrev := obs[i-1].Value(m)
		cur, okCur := obs[i].Value(m)
		if !okPrev || !okCur {
			continue
		}
		d := math.Abs(cur - prev)
		if !found || d > maxDiff {
			maxDiff = d
			found = true
		}
	}
	return maxDiff, found
}

func changeMessage(m Metric, magnitude float64) string {
	d := decimal.NewFromFloat(magnitude)
	switch m {
	case MetricTemperature:
		return fmt.Sprintf("Temperature changed by %s °C in last hour.", d.StringFixed(1))
	case MetricWindSpeed:
		return fmt.Sprintf("Wind Speed changed by %s km/h in last hour.", d.StringFixed(2))
	case MetricHumidity:
		return fmt.Sprintf("Humidity changed by %s%% in last hour.", d.StringFixed(2))
	default:
		return NoChangeMessage
	}
}
