package weather

// Aggregate names how an overview value was computed.
type Aggregate string

const (
	AggregateMean Aggregate = "mean"
	AggregateSum  Aggregate = "sum"
)

// Condition is the coarse label attached to an overview card.
type Condition string

const (
	ConditionNone Condition = ""
	ConditionHot  Condition = "hot"
	ConditionCold Condition = "cold"
	ConditionMild Condition = "mild"
	ConditionWet  Condition = "wet"
	ConditionDry  Condition = "dry"
)

const (
	hotAboveC    = 30.0
	coldBelowC   = 10.0
	wetAboveMean = 1.0
)

// MetricOverview summarises one metric over the window.
type MetricOverview struct {
	Metric    Metric    `json:"metric"`
	Label     string    `json:"label"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Aggregate Aggregate `json:"aggregate"`
	Condition Condition `json:"condition,omitempty"`
	Samples   int       `json:"samples"`
}

// Overview builds one card per selected metric that has at least one value.
// Temperature, wind and humidity are averaged; precipitation is summed.
func Overview(s Series, metrics []Metric, unit TemperatureUnit) []MetricOverview {
	out := make([]MetricOverview, 0, len(metrics))
	for _, m := range metrics {
		var sum float64
		var n int
		for _, o := range s.Observations {
			if v, ok := o.Value(m); ok {
				sum += v
				n++
			}
		}
		if n == 0 {
			continue
		}
		mean := sum / float64(n)

		card := MetricOverview{Metric: m, Label: m.Label(), Aggregate: AggregateMean, Samples: n}
		switch m {
		case MetricTemperature:
			card.Value = ConvertTemperature(mean, unit)
			card.Unit = unit.Symbol()
			switch {
			case mean > hotAboveC:
				card.Condition = ConditionHot
			case mean < coldBelowC:
				card.Condition = ConditionCold
			default:
				card.Condition = ConditionMild
			}
		case MetricWindSpeed:
			card.Value = mean
			card.Unit = "km/h"
		case MetricHumidity:
			card.Value = mean
			card.Unit = "%"
		case MetricPrecipitation:
			card.Value = sum
			card.Unit = "mm"
			card.Aggregate = AggregateSum
			card.Condition = ConditionDry
			if mean > wetAboveMean {
				card.Condition = ConditionWet
			}
		}
		out = append(out, card)
	}
	return out
}
