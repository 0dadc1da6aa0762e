package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"weather-ready/internal/weather"
)

// queryFlags are shared by the commands that run a single query.
type queryFlags struct {
	location    string
	date        string
	unit        string
	startHour   int
	maxTemp     float64
	minTemp     float64
	maxWind     float64
	minHumidity float64
	precip      float64
	metrics     []string
}

func (q *queryFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&q.location, "location", "l", "", "Location name, see the locations command")
	fs.StringVarP(&q.date, "date", "d", "", "Target day YYYY-MM-DD (defaults to today)")
	fs.StringVarP(&q.unit, "unit", "u", "C", "Temperature unit: C or F")
	fs.IntVar(&q.startHour, "start-hour", 0, "Only keep hours after this one (0-23)")
	fs.Float64Var(&q.maxTemp, "max-temp", 0, "Alert when temperature exceeds this value (°C)")
	fs.Float64Var(&q.minTemp, "min-temp", 0, "Alert when temperature drops below this value (°C)")
	fs.Float64Var(&q.maxWind, "max-wind", 0, "Alert when wind speed exceeds this value (km/h)")
	fs.Float64Var(&q.minHumidity, "min-humidity", 0, "Alert when humidity drops below this value (%)")
	fs.Float64Var(&q.precip, "precip-threshold", 0, "Alert when precipitation exceeds this value (mm)")
	fs.StringSliceVar(&q.metrics, "metrics", nil, "Metrics for the overview and chart: all or any of temperature,wind_speed,humidity,precipitation")
}

// request builds the query. Thresholds and the start hour are only set when
// their flag was given explicitly.
func (q *queryFlags) request(cmd *cobra.Command, today weather.Date) (weather.QueryRequest, error) {
	if strings.TrimSpace(q.location) == "" {
		return weather.QueryRequest{}, fmt.Errorf("--location must be provided")
	}

	req := weather.QueryRequest{Location: q.location, Date: today}
	if q.date != "" {
		d, err := weather.ParseDate(q.date)
		if err != nil {
			return weather.QueryRequest{}, err
		}
		req.Date = d
	}

	unit, err := weather.ParseUnit(q.unit)
	if err != nil {
		return weather.QueryRequest{}, err
	}
	req.Unit = unit

	flags := cmd.Flags()
	if flags.Changed("start-hour") {
		h := q.startHour
		req.AlertStartHour = &h
	}
	setIfChanged(flags, "max-temp", q.maxTemp, &req.Thresholds.MaxTemp)
	setIfChanged(flags, "min-temp", q.minTemp, &req.Thresholds.MinTemp)
	setIfChanged(flags, "max-wind", q.maxWind, &req.Thresholds.MaxWind)
	setIfChanged(flags, "min-humidity", q.minHumidity, &req.Thresholds.MinHumidity)
	setIfChanged(flags, "precip-threshold", q.precip, &req.Thresholds.Precipitation)

	metrics, err := weather.ParseMetrics(q.metrics)
	if err != nil {
		return weather.QueryRequest{}, err
	}
	req.Metrics = metrics

	if err := req.Validate(); err != nil {
		return weather.QueryRequest{}, err
	}
	return req, nil
}

func setIfChanged(flags *pflag.FlagSet, name string, v float64, dst **float64) {
	if flags.Changed(name) {
		*dst = weather.Float(v)
	}
}
