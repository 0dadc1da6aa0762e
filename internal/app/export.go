package app

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"weather-ready/internal/storage"
	"weather-ready/internal/weather"
)

// Export runs one query and writes the hourly report as CSV and/or a PNG
// chart. With neither path given both files go to the export directory.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	bundle, err := a.query(ctx, opts.Request)
	if err != nil {
		return err
	}

	if opts.CSVPath == "" && opts.PNGPath == "" {
		base := filepath.Join(a.Config.Export.Dir, fmt.Sprintf("%s_%s", storage.FileSafe(bundle.Location), bundle.Date.Compact()))
		opts.CSVPath = base + ".csv"
		opts.PNGPath = base + ".png"
	}

	if bundle.Window.Len() == 0 {
		a.Logger.Info().Str("location", bundle.Location).Msg("no observations in the export window")
	}

	if opts.CSVPath != "" {
		if err := writeReportCSV(opts.CSVPath, bundle); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "wrote %s\n", opts.CSVPath)
	}

	if opts.PNGPath != "" {
		if bundle.Window.Len() < 2 {
			a.Logger.Warn().Int("points", bundle.Window.Len()).Msg("not enough observations for a chart; skipping png")
			return nil
		}
		width, height := a.Config.ResolveChartSize(opts.Width, opts.Height)
		if err := writeReportPNG(opts.PNGPath, bundle, opts.Request.SelectedMetrics(), width, height); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "wrote %s\n", opts.PNGPath)
	}

	return nil
}

func writeReportCSV(path string, b weather.ResultBundle) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	return writeFile(path, func(w io.Writer) error {
		writer := csv.NewWriter(w)
		if err := writer.Write(b.Columns); err != nil {
			return err
		}
		for _, row := range b.Report {
			if err := writer.Write(row.Record()); err != nil {
				return err
			}
		}
		writer.Flush()
		return writer.Error()
	})
}

// chartSeries collects the plottable values of m; missing values are skipped.
func chartSeries(s weather.Series, m weather.Metric, unit weather.TemperatureUnit) ([]time.Time, []float64) {
	zone := s.Zone()
	xs := make([]time.Time, 0, s.Len())
	ys := make([]float64, 0, s.Len())
	for _, o := range s.Observations {
		v, ok := o.Value(m)
		if !ok {
			continue
		}
		if m == weather.MetricTemperature {
			v = weather.ConvertTemperature(v, unit)
		}
		xs = append(xs, o.Time.In(zone))
		ys = append(ys, v)
	}
	return xs, ys
}

func writeReportPNG(path string, b weather.ResultBundle, metrics []weather.Metric, width, height int) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.1f")
	}

	series := make([]chart.Series, 0, len(metrics))
	for _, m := range metrics {
		xs, ys := chartSeries(b.Window, m, b.Unit)
		if len(xs) < 2 {
			continue
		}
		ts := chart.TimeSeries{
			Name:    seriesName(m, b.Unit),
			XValues: xs,
			YValues: ys,
		}
		if m == weather.MetricHumidity || m == weather.MetricPrecipitation {
			ts.YAxis = chart.YAxisSecondary
		}
		series = append(series, ts)
	}
	if len(series) == 0 {
		return fmt.Errorf("no chartable values for %s", b.Location)
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("%s %s", b.Location, b.Date),
		Width:  width,
		Height: height,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeHourValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Temp / Wind",
			ValueFormatter: valueFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Humidity / Precip",
			ValueFormatter: valueFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return writeFile(path, func(w io.Writer) error {
		return graph.Render(chart.PNG, w)
	})
}

// writeFile creates path, runs write against it and closes it. A failed write
// removes the partial file.
func writeFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

func seriesName(m weather.Metric, unit weather.TemperatureUnit) string {
	switch m {
	case weather.MetricTemperature:
		return "Temp (" + unit.Symbol() + ")"
	case weather.MetricWindSpeed:
		return "Wind (km/h)"
	case weather.MetricHumidity:
		return "Humidity (%)"
	case weather.MetricPrecipitation:
		return "Precip (mm)"
	default:
		return m.Label()
	}
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
