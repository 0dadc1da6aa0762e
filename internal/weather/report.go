package weather

import (
	"github.com/shopspring/decimal"
)

// ReportTimeLayout formats the Time column of report rows.
const ReportTimeLayout = "2006-01-02 15:04"

// ReportColumns returns the fixed report header for unit.
func ReportColumns(unit TemperatureUnit) []string {
	return []string{"Time", "Temp (" + unit.Symbol() + ")", "Wind (km/h)", "Humidity (%)", "Precip (mm)"}
}

// BuildReport turns a windowed series into report rows, one per observation.
// It performs no I/O.
func BuildReport(s Series, unit TemperatureUnit) []ReportRow {
	zone := s.Zone()
	rows := make([]ReportRow, 0, len(s.Observations))
	for _, o := range s.Observations {
		row := ReportRow{
			Time:          o.Time.In(zone).Format(ReportTimeLayout),
			WindSpeed:     o.WindSpeedKmh,
			Humidity:      o.HumidityPct,
			Precipitation: o.PrecipitationMm,
		}
		if o.TemperatureC != nil {
			row.Temperature = Float(ConvertTemperature(*o.TemperatureC, unit))
		}
		rows = append(rows, row)
	}
	return rows
}

// Record renders the row as CSV/table cells in column order.
// Missing values render as empty cells.
func (r ReportRow) Record() []string {
	return []string{
		r.Time,
		formatCell(r.Temperature),
		formatCell(r.WindSpeed),
		formatCell(r.Humidity),
		formatCell(r.Precipitation),
	}
}

func formatCell(v *float64) string {
	if v == nil {
		return ""
	}
	return decimal.NewFromFloat(*v).Round(2).String()
}
