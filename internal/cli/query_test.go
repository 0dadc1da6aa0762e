package cli

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-ready/internal/weather"
)

func parseQuery(t *testing.T, args ...string) (weather.QueryRequest, error) {
	t.Helper()
	var q queryFlags
	cmd := &cobra.Command{Use: "test"}
	q.register(cmd.Flags())
	require.NoError(t, cmd.Flags().Parse(args))
	return q.request(cmd, weather.Date{Year: 2024, Month: 5, Day: 1})
}

func TestQueryFlagsOnlySetChangedThresholds(t *testing.T) {
	req, err := parseQuery(t, "--location", "london", "--max-wind", "0", "--start-hour", "20", "--unit", "f")
	require.NoError(t, err)

	assert.Equal(t, "london", req.Location)
	assert.Equal(t, "2024-05-01", req.Date.String())
	assert.Equal(t, weather.Fahrenheit, req.Unit)
	require.NotNil(t, req.AlertStartHour)
	assert.Equal(t, 20, *req.AlertStartHour)
	require.NotNil(t, req.Thresholds.MaxWind)
	assert.Zero(t, *req.Thresholds.MaxWind)
	assert.Nil(t, req.Thresholds.MaxTemp)
	assert.Nil(t, req.Thresholds.Precipitation)
}

func TestQueryFlagsMetrics(t *testing.T) {
	req, err := parseQuery(t, "--location", "london", "--metrics", "all")
	require.NoError(t, err)
	assert.Nil(t, req.Metrics)
	assert.Equal(t, weather.AllMetrics, req.SelectedMetrics())

	req, err = parseQuery(t, "--location", "london", "--metrics", "humidity,wind_speed,humidity")
	require.NoError(t, err)
	assert.Equal(t, []weather.Metric{weather.MetricHumidity, weather.MetricWindSpeed}, req.Metrics)

	_, err = parseQuery(t, "--location", "london", "--metrics", "pressure")
	assert.ErrorIs(t, err, weather.ErrInvalidQuery)
}

func TestQueryFlagsRequireLocation(t *testing.T) {
	_, err := parseQuery(t, "--date", "2024-05-02")
	assert.EqualError(t, err, "--location must be provided")
}
