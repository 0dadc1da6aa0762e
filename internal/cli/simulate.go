package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"weather-ready/internal/app"
	"weather-ready/internal/config"
	"weather-ready/internal/weather"
)

var (
	simulateQuery queryFlags
	simulateTemp  float64
	simulateWind  float64
	simulateHum   float64
	simulateRain  float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Push a synthetic reading through the alert channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		req, err := simulateQuery.request(cmd, weather.DateOf(a.Clock.Now()))
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		var spike weather.Observation
		setIfChanged(flags, "temp", simulateTemp, &spike.TemperatureC)
		setIfChanged(flags, "wind", simulateWind, &spike.WindSpeedKmh)
		setIfChanged(flags, "humidity", simulateHum, &spike.HumidityPct)
		setIfChanged(flags, "precip", simulateRain, &spike.PrecipitationMm)
		if spike.TemperatureC == nil && spike.WindSpeedKmh == nil && spike.HumidityPct == nil && spike.PrecipitationMm == nil {
			return errors.New("at least one of --temp, --wind, --humidity, --precip must be provided")
		}

		query := config.WatchQuery{
			Location:       req.Location,
			Unit:           string(req.Unit),
			AlertStartHour: req.AlertStartHour,
			MaxTemp:        req.Thresholds.MaxTemp,
			MinTemp:        req.Thresholds.MinTemp,
			MaxWind:        req.Thresholds.MaxWind,
			MinHumidity:    req.Thresholds.MinHumidity,
			Precipitation:  req.Thresholds.Precipitation,
		}
		return a.SimulateAlert(cmd.Context(), app.SimulateOptions{Query: query, Spike: spike})
	},
}

func init() {
	simulateQuery.register(simulateCmd.Flags())
	simulateCmd.Flags().Float64Var(&simulateTemp, "temp", 0, "Temperature at the current hour (°C)")
	simulateCmd.Flags().Float64Var(&simulateWind, "wind", 0, "Wind speed at the current hour (km/h)")
	simulateCmd.Flags().Float64Var(&simulateHum, "humidity", 0, "Humidity at the current hour (%)")
	simulateCmd.Flags().Float64Var(&simulateRain, "precip", 0, "Precipitation at the current hour (mm)")
}
