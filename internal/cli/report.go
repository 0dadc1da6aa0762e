package cli

import (
	"github.com/spf13/cobra"

	"weather-ready/internal/app"
	"weather-ready/internal/weather"
)

var (
	reportQuery queryFlags
	reportJSON  bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Fetch, clean and report one day of hourly weather",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		req, err := reportQuery.request(cmd, weather.DateOf(a.Clock.Now()))
		if err != nil {
			return err
		}
		return a.Report(cmd.Context(), app.ReportOptions{Request: req, JSON: reportJSON})
	},
}

func init() {
	reportQuery.register(reportCmd.Flags())
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "Print the full result as JSON")
}
