package cli

import (
	"github.com/spf13/cobra"

	"weather-ready/internal/app"
	"weather-ready/internal/weather"
)

var (
	exportQuery   queryFlags
	exportPNGPath string
	exportCSVPath string
	exportWidth   int
	exportHeight  int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the hourly report as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		req, err := exportQuery.request(cmd, weather.DateOf(a.Clock.Now()))
		if err != nil {
			return err
		}

		opts := app.ExportOptions{
			Request: req,
			PNGPath: exportPNGPath,
			CSVPath: exportCSVPath,
			Width:   exportWidth,
			Height:  exportHeight,
		}
		return a.Export(cmd.Context(), opts)
	},
}

func init() {
	exportQuery.register(exportCmd.Flags())
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportWidth, "width", 0, "Chart width in pixels (defaults to config)")
	exportCmd.Flags().IntVar(&exportHeight, "height", 0, "Chart height in pixels (defaults to config)")
}
