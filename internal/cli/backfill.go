package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"weather-ready/internal/app"
	"weather-ready/internal/weather"
)

var (
	backfillFrom      string
	backfillTo        string
	backfillLocations []string
	backfillUnit      string
	backfillDryRun    bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Snapshot every day in a date range",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillFrom == "" || backfillTo == "" {
			return fmt.Errorf("--from and --to must be provided")
		}

		from, err := weather.ParseDate(backfillFrom)
		if err != nil {
			return fmt.Errorf("invalid --from value: %w", err)
		}

		to, err := weather.ParseDate(backfillTo)
		if err != nil {
			return fmt.Errorf("invalid --to value: %w", err)
		}

		if to.Before(from) {
			return fmt.Errorf("--from must not be after --to")
		}

		unit, err := weather.ParseUnit(backfillUnit)
		if err != nil {
			return err
		}

		opts := app.BackfillOptions{
			From:      from,
			To:        to,
			Locations: backfillLocations,
			Unit:      unit,
			DryRun:    backfillDryRun,
		}

		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "First day YYYY-MM-DD (inclusive)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "Last day YYYY-MM-DD (inclusive)")
	backfillCmd.Flags().StringSliceVar(&backfillLocations, "location", nil, "Locations to backfill (defaults to all)")
	backfillCmd.Flags().StringVar(&backfillUnit, "unit", "C", "Temperature unit for the reports")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Run without writing snapshots")
}
