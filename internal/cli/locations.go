package cli

import (
	"github.com/spf13/cobra"
)

var locationsCmd = &cobra.Command{
	Use:   "locations",
	Short: "List the known locations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Locations()
	},
}
