package app

import (
	"fmt"
	"text/tabwriter"
)

// Locations prints the configured location registry.
func (a *App) Locations() error {
	registry, err := a.Config.Registry()
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Name\tLatitude\tLongitude")
	for _, loc := range registry.All() {
		fmt.Fprintf(writer, "%s\t%s\t%s\n", loc.Name, formatFloat(loc.Latitude, 4), formatFloat(loc.Longitude, 4))
	}
	return writer.Flush()
}
