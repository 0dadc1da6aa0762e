package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"weather-ready/internal/storage"
)

// Show prints recent snapshots, or recent alert records with opts.Alerts.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if opts.Alerts {
		alertStore, ok := store.(storage.AlertStore)
		if !ok {
			return errors.New("snapshot backend keeps no alert history; use postgres or sqlite")
		}
		return a.showAlerts(ctx, alertStore, opts.Limit)
	}

	refs, err := store.ListRecent(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		fmt.Fprintln(a.Out, "no snapshots found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Created (UTC)\tKind\tLocation\tKey\tRows\tID")
	for _, ref := range refs {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%d\t%s\n",
			ref.CreatedAt.UTC().Format(time.RFC3339),
			ref.Kind,
			ref.Location,
			ref.Key,
			ref.Rows,
			sanitizeInline(ref.ID),
		)
	}
	return writer.Flush()
}

func (a *App) showAlerts(ctx context.Context, store storage.AlertStore, limit int) error {
	alerts, err := store.ListRecentAlerts(ctx, limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(a.Out, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Observed (UTC)\tLocation\tKind\tValue\tThreshold\tChannels")
	for _, rec := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.ObservedAt.UTC().Format(time.RFC3339),
			rec.Location,
			rec.Kind,
			formatFloat(rec.Value, 1),
			formatFloat(rec.Threshold, 1),
			strings.Join(rec.Channels, ","),
		)
	}
	return writer.Flush()
}
