package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"weather-ready/internal/weather"
)

// Report runs one query and prints alerts, the change summary, the metric
// overview and the hourly table.
func (a *App) Report(ctx context.Context, opts ReportOptions) error {
	bundle, err := a.query(ctx, opts.Request)
	if err != nil {
		return err
	}

	if opts.JSON {
		enc := json.NewEncoder(a.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(bundle)
	}
	return a.printBundle(bundle)
}

func (a *App) query(ctx context.Context, req weather.QueryRequest) (weather.ResultBundle, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return weather.ResultBundle{}, err
	}
	defer closeStore()

	svc, err := a.newService(a.newFeed(), store, nil)
	if err != nil {
		return weather.ResultBundle{}, err
	}
	return svc.Query(ctx, req)
}

func (a *App) printBundle(b weather.ResultBundle) error {
	out := a.Out
	fmt.Fprintf(out, "%s  %s  (%s)\n\n", b.Location, b.Date, b.Timezone)

	fmt.Fprintln(out, "Alerts:")
	if len(b.Alerts) == 0 {
		fmt.Fprintln(out, "  none")
	}
	for _, ev := range b.Alerts {
		fmt.Fprintf(out, "  - %s\n", sanitizeInline(ev.Message))
	}

	fmt.Fprintf(out, "\nLast hour: %s\n", b.Change.Message)

	if len(b.Overview) > 0 {
		fmt.Fprintln(out, "\nOverview:")
		writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, card := range b.Overview {
			fmt.Fprintf(writer, "  %s\t%s %s\t%s\t%s\n",
				card.Label,
				formatFloat(card.Value, 1),
				card.Unit,
				card.Aggregate,
				card.Condition,
			)
		}
		if err := writer.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(out)
	if len(b.Report) == 0 {
		fmt.Fprintln(out, "no observations in the selected window")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, strings.Join(b.Columns, "\t"))
	for _, row := range b.Report {
		fmt.Fprintln(writer, strings.Join(row.Record(), "\t"))
	}
	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

func formatFloat(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}
