package app

import (
	"context"
	"errors"
	"fmt"

	"weather-ready/internal/storage"
	"weather-ready/internal/weather"
)

// Backfill snapshots every day in [From, To] for each location. Days outside
// the feed range fail individually and are counted.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	if opts.To.Before(opts.From) {
		return errors.New("backfill range is empty, check --from/--to")
	}

	var (
		store storage.SnapshotStore
		err   error
	)
	if opts.DryRun {
		a.Logger.Warn().Msg("backfill dry-run: snapshots are kept in memory only")
		store = storage.NewMemoryStore()
	} else {
		var closeStore func()
		store, closeStore, err = a.openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()
	}

	svc, err := a.newService(a.newFeed(), store, nil)
	if err != nil {
		return err
	}

	locations := opts.Locations
	if len(locations) == 0 {
		for _, loc := range svc.Registry().All() {
			locations = append(locations, loc.Name)
		}
	}

	processed := 0
	failed := 0
	for day := opts.From; !opts.To.Before(day); day = day.AddDays(1) {
		for _, name := range locations {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			req := weather.QueryRequest{Location: name, Date: day, Unit: opts.Unit}
			bundle, err := svc.Query(ctx, req)
			if err != nil {
				failed++
				a.Logger.Error().Err(err).Str("location", name).Str("date", day.String()).Msg("backfill failed")
				continue
			}
			processed++
			a.Logger.Debug().Str("location", bundle.Location).Str("date", day.String()).Int("rows", len(bundle.Report)).Msg("day backfilled")
		}
	}

	a.Logger.Info().Int("processed", processed).Int("failed", failed).Msg("backfill finished")
	fmt.Fprintf(a.Out, "processed %d, failed %d\n", processed, failed)
	if failed > 0 {
		return fmt.Errorf("%d backfill queries failed, check the logs", failed)
	}
	return nil
}
