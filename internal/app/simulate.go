package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"weather-ready/internal/config"
	"weather-ready/internal/fetcher"
	"weather-ready/internal/observability"
	"weather-ready/internal/service"
	"weather-ready/internal/storage"
	"weather-ready/internal/weather"
)

// SimulateOptions describe a synthetic reading pushed through the alert path.
type SimulateOptions struct {
	Query config.WatchQuery
	// Spike overrides the baseline values at the current hour. Time is ignored.
	Spike weather.Observation
}

// SimulateAlert runs one watch tick over a synthetic day whose current hour
// carries the spike values, delivering any alerts to the configured channels.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}

	metrics := observability.NewMetricsForTesting()
	notifier, closeNotifier, err := a.newNotifier(ctx, metrics)
	if err != nil {
		return err
	}
	defer closeNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	now := a.Clock.Now()
	feed := &fetcher.StaticFeed{Series: syntheticDay(now, opts.Spike)}
	svc, err := a.newService(feed, storage.NewMemoryStore(), metrics)
	if err != nil {
		return err
	}

	req, err := opts.Query.Request(svc.Today())
	if err != nil {
		return err
	}
	bundle, err := svc.Query(ctx, req)
	if err != nil {
		return err
	}
	if len(bundle.Alerts) == 0 {
		fmt.Fprintln(a.Out, "no threshold violated; nothing to send")
		return nil
	}
	for _, ev := range bundle.Alerts {
		fmt.Fprintf(a.Out, "  - %s\n", ev.Message)
	}

	watcher := service.NewWatcher(svc, nil, notifier, nil, service.WatcherOptions{
		Queries:  []config.WatchQuery{opts.Query},
		Alerting: true,
		Channels: a.Config.Alerting.Channels,
	}, a.Logger)
	if err := watcher.Tick(ctx, now); err != nil {
		return err
	}

	fmt.Fprintf(a.Out, "sent %d alert(s) for %s\n", len(bundle.Alerts), bundle.Location)
	return nil
}

// syntheticDay builds 24 calm hourly readings for now's local day.
func syntheticDay(now time.Time, spike weather.Observation) weather.Series {
	zone := now.Location()
	start := weather.DateOf(now).In(zone)
	obs := make([]weather.Observation, 24)
	for i := range obs {
		o := weather.Observation{
			Time:            start.Add(time.Duration(i) * time.Hour),
			TemperatureC:    weather.Float(20),
			WindSpeedKmh:    weather.Float(10),
			HumidityPct:     weather.Float(50),
			PrecipitationMm: weather.Float(0),
		}
		if o.Time.Hour() == now.Hour() {
			if spike.TemperatureC != nil {
				o.TemperatureC = spike.TemperatureC
			}
			if spike.WindSpeedKmh != nil {
				o.WindSpeedKmh = spike.WindSpeedKmh
			}
			if spike.HumidityPct != nil {
				o.HumidityPct = spike.HumidityPct
			}
			if spike.PrecipitationMm != nil {
				o.PrecipitationMm = spike.PrecipitationMm
			}
		}
		obs[i] = o
	}
	return weather.Series{Location: "simulated", Timezone: zone, Observations: obs}
}
