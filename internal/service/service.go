package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"weather-ready/internal/fetcher"
	"weather-ready/internal/logging"
	"weather-ready/internal/observability"
	"weather-ready/internal/storage"
	"weather-ready/internal/weather"
)

// Options tune query validation.
type Options struct {
	// MaxDayOffset bounds how far from today a query date may be. Zero disables the check.
	MaxDayOffset int
}

// Service runs the query pipeline: fetch, clean, snapshot, window and the
// three independent terminal stages.
type Service struct {
	feed     fetcher.Feed
	store    storage.SnapshotStore
	registry *weather.Registry
	clock    clockwork.Clock
	metrics  *observability.Metrics
	opts     Options
	logger   zerolog.Logger
}

// New constructs the query service. A nil clock means the real clock and nil
// metrics are replaced by an unregistered set.
func New(feed fetcher.Feed, store storage.SnapshotStore, registry *weather.Registry, opts Options, clock clockwork.Clock, metrics *observability.Metrics, logger zerolog.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if metrics == nil {
		metrics = observability.NewMetricsForTesting()
	}
	return &Service{
		feed:     feed,
		store:    store,
		registry: registry,
		clock:    clock,
		metrics:  metrics,
		opts:     opts,
		logger:   logging.Component(logger, "service"),
	}
}

// Registry exposes the location registry the service resolves names against.
func (s *Service) Registry() *weather.Registry {
	return s.registry
}

// Today is the current calendar day in the server's local zone.
func (s *Service) Today() weather.Date {
	return weather.DateOf(s.clock.Now())
}

// Query executes one pipeline invocation. Feed and snapshot failures abort
// the run; no partial bundle is returned.
func (s *Service) Query(ctx context.Context, req weather.QueryRequest) (bundle weather.ResultBundle, err error) {
	defer func() {
		s.metrics.QueriesTotal.WithLabelValues(outcome(err)).Inc()
	}()

	if err := req.Validate(); err != nil {
		return weather.ResultBundle{}, err
	}
	loc, err := s.registry.Lookup(req.Location)
	if err != nil {
		return weather.ResultBundle{}, err
	}

	now := s.clock.Now()
	offset := req.Date.DaysSince(weather.DateOf(now))
	if limit := s.opts.MaxDayOffset; limit > 0 && (offset > limit || offset < -limit) {
		return weather.ResultBundle{}, fmt.Errorf("%w: date %s is more than %d days from today", weather.ErrInvalidQuery, req.Date, limit)
	}

	log := s.logger.With().Str("location", loc.Name).Str("date", req.Date.String()).Logger()

	started := s.clock.Now()
	raw, err := s.feed.Fetch(ctx, loc, offset)
	s.metrics.FeedDuration.Observe(s.clock.Since(started).Seconds())
	if err != nil {
		return weather.ResultBundle{}, fmt.Errorf("fetch %s: %w", loc.Name, err)
	}

	if _, err := s.store.SaveRaw(ctx, raw, now); err != nil {
		return weather.ResultBundle{}, fmt.Errorf("save raw snapshot: %w", err)
	}
	s.metrics.SnapshotTotal.WithLabelValues(string(storage.KindRaw)).Inc()

	clean := weather.Clean(raw)
	if _, err := s.store.SaveClean(ctx, clean, now); err != nil {
		return weather.ResultBundle{}, fmt.Errorf("save cleaned snapshot: %w", err)
	}
	s.metrics.SnapshotTotal.WithLabelValues(string(storage.KindCleaned)).Inc()

	window := weather.Window(clean, req.Date, req.AlertStartHour)

	var (
		alerts []weather.AlertEvent
		change weather.ChangeSummary
		report []weather.ReportRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		alerts = weather.EvaluateAlerts(window, req.Thresholds)
		return nil
	})
	g.Go(func() error {
		change = weather.SummarizeChange(window, now)
		return nil
	})
	g.Go(func() error {
		report = weather.BuildReport(window, req.Unit)
		if _, err := s.store.SaveReport(gctx, loc.Name, req.Unit, report, now); err != nil {
			return fmt.Errorf("save report snapshot: %w", err)
		}
		s.metrics.SnapshotTotal.WithLabelValues(string(storage.KindReport)).Inc()
		return nil
	})
	if err := g.Wait(); err != nil {
		return weather.ResultBundle{}, err
	}

	for _, a := range alerts {
		s.metrics.AlertsTotal.WithLabelValues(string(a.Metric)).Inc()
	}

	log.Info().
		Int("raw", raw.Len()).
		Int("windowed", window.Len()).
		Int("alerts", len(alerts)).
		Str("change", string(change.Metric)).
		Msg("query completed")

	return weather.ResultBundle{
		Location: loc.Name,
		Date:     req.Date,
		Timezone: window.Zone().String(),
		Unit:     req.Unit,
		Window:   window,
		Alerts:   alerts,
		Change:   change,
		Columns:  weather.ReportColumns(req.Unit),
		Report:   report,
		Overview: weather.Overview(window, req.SelectedMetrics(), req.Unit),
	}, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeSuccess
	case errors.Is(err, weather.ErrInvalidQuery):
		return observability.OutcomeInvalid
	case errors.Is(err, weather.ErrUnknownLocation):
		return observability.OutcomeNotFound
	case errors.Is(err, fetcher.ErrFeed):
		return observability.OutcomeFeed
	default:
		return observability.OutcomeError
	}
}
