package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"weather-ready/internal/alerting"
	"weather-ready/internal/config"
	"weather-ready/internal/fetcher"
	"weather-ready/internal/httpapi"
	"weather-ready/internal/logging"
	"weather-ready/internal/observability"
	"weather-ready/internal/scheduler"
	"weather-ready/internal/service"
	"weather-ready/internal/storage"
	"weather-ready/internal/version"
	"weather-ready/internal/weather"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives human readable command output.
	Out io.Writer
	// Clock supplies "now"; the real clock when nil.
	Clock clockwork.Clock
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logging.Component(logger, "app"),
		Out:    os.Stdout,
		Clock:  clockwork.NewRealClock(),
	}
}

func (a *App) newFeed() fetcher.Feed {
	ua := a.Config.Feed.UserAgent
	if ua == "" {
		ua = version.UserAgent()
	}
	return fetcher.NewOpenMeteo(fetcher.OpenMeteoOptions{
		BaseURL:   a.Config.Feed.BaseURL,
		Timeout:   a.Config.Feed.RequestTimeout,
		UserAgent: ua,
	}, a.Logger)
}

func (a *App) newService(feed fetcher.Feed, store storage.SnapshotStore, metrics *observability.Metrics) (*service.Service, error) {
	registry, err := a.Config.Registry()
	if err != nil {
		return nil, err
	}
	opts := service.Options{MaxDayOffset: a.Config.Feed.MaxDayOffset}
	return service.New(feed, store, registry, opts, a.Clock, metrics, a.Logger), nil
}

// newNotifier combines every enabled alert channel. It returns a nil
// notifier when no channel is enabled.
func (a *App) newNotifier(ctx context.Context, metrics *observability.Metrics) (alerting.Notifier, func(), error) {
	cfg := a.Config.Alerting
	var (
		notifiers []alerting.Notifier
		closers   []func() error
	)

	if cfg.Telegram.Enabled {
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIBase, 10*time.Second, a.Logger))
	}
	if cfg.Kafka.Enabled {
		k := alerting.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.WriteTimeout, a.Logger)
		notifiers = append(notifiers, k)
		closers = append(closers, k.Close)
	}
	if cfg.MQTT.Enabled {
		m, err := alerting.NewMQTTNotifier(ctx, alerting.MQTTOptions{
			Broker:         cfg.MQTT.Broker,
			ClientID:       cfg.MQTT.ClientID,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			TopicPrefix:    cfg.MQTT.TopicPrefix,
			QoS:            cfg.MQTT.QoS,
			ConnectTimeout: cfg.MQTT.ConnectTimeout,
		}, a.Logger)
		if err != nil {
			closeAll(closers, a.Logger)
			return nil, nil, err
		}
		notifiers = append(notifiers, m)
		closers = append(closers, m.Close)
	}

	closer := func() { closeAll(closers, a.Logger) }
	if len(notifiers) == 0 {
		return nil, closer, nil
	}

	var observe alerting.DeliveryObserver
	if metrics != nil {
		observe = metrics.ObserveDelivery
	}
	return alerting.NewFanout(notifiers, observe, a.Logger), closer, nil
}

func closeAll(closers []func() error, logger zerolog.Logger) {
	for _, c := range closers {
		if err := c(); err != nil {
			logger.Warn().Err(err).Msg("close notifier")
		}
	}
}

func (a *App) openStore(ctx context.Context) (storage.SnapshotStore, func(), error) {
	store, err := storage.Open(ctx, a.Config, a.Logger)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if err := store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("close snapshot store")
		}
	}
	return store, closer, nil
}

// Run executes the long-running watch loop and the HTTP server.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	metrics := observability.NewMetrics()
	svc, err := a.newService(a.newFeed(), store, metrics)
	if err != nil {
		return err
	}

	var notifier alerting.Notifier
	if a.Config.Alerting.Enabled {
		n, closeNotifier, err := a.newNotifier(ctx, metrics)
		if err != nil {
			return err
		}
		defer closeNotifier()
		if n == nil {
			a.Logger.Warn().Msg("alerting enabled but no channel configured; alerts will only be logged")
		}
		notifier = n
	}

	var alertStore storage.AlertStore
	if s, ok := store.(storage.AlertStore); ok {
		alertStore = s
	} else {
		a.Logger.Info().Str("backend", a.Config.Snapshots.Backend).Msg("snapshot backend keeps no alert history; relying on cooldown only")
	}

	sched := scheduler.New(scheduler.Options{
		Interval:       a.Config.Watch.Interval,
		AlignToStart:   a.Config.Watch.AlignToInterval,
		StartupDelay:   a.Config.Watch.StartupDelay,
		RunImmediately: true,
	}, a.Clock, a.Logger)

	watcher := service.NewWatcher(svc, sched, notifier, alertStore, service.WatcherOptions{
		Queries:  a.Config.Watch.Queries,
		Alerting: a.Config.Alerting.Enabled,
		Cooldown: a.Config.Alerting.Cooldown,
		Channels: a.Config.Alerting.Channels,
		LockKey:  a.Config.Watch.AdvisoryLockKey,
	}, a.Logger)

	g, gctx := errgroup.WithContext(ctx)

	if len(a.Config.Watch.Queries) == 0 {
		a.Logger.Warn().Msg("watch.queries is empty; only the HTTP API is served")
	} else {
		g.Go(func() error {
			a.Logger.Info().Int("queries", len(a.Config.Watch.Queries)).Msg("starting watch loop")
			return watcher.Run(gctx)
		})
	}

	if a.Config.HTTP.Enabled {
		var ready storage.Pinger
		if p, ok := store.(storage.Pinger); ok {
			ready = p
		}
		srv := httpapi.NewServer(a.Config.HTTP.Addr, svc, ready, a.Logger)
		g.Go(func() error {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.HTTP.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	} else if len(a.Config.Watch.Queries) == 0 {
		return errors.New("nothing to run: watch.queries is empty and http is disabled")
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("service stopped")
	return nil
}

// ReportOptions parameterise a one-shot report.
type ReportOptions struct {
	Request weather.QueryRequest
	JSON    bool
}

// ExportOptions hold parameters for exporting a report.
type ExportOptions struct {
	Request weather.QueryRequest
	PNGPath string
	CSVPath string
	Width   int
	Height  int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Alerts bool
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	From      weather.Date
	To        weather.Date
	Locations []string
	Unit      weather.TemperatureUnit
	DryRun    bool
}
