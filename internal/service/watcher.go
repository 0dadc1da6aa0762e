package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"weather-ready/internal/alerting"
	"weather-ready/internal/config"
	"weather-ready/internal/logging"
	"weather-ready/internal/scheduler"
	"weather-ready/internal/storage"
	"weather-ready/internal/weather"
)

// WatcherOptions configure the standing queries and alert routing.
type WatcherOptions struct {
	Queries  []config.WatchQuery
	Alerting bool
	Cooldown time.Duration
	Channels []string
	LockKey  int64
}

// Watcher re-runs the configured queries on every scheduler tick and
// dispatches newly seen alerts.
type Watcher struct {
	service    *Service
	scheduler  *scheduler.Scheduler
	notifier   alerting.Notifier
	alertStore storage.AlertStore
	locker     storage.AdvisoryLocker
	opts       WatcherOptions
	logger     zerolog.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewWatcher builds a watcher. notifier and alertStore may be nil. The
// advisory lock is used when alertStore also implements storage.AdvisoryLocker.
func NewWatcher(svc *Service, sched *scheduler.Scheduler, notifier alerting.Notifier, alertStore storage.AlertStore, opts WatcherOptions, logger zerolog.Logger) *Watcher {
	var locker storage.AdvisoryLocker
	if l, ok := alertStore.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Watcher{
		service:    svc,
		scheduler:  sched,
		notifier:   notifier,
		alertStore: alertStore,
		locker:     locker,
		opts:       opts,
		logger:     logging.Component(logger, "watcher"),
		lastSent:   make(map[string]time.Time),
	}
}

// Run begins the watch loop.
func (w *Watcher) Run(ctx context.Context) error {
	if w.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	w.service.metrics.WatcherRunning.Set(1)
	defer w.service.metrics.WatcherRunning.Set(0)
	return w.scheduler.Run(ctx, w.Tick)
}

// Tick evaluates every watch query for today's date.
func (w *Watcher) Tick(ctx context.Context, tick time.Time) error {
	unlock, proceed, err := w.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		w.logger.Debug().Time("tick", tick).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	today := w.service.Today()
	var errs []error
	for _, q := range w.opts.Queries {
		if err := w.runQuery(ctx, q, today); err != nil {
			w.logger.Error().Err(err).Str("location", q.Location).Msg("watch query failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *Watcher) runQuery(ctx context.Context, q config.WatchQuery, today weather.Date) error {
	req, err := q.Request(today)
	if err != nil {
		return err
	}
	bundle, err := w.service.Query(ctx, req)
	if err != nil {
		return err
	}
	if !w.opts.Alerting || w.notifier == nil || len(bundle.Alerts) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	fresh, err := w.freshAlerts(ctx, bundle)
	if err != nil {
		return err
	}
	if len(fresh) == 0 {
		w.logger.Debug().Str("location", bundle.Location).Msg("no new alerts")
		return nil
	}

	note := alerting.Notification{
		Location:    bundle.Location,
		Date:        bundle.Date,
		Timezone:    bundle.Timezone,
		Alerts:      fresh,
		Change:      bundle.Change,
		GeneratedAt: w.service.clock.Now(),
		Channels:    w.opts.Channels,
	}
	if err := w.notifier.Notify(ctx, note); err != nil {
		return fmt.Errorf("dispatch alerts for %s: %w", bundle.Location, err)
	}
	return w.markSent(ctx, bundle.Location, fresh, note.GeneratedAt)
}

// freshAlerts drops alerts already recorded in the alert store and kinds
// still in their cooldown window for the location. Nothing is recorded here;
// markSent does that once delivery succeeded.
func (w *Watcher) freshAlerts(ctx context.Context, bundle weather.ResultBundle) ([]weather.AlertEvent, error) {
	now := w.service.clock.Now()

	fresh := make([]weather.AlertEvent, 0, len(bundle.Alerts))
	for _, a := range bundle.Alerts {
		if w.coolingDown(bundle.Location+"|"+string(a.Kind), now) {
			continue
		}
		if w.alertStore != nil {
			recorded, err := w.alertStore.AlertRecorded(ctx, w.record(bundle.Location, a))
			if err != nil {
				return nil, fmt.Errorf("lookup alert record: %w", err)
			}
			if recorded {
				continue
			}
		}
		fresh = append(fresh, a)
	}
	return fresh, nil
}

// markSent records delivered alerts and starts their cooldown.
func (w *Watcher) markSent(ctx context.Context, location string, sent []weather.AlertEvent, at time.Time) error {
	for _, a := range sent {
		w.lastSent[location+"|"+string(a.Kind)] = at
		if w.alertStore == nil {
			continue
		}
		if _, err := w.alertStore.InsertAlert(ctx, w.record(location, a)); err != nil {
			return fmt.Errorf("persist alert record: %w", err)
		}
	}
	return nil
}

func (w *Watcher) record(location string, a weather.AlertEvent) storage.AlertRecord {
	return storage.AlertRecord{
		Location:   location,
		Kind:       a.Kind,
		ObservedAt: a.Time,
		Value:      a.Value,
		Threshold:  a.Threshold,
		Channels:   w.opts.Channels,
	}
}

func (w *Watcher) coolingDown(key string, now time.Time) bool {
	if w.opts.Cooldown <= 0 {
		return false
	}
	last, ok := w.lastSent[key]
	return ok && now.Sub(last) < w.opts.Cooldown
}

func (w *Watcher) acquireLock(ctx context.Context) (func(), bool, error) {
	if w.opts.LockKey == 0 || w.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := w.locker.TryAdvisoryLock(ctx, w.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
