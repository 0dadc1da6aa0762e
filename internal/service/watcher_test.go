package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-ready/internal/alerting"
	"weather-ready/internal/config"
	"weather-ready/internal/storage"
	"weather-ready/internal/weather"
)

type recordingNotifier struct {
	notes []alerting.Notification
	err   error
	// failFirst makes that many leading calls return err; zero fails every call.
	failFirst int
}

func (r *recordingNotifier) Channel() string { return "test" }

func (r *recordingNotifier) Notify(_ context.Context, note alerting.Notification) error {
	r.notes = append(r.notes, note)
	if r.failFirst > 0 && len(r.notes) > r.failFirst {
		return nil
	}
	return r.err
}

func watchQueries() []config.WatchQuery {
	return []config.WatchQuery{{
		Location: "London",
		Unit:     "C",
		MaxTemp:  weather.Float(30),
	}}
}

func TestWatcherDeduplicatesThroughAlertStore(t *testing.T) {
	f := newFixture(t)
	notifier := &recordingNotifier{}
	w := NewWatcher(f.svc, nil, notifier, f.store, WatcherOptions{
		Queries:  watchQueries(),
		Alerting: true,
		Channels: []string{"test"},
	}, zerolog.Nop())

	require.NoError(t, w.Tick(context.Background(), f.clock.Now()))
	require.Len(t, notifier.notes, 1)
	note := notifier.notes[0]
	assert.Equal(t, "LONDON", note.Location)
	assert.Equal(t, queryDay, note.Date)
	assert.Len(t, note.Alerts, 2)
	assert.Equal(t, []string{"test"}, note.Channels)

	require.NoError(t, w.Tick(context.Background(), f.clock.Now()))
	assert.Len(t, notifier.notes, 1, "already recorded alerts are not sent again")

	alerts, err := f.store.ListRecentAlerts(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, alerts, 2)
}

func TestWatcherCooldown(t *testing.T) {
	f := newFixture(t)
	notifier := &recordingNotifier{}
	w := NewWatcher(f.svc, nil, notifier, nil, WatcherOptions{
		Queries:  watchQueries(),
		Alerting: true,
		Cooldown: time.Hour,
	}, zerolog.Nop())

	require.NoError(t, w.Tick(context.Background(), f.clock.Now()))
	require.NoError(t, w.Tick(context.Background(), f.clock.Now()))
	assert.Len(t, notifier.notes, 1)

	f.clock.Advance(2 * time.Hour)
	require.NoError(t, w.Tick(context.Background(), f.clock.Now()))
	assert.Len(t, notifier.notes, 2)
}

func TestWatcherRedeliversAfterFailedDispatch(t *testing.T) {
	f := newFixture(t)
	notifier := &recordingNotifier{err: errors.New("telegram down"), failFirst: 1}
	w := NewWatcher(f.svc, nil, notifier, f.store, WatcherOptions{
		Queries:  watchQueries(),
		Alerting: true,
		Cooldown: time.Hour,
	}, zerolog.Nop())

	err := w.Tick(context.Background(), f.clock.Now())
	require.ErrorContains(t, err, "telegram down")
	alerts, err := f.store.ListRecentAlerts(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, alerts, "undelivered alerts are not recorded")

	require.NoError(t, w.Tick(context.Background(), f.clock.Now()))
	require.Len(t, notifier.notes, 2)
	assert.Len(t, notifier.notes[1].Alerts, 2)

	alerts, err = f.store.ListRecentAlerts(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, alerts, 2)

	require.NoError(t, w.Tick(context.Background(), f.clock.Now()))
	assert.Len(t, notifier.notes, 2)
}

func TestWatcherAlertingDisabled(t *testing.T) {
	f := newFixture(t)
	notifier := &recordingNotifier{}
	w := NewWatcher(f.svc, nil, notifier, f.store, WatcherOptions{Queries: watchQueries()}, zerolog.Nop())

	require.NoError(t, w.Tick(context.Background(), f.clock.Now()))
	assert.Empty(t, notifier.notes)

	refs, err := f.store.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, refs, 3, "snapshots are still written")
}

func TestWatcherReportsFailures(t *testing.T) {
	f := newFixture(t)
	notifier := &recordingNotifier{err: errors.New("offline")}
	queries := append(watchQueries(), config.WatchQuery{Location: "Atlantis", Unit: "C"})
	w := NewWatcher(f.svc, nil, notifier, nil, WatcherOptions{Queries: queries, Alerting: true}, zerolog.Nop())

	err := w.Tick(context.Background(), f.clock.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, weather.ErrUnknownLocation)
	assert.Contains(t, err.Error(), "offline")
	assert.Len(t, notifier.notes, 1)
}

type heldLocker struct {
	*storage.MemoryStore
}

func (heldLocker) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	return nil, false, nil
}

func TestWatcherSkipsWhenLockHeld(t *testing.T) {
	f := newFixture(t)
	notifier := &recordingNotifier{}
	w := NewWatcher(f.svc, nil, notifier, heldLocker{storage.NewMemoryStore()}, WatcherOptions{
		Queries:  watchQueries(),
		Alerting: true,
		LockKey:  42,
	}, zerolog.Nop())

	require.NoError(t, w.Tick(context.Background(), f.clock.Now()))
	assert.Zero(t, f.feed.calls)
	assert.Empty(t, notifier.notes)
}

func TestWatcherRunRequiresScheduler(t *testing.T) {
	f := newFixture(t)
	w := NewWatcher(f.svc, nil, nil, nil, WatcherOptions{}, zerolog.Nop())
	assert.Error(t, w.Run(context.Background()))
}
