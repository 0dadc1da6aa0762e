package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-ready/internal/config"
	"weather-ready/internal/weather"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(context.Background(), config.SQLiteConfig{
		Path:         filepath.Join(t.TempDir(), "nested", "weather.db"),
		MaxOpenConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
	})
	return store
}

func TestSQLiteStoreSnapshots(t *testing.T) {
	store := openTestSQLite(t)
	ctx := context.Background()
	at := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)

	raw, err := store.SaveRaw(ctx, sampleSeries(), at)
	require.NoError(t, err)
	assert.Equal(t, "20240501_120000", raw.Key)

	rows := weather.BuildReport(sampleSeries(), weather.Celsius)
	report, err := store.SaveReport(ctx, "NEW YORK", weather.Celsius, rows, at.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "20240501", report.Key)
	assert.Equal(t, 2, report.Rows)

	again, err := store.SaveReport(ctx, "NEW YORK", weather.Celsius, rows, at.Add(2*time.Minute))
	require.NoError(t, err)
	assert.NotEqual(t, report.ID, again.ID)

	refs, err := store.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.Equal(t, again.ID, refs[0].ID)
	assert.Equal(t, KindRaw, refs[2].Kind)
	assert.True(t, refs[2].CreatedAt.Equal(at))
	assert.Equal(t, "NEW YORK", refs[2].Location)
}

func TestSQLiteStoreAlertsDeduplicate(t *testing.T) {
	store := openTestSQLite(t)
	ctx := context.Background()
	rec := AlertRecord{
		Location:   "LONDON",
		Kind:       weather.KindMaxTemp,
		ObservedAt: time.Date(2024, time.May, 1, 14, 0, 0, 0, time.UTC),
		Value:      31.2,
		Threshold:  30,
		Channels:   []string{"telegram", "kafka"},
	}

	recorded, err := store.AlertRecorded(ctx, rec)
	require.NoError(t, err)
	assert.False(t, recorded)

	inserted, err := store.InsertAlert(ctx, rec)
	require.NoError(t, err)
	assert.True(t, inserted)

	recorded, err = store.AlertRecorded(ctx, rec)
	require.NoError(t, err)
	assert.True(t, recorded)

	inserted, err = store.InsertAlert(ctx, rec)
	require.NoError(t, err)
	assert.False(t, inserted)

	rec.Kind = weather.KindMinTemp
	inserted, err = store.InsertAlert(ctx, rec)
	require.NoError(t, err)
	assert.True(t, inserted)

	alerts, err := store.ListRecentAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, []string{"telegram", "kafka"}, alerts[0].Channels)
	assert.True(t, alerts[0].ObservedAt.Equal(rec.ObservedAt))
}

func TestBuildSQLiteDSN(t *testing.T) {
	dsn, err := buildSQLiteDSN(config.SQLiteConfig{Path: "file:test.db?cache=shared"})
	require.NoError(t, err)
	assert.Equal(t, "file:test.db?cache=shared&_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", dsn)

	dsn, err = buildSQLiteDSN(config.SQLiteConfig{DSN: "file::memory:"})
	require.NoError(t, err)
	assert.Equal(t, "file::memory:", dsn)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	at := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)

	raw, err := store.SaveRaw(ctx, sampleSeries(), at)
	require.NoError(t, err)
	clean, err := store.SaveClean(ctx, weather.Clean(sampleSeries()), at.Add(time.Second))
	require.NoError(t, err)

	assert.Equal(t, 2, raw.Rows)
	assert.Equal(t, KindRaw, raw.Kind)

	refs, err := store.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, clean.ID, refs[0].ID)

	rec := AlertRecord{Location: "X", Kind: weather.KindMaxWind, ObservedAt: at}
	recorded, _ := store.AlertRecorded(ctx, rec)
	assert.False(t, recorded)
	first, _ := store.InsertAlert(ctx, rec)
	second, _ := store.InsertAlert(ctx, rec)
	assert.True(t, first)
	assert.False(t, second)
	recorded, _ = store.AlertRecorded(ctx, rec)
	assert.True(t, recorded)
}
