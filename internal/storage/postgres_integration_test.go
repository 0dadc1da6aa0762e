//go:build integration

package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"weather-ready/internal/config"
	"weather-ready/internal/weather"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "weather",
				"POSTGRES_PASSWORD": "weather",
				"POSTGRES_DB":       "weather",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Terminate(ctx)
	})

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://weather:weather@%s:%s/weather?sslmode=disable", host, port.Port())
}

func TestPGStoreIntegration(t *testing.T) {
	ctx := context.Background()
	pool, err := NewPool(ctx, config.DatabaseConfig{DSN: startPostgres(t), MaxOpenConns: 4})
	require.NoError(t, err)

	store := NewPGStore(pool)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.EnsureSchema(ctx), "schema creation must be repeatable")
	require.NoError(t, store.Ping(ctx))

	at := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
	raw, err := store.SaveRaw(ctx, sampleSeries(), at)
	require.NoError(t, err)
	report, err := store.SaveReport(ctx, "NEW YORK", weather.Celsius, weather.BuildReport(sampleSeries(), weather.Celsius), at.Add(time.Minute))
	require.NoError(t, err)

	refs, err := store.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, report.ID, refs[0].ID)
	assert.Equal(t, raw.ID, refs[1].ID)
	assert.Equal(t, "20240501", refs[0].Key)

	rec := AlertRecord{Location: "NEW YORK", Kind: weather.KindMaxTemp, ObservedAt: at, Value: 31, Threshold: 30, Channels: []string{"telegram"}}
	inserted, err := store.InsertAlert(ctx, rec)
	require.NoError(t, err)
	assert.True(t, inserted)
	inserted, err = store.InsertAlert(ctx, rec)
	require.NoError(t, err)
	assert.False(t, inserted)
	recorded, err := store.AlertRecorded(ctx, rec)
	require.NoError(t, err)
	assert.True(t, recorded)

	alerts, err := store.ListRecentAlerts(ctx, 5)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, []string{"telegram"}, alerts[0].Channels)

	unlock, acquired, err := store.TryAdvisoryLock(ctx, 42)
	require.NoError(t, err)
	require.True(t, acquired)
	unlock()
}
