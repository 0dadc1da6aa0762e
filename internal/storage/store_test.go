package storage

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-ready/internal/config"
)

func TestNewPoolRequiresDSN(t *testing.T) {
	_, err := NewPool(context.Background(), config.DatabaseConfig{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestOpenSelectsBackend(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{Snapshots: config.SnapshotsConfig{
		Backend:   config.BackendCSV,
		RawDir:    dir,
		CleanDir:  dir,
		ReportDir: dir,
	}}

	store, err := Open(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)
	require.NoError(t, store.Close())

	cfg.Snapshots.Backend = "s3"
	_, err = Open(context.Background(), cfg, zerolog.Nop())
	assert.EqualError(t, err, `unknown snapshot backend "s3"`)
}
