package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"weather-ready/internal/config"
	"weather-ready/internal/logging"
	"weather-ready/internal/weather"
)

var (
	// ErrNotConfigured indicates the storage backend was not initialised.
	ErrNotConfigured = errors.New("storage: backend not configured")
)

// SnapshotStore persists raw, cleaned and report snapshots. Every call writes
// a new snapshot; nothing is merged into or overwrites an earlier one.
type SnapshotStore interface {
	SaveRaw(ctx context.Context, s weather.Series, at time.Time) (SnapshotRef, error)
	SaveClean(ctx context.Context, s weather.Series, at time.Time) (SnapshotRef, error)
	SaveReport(ctx context.Context, location string, unit weather.TemperatureUnit, rows []weather.ReportRow, at time.Time) (SnapshotRef, error)
	ListRecent(ctx context.Context, limit int) ([]SnapshotRef, error)
	Close() error
}

// AlertStore records delivered alerts. InsertAlert reports false when the
// same (location, kind, observed_at) was recorded before; AlertRecorded
// checks for that key without writing.
type AlertStore interface {
	AlertRecorded(ctx context.Context, rec AlertRecord) (bool, error)
	InsertAlert(ctx context.Context, rec AlertRecord) (bool, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Pinger reports backend reachability for readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewPool opens the snapshot database pool and checks it answers before
// returning.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: database.dsn is empty", ErrNotConfigured)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if n := cfg.MaxOpenConns; n > 0 {
		poolConfig.MaxConns = int32(n)
	}
	if n := cfg.MaxIdleConns; n > 0 && (cfg.MaxOpenConns <= 0 || n <= cfg.MaxOpenConns) {
		poolConfig.MinConns = int32(n)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("open snapshot database: %w", err)
	}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping snapshot database: %w", err)
	}

	return pool, nil
}

// Open builds the snapshot store selected by cfg.Snapshots.Backend. Database
// backends have their schema ensured before they are returned.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (SnapshotStore, error) {
	log := logging.Component(logger, "storage").With().Str("backend", cfg.Snapshots.Backend).Logger()

	switch cfg.Snapshots.Backend {
	case config.BackendCSV, "":
		log.Debug().
			Str("raw_dir", cfg.Snapshots.RawDir).
			Str("clean_dir", cfg.Snapshots.CleanDir).
			Str("report_dir", cfg.Snapshots.ReportDir).
			Msg("using csv snapshot store")
		return NewFileStore(cfg.Snapshots.RawDir, cfg.Snapshots.CleanDir, cfg.Snapshots.ReportDir), nil

	case config.BackendPostgres:
		pool, err := NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		store := NewPGStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		log.Debug().Msg("using postgres snapshot store")
		return store, nil

	case config.BackendSQLite:
		store, err := OpenSQLite(ctx, cfg.SQLite)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("path", cfg.SQLite.Path).Msg("using sqlite snapshot store")
		return store, nil
	}

	return nil, fmt.Errorf("unknown snapshot backend %q", cfg.Snapshots.Backend)
}
