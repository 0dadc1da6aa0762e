package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"weather-ready/internal/config"
	"weather-ready/internal/weather"
)

const sqliteSchemaSQL = `
CREATE TABLE IF NOT EXISTS weather_snapshots (
  id           INTEGER PRIMARY KEY AUTOINCREMENT,
  kind         TEXT    NOT NULL,
  location     TEXT    NOT NULL,
  snapshot_key TEXT    NOT NULL,
  row_count    INTEGER NOT NULL,
  payload      TEXT    NOT NULL,
  created_at   TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_weather_snapshots_location_key ON weather_snapshots(location, kind, snapshot_key);
CREATE TABLE IF NOT EXISTS weather_alerts (
  id             INTEGER PRIMARY KEY AUTOINCREMENT,
  location       TEXT NOT NULL,
  kind           TEXT NOT NULL,
  observed_at    TEXT NOT NULL,
  observed_value REAL NOT NULL,
  threshold      REAL NOT NULL,
  channels       TEXT NOT NULL DEFAULT '',
  created_at     TEXT NOT NULL,
  UNIQUE (location, kind, observed_at)
);
`

const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore keeps snapshots and alert records in a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (and migrates) the SQLite database described by cfg.
func OpenSQLite(ctx context.Context, cfg config.SQLiteConfig) (*SQLiteStore, error) {
	dsn, err := buildSQLiteDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	store := NewSQLiteStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore wraps an open database handle.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

func buildSQLiteDSN(cfg config.SQLiteConfig) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}

	path := cfg.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	params := []string{
		"_foreign_keys=on",
		"_busy_timeout=5000",
		"_journal_mode=WAL",
	}
	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&"), nil
	}
	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}

// EnsureSchema creates the tables when missing.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNotConfigured
	}
	if _, err := s.db.ExecContext(ctx, sqliteSchemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNotConfigured
	}
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveRaw inserts a raw series snapshot.
func (s *SQLiteStore) SaveRaw(ctx context.Context, series weather.Series, at time.Time) (SnapshotRef, error) {
	return s.insert(ctx, KindRaw, series.Location, at, series.Len(), newSeriesPayload(series))
}

// SaveClean inserts a cleaned series snapshot.
func (s *SQLiteStore) SaveClean(ctx context.Context, series weather.Series, at time.Time) (SnapshotRef, error) {
	return s.insert(ctx, KindCleaned, series.Location, at, series.Len(), newSeriesPayload(series))
}

// SaveReport inserts a report snapshot keyed by the write date.
func (s *SQLiteStore) SaveReport(ctx context.Context, location string, unit weather.TemperatureUnit, rows []weather.ReportRow, at time.Time) (SnapshotRef, error) {
	payload := reportPayload{Location: location, Unit: unit, Columns: weather.ReportColumns(unit), Rows: rows}
	return s.insert(ctx, KindReport, location, at, len(rows), payload)
}

func (s *SQLiteStore) insert(ctx context.Context, kind SnapshotKind, location string, at time.Time, rows int, payload any) (SnapshotRef, error) {
	if s == nil || s.db == nil {
		return SnapshotRef{}, ErrNotConfigured
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return SnapshotRef{}, fmt.Errorf("encode %s snapshot: %w", kind, err)
	}

	key := snapshotKey(kind, at)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO weather_snapshots (kind, location, snapshot_key, row_count, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		string(kind), location, key, rows, string(body), at.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return SnapshotRef{}, fmt.Errorf("insert %s snapshot: %w", kind, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return SnapshotRef{}, fmt.Errorf("insert %s snapshot: %w", kind, err)
	}

	return SnapshotRef{
		ID:        strconv.FormatInt(id, 10),
		Kind:      kind,
		Location:  location,
		Key:       key,
		Rows:      rows,
		CreatedAt: at,
	}, nil
}

// ListRecent lists the most recent snapshots of any kind.
func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]SnapshotRef, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, location, snapshot_key, row_count, created_at FROM weather_snapshots ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent snapshots: %w", err)
	}
	defer rows.Close()

	refs := make([]SnapshotRef, 0)
	for rows.Next() {
		var (
			id        int64
			kind      string
			createdAt string
			ref       SnapshotRef
		)
		if err := rows.Scan(&id, &kind, &ref.Location, &ref.Key, &ref.Rows, &createdAt); err != nil {
			return nil, err
		}
		ref.ID = strconv.FormatInt(id, 10)
		ref.Kind = SnapshotKind(kind)
		if ref.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// AlertRecorded reports whether the alert's key is already stored.
func (s *SQLiteStore) AlertRecorded(ctx context.Context, rec AlertRecord) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrNotConfigured
	}
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM weather_alerts WHERE location = ? AND kind = ? AND observed_at = ?)`,
		rec.Location,
		string(rec.Kind),
		rec.ObservedAt.UTC().Format(sqliteTimeLayout),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup alert: %w", err)
	}
	return exists, nil
}

// InsertAlert records an alert; false means it was already recorded.
func (s *SQLiteStore) InsertAlert(ctx context.Context, rec AlertRecord) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrNotConfigured
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO weather_alerts (location, kind, observed_at, observed_value, threshold, channels, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (location, kind, observed_at) DO NOTHING`,
		rec.Location,
		string(rec.Kind),
		rec.ObservedAt.UTC().Format(sqliteTimeLayout),
		rec.Value,
		rec.Threshold,
		strings.Join(rec.Channels, ","),
		s.now().UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}
	return n > 0, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *SQLiteStore) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, location, kind, observed_at, observed_value, threshold, channels, created_at
		 FROM weather_alerts ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0)
	for rows.Next() {
		var (
			rec                   AlertRecord
			kind, channels        string
			observedAt, createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.Location, &kind, &observedAt, &rec.Value, &rec.Threshold, &channels, &createdAt); err != nil {
			return nil, err
		}
		rec.Kind = weather.ThresholdKind(kind)
		if channels != "" {
			rec.Channels = strings.Split(channels, ",")
		}
		if rec.ObservedAt, err = time.Parse(sqliteTimeLayout, observedAt); err != nil {
			return nil, fmt.Errorf("parse observed_at: %w", err)
		}
		if rec.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		alerts = append(alerts, rec)
	}
	return alerts, rows.Err()
}

var (
	_ SnapshotStore = (*SQLiteStore)(nil)
	_ AlertStore    = (*SQLiteStore)(nil)
	_ Pinger        = (*SQLiteStore)(nil)
)
