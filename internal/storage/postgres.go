package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"weather-ready/internal/weather"
)

const (
	createSchemaSQL = `
CREATE TABLE IF NOT EXISTS weather_snapshots (
    id           BIGSERIAL PRIMARY KEY,
    kind         TEXT        NOT NULL,
    location     TEXT        NOT NULL,
    snapshot_key TEXT        NOT NULL,
    row_count    INTEGER     NOT NULL,
    payload      JSONB       NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_weather_snapshots_location_key
    ON weather_snapshots (location, kind, snapshot_key);
CREATE TABLE IF NOT EXISTS weather_alerts (
    id             BIGSERIAL PRIMARY KEY,
    location       TEXT             NOT NULL,
    kind           TEXT             NOT NULL,
    observed_at    TIMESTAMPTZ      NOT NULL,
    observed_value DOUBLE PRECISION NOT NULL,
    threshold      DOUBLE PRECISION NOT NULL,
    channels       TEXT[]           NOT NULL DEFAULT '{}',
    created_at     TIMESTAMPTZ      NOT NULL DEFAULT now(),
    UNIQUE (location, kind, observed_at)
);`

	insertSnapshotSQL = `INSERT INTO weather_snapshots (
        kind,
        location,
        snapshot_key,
        row_count,
        payload,
        created_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    RETURNING id;`

	listRecentSnapshotsSQL = `SELECT
        id,
        kind,
        location,
        snapshot_key,
        row_count,
        created_at
    FROM weather_snapshots
    ORDER BY created_at DESC, id DESC
    LIMIT $1;`

	insertAlertSQL = `INSERT INTO weather_alerts (
        location,
        kind,
        observed_at,
        observed_value,
        threshold,
        channels
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (location, kind, observed_at) DO NOTHING;`

	alertRecordedSQL = `SELECT EXISTS (
        SELECT 1 FROM weather_alerts
        WHERE location = $1 AND kind = $2 AND observed_at = $3
    );`

	listRecentAlertsSQL = `SELECT
        id,
        location,
        kind,
        observed_at,
        observed_value,
        threshold,
        channels,
        created_at
    FROM weather_alerts
    ORDER BY created_at DESC, id DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PGStore keeps snapshots and alert records in PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wires a pgx pool into a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *PGStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *PGStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the snapshot and alert tables when missing.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createSchemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *PGStore) Ping(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// SaveRaw inserts a raw series snapshot.
func (s *PGStore) SaveRaw(ctx context.Context, series weather.Series, at time.Time) (SnapshotRef, error) {
	return s.insert(ctx, KindRaw, series.Location, at, series.Len(), newSeriesPayload(series))
}

// SaveClean inserts a cleaned series snapshot.
func (s *PGStore) SaveClean(ctx context.Context, series weather.Series, at time.Time) (SnapshotRef, error) {
	return s.insert(ctx, KindCleaned, series.Location, at, series.Len(), newSeriesPayload(series))
}

// SaveReport inserts a report snapshot keyed by the write date.
func (s *PGStore) SaveReport(ctx context.Context, location string, unit weather.TemperatureUnit, rows []weather.ReportRow, at time.Time) (SnapshotRef, error) {
	payload := reportPayload{Location: location, Unit: unit, Columns: weather.ReportColumns(unit), Rows: rows}
	return s.insert(ctx, KindReport, location, at, len(rows), payload)
}

func (s *PGStore) insert(ctx context.Context, kind SnapshotKind, location string, at time.Time, rows int, payload any) (SnapshotRef, error) {
	pool, err := s.getPool()
	if err != nil {
		return SnapshotRef{}, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return SnapshotRef{}, fmt.Errorf("encode %s snapshot: %w", kind, err)
	}

	key := snapshotKey(kind, at)
	var id int64
	if err := pool.QueryRow(ctx, insertSnapshotSQL, string(kind), location, key, rows, body, at).Scan(&id); err != nil {
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
func (s *PGStore) ListRecent(ctx context.Context, limit int) ([]SnapshotRef, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSnapshotsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent snapshots: %w", queryErr)
	}
	defer rows.Close()

	refs := make([]SnapshotRef, 0, limit)
	for rows.Next() {
		ref, scanErr := scanSnapshotRef(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		refs = append(refs, ref)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return refs, nil
}

// AlertRecorded reports whether the alert's key is already stored.
func (s *PGStore) AlertRecorded(ctx context.Context, rec AlertRecord) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	var exists bool
	if err := pool.QueryRow(ctx, alertRecordedSQL, rec.Location, string(rec.Kind), rec.ObservedAt).Scan(&exists); err != nil {
		return false, fmt.Errorf("lookup alert: %w", err)
	}
	return exists, nil
}

// InsertAlert records an alert; false means it was already recorded.
func (s *PGStore) InsertAlert(ctx context.Context, rec AlertRecord) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	channels := rec.Channels
	if channels == nil {
		channels = []string{}
	}
	tag, execErr := pool.Exec(ctx, insertAlertSQL,
		rec.Location,
		string(rec.Kind),
		rec.ObservedAt,
		rec.Value,
		rec.Threshold,
		channels,
	)
	if execErr != nil {
		return false, fmt.Errorf("insert alert: %w", execErr)
	}
	return tag.RowsAffected() > 0, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *PGStore) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var (
			rec  AlertRecord
			kind string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.Location,
			&kind,
			&rec.ObservedAt,
			&rec.Value,
			&rec.Threshold,
			&rec.Channels,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.Kind = weather.ThresholdKind(kind)
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *PGStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func scanSnapshotRef(rows pgx.Rows) (SnapshotRef, error) {
	var (
		id   int64
		kind string
		ref  SnapshotRef
	)
	if err := rows.Scan(&id, &kind, &ref.Location, &ref.Key, &ref.Rows, &ref.CreatedAt); err != nil {
		return SnapshotRef{}, err
	}
	ref.ID = strconv.FormatInt(id, 10)
	ref.Kind = SnapshotKind(kind)
	return ref, nil
}

var (
	_ SnapshotStore  = (*PGStore)(nil)
	_ AlertStore     = (*PGStore)(nil)
	_ AdvisoryLocker = (*PGStore)(nil)
	_ Pinger         = (*PGStore)(nil)
)
