package storage

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"weather-ready/internal/weather"
)

// MemoryStore records snapshot references and alerts in process memory. It
// backs dry runs such as simulate-alert and is safe for concurrent use.
// Snapshot contents are not kept.
type MemoryStore struct {
	mu        sync.Mutex
	nextID    int64
	refs      []SnapshotRef
	alerts    []AlertRecord
	alertKeys map[string]struct{}
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		alertKeys: make(map[string]struct{}),
	}
}

func (m *MemoryStore) add(kind SnapshotKind, location string, at time.Time, rows int) SnapshotRef {
	m.nextID++
	ref := SnapshotRef{
		ID:        strconv.FormatInt(m.nextID, 10),
		Kind:      kind,
		Location:  location,
		Key:       snapshotKey(kind, at),
		Rows:      rows,
		CreatedAt: at,
	}
	m.refs = append(m.refs, ref)
	return ref
}

// SaveRaw records a raw snapshot.
func (m *MemoryStore) SaveRaw(ctx context.Context, s weather.Series, at time.Time) (SnapshotRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.add(KindRaw, s.Location, at, s.Len()), nil
}

// SaveClean records a cleaned snapshot.
func (m *MemoryStore) SaveClean(ctx context.Context, s weather.Series, at time.Time) (SnapshotRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.add(KindCleaned, s.Location, at, s.Len()), nil
}

// SaveReport records a report snapshot.
func (m *MemoryStore) SaveReport(ctx context.Context, location string, unit weather.TemperatureUnit, rows []weather.ReportRow, at time.Time) (SnapshotRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.add(KindReport, location, at, len(rows)), nil
}

// ListRecent lists snapshots newest first.
func (m *MemoryStore) ListRecent(ctx context.Context, limit int) ([]SnapshotRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SnapshotRef, len(m.refs))
	for i := range m.refs {
		out[i] = m.refs[len(m.refs)-1-i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func alertKey(rec AlertRecord) string {
	return rec.Location + "|" + string(rec.Kind) + "|" + rec.ObservedAt.UTC().Format(time.RFC3339Nano)
}

// AlertRecorded reports whether the alert's key is already stored.
func (m *MemoryStore) AlertRecorded(ctx context.Context, rec AlertRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.alertKeys[alertKey(rec)]
	return ok, nil
}

// InsertAlert records an alert; false means it was already recorded.
func (m *MemoryStore) InsertAlert(ctx context.Context, rec AlertRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := alertKey(rec)
	if _, dup := m.alertKeys[key]; dup {
		return false, nil
	}
	m.alertKeys[key] = struct{}{}
	rec.ID = int64(len(m.alerts) + 1)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.alerts = append(m.alerts, rec)
	return true, nil
}

// ListRecentAlerts lists alerts newest first.
func (m *MemoryStore) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AlertRecord, 0, len(m.alerts))
	for i := len(m.alerts) - 1; i >= 0; i-- {
		out = append(out, m.alerts[i])
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

var (
	_ SnapshotStore = (*MemoryStore)(nil)
	_ AlertStore    = (*MemoryStore)(nil)
)
