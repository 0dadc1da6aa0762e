package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"weather-ready/internal/weather"
)

const maxNameAttempts = 1000

var snapshotFileName = regexp.MustCompile(`^(.+)_(raw|cleaned|hourly_report)_(\d{8}(?:_\d{6})?)(?:_\d+)?\.csv$`)

// FileStore writes snapshots as CSV files, one directory per kind.
type FileStore struct {
	dirs map[SnapshotKind]string
	mu   sync.Mutex
}

// NewFileStore returns a CSV snapshot store. Directories are created on first write.
func NewFileStore(rawDir, cleanDir, reportDir string) *FileStore {
	return &FileStore{dirs: map[SnapshotKind]string{
		KindRaw:     rawDir,
		KindCleaned: cleanDir,
		KindReport:  reportDir,
	}}
}

// SaveRaw writes <LOC>_raw_<YYYYmmdd_HHMMSS>.csv.
func (f *FileStore) SaveRaw(ctx context.Context, s weather.Series, at time.Time) (SnapshotRef, error) {
	return f.write(KindRaw, s.Location, at, seriesHeader, seriesRecords(s))
}

// SaveClean writes <LOC>_cleaned_<YYYYmmdd_HHMMSS>.csv.
func (f *FileStore) SaveClean(ctx context.Context, s weather.Series, at time.Time) (SnapshotRef, error) {
	return f.write(KindCleaned, s.Location, at, seriesHeader, seriesRecords(s))
}

// SaveReport writes <LOC>_hourly_report_<YYYYmmdd>.csv.
func (f *FileStore) SaveReport(ctx context.Context, location string, unit weather.TemperatureUnit, rows []weather.ReportRow, at time.Time) (SnapshotRef, error) {
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.Record())
	}
	return f.write(KindReport, location, at, weather.ReportColumns(unit), records)
}

func (f *FileStore) write(kind SnapshotKind, location string, at time.Time, header []string, records [][]string) (SnapshotRef, error) {
	dir := f.dirs[kind]
	if dir == "" {
		return SnapshotRef{}, fmt.Errorf("%w: no directory for %s snapshots", ErrNotConfigured, kind)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return SnapshotRef{}, fmt.Errorf("create %s: %w", dir, err)
	}

	key := snapshotKey(kind, at)
	base := fmt.Sprintf("%s_%s_%s", FileSafe(location), kind, key)

	f.mu.Lock()
	file, name, err := createUnique(dir, base)
	f.mu.Unlock()
	if err != nil {
		return SnapshotRef{}, err
	}

	w := csv.NewWriter(file)
	if err := w.Write(header); err != nil {
		_ = file.Close()
		return SnapshotRef{}, fmt.Errorf("write header: %w", err)
	}
	if err := w.WriteAll(records); err != nil {
		_ = file.Close()
		return SnapshotRef{}, fmt.Errorf("write rows: %w", err)
	}
	if err := file.Close(); err != nil {
		return SnapshotRef{}, fmt.Errorf("close %s: %w", name, err)
	}

	return SnapshotRef{
		ID:        name,
		Kind:      kind,
		Location:  location,
		Key:       key,
		Rows:      len(records),
		CreatedAt: at,
	}, nil
}

// createUnique opens base.csv exclusively, falling back to base_1.csv, base_2.csv, ...
func createUnique(dir, base string) (*os.File, string, error) {
	for i := 0; i < maxNameAttempts; i++ {
		name := base + ".csv"
		if i > 0 {
			name = fmt.Sprintf("%s_%d.csv", base, i)
		}
		path := filepath.Join(dir, name)
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return file, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("create %s: %w", path, err)
		}
	}
	return nil, "", fmt.Errorf("no free snapshot name for %s in %s", base, dir)
}

// FileSafe makes a location name usable inside a file name.
func FileSafe(location string) string {
	return strings.NewReplacer("/", "_", `\`, "_", " ", "_").Replace(location)
}

// ListRecent lists snapshot files across all kinds, newest first.
func (f *FileStore) ListRecent(ctx context.Context, limit int) ([]SnapshotRef, error) {
	refs := make([]SnapshotRef, 0)
	for _, kind := range []SnapshotKind{KindRaw, KindCleaned, KindReport} {
		dir := f.dirs[kind]
		if dir == "" {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			m := snapshotFileName.FindStringSubmatch(e.Name())
			if m == nil || SnapshotKind(m[2]) != kind {
				continue
			}
			info, err := e.Info()
			if err != nil {
				return nil, err
			}
			path := filepath.Join(dir, e.Name())
			rows, err := countRows(path)
			if err != nil {
				return nil, err
			}
			refs = append(refs, SnapshotRef{
				ID:        path,
				Kind:      kind,
				Location:  m[1],
				Key:       m[3],
				Rows:      rows,
				CreatedAt: info.ModTime(),
			})
		}
	}

	sort.SliceStable(refs, func(i, j int) bool {
		if !refs[i].CreatedAt.Equal(refs[j].CreatedAt) {
			return refs[i].CreatedAt.After(refs[j].CreatedAt)
		}
		return refs[i].ID > refs[j].ID
	})
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

func countRows(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) == 0 {
		return 0, nil
	}
	return len(records) - 1, nil
}

// Close is a no-op for the file store.
func (f *FileStore) Close() error {
	return nil
}

var _ SnapshotStore = (*FileStore)(nil)
