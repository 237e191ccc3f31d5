// Package csvfile reads and writes the CSV artifacts produced by fetch and
// merge runs. Artifacts are never overwritten: a name that is already taken
// gets a _v1, _v2, ... suffix.
package csvfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"klinearchive/internal/kline"
)

// SeriesBaseName names a fetched series: {symbol}_{interval}_{start}_to_{end}.
func SeriesBaseName(symbol, interval, startDate, endDate string) string {
	return fmt.Sprintf("%s_%s_%s_to_%s", symbol, interval, startDate, endDate)
}

// VersionedPath returns dir/base.csv, or the first free dir/base_vN.csv when
// that name is taken.
func VersionedPath(dir, base string) (string, error) {
	path := filepath.Join(dir, base+".csv")
	for version := 1; ; version++ {
		_, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", path, err)
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_v%d.csv", base, version))
	}
}

// SaveSeries writes s under a versioned name in dir and returns the path.
func SaveSeries(dir, base string, s kline.Series, format kline.TimestampFormat) (string, error) {
	return SaveRecords(dir, base, s.Records(format))
}

// SaveRecords writes rows under a versioned name in dir, creating dir when
// needed, and returns the path written.
func SaveRecords(dir, base string, rows [][]string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path, err := VersionedPath(dir, base)
	if err != nil {
		return "", err
	}
	if err := writeNew(path, rows); err != nil {
		return "", err
	}
	return path, nil
}

// writeNew creates path exclusively, so a concurrent writer that raced past
// VersionedPath fails instead of clobbering.
func writeNew(path string, rows [][]string) (err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ReadAll reads a CSV file with a header row. Rows may have fewer or more
// fields than the header.
func ReadAll(path string) (header []string, rows [][]string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("%s: empty file", path)
	}
	return records[0], records[1:], nil
}
