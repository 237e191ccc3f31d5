package merger

import (
	"cmp"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"klinearchive/internal/kline"
	"klinearchive/internal/metrics"
	"klinearchive/pkg/storage/csvfile"

	"go.uber.org/zap"
)

const concatenatedSuffix = "_concatenated"

// ConcatOptions select the batch files of one series.
type ConcatOptions struct {
	Dir    string
	Prefix string // files named <Prefix>_*.csv are merged
	Save   bool   // write <Prefix>_concatenated.csv into Dir
}

// Table is a long table keyed by its first column, "timestamp".
type Table struct {
	Header []string
	Rows   [][]string
}

// Concat assembles one series from several fetch batches.
type Concat struct {
	resolver ColumnResolver
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewConcat(resolver ColumnResolver, logger *zap.Logger, m *metrics.Metrics) *Concat {
	if resolver == nil {
		resolver = SniffingResolver{}
	}
	return &Concat{resolver: resolver, logger: logger, metrics: m}
}

type concatRow struct {
	ms     int64
	values map[string]string
}

// Run concatenates the batch files, keeps the last row seen for each
// timestamp, rewrites timestamps as kline.DatetimeLayout and sorts
// ascending. Files are read in lexical order. The written path is returned
// when opts.Save is set.
func (c *Concat) Run(opts ConcatOptions) (*Table, string, error) {
	files, err := filepath.Glob(filepath.Join(opts.Dir, opts.Prefix+"_*.csv"))
	if err != nil {
		return nil, "", fmt.Errorf("list %s: %w", opts.Dir, err)
	}
	files = slices.DeleteFunc(files, func(f string) bool {
		return strings.Contains(filepath.Base(f), concatenatedSuffix)
	})
	slices.Sort(files)
	if len(files) == 0 {
		return nil, "", fmt.Errorf("%w: %s_*.csv in %s", ErrNoInput, opts.Prefix, opts.Dir)
	}

	var (
		columns []string
		known   = map[string]bool{}
		index   = map[int64]int{}
		rows    []concatRow
	)

	for _, path := range files {
		log := c.logger.With(zap.String("file", filepath.Base(path)))

		header, records, err := csvfile.ReadAll(path)
		if err != nil {
			log.Warn("skipping file", zap.Error(err))
			c.metrics.FileSkipped()
			continue
		}
		tsCol, err := c.resolver.TimestampColumn(header)
		if err != nil {
			log.Warn("skipping file", zap.Error(err))
			c.metrics.FileSkipped()
			continue
		}

		for i, col := range header {
			if i != tsCol && !known[col] {
				known[col] = true
				columns = append(columns, col)
			}
		}

		badRows := 0
		for _, rec := range records {
			if tsCol >= len(rec) {
				badRows++
				continue
			}
			t, err := kline.ParseTimestamp(rec[tsCol])
			if err != nil {
				badRows++
				continue
			}

			values := make(map[string]string, len(header))
			for i, col := range header {
				if i != tsCol && i < len(rec) {
					values[col] = rec[i]
				}
			}

			row := concatRow{ms: t.UnixMilli(), values: values}
			if at, ok := index[row.ms]; ok {
				rows[at] = row
				continue
			}
			index[row.ms] = len(rows)
			rows = append(rows, row)
		}
		if badRows > 0 {
			log.Warn("dropped rows with unreadable timestamps", zap.Int("rows", badRows))
		}
		log.Debug("read batch", zap.Int("rows", len(records)))
	}

	slices.SortFunc(rows, func(a, b concatRow) int { return cmp.Compare(a.ms, b.ms) })

	table := &Table{Header: append([]string{"timestamp"}, columns...)}
	table.Rows = make([][]string, 0, len(rows))
	for _, r := range rows {
		out := make([]string, 0, len(table.Header))
		out = append(out, kline.FormatTimestamp(r.ms, kline.TimestampDatetime))
		for _, col := range columns {
			out = append(out, r.values[col])
		}
		table.Rows = append(table.Rows, out)
	}

	c.logger.Info("concatenated batches",
		zap.String("prefix", opts.Prefix),
		zap.Int("files", len(files)),
		zap.Int("rows", len(table.Rows)),
	)

	if !opts.Save {
		return table, "", nil
	}

	records := append([][]string{table.Header}, table.Rows...)
	path, err := csvfile.SaveRecords(opts.Dir, opts.Prefix+concatenatedSuffix, records)
	if err != nil {
		return table, "", err
	}
	c.metrics.FileWritten()
	c.logger.Info("concatenated data saved", zap.String("path", path))
	return table, path, nil
}
