package merger

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"klinearchive/internal/kline"
	"klinearchive/internal/metrics"
	"klinearchive/pkg/storage/csvfile"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WideTable is a closing-price matrix: one row per timestamp, one column per
// symbol. A cell is invalid when the symbol had no usable close at that
// timestamp.
type WideTable struct {
	Symbols    []string
	Timestamps []string
	cells      map[string]map[string]decimal.NullDecimal // timestamp -> symbol -> close
}

// Close returns the cell for (timestamp, symbol).
func (t *WideTable) Close(timestamp, symbol string) decimal.NullDecimal {
	return t.cells[timestamp][symbol]
}

// Records renders the table for CSV; invalid cells become empty strings.
func (t *WideTable) Records() [][]string {
	rows := make([][]string, 0, len(t.Timestamps)+1)
	rows = append(rows, append([]string{"timestamp"}, t.Symbols...))
	for _, ts := range t.Timestamps {
		row := make([]string, 0, len(t.Symbols)+1)
		row = append(row, ts)
		for _, sym := range t.Symbols {
			cell := t.cells[ts][sym]
			if cell.Valid {
				row = append(row, cell.Decimal.String())
			} else {
				row = append(row, "")
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// Wide joins per-symbol closing prices on timestamp.
type Wide struct {
	resolver ColumnResolver
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewWide(resolver ColumnResolver, logger *zap.Logger, m *metrics.Metrics) *Wide {
	if resolver == nil {
		resolver = SniffingResolver{}
	}
	return &Wide{resolver: resolver, logger: logger, metrics: m}
}

// SymbolFromFilename returns the text before the first underscore of the
// file's base name, e.g. "BTCUSDT" for "BTCUSDT_D_data.csv".
func SymbolFromFilename(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	symbol, _, _ := strings.Cut(name, "_")
	return symbol
}

// Build reads files and outer-joins them. Files whose columns cannot be
// resolved, or that cannot be read, are logged and skipped. When two files
// map to the same symbol the later one replaces the earlier one's data.
// It returns nil when no file could be used.
func (w *Wide) Build(files []string) *WideTable {
	var symbols []string
	series := map[string]map[string]decimal.NullDecimal{}

	for _, path := range files {
		symbol := SymbolFromFilename(path)
		log := w.logger.With(zap.String("symbol", symbol), zap.String("file", filepath.Base(path)))
		log.Info("processing file")

		closes, err := w.readCloses(path, log)
		if err != nil {
			log.Warn("skipping file", zap.Error(err))
			w.metrics.FileSkipped()
			continue
		}
		if _, ok := series[symbol]; !ok {
			symbols = append(symbols, symbol)
		}
		series[symbol] = closes
	}

	if len(symbols) == 0 {
		return nil
	}

	cells := map[string]map[string]decimal.NullDecimal{}
	for _, sym := range symbols {
		for ts, v := range series[sym] {
			row, ok := cells[ts]
			if !ok {
				row = map[string]decimal.NullDecimal{}
				cells[ts] = row
			}
			row[sym] = v
		}
	}

	timestamps := make([]string, 0, len(cells))
	for ts := range cells {
		timestamps = append(timestamps, ts)
	}
	sortTimestamps(timestamps)

	return &WideTable{Symbols: symbols, Timestamps: timestamps, cells: cells}
}

func (w *Wide) readCloses(path string, log *zap.Logger) (map[string]decimal.NullDecimal, error) {
	header, rows, err := csvfile.ReadAll(path)
	if err != nil {
		return nil, err
	}

	tsCol, err := w.resolver.TimestampColumn(header)
	if err != nil {
		return nil, err
	}
	if header[tsCol] != "timestamp" {
		log.Warn("no timestamp column, using alternative", zap.String("column", header[tsCol]))
	}
	closeCol, err := w.resolver.CloseColumn(header)
	if err != nil {
		return nil, err
	}

	closes := make(map[string]decimal.NullDecimal, len(rows))
	for _, row := range rows {
		if tsCol >= len(row) {
			continue
		}
		ts := strings.TrimSpace(row[tsCol])
		if ts == "" {
			continue
		}
		var cell decimal.NullDecimal
		if closeCol < len(row) {
			if d, err := decimal.NewFromString(strings.TrimSpace(row[closeCol])); err == nil {
				cell = decimal.NullDecimal{Decimal: d, Valid: true}
			}
		}
		closes[ts] = cell
	}
	return closes, nil
}

// Run merges every *.csv in inputDir into outputFile (versioned when taken)
// and returns the path written. With no usable input it writes nothing and
// returns an empty path.
func (w *Wide) Run(inputDir, outputFile string) (string, error) {
	files, err := filepath.Glob(filepath.Join(inputDir, "*.csv"))
	if err != nil {
		return "", fmt.Errorf("list %s: %w", inputDir, err)
	}
	files = excludeOutputs(files, outputFile)
	slices.Sort(files)

	if len(files) == 0 {
		w.logger.Warn("no CSV files found", zap.String("dir", inputDir))
		return "", nil
	}
	w.logger.Info("found CSV files to process", zap.Int("count", len(files)))

	table := w.Build(files)
	if table == nil {
		w.logger.Warn("no data was processed successfully")
		return "", nil
	}

	w.logger.Info("combining asset data", zap.Int("assets", len(table.Symbols)))
	dir := filepath.Dir(outputFile)
	base := strings.TrimSuffix(filepath.Base(outputFile), filepath.Ext(outputFile))
	path, err := csvfile.SaveRecords(dir, base, table.Records())
	if err != nil {
		return "", err
	}
	w.metrics.FileWritten()

	w.logger.Info("combined data saved",
		zap.String("path", path),
		zap.Int("rows", len(table.Timestamps)),
		zap.Int("assets", len(table.Symbols)),
	)
	return path, nil
}

// excludeOutputs drops outputFile and its versioned siblings from files.
func excludeOutputs(files []string, outputFile string) []string {
	outAbs, err := filepath.Abs(outputFile)
	if err != nil {
		return files
	}
	ext := filepath.Ext(outAbs)
	outBase := strings.TrimSuffix(outAbs, ext)

	kept := files[:0]
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err == nil && (abs == outAbs || isVersionOf(abs, outBase, ext)) {
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

// isVersionOf reports whether path is base_v<N>ext.
func isVersionOf(path, base, ext string) bool {
	rest, ok := strings.CutPrefix(path, base+"_v")
	if !ok {
		return false
	}
	n, ok := strings.CutSuffix(rest, ext)
	if !ok || n == "" {
		return false
	}
	for _, r := range n {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// sortTimestamps orders parseable timestamps chronologically, then anything
// unparseable lexically after them.
func sortTimestamps(ts []string) {
	parsed := make(map[string]time.Time, len(ts))
	for _, s := range ts {
		if t, err := kline.ParseTimestamp(s); err == nil {
			parsed[s] = t
		}
	}
	slices.SortFunc(ts, func(a, b string) int {
		ta, okA := parsed[a]
		tb, okB := parsed[b]
		switch {
		case okA && okB:
			if c := ta.Compare(tb); c != 0 {
				return c
			}
			return strings.Compare(a, b)
		case okA:
			return -1
		case okB:
			return 1
		default:
			return strings.Compare(a, b)
		}
	})
}
