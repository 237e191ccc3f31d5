package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"klinearchive/internal/bybit/memorystore"
	"klinearchive/internal/bybit/snapshot"
	"klinearchive/internal/fetcher"
	"klinearchive/internal/kline"
	"klinearchive/internal/metrics"
	"klinearchive/pkg/bybit"
	"klinearchive/pkg/storage/csvfile"

	"go.uber.org/zap"
)

// OpenEndLabel replaces the end date in file names of open-ended runs.
const OpenEndLabel = "latest"

// SeriesFetcher assembles one symbol's series. *fetcher.Fetcher implements it.
type SeriesFetcher interface {
	Fetch(ctx context.Context, req fetcher.Request) (kline.Series, error)
}

// SeriesSink mirrors a saved series somewhere else.
// *postgres.PostgresClient implements it.
type SeriesSink interface {
	UpsertKlines(ctx context.Context, symbol, interval string, width time.Duration, series kline.Series) (int64, error)
}

// Job is the part of a run shared by every symbol.
type Job struct {
	Interval        bybit.KlineIntervalMeta
	Start           time.Time
	End             time.Time // zero for open-ended cursor runs
	StartLabel      string
	EndLabel        string
	OutputDir       string
	TimestampFormat kline.TimestampFormat
}

type Collector struct {
	fetcher SeriesFetcher
	sink    SeriesSink
	job     Job
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New builds a Collector. sink and m may be nil.
func New(f SeriesFetcher, sink SeriesSink, job Job, logger *zap.Logger, m *metrics.Metrics) *Collector {
	if job.EndLabel == "" {
		job.EndLabel = OpenEndLabel
	}
	return &Collector{fetcher: f, sink: sink, job: job, logger: logger, metrics: m}
}

// Result reports what happened to one symbol.
type Result struct {
	Symbol string
	Path   string // empty when nothing was written
	Klines int
	Err    error
}

// Run fetches and saves each symbol in turn. A failing symbol does not stop
// the others; whatever it fetched before failing is still saved. The returned
// error joins every symbol's failure.
func (c *Collector) Run(ctx context.Context, symbols []string) ([]Result, error) {
	results := make([]Result, 0, len(symbols))
	var errs []error

	for i, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		c.logger.Info("fetching symbol",
			zap.String("symbol", symbol),
			zap.Int("index", i+1),
			zap.Int("total", len(symbols)),
		)

		res := c.collect(ctx, symbol)
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
		results = append(results, res)
	}

	return results, errors.Join(errs...)
}

func (c *Collector) collect(ctx context.Context, symbol string) Result {
	log := c.logger.With(zap.String("symbol", symbol))
	res := Result{Symbol: symbol}

	series, err := c.fetcher.Fetch(ctx, fetcher.Request{
		Symbol:   symbol,
		Interval: c.job.Interval.APIValue,
		Start:    c.job.Start,
		End:      c.job.End,
	})
	if err != nil {
		log.Warn("fetch ended with error", zap.Int("klines", len(series)), zap.Error(err))
		res.Err = fmt.Errorf("%s: %w", symbol, err)
	}
	res.Klines = len(series)

	if len(series) == 0 {
		log.Warn("no data fetched for symbol")
		return res
	}

	base := csvfile.SeriesBaseName(symbol, c.job.Interval.Label, c.job.StartLabel, c.job.EndLabel)
	path, err := csvfile.SaveSeries(c.job.OutputDir, base, series, c.job.TimestampFormat)
	if err != nil {
		log.Error("failed to save series", zap.Error(err))
		res.Err = errors.Join(res.Err, fmt.Errorf("%s: %w", symbol, err))
		return res
	}
	res.Path = path
	c.metrics.FileWritten()
	log.Info("data saved", zap.String("path", path), zap.Int("klines", len(series)))

	if c.sink != nil {
		n, err := c.sink.UpsertKlines(ctx, symbol, c.job.Interval.Label, c.job.Interval.Duration(), series)
		if err != nil {
			log.Warn("failed to mirror series", zap.Error(err))
			res.Err = errors.Join(res.Err, fmt.Errorf("%s: mirror: %w", symbol, err))
			return res
		}
		log.Debug("series mirrored", zap.Int64("rows", n))
	}

	return res
}

// ResolveSymbols merges the configured symbols with, when loader is set, the
// exchange's USDT symbol listing. Order is configured first, then listed;
// repeats are dropped.
func ResolveSymbols(ctx context.Context, configured []string, loader *snapshot.SymbolLoader) ([]string, error) {
	store := memorystore.NewSymbolStore()
	for _, s := range configured {
		store.Add(s)
	}

	if loader != nil {
		symbolCh := make(chan string, 100)
		done := store.StartWorker(symbolCh)
		err := loader.LoadSymbols(ctx, symbolCh)
		<-done
		if err != nil {
			return nil, fmt.Errorf("load symbols: %w", err)
		}
	}

	return store.GetAll(), nil
}
