// Package fetcher pages through the kline endpoint for one symbol and
// interval and assembles the pages into a Series.
//
// Two pagination strategies exist because the exchange either honours the
// requested end of a window or answers with its natural page boundary:
//
//   - StrategyWindow walks fixed-width windows [current, current+span] and
//     stops at the first empty page.
//   - StrategyCursor asks from the cursor onward and moves the cursor to the
//     newest start time received. A one-row page, an empty page, a cursor at
//     or past End, or a cursor that fails to advance ends the loop.
//
// Failed requests are retried on the same window at a fixed delay with no
// attempt limit; only context cancellation or an error the exchange marks as
// permanent stops them.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"klinearchive/internal/kline"
	"klinearchive/internal/metrics"
	"klinearchive/pkg/bybit"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// KlineSource serves one page of klines. *bybit.RESTClient implements it.
type KlineSource interface {
	GetKlines(ctx context.Context, q bybit.KlineQuery) ([]kline.Kline, error)
}

type Strategy string

const (
	StrategyWindow Strategy = "window"
	StrategyCursor Strategy = "cursor"
)

// ParseStrategy validates a configured strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case StrategyWindow, StrategyCursor:
		return st, nil
	case "":
		return StrategyWindow, nil
	default:
		return "", fmt.Errorf("invalid fetch strategy %q (want window or cursor)", s)
	}
}

// Options tune a Fetcher.
type Options struct {
	Category   string
	Strategy   Strategy
	PageSpan   time.Duration // window width for StrategyWindow
	PageLimit  int           // rows per request, 0 for the exchange default
	Delay      time.Duration // minimum spacing between requests
	RetryDelay time.Duration // pause before retrying a failed request
}

// Request describes one series. End may be zero for StrategyCursor, meaning
// "until the exchange runs out".
type Request struct {
	Symbol   string
	Interval string
	Start    time.Time
	End      time.Time
}

type Fetcher struct {
	source  KlineSource
	opts    Options
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New builds a Fetcher. m may be nil.
func New(source KlineSource, opts Options, logger *zap.Logger, m *metrics.Metrics) *Fetcher {
	limit := rate.Inf
	if opts.Delay > 0 {
		limit = rate.Every(opts.Delay)
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyWindow
	}
	return &Fetcher{
		source:  source,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		metrics: m,
	}
}

// Fetch collects the series described by req. The result is de-duplicated
// by start time (last fetched wins) and sorted ascending. On error the
// klines gathered so far are still returned.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (kline.Series, error) {
	log := f.logger.With(
		zap.String("symbol", req.Symbol),
		zap.String("interval", req.Interval),
		zap.String("strategy", string(f.opts.Strategy)),
	)

	var (
		fetched []kline.Kline
		stats   runStats
		err     error
	)
	switch f.opts.Strategy {
	case StrategyWindow:
		fetched, stats, err = f.fetchWindow(ctx, req, log)
	case StrategyCursor:
		fetched, stats, err = f.fetchCursor(ctx, req, log)
	default:
		return nil, fmt.Errorf("unknown fetch strategy %q", f.opts.Strategy)
	}

	series := kline.Normalize(fetched)
	if f.opts.Strategy == StrategyCursor && !req.End.IsZero() {
		series = series.Until(req.End.UnixMilli())
	}

	log.Info("fetch finished",
		zap.Int("requests", stats.requests),
		zap.Int("fetched", stats.rows),
		zap.Int("kept", len(series)),
	)
	return series, err
}

type runStats struct {
	requests int
	rows     int
}

func (f *Fetcher) fetchWindow(ctx context.Context, req Request, log *zap.Logger) ([]kline.Kline, runStats, error) {
	var (
		data  []kline.Kline
		stats runStats
	)
	if f.opts.PageSpan <= 0 {
		return nil, stats, errors.New("window strategy needs a positive page span")
	}
	if req.End.IsZero() {
		return nil, stats, errors.New("window strategy needs an end time")
	}

	current := req.Start
	for current.Before(req.End) {
		next := current.Add(f.opts.PageSpan)
		if next.After(req.End) {
			next = req.End
		}

		page, err := f.page(ctx, req, current, next, log)
		stats.requests++
		if err != nil {
			return data, stats, err
		}
		if len(page) == 0 {
			log.Info("no more data to fetch")
			break
		}

		data = append(data, page...)
		stats.rows += len(page)
		current = next

		log.Info("fetched page",
			zap.Int("rows", len(page)),
			zap.Int("total", stats.rows),
			zap.String("progress", fmt.Sprintf("%.2f%%", progress(req.Start, current, req.End))),
		)
	}
	return data, stats, nil
}

func (f *Fetcher) fetchCursor(ctx context.Context, req Request, log *zap.Logger) ([]kline.Kline, runStats, error) {
	var (
		data  []kline.Kline
		stats runStats
	)

	cursor := req.Start.UnixMilli()
	for {
		page, err := f.page(ctx, req, time.UnixMilli(cursor).UTC(), time.Time{}, log)
		stats.requests++
		if err != nil {
			return data, stats, err
		}
		if len(page) == 0 {
			log.Info("no more data to fetch")
			break
		}

		data = append(data, page...)
		stats.rows += len(page)

		newest := page[0].Start
		for _, k := range page[1:] {
			newest = max(newest, k.Start)
		}

		log.Info("fetched page",
			zap.Int("rows", len(page)),
			zap.Int("total", stats.rows),
			zap.Time("cursor", time.UnixMilli(newest).UTC()),
		)

		if !req.End.IsZero() && newest >= req.End.UnixMilli() {
			log.Info("reached end date", zap.Time("end", req.End.UTC()))
			break
		}
		if len(page) == 1 {
			break
		}
		if newest <= cursor {
			log.Warn("cursor did not advance, stopping", zap.Int64("cursor", cursor))
			break
		}
		cursor = newest
	}
	return data, stats, nil
}

// retryable is implemented by errors that know whether a retry can help.
type retryable interface {
	Retryable() bool
}

// page requests one page, throttled by the limiter and retried forever at
// RetryDelay unless ctx ends or the error is permanent.
func (f *Fetcher) page(ctx context.Context, req Request, start, end time.Time, log *zap.Logger) ([]kline.Kline, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := bybit.KlineQuery{
		Category: f.opts.Category,
		Symbol:   req.Symbol,
		Interval: req.Interval,
		Start:    start,
		End:      end,
		Limit:    f.opts.PageLimit,
	}

	var page []kline.Kline
	operation := func() error {
		var err error
		page, err = f.source.GetKlines(ctx, q)
		f.metrics.Request(err)
		if err == nil {
			return nil
		}
		var r retryable
		if errors.As(err, &r) && !r.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("error fetching data, retrying",
			zap.Time("start", start.UTC()),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(f.opts.RetryDelay), ctx)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, fmt.Errorf("fetch %s from %s: %w", req.Symbol, start.UTC().Format(time.RFC3339), err)
	}

	f.metrics.Klines(len(page))
	return page, nil
}

func progress(start, current, end time.Time) float64 {
	total := end.Sub(start)
	if total <= 0 {
		return 100
	}
	return float64(current.Sub(start)) / float64(total) * 100
}
