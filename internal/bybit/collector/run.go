package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"klinearchive/config"
	"klinearchive/internal/bybit/snapshot"
	"klinearchive/internal/fetcher"
	"klinearchive/internal/kline"
	"klinearchive/internal/metrics"
	"klinearchive/pkg/bybit"
	"klinearchive/pkg/storage/postgres"

	"go.uber.org/zap"
)

const (
	metricsPushTimeout = 5 * time.Second
	defaultPageLimit   = 200 // exchange default page size
	minRetryDelay      = time.Second
)

// Plan is a validated fetch configuration.
type Plan struct {
	Category string
	Job      Job
	Options  fetcher.Options
}

// NewPlan validates cfg and derives the values a fetch run needs. A window
// [start, start+span] holds span/interval+1 candles, so a zero page span
// becomes PageLimit-1 intervals and a configured one may not exceed that.
// A zero retry delay is raised to minRetryDelay.
func NewPlan(cfg config.FetchConfig) (Plan, error) {
	if !bybit.IsValidCategory(cfg.Category) {
		return Plan{}, fmt.Errorf("invalid category %q", cfg.Category)
	}
	meta, err := bybit.ParseKlineInterval(cfg.Interval)
	if err != nil {
		return Plan{}, err
	}
	strategy, err := fetcher.ParseStrategy(cfg.Strategy)
	if err != nil {
		return Plan{}, err
	}
	format, err := kline.ParseTimestampFormat(cfg.TimestampFormat)
	if err != nil {
		return Plan{}, err
	}

	start, err := config.ParseDate(cfg.StartDate)
	if err != nil {
		return Plan{}, fmt.Errorf("start_date: %w", err)
	}
	if start.IsZero() {
		return Plan{}, errors.New("start_date is required")
	}
	end, err := config.ParseDate(cfg.EndDate)
	if err != nil {
		return Plan{}, fmt.Errorf("end_date: %w", err)
	}
	if end.IsZero() && strategy == fetcher.StrategyWindow {
		return Plan{}, errors.New("end_date is required for the window strategy")
	}
	if !end.IsZero() && !end.After(start) {
		return Plan{}, fmt.Errorf("end_date %s is not after start_date %s", cfg.EndDate, cfg.StartDate)
	}

	if cfg.PageLimit < 0 || cfg.PageLimit > bybit.MaxKlineLimit {
		return Plan{}, fmt.Errorf("page_limit %d out of range 0..%d", cfg.PageLimit, bybit.MaxKlineLimit)
	}
	rows := cfg.PageLimit
	if rows == 0 {
		rows = defaultPageLimit
	}
	maxSpan := time.Duration(rows-1) * meta.Duration()
	span := cfg.PageSpan
	if strategy == fetcher.StrategyWindow {
		if maxSpan <= 0 {
			return Plan{}, fmt.Errorf("page_limit %d too small for the window strategy (need at least 2)", cfg.PageLimit)
		}
		if span <= 0 {
			span = maxSpan
		}
		if span > maxSpan {
			return Plan{}, fmt.Errorf("page_span %s holds more than page_limit %d candles (max %s)", span, rows, maxSpan)
		}
	}

	if cfg.Delay < 0 {
		return Plan{}, fmt.Errorf("delay %s is negative", cfg.Delay)
	}
	retryDelay := cfg.RetryDelay
	if retryDelay < 0 {
		return Plan{}, fmt.Errorf("retry_delay %s is negative", cfg.RetryDelay)
	}
	if retryDelay == 0 {
		retryDelay = minRetryDelay
	}

	endLabel := cfg.EndDate
	if endLabel == "" {
		endLabel = OpenEndLabel
	}

	return Plan{
		Category: cfg.Category,
		Job: Job{
			Interval:        meta,
			Start:           start,
			End:             end,
			StartLabel:      cfg.StartDate,
			EndLabel:        endLabel,
			OutputDir:       cfg.OutputDir,
			TimestampFormat: format,
		},
		Options: fetcher.Options{
			Category:   cfg.Category,
			Strategy:   strategy,
			PageSpan:   span,
			PageLimit:  cfg.PageLimit,
			Delay:      cfg.Delay,
			RetryDelay: retryDelay,
		},
	}, nil
}

// Run performs a whole fetch run from configuration: resolve symbols, fetch
// and save each, mirror to Postgres when enabled and push the run's metrics.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	plan, err := NewPlan(cfg.Fetch)
	if err != nil {
		return fmt.Errorf("invalid fetch config: %w", err)
	}

	restClient := bybit.NewRESTClient(cfg.Bybit.REST, cfg.Bybit.Credentials)
	m := metrics.New()

	var symbols []string
	if cfg.Fetch.AllUSDT {
		loader := &snapshot.SymbolLoader{
			Lister:   restClient,
			Category: plan.Category,
			Timeout:  cfg.Bybit.REST.Timeout,
			Logger:   logger,
		}
		symbols, err = ResolveSymbols(ctx, nil, loader)
	} else {
		symbols, err = ResolveSymbols(ctx, cfg.Fetch.Symbols, nil)
	}
	if err != nil {
		return err
	}
	if len(symbols) == 0 {
		return errors.New("no symbols to fetch")
	}

	var sink SeriesSink
	if cfg.Postgres.Enabled {
		postgresClient, err := postgres.InitializeAndMigrateKlineRecord(cfg.Postgres, cfg.Log.Environment, true)
		if err != nil {
			return fmt.Errorf("failed to connect to DB: %w", err)
		}
		defer postgresClient.Close()
		sink = postgresClient
	}

	logger.Info("starting fetch",
		zap.Int("symbols", len(symbols)),
		zap.String("category", plan.Category),
		zap.String("interval", plan.Job.Interval.Label),
		zap.String("strategy", string(plan.Options.Strategy)),
		zap.Duration("page_span", plan.Options.PageSpan),
		zap.String("start", plan.Job.StartLabel),
		zap.String("end", plan.Job.EndLabel),
	)

	f := fetcher.New(restClient, plan.Options, logger, m)
	results, runErr := New(f, sink, plan.Job, logger, m).Run(ctx, symbols)

	written := 0
	for _, r := range results {
		if r.Path != "" {
			written++
		}
	}
	logger.Info("fetch run finished", zap.Int("symbols", len(results)), zap.Int("files", written))

	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsPushTimeout)
	defer cancel()
	if err := m.Push(pushCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
		logger.Warn("failed to push metrics", zap.Error(err))
	}

	return runErr
}
