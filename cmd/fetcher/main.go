package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"klinearchive/config"
	"klinearchive/internal/bybit/collector"
	"klinearchive/logger"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// flagBindings maps config keys to the flags that override them.
var flagBindings = map[string]string{
	"fetch.category":         "category",
	"fetch.symbols":          "symbols",
	"fetch.all_usdt":         "all-usdt",
	"fetch.interval":         "interval",
	"fetch.start_date":       "start",
	"fetch.end_date":         "end",
	"fetch.strategy":         "strategy",
	"fetch.page_span":        "page-span",
	"fetch.page_limit":       "limit",
	"fetch.delay":            "delay",
	"fetch.retry_delay":      "retry-delay",
	"fetch.output_dir":       "output-dir",
	"fetch.timestamp_format": "timestamp-format",
	"postgres.enabled":       "postgres",
	"log.level":              "log-level",
}

func main() {
	flags := pflag.NewFlagSet("fetcher", pflag.ExitOnError)
	configFile := flags.StringP("config", "c", "", "path to config file (default: config/config.yaml)")
	flags.String("category", "linear", "market category: linear, spot or inverse")
	flags.StringSlice("symbols", nil, "comma separated symbols, e.g. SOLUSDT,BTCUSDT")
	flags.Bool("all-usdt", false, "fetch every USDT-quoted trading symbol")
	flags.String("interval", "60", "kline interval: 1,3,5,15,30,60,120,240,360,720,D,W,M")
	flags.String("start", "", "start date, YYYY-MM-DD (UTC)")
	flags.String("end", "", "end date, YYYY-MM-DD (UTC); optional with --strategy=cursor")
	flags.String("strategy", "window", "pagination strategy: window or cursor")
	flags.Duration("page-span", 0, "window width; 0 derives it from --limit and --interval")
	flags.Int("limit", 200, "rows per request (max 1000)")
	flags.Duration("delay", 0, "pause between requests")
	flags.Duration("retry-delay", 0, "pause before retrying a failed request")
	flags.String("output-dir", "data", "directory for fetched CSV files")
	flags.String("timestamp-format", "ms", "CSV timestamp format: ms or datetime")
	flags.Bool("postgres", false, "mirror fetched series into Postgres")
	flags.String("log-level", "info", "log level")
	_ = flags.Parse(os.Args[1:])

	// viper config
	cfg, err := config.Load(*configFile, flags, changedOnly(flags, flagBindings))
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(2)
	}

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()
	log = log.With(zap.String("run_id", uuid.NewString()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := collector.Run(ctx, cfg, log); err != nil {
		log.Error("fetch finished with errors", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

// changedOnly keeps the bindings of flags set on the command line, so flag
// defaults never mask values from the config file or environment.
func changedOnly(flags *pflag.FlagSet, bindings map[string]string) map[string]string {
	out := make(map[string]string, len(bindings))
	for key, name := range bindings {
		if flags.Changed(name) {
			out[key] = name
		}
	}
	return out
}
