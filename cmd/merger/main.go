package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"klinearchive/config"
	"klinearchive/internal/merger"
	"klinearchive/internal/metrics"
	"klinearchive/logger"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

var flagBindings = map[string]string{
	"merge.mode":             "mode",
	"merge.input_dir":        "input-dir",
	"merge.output_file":      "output",
	"merge.prefix":           "prefix",
	"merge.save":             "save",
	"merge.timestamp_column": "timestamp-column",
	"merge.close_column":     "close-column",
	"log.level":              "log-level",
}

func main() {
	flags := pflag.NewFlagSet("merger", pflag.ExitOnError)
	configFile := flags.StringP("config", "c", "", "path to config file (default: config/config.yaml)")
	flags.String("mode", "wide", "wide (closing-price matrix) or concat (batches of one series)")
	flags.String("input-dir", "data", "directory holding the CSV files")
	flags.String("output", "handle-data/close_prices.csv", "wide: output file")
	flags.String("prefix", "", "concat: merge files named <prefix>_*.csv")
	flags.Bool("save", true, "concat: write <prefix>_concatenated.csv")
	flags.String("timestamp-column", "", "timestamp column name; empty to detect")
	flags.String("close-column", "", "closing price column name; empty to detect")
	flags.String("log-level", "info", "log level")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configFile, flags, changedOnly(flags, flagBindings))
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(2)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()
	log = log.With(zap.String("run_id", uuid.NewString()))

	m := metrics.New()
	err = run(cfg.Merge, log, m)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if perr := m.Push(ctx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); perr != nil {
		log.Warn("failed to push metrics", zap.Error(perr))
	}

	if err != nil {
		log.Error("merge failed", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg config.MergeConfig, log *zap.Logger, m *metrics.Metrics) error {
	resolver := merger.NewResolver(cfg.TimestampColumn, cfg.CloseColumn)

	switch cfg.Mode {
	case "wide", "":
		path, err := merger.NewWide(resolver, log, m).Run(cfg.InputDir, cfg.OutputFile)
		if err != nil {
			return err
		}
		if path == "" {
			log.Warn("nothing merged", zap.String("input_dir", cfg.InputDir))
		}
		return nil
	case "concat":
		if cfg.Prefix == "" {
			return fmt.Errorf("concat needs --prefix")
		}
		table, _, err := merger.NewConcat(resolver, log, m).Run(merger.ConcatOptions{
			Dir:    cfg.InputDir,
			Prefix: cfg.Prefix,
			Save:   cfg.Save,
		})
		if err != nil {
			return err
		}
		if n := len(table.Rows); n > 0 {
			log.Info("concatenated range",
				zap.String("first", table.Rows[0][0]),
				zap.String("last", table.Rows[n-1][0]),
				zap.Int("rows", n),
			)
		}
		return nil
	default:
		return fmt.Errorf("unknown merge mode %q (want wide or concat)", cfg.Mode)
	}
}

func changedOnly(flags *pflag.FlagSet, bindings map[string]string) map[string]string {
	out := make(map[string]string, len(bindings))
	for key, name := range bindings {
		if flags.Changed(name) {
			out[key] = name
		}
	}
	return out
}
