package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Bybit    BybitConfig    `mapstructure:"bybit"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Merge    MergeConfig    `mapstructure:"merge"`
	Log      LogConfig      `mapstructure:"log"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type BybitConfig struct {
	REST    RESTConfig `mapstructure:"rest"`
	EnvFile string     `mapstructure:"env_file"` // dotenv file holding api_key / api_secret

	Credentials Credentials `mapstructure:"-"`
}

type RESTConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RecvWindow time.Duration `mapstructure:"recv_window"`
}

// FetchConfig drives a fetch run.
type FetchConfig struct {
	Category  string   `mapstructure:"category"`   // "linear", "spot", "inverse"
	Symbols   []string `mapstructure:"symbols"`    // explicit symbol list
	AllUSDT   bool     `mapstructure:"all_usdt"`   // load every USDT-quoted contract instead of Symbols
	Interval  string   `mapstructure:"interval"`   // Bybit interval: "1".."720", "D", "W", "M"
	StartDate string   `mapstructure:"start_date"` // YYYY-MM-DD, UTC
	EndDate   string   `mapstructure:"end_date"`   // YYYY-MM-DD, UTC; optional for the cursor strategy

	Strategy   string        `mapstructure:"strategy"`    // "window" or "cursor"
	PageSpan   time.Duration `mapstructure:"page_span"`   // window width; 0 derives it from PageLimit and Interval
	PageLimit  int           `mapstructure:"page_limit"`  // rows per request
	Delay      time.Duration `mapstructure:"delay"`       // pause between requests
	RetryDelay time.Duration `mapstructure:"retry_delay"` // pause before retrying a failed request

	OutputDir       string `mapstructure:"output_dir"`
	TimestampFormat string `mapstructure:"timestamp_format"` // "ms" or "datetime"
}

// MergeConfig drives a merge run.
type MergeConfig struct {
	Mode       string `mapstructure:"mode"` // "wide" or "concat"
	InputDir   string `mapstructure:"input_dir"`
	OutputFile string `mapstructure:"output_file"` // wide only
	Prefix     string `mapstructure:"prefix"`      // concat only
	Save       bool   `mapstructure:"save"`        // concat only

	// Explicit schema mapping. Empty values fall back to column sniffing.
	TimestampColumn string `mapstructure:"timestamp_column"`
	CloseColumn     string `mapstructure:"close_column"`
}

// Options defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"` // empty disables the push
	Job            string `mapstructure:"job"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bybit.rest.base_url", "https://api.bybit.com")
	v.SetDefault("bybit.rest.timeout", 10*time.Second)
	v.SetDefault("bybit.rest.recv_window", 5*time.Second)
	v.SetDefault("bybit.env_file", ".env")

	v.SetDefault("fetch.category", "linear")
	v.SetDefault("fetch.symbols", []string{})
	v.SetDefault("fetch.all_usdt", false)
	v.SetDefault("fetch.interval", "60")
	v.SetDefault("fetch.start_date", "")
	v.SetDefault("fetch.end_date", "")
	v.SetDefault("fetch.strategy", "window")
	v.SetDefault("fetch.page_span", time.Duration(0))
	v.SetDefault("fetch.page_limit", 200)
	v.SetDefault("fetch.delay", time.Second)
	v.SetDefault("fetch.retry_delay", time.Second)
	v.SetDefault("fetch.output_dir", "data")
	v.SetDefault("fetch.timestamp_format", "ms")

	v.SetDefault("merge.mode", "wide")
	v.SetDefault("merge.input_dir", "data")
	v.SetDefault("merge.output_file", "handle-data/close_prices.csv")
	v.SetDefault("merge.prefix", "")
	v.SetDefault("merge.save", true)
	v.SetDefault("merge.timestamp_column", "")
	v.SetDefault("merge.close_column", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_file", "")
	v.SetDefault("log.environment", "dev")

	v.SetDefault("postgres.enabled", false)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "klinearchive")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.timezone", "UTC")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", time.Hour)

	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "klinearchive")
}

// Load loads application configuration using Viper.
// It reads configFile (or config.yaml from the usual locations when empty),
// overrides with environment variables and finally with any flags that were
// set on the command line. bindings maps viper keys to flag names.
func Load(configFile string, flags *pflag.FlagSet, bindings map[string]string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config") // config.yaml
		v.SetConfigType("yaml")
		v.AddConfigPath("config")
		v.AddConfigPath(".")
		if ex, err := os.Executable(); err == nil {
			v.AddConfigPath(filepath.Join(filepath.Dir(ex), "../config"))
		}
	}

	// Support environment variables with dot notation (e.g., FETCH_INTERVAL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if flags != nil {
		for key, name := range bindings {
			f := flags.Lookup(name)
			if f == nil {
				return nil, fmt.Errorf("unknown flag %q bound to %q", name, key)
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %q: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	creds, err := LoadCredentials(cfg.Bybit.EnvFile, cfg.Log.Environment)
	if err != nil {
		return nil, err
	}
	cfg.Bybit.Credentials = creds

	return &cfg, nil
}

// ParseDate parses a YYYY-MM-DD date as UTC midnight. An empty string
// yields the zero time.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}
