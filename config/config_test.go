package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func clearCredentialEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BYBIT_API_KEY", "")
	t.Setenv("BYBIT_API_SECRET", "")
}

// go test -v --run TestLoadFromFile
func TestLoadFromFile(t *testing.T) {
	clearCredentialEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
bybit:
  env_file: ""
fetch:
  symbols: [BTCUSDT, ETHUSDT]
  interval: "D"
  start_date: "2023-01-01"
  end_date: "2024-01-01"
  strategy: cursor
  delay: 250ms
log:
  level: debug
`)

	cfg, err := Load(path, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Fetch.Symbols)
	assert.Equal(t, "D", cfg.Fetch.Interval)
	assert.Equal(t, "cursor", cfg.Fetch.Strategy)
	assert.Equal(t, 250*time.Millisecond, cfg.Fetch.Delay)
	assert.Equal(t, "debug", cfg.Log.Level)

	// untouched keys keep their defaults
	assert.Equal(t, "linear", cfg.Fetch.Category)
	assert.Equal(t, 200, cfg.Fetch.PageLimit)
	assert.Equal(t, "https://api.bybit.com", cfg.Bybit.REST.BaseURL)
	assert.Equal(t, "ms", cfg.Fetch.TimestampFormat)
	assert.True(t, cfg.Bybit.Credentials.Empty())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearCredentialEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "fetch:\n  interval: \"60\"\nbybit:\n  env_file: \"\"\n")
	t.Setenv("FETCH_INTERVAL", "240")

	cfg, err := Load(path, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "240", cfg.Fetch.Interval)
}

func TestLoadFlagsOverrideEverything(t *testing.T) {
	clearCredentialEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "fetch:\n  interval: \"60\"\n  output_dir: out\nbybit:\n  env_file: \"\"\n")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("interval", "", "")
	flags.String("output-dir", "", "")
	flags.StringSlice("symbols", nil, "")
	require.NoError(t, flags.Parse([]string{"--interval=15", "--symbols=XRPUSDT,ADAUSDT"}))

	cfg, err := Load(path, flags, map[string]string{
		"fetch.interval":   "interval",
		"fetch.output_dir": "output-dir",
		"fetch.symbols":    "symbols",
	})
	require.NoError(t, err)

	assert.Equal(t, "15", cfg.Fetch.Interval)
	assert.Equal(t, []string{"XRPUSDT", "ADAUSDT"}, cfg.Fetch.Symbols)
	// flag not passed: file value wins over the empty flag default
	assert.Equal(t, "out", cfg.Fetch.OutputDir)
}

func TestLoadUnknownFlagBinding(t *testing.T) {
	clearCredentialEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "bybit:\n  env_file: \"\"\n")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	_, err := Load(path, flags, map[string]string{"fetch.interval": "missing"})
	assert.Error(t, err)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil, nil)
	assert.Error(t, err)
}

func TestLoadCredentialsFromEnvFile(t *testing.T) {
	clearCredentialEnv(t)
	dir := t.TempDir()
	envFile := writeFile(t, dir, "bybit.env", "api_key=abc\napi_secret=def\n")

	creds, err := LoadCredentials(envFile, "dev")
	require.NoError(t, err)
	assert.Equal(t, Credentials{APIKey: "abc", APISecret: "def"}, creds)
	assert.False(t, creds.Empty())

	t.Setenv("BYBIT_API_KEY", "override")
	creds, err = LoadCredentials(envFile, "dev")
	require.NoError(t, err)
	assert.Equal(t, "override", creds.APIKey)
	assert.Equal(t, "def", creds.APISecret)
}

func TestLoadCredentialsMissingFile(t *testing.T) {
	clearCredentialEnv(t)
	creds, err := LoadCredentials(filepath.Join(t.TempDir(), ".env"), "dev")
	require.NoError(t, err)
	assert.True(t, creds.Empty())
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2024-05-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC), got)

	got, err = ParseDate("")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = ParseDate("15/05/2024")
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	cfg := PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "pw",
		DBName:   "klines",
		SSLMode:  "disable",
		TimeZone: "UTC",
	}

	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=pw dbname=klines sslmode=disable TimeZone=UTC",
		cfg.DSN("dev"))
	assert.Contains(t, cfg.AdminDSN("dev"), "dbname=postgres ")
}
