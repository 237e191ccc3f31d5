package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"klinearchive/config"
	"klinearchive/internal/fetcher"
	"klinearchive/internal/kline"
	"klinearchive/pkg/bybit"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func baseFetchConfig() config.FetchConfig {
	return config.FetchConfig{
		Category:        "linear",
		Symbols:         []string{"SOLUSDT"},
		Interval:        "60",
		StartDate:       "2024-01-01",
		EndDate:         "2024-01-05",
		Strategy:        "window",
		PageLimit:       200,
		OutputDir:       "data",
		TimestampFormat: "ms",
	}
}

func TestNewPlan(t *testing.T) {
	plan, err := NewPlan(baseFetchConfig())
	require.NoError(t, err)

	assert.Equal(t, 199*time.Hour, plan.Options.PageSpan)
	assert.Equal(t, time.Second, plan.Options.RetryDelay)
	assert.Equal(t, fetcher.StrategyWindow, plan.Options.Strategy)
	assert.Equal(t, "1h", plan.Job.Interval.Label)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), plan.Job.End)
	assert.Equal(t, "2024-01-05", plan.Job.EndLabel)

	cfg := baseFetchConfig()
	cfg.PageSpan = 6 * time.Hour
	plan, err = NewPlan(cfg)
	require.NoError(t, err)
	assert.Equal(t, 6*time.Hour, plan.Options.PageSpan)

	cfg = baseFetchConfig()
	cfg.Strategy = "cursor"
	cfg.EndDate = ""
	plan, err = NewPlan(cfg)
	require.NoError(t, err)
	assert.True(t, plan.Job.End.IsZero())
	assert.Equal(t, OpenEndLabel, plan.Job.EndLabel)
}

// hourlySource serves hourly candles in [Start, End], newest first and
// capped at Limit like the exchange.
type hourlySource struct{}

func (hourlySource) GetKlines(_ context.Context, q bybit.KlineQuery) ([]kline.Kline, error) {
	var page []kline.Kline
	for ts := q.End.Truncate(time.Hour); !ts.Before(q.Start); ts = ts.Add(-time.Hour) {
		if q.Limit > 0 && len(page) == q.Limit {
			break
		}
		page = append(page, kline.Kline{Start: ts.UnixMilli(), Close: decimal.NewFromInt(1)})
	}
	return page, nil
}

// go test -v --run TestDerivedSpanKeepsFirstCandle
func TestDerivedSpanKeepsFirstCandle(t *testing.T) {
	cfg := baseFetchConfig()
	cfg.EndDate = "2024-01-20"
	plan, err := NewPlan(cfg)
	require.NoError(t, err)

	f := fetcher.New(hourlySource{}, plan.Options, zaptest.NewLogger(t), nil)
	s, err := f.Fetch(context.Background(), fetcher.Request{
		Symbol:   "SOLUSDT",
		Interval: plan.Job.Interval.APIValue,
		Start:    plan.Job.Start,
		End:      plan.Job.End,
	})
	require.NoError(t, err)

	require.NotEmpty(t, s)
	assert.Equal(t, plan.Job.Start.UnixMilli(), s[0].Start)
	assert.Equal(t, plan.Job.End.UnixMilli(), s.Last())
	assert.Len(t, s, 19*24+1)
}

func TestNewPlanRejects(t *testing.T) {
	cases := map[string]func(*config.FetchConfig){
		"category":       func(c *config.FetchConfig) { c.Category = "option" },
		"interval":       func(c *config.FetchConfig) { c.Interval = "7" },
		"strategy":       func(c *config.FetchConfig) { c.Strategy = "bisect" },
		"format":         func(c *config.FetchConfig) { c.TimestampFormat = "unix" },
		"no start":       func(c *config.FetchConfig) { c.StartDate = "" },
		"bad start":      func(c *config.FetchConfig) { c.StartDate = "01/01/2024" },
		"window no end":  func(c *config.FetchConfig) { c.EndDate = "" },
		"end not after":  func(c *config.FetchConfig) { c.EndDate = c.StartDate },
		"limit too high": func(c *config.FetchConfig) { c.PageLimit = 5000 },
		"limit one":      func(c *config.FetchConfig) { c.PageLimit = 1 },
		"span over page": func(c *config.FetchConfig) { c.PageSpan = 200 * time.Hour },
		"negative delay": func(c *config.FetchConfig) { c.Delay = -time.Second },
		"negative retry": func(c *config.FetchConfig) { c.RetryDelay = -time.Second },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := baseFetchConfig()
			mutate(&cfg)
			_, err := NewPlan(cfg)
			assert.Error(t, err)
		})
	}
}

// fakeExchange serves daily klines for every day in [first, first+days) that
// falls inside the requested [start, end], newest first and capped at the
// requested limit like the real API.
func fakeExchange(t *testing.T, first time.Time, days int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		q := r.URL.Query()
		if q.Get("symbol") == "BADUSDT" {
			_, _ = w.Write([]byte(`{"retCode":10001,"retMsg":"params error: symbol invalid","result":{}}`))
			return
		}
		start, _ := strconv.ParseInt(q.Get("start"), 10, 64)
		end, err := strconv.ParseInt(q.Get("end"), 10, 64)
		if err != nil {
			end = first.AddDate(0, 0, days).UnixMilli()
		}
		limit, _ := strconv.Atoi(q.Get("limit"))

		var rows []string
		for i := days - 1; i >= 0; i-- {
			ts := first.AddDate(0, 0, i).UnixMilli()
			if ts < start || ts > end {
				continue
			}
			if limit > 0 && len(rows) == limit {
				break
			}
			px := 100 + i
			rows = append(rows, fmt.Sprintf(`["%d","%d","%d","%d","%d","10","%d0"]`, ts, px, px, px, px, px))
		}
		fmt.Fprintf(w, `{"retCode":0,"retMsg":"OK","result":{"list":[%s]}}`, strings.Join(rows, ","))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// go test -v --run TestRunEndToEnd
func TestRunEndToEnd(t *testing.T) {
	var calls atomic.Int32
	srv := fakeExchange(t, day0, 4, &calls)
	out := t.TempDir()

	cfg := &config.Config{
		Bybit: config.BybitConfig{REST: config.RESTConfig{BaseURL: srv.URL, Timeout: 5 * time.Second}},
		Fetch: config.FetchConfig{
			Category:        "linear",
			Symbols:         []string{"solusdt", "BADUSDT"},
			Interval:        "D",
			StartDate:       "2024-01-01",
			EndDate:         "2024-01-04",
			Strategy:        "window",
			PageLimit:       2,
			OutputDir:       out,
			TimestampFormat: "datetime",
		},
		Log: config.LogConfig{Environment: "dev"},
	}

	err := Run(context.Background(), cfg, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BADUSDT")

	body, err := os.ReadFile(filepath.Join(out, "SOLUSDT_1d_2024-01-01_to_2024-01-04.csv"))
	require.NoError(t, err)
	assert.Equal(t, "timestamp,open,high,low,close,volume,turnover\n"+
		"2024-01-01 00:00:00,100,100,100,100,10,1000\n"+
		"2024-01-02 00:00:00,101,101,101,101,10,1010\n"+
		"2024-01-03 00:00:00,102,102,102,102,10,1020\n"+
		"2024-01-04 00:00:00,103,103,103,103,10,1030\n", string(body))

	// three one-day windows for SOLUSDT, one permanent failure for BADUSDT
	assert.Equal(t, int32(4), calls.Load())

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRunCursorOpenEnded(t *testing.T) {
	var calls atomic.Int32
	srv := fakeExchange(t, day0, 3, &calls)
	out := t.TempDir()

	cfg := &config.Config{
		Bybit: config.BybitConfig{REST: config.RESTConfig{BaseURL: srv.URL, Timeout: 5 * time.Second}},
		Fetch: config.FetchConfig{
			Category:        "spot",
			Symbols:         []string{"SOLUSDT"},
			Interval:        "D",
			StartDate:       "2024-01-01",
			Strategy:        "cursor",
			OutputDir:       out,
			TimestampFormat: "ms",
		},
	}

	require.NoError(t, Run(context.Background(), cfg, zaptest.NewLogger(t)))

	body, err := os.ReadFile(filepath.Join(out, "SOLUSDT_1d_2024-01-01_to_latest.csv"))
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(string(body), "\n"))
}

func TestRunNoSymbols(t *testing.T) {
	cfg := &config.Config{Fetch: baseFetchConfig()}
	cfg.Fetch.Symbols = nil

	err := Run(context.Background(), cfg, zaptest.NewLogger(t))
	assert.EqualError(t, err, "no symbols to fetch")
}
