package bybit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"klinearchive/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, creds config.Credentials) *RESTClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewRESTClient(config.RESTConfig{BaseURL: srv.URL, Timeout: 5 * time.Second}, creds)
}

func TestGetKlinesParsesPage(t *testing.T) {
	start := time.UnixMilli(1704067200000)
	end := time.UnixMilli(1704153600000)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/market/kline", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "linear", q.Get("category"))
		assert.Equal(t, "SOLUSDT", q.Get("symbol"))
		assert.Equal(t, "60", q.Get("interval"))
		assert.Equal(t, "1704067200000", q.Get("start"))
		assert.Equal(t, "1704153600000", q.Get("end"))
		assert.Equal(t, "200", q.Get("limit"))
		assert.Empty(t, r.Header.Get("X-BAPI-SIGN"))

		_, _ = w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"category":"linear","symbol":"SOLUSDT","list":[
			["1704070800000","101.2","102","100.5","101.9","1500","152000.5"],
			["1704067200000","100","101.5","99.8","101.2","1200","121000"],
			["bad","1","1","1","1","1","1"],
			["1704063600000","1"]
		]},"time":1704153600000}`))
	}, config.Credentials{})

	got, err := client.GetKlines(context.Background(), KlineQuery{
		Category: "linear", Symbol: "SOLUSDT", Interval: "60", Start: start, End: end, Limit: 200,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	// exchange order is kept: newest first
	assert.Equal(t, int64(1704070800000), got[0].Start)
	assert.Equal(t, "101.9", got[0].Close.String())
	assert.Equal(t, "152000.5", got[0].Turnover.String())
	assert.Equal(t, int64(1704067200000), got[1].Start)
}

func TestGetKlinesOmitsZeroBounds(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.False(t, q.Has("end"))
		assert.False(t, q.Has("limit"))
		_, _ = w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"list":[]}}`))
	}, config.Credentials{})

	got, err := client.GetKlines(context.Background(), KlineQuery{
		Category: "linear", Symbol: "BTCUSDT", Interval: "D", Start: time.UnixMilli(1),
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetKlinesAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"retCode":10001,"retMsg":"params error: symbol invalid","result":{}}`))
	}, config.Credentials{})

	_, err := client.GetKlines(context.Background(), KlineQuery{Category: "linear", Symbol: "NOPE", Interval: "60"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAPI))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 10001, apiErr.Code)
	assert.False(t, apiErr.Retryable())
	assert.True(t, (&APIError{Code: 10006}).Retryable())
}

func TestGetKlinesStatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}, config.Credentials{})

	_, err := client.GetKlines(context.Background(), KlineQuery{Category: "linear", Symbol: "BTCUSDT", Interval: "60"})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.True(t, statusErr.Retryable())
	assert.False(t, (&StatusError{StatusCode: http.StatusForbidden}).Retryable())
}

func TestSignedRequest(t *testing.T) {
	fixed := time.UnixMilli(1700000000000)
	creds := config.Credentials{APIKey: "key", APISecret: "secret"}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("X-BAPI-API-KEY"))
		assert.Equal(t, "1700000000000", r.Header.Get("X-BAPI-TIMESTAMP"))
		assert.Equal(t, "5000", r.Header.Get("X-BAPI-RECV-WINDOW"))
		assert.Equal(t, Sign("secret", 1700000000000, "key", 5000, r.URL.RawQuery), r.Header.Get("X-BAPI-SIGN"))
		_, _ = w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"list":[]}}`))
	}, creds)
	client.now = func() time.Time { return fixed }

	_, err := client.GetKlines(context.Background(), KlineQuery{Category: "linear", Symbol: "BTCUSDT", Interval: "60"})
	require.NoError(t, err)
}

func TestSignIsDeterministic(t *testing.T) {
	a := Sign("secret", 1, "key", 5000, "category=linear")
	b := Sign("secret", 1, "key", 5000, "category=linear")
	c := Sign("secret", 2, "key", 5000, "category=linear")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestGetUSDTSymbolsFollowsCursor(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/v5/market/instruments-info", r.URL.Path)
		switch r.URL.Query().Get("cursor") {
		case "":
			_, _ = w.Write([]byte(`{"retCode":0,"result":{"category":"linear","nextPageCursor":"p2","list":[
				{"symbol":"BTCUSDT","baseCoin":"BTC","quoteCoin":"USDT","status":"Trading"},
				{"symbol":"BTCPERP","baseCoin":"BTC","quoteCoin":"USDC","status":"Trading"},
				{"symbol":"OLDUSDT","baseCoin":"OLD","quoteCoin":"USDT","status":"Closed"}
			]}}`))
		case "p2":
			_, _ = w.Write([]byte(`{"retCode":0,"result":{"category":"linear","nextPageCursor":"","list":[
				{"symbol":"ETHUSDT","baseCoin":"ETH","quoteCoin":"USDT","status":"Trading"},
				{"symbol":"BTC-26DEC25","baseCoin":"BTC","quoteCoin":"USDT","status":"Trading"}
			]}}`))
		}
	}, config.Credentials{})

	symbols, err := client.GetUSDTSymbols(context.Background(), "linear")
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, symbols)
	assert.Equal(t, 2, calls)
}

func TestParseKlineInterval(t *testing.T) {
	meta, err := ParseKlineInterval("60")
	require.NoError(t, err)
	assert.Equal(t, "1h", meta.Label)
	assert.Equal(t, time.Hour, meta.Duration())

	_, err = ParseKlineInterval("7")
	assert.Error(t, err)
	meta, err = ParseKlineInterval(string(IntervalDaily))
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, meta.Duration())
	assert.True(t, IsValidCategory("spot"))
	assert.False(t, IsValidCategory("option"))
}

// go test -v --run TestGetKlinesLive
func TestGetKlinesLive(t *testing.T) {
	if os.Getenv("BYBIT_LIVE_TEST") == "" {
		t.Skip("set BYBIT_LIVE_TEST to hit api.bybit.com")
	}
	client := NewRESTClient(config.RESTConfig{BaseURL: "https://api.bybit.com", Timeout: 10 * time.Second}, config.Credentials{})

	// Context with timeout for safety
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	end := time.Now()
	start := end.Add(-4 * time.Hour)

	resp, err := client.GetKlines(ctx, KlineQuery{
		Category: "linear",
		Symbol:   "BTCUSDT",
		Interval: "1",
		Start:    start,
		End:      end,
	})
	if err != nil {
		t.Fatalf("GetKlines returned error: %v", err)
	}
	if len(resp) == 0 {
		t.Error("Expected non-empty response body")
	}
	t.Logf("Received %d klines", len(resp))
}
