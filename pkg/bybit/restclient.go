package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"klinearchive/config"
	"klinearchive/internal/kline"
)

type RESTClient struct {
	baseURL    string
	httpClient *http.Client
	creds      config.Credentials
	recvWindow time.Duration
	now        func() time.Time
}

// KlineQuery selects one page of klines. A zero End leaves the upper bound
// to the exchange; a zero Limit uses the exchange default.
type KlineQuery struct {
	Category string
	Symbol   string
	Interval string
	Start    time.Time
	End      time.Time
	Limit    int
}

// NewRESTClient builds a client for the v5 REST API. Requests are signed when
// creds holds a key pair.
func NewRESTClient(cfg config.RESTConfig, creds config.Credentials) *RESTClient {
	recv := cfg.RecvWindow
	if recv <= 0 {
		recv = 5 * time.Second
	}
	return &RESTClient{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		creds:      creds,
		recvWindow: recv,
		now:        time.Now,
	}
}

// get performs a GET against path and decodes the envelope's result into out.
func (c *RESTClient) get(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	// Construct the GET request with context for timeout/cancel support
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	c.signRequest(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var rawResp BybitResponse
	if err := json.NewDecoder(resp.Body).Decode(&rawResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if rawResp.RetCode != 0 {
		return &APIError{Code: rawResp.RetCode, Message: rawResp.RetMsg}
	}

	if len(rawResp.Result) == 0 || string(rawResp.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(rawResp.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// GetUSDTSymbols fetches trading symbols with quoteCoin = USDT in the given
// category, one symbol per base coin, following nextPageCursor until the
// listing is exhausted.
func (c *RESTClient) GetUSDTSymbols(ctx context.Context, category string) ([]string, error) {
	seen := map[string]bool{}
	var symbols []string
	cursor := ""

	for {
		params := url.Values{}
		params.Set("category", category)
		params.Set("limit", "1000")
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var result InstrumentListResponse
		if err := c.get(ctx, "/v5/market/instruments-info", params, &result); err != nil {
			return nil, fmt.Errorf("instruments-info: %w", err)
		}

		for _, symbol := range result.List {
			if symbol.Status != "" && symbol.Status != "Trading" {
				continue
			}
			if symbol.QuoteCoin == "USDT" && !seen[symbol.BaseCoin] {
				symbols = append(symbols, symbol.Symbol)
				seen[symbol.BaseCoin] = true
			}
		}

		if result.NextPageCursor == "" || result.NextPageCursor == cursor {
			break
		}
		cursor = result.NextPageCursor
	}

	return symbols, nil
}

// GetKlines fetches one page of klines. Rows come back in the exchange's
// order, which is newest first.
func (c *RESTClient) GetKlines(ctx context.Context, q KlineQuery) ([]kline.Kline, error) {
	params := url.Values{}
	params.Set("category", q.Category)
	params.Set("symbol", q.Symbol)
	params.Set("interval", q.Interval)
	if !q.Start.IsZero() {
		params.Set("start", strconv.FormatInt(q.Start.UnixMilli(), 10))
	}
	if !q.End.IsZero() {
		params.Set("end", strconv.FormatInt(q.End.UnixMilli(), 10))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	var result KlinesResponse
	if err := c.get(ctx, "/v5/market/kline", params, &result); err != nil {
		return nil, fmt.Errorf("kline %s: %w", q.Symbol, err)
	}

	return ParseKlineList(result.List), nil
}
