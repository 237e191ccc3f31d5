package bybit

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrAPI marks a response whose envelope carried a non-zero retCode.
var ErrAPI = errors.New("bybit api error")

// retCodeParamsError is returned for malformed or unknown request parameters,
// e.g. an unknown symbol. Retrying cannot fix it.
const retCodeParamsError = 10001

// BybitResponse represents a generic response from Bybit's V5 REST API.
// This structure covers the standard response envelope used across all endpoints.
type BybitResponse struct {
	RetCode    int                    `json:"retCode"`    // 0 means success; non-zero indicates an error code
	RetMsg     string                 `json:"retMsg"`     // Human-readable message describing the result or error
	Result     json.RawMessage        `json:"result"`     // Delay decoding // Main response payload (varies per endpoint)
	RetExtInfo map[string]interface{} `json:"retExtInfo"` // Optional extra info (e.g. rate limits, error hints)
	Time       int64                  `json:"time"`       // Server timestamp (in milliseconds since epoch)
}

// APIError is a non-zero retCode envelope.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bybit retCode %d: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return ErrAPI }

// Retryable reports whether the same request may succeed later.
func (e *APIError) Retryable() bool {
	return e.Code != retCodeParamsError
}

// StatusError is a non-200 HTTP response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bybit http %d: %s", e.StatusCode, e.Body)
}

// Retryable is true for throttling and server-side failures.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

type InstrumentListResponse struct {
	Category       string `json:"category"` // e.g., "linear", "spot"
	NextPageCursor string `json:"nextPageCursor"`
	List           []struct {
		Symbol    string `json:"symbol"`    // e.g., "BTCUSDT"
		BaseCoin  string `json:"baseCoin"`  // e.g., "BTC"
		QuoteCoin string `json:"quoteCoin"` // e.g., "USDT"
		Status    string `json:"status"`    // e.g., "Trading"
	} `json:"list"`
}

type KlinesResponse struct {
	Category string     `json:"category"` // e.g., "linear", "spot"
	Symbol   string     `json:"symbol"`
	List     [][]string `json:"list"` // [startTime, open, high, low, close, volume, turnover], newest first
}
