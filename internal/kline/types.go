package kline

import "github.com/shopspring/decimal"

// Kline represents a single candlestick as returned by the Bybit REST API.
type Kline struct {
	Start    int64           `json:"start"`    // Start time of the kline (in milliseconds since epoch)
	Open     decimal.Decimal `json:"open"`     // Opening price
	High     decimal.Decimal `json:"high"`     // Highest price during the interval
	Low      decimal.Decimal `json:"low"`      // Lowest price during the interval
	Close    decimal.Decimal `json:"close"`    // Closing price
	Volume   decimal.Decimal `json:"volume"`   // Trade volume (number of units traded)
	Turnover decimal.Decimal `json:"turnover"` // Total traded value in the quote coin
}

// Series is an ascending, duplicate-free sequence of klines for one
// (symbol, interval) pair. Build one with Normalize.
type Series []Kline

// Columns is the CSV header of a fetched series.
var Columns = []string{"timestamp", "open", "high", "low", "close", "volume", "turnover"}
