package bybit

import (
	"fmt"
	"time"
)

// KlineInterval is the interval type used for API requests
type KlineInterval string

// KlineIntervalMeta holds the API value and the file/DB label for a Kline interval
type KlineIntervalMeta struct {
	APIValue string
	Label    string
	Minutes  int
}

// Duration is the width of one kline.
func (m KlineIntervalMeta) Duration() time.Duration {
	return time.Duration(m.Minutes) * time.Minute
}

const (
	Interval1Min    KlineInterval = "1"
	Interval3Min    KlineInterval = "3"
	Interval5Min    KlineInterval = "5"
	Interval15Min   KlineInterval = "15"
	Interval30Min   KlineInterval = "30"
	Interval60Min   KlineInterval = "60"
	Interval120Min  KlineInterval = "120"
	Interval240Min  KlineInterval = "240"
	Interval360Min  KlineInterval = "360"
	Interval720Min  KlineInterval = "720"
	IntervalDaily   KlineInterval = "D"
	IntervalWeekly  KlineInterval = "W"
	IntervalMonthly KlineInterval = "M"
)

// Market categories accepted by the v5 market endpoints.
const (
	CategoryLinear  = "linear"
	CategorySpot    = "spot"
	CategoryInverse = "inverse"
)

// MaxKlineLimit is the largest page the kline endpoint serves.
const MaxKlineLimit = 1000

// validKlineIntervals maps KlineInterval to its API and label representations
var validKlineIntervals = map[KlineInterval]KlineIntervalMeta{
	Interval1Min:    {APIValue: "1", Label: "1m", Minutes: 1},
	Interval3Min:    {APIValue: "3", Label: "3m", Minutes: 3},
	Interval5Min:    {APIValue: "5", Label: "5m", Minutes: 5},
	Interval15Min:   {APIValue: "15", Label: "15m", Minutes: 15},
	Interval30Min:   {APIValue: "30", Label: "30m", Minutes: 30},
	Interval60Min:   {APIValue: "60", Label: "1h", Minutes: 60},
	Interval120Min:  {APIValue: "120", Label: "2h", Minutes: 120},
	Interval240Min:  {APIValue: "240", Label: "4h", Minutes: 240},
	Interval360Min:  {APIValue: "360", Label: "6h", Minutes: 360},
	Interval720Min:  {APIValue: "720", Label: "12h", Minutes: 720},
	IntervalDaily:   {APIValue: "D", Label: "1d", Minutes: 1440},  // 24*60
	IntervalWeekly:  {APIValue: "W", Label: "1w", Minutes: 10080}, // 7*24*60
	IntervalMonthly: {APIValue: "M", Label: "1M", Minutes: 43200}, // 30*24*60 // TODO: FIX - 30 days assumption, handle actual month duration
}

// ParseKlineInterval parses a string into a valid KlineIntervalMeta
func ParseKlineInterval(s string) (KlineIntervalMeta, error) {
	interval := KlineInterval(s)
	meta, ok := validKlineIntervals[interval]
	if !ok {
		return KlineIntervalMeta{}, fmt.Errorf("invalid KlineInterval: %s", s)
	}
	return meta, nil
}

// IsValidCategory reports whether c is a market category the kline endpoint accepts.
func IsValidCategory(c string) bool {
	switch c {
	case CategoryLinear, CategorySpot, CategoryInverse:
		return true
	}
	return false
}
