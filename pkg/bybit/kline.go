package bybit

import (
	"strconv"

	"klinearchive/internal/kline"

	"github.com/shopspring/decimal"
)

// ParseKlineList converts Bybit REST API kline rows to klines, keeping the
// API's order. Rows that are short or carry unparsable numbers are skipped.
func ParseKlineList(raw [][]string) []kline.Kline {
	out := make([]kline.Kline, 0, len(raw))

	for _, row := range raw {
		if len(row) < 7 {
			continue // skip incomplete row
		}

		start, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}

		var values [6]decimal.Decimal
		ok := true
		for i := range values {
			values[i], err = decimal.NewFromString(row[i+1])
			if err != nil {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}

		out = append(out, kline.Kline{
			Start:    start,
			Open:     values[0],
			High:     values[1],
			Low:      values[2],
			Close:    values[3],
			Volume:   values[4],
			Turnover: values[5],
		})
	}
	return out
}
