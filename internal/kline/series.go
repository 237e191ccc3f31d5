package kline

import (
	"cmp"
	"slices"
)

// Normalize collapses klines sharing a start time, keeping the one that
// appears last in fetch order, and sorts the result ascending.
func Normalize(fetched []Kline) Series {
	index := make(map[int64]int, len(fetched))
	out := make(Series, 0, len(fetched))

	for _, k := range fetched {
		if i, ok := index[k.Start]; ok {
			out[i] = k
			continue
		}
		index[k.Start] = len(out)
		out = append(out, k)
	}

	slices.SortFunc(out, func(a, b Kline) int {
		return cmp.Compare(a.Start, b.Start)
	})
	return out
}

// Until returns the prefix of s with start times at or before endMs.
func (s Series) Until(endMs int64) Series {
	i, _ := slices.BinarySearchFunc(s, endMs+1, func(k Kline, target int64) int {
		return cmp.Compare(k.Start, target)
	})
	return s[:i]
}

// Last returns the newest kline start time, or 0 for an empty series.
func (s Series) Last() int64 {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1].Start
}

// Records renders the series as CSV rows, header first.
func (s Series) Records(format TimestampFormat) [][]string {
	rows := make([][]string, 0, len(s)+1)
	rows = append(rows, slices.Clone(Columns))
	for _, k := range s {
		rows = append(rows, []string{
			FormatTimestamp(k.Start, format),
			k.Open.String(),
			k.High.String(),
			k.Low.String(),
			k.Close.String(),
			k.Volume.String(),
			k.Turnover.String(),
		})
	}
	return rows
}
