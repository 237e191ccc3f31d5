package kline

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimestampFormat selects how timestamps are written to CSV.
type TimestampFormat string

const (
	TimestampMillis   TimestampFormat = "ms"       // integer milliseconds since epoch
	TimestampDatetime TimestampFormat = "datetime" // DatetimeLayout in UTC
)

// DatetimeLayout is the canonical textual timestamp.
const DatetimeLayout = "2006-01-02 15:04:05"

var parseLayouts = []string{
	DatetimeLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05-07:00",
	time.DateOnly,
}

// ParseTimestampFormat validates a configured format name.
func ParseTimestampFormat(s string) (TimestampFormat, error) {
	switch f := TimestampFormat(strings.ToLower(s)); f {
	case TimestampMillis, TimestampDatetime:
		return f, nil
	case "":
		return TimestampMillis, nil
	default:
		return "", fmt.Errorf("invalid timestamp format %q (want ms or datetime)", s)
	}
}

// FormatTimestamp renders a millisecond timestamp.
func FormatTimestamp(ms int64, format TimestampFormat) string {
	if format == TimestampDatetime {
		return time.UnixMilli(ms).UTC().Format(DatetimeLayout)
	}
	return strconv.FormatInt(ms, 10)
}

// ParseTimestamp accepts integer milliseconds or one of the common datetime
// layouts. Datetimes without a zone are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	for _, layout := range parseLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
