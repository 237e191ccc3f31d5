package merger

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrNoTimestampColumn = errors.New("no timestamp column")
	ErrNoCloseColumn     = errors.New("no closing price column")
	ErrNoInput           = errors.New("no input files")
)

// ColumnResolver locates the columns a merge needs in a CSV header.
type ColumnResolver interface {
	TimestampColumn(header []string) (int, error)
	CloseColumn(header []string) (int, error)
}

// SniffingResolver guesses columns by name: "timestamp", else the first
// header containing "time" or "date"; "close" or "Close", else the first
// header containing "clos", ignoring case.
type SniffingResolver struct{}

func (SniffingResolver) TimestampColumn(header []string) (int, error) {
	if i := slices.Index(header, "timestamp"); i >= 0 {
		return i, nil
	}
	for i, col := range header {
		lower := strings.ToLower(col)
		if strings.Contains(lower, "time") || strings.Contains(lower, "date") {
			return i, nil
		}
	}
	return -1, ErrNoTimestampColumn
}

func (SniffingResolver) CloseColumn(header []string) (int, error) {
	for _, name := range []string{"close", "Close"} {
		if i := slices.Index(header, name); i >= 0 {
			return i, nil
		}
	}
	for i, col := range header {
		if strings.Contains(strings.ToLower(col), "clos") {
			return i, nil
		}
	}
	return -1, ErrNoCloseColumn
}

// SchemaResolver maps columns by exact name. An empty name falls back to
// SniffingResolver for that column.
type SchemaResolver struct {
	Timestamp string
	Close     string
}

func (r SchemaResolver) TimestampColumn(header []string) (int, error) {
	if r.Timestamp == "" {
		return SniffingResolver{}.TimestampColumn(header)
	}
	if i := slices.Index(header, r.Timestamp); i >= 0 {
		return i, nil
	}
	return -1, fmt.Errorf("%w: %q not in header", ErrNoTimestampColumn, r.Timestamp)
}

func (r SchemaResolver) CloseColumn(header []string) (int, error) {
	if r.Close == "" {
		return SniffingResolver{}.CloseColumn(header)
	}
	if i := slices.Index(header, r.Close); i >= 0 {
		return i, nil
	}
	return -1, fmt.Errorf("%w: %q not in header", ErrNoCloseColumn, r.Close)
}

// NewResolver picks SchemaResolver when any explicit column is configured
// and SniffingResolver otherwise.
func NewResolver(timestampColumn, closeColumn string) ColumnResolver {
	if timestampColumn == "" && closeColumn == "" {
		return SniffingResolver{}
	}
	return SchemaResolver{Timestamp: timestampColumn, Close: closeColumn}
}
