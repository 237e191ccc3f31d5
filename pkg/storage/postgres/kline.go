package postgres

import (
	"context"
	"fmt"
	"time"

	"klinearchive/internal/kline"

	"gorm.io/gorm/clause"
)

const upsertBatchSize = 500

// UpsertKlines writes a fetched series, replacing the OHLCV values of candles
// already stored for the same (symbol, interval, start). It returns the number
// of rows written.
func (p *PostgresClient) UpsertKlines(ctx context.Context, symbol, interval string, width time.Duration, series kline.Series) (int64, error) {
	if len(series) == 0 {
		return 0, nil
	}

	records := make([]KlineRecord, len(series))
	for i, k := range series {
		records[i] = ToKlineRecord(symbol, interval, width, k)
	}

	tx := p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "symbol"},
			{Name: "interval"},
			{Name: "start"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"end", "open", "close", "high", "low", "volume", "turnover", "updated_at",
		}),
	}).CreateInBatches(records, upsertBatchSize)

	if tx.Error != nil {
		return 0, fmt.Errorf("upsert %s %s klines: %w", symbol, interval, tx.Error)
	}
	return tx.RowsAffected, nil
}

// ToKlineRecord converts a candle into a row. width is the interval length
// and sets End.
func ToKlineRecord(symbol, interval string, width time.Duration, k kline.Kline) KlineRecord {
	start := time.UnixMilli(k.Start).UTC()
	return KlineRecord{
		Symbol:   symbol,
		Interval: interval,
		Start:    start,
		End:      start.Add(width),
		Open:     k.Open,
		Close:    k.Close,
		High:     k.High,
		Low:      k.Low,
		Volume:   k.Volume,
		Turnover: k.Turnover,
	}
}
