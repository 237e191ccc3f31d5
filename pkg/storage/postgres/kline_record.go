package postgres

import (
	"time"

	"github.com/shopspring/decimal"
)

// KlineRecord is one closed candle mirrored from a fetch run.
type KlineRecord struct {
	ID uint `gorm:"primaryKey"`

	// unique index
	Symbol   string    `gorm:"type:text;not null;index:idx_kline_symbol;index:idx_symbol_interval_start,unique"`
	Interval string    `gorm:"type:varchar(10);not null;index:idx_symbol_interval_start,unique"`
	Start    time.Time `gorm:"not null;index:idx_symbol_interval_start,unique"`

	End time.Time `gorm:"not null"`

	Open  decimal.Decimal `gorm:"type:numeric;not null"`
	Close decimal.Decimal `gorm:"type:numeric;not null"`
	High  decimal.Decimal `gorm:"type:numeric;not null"`
	Low   decimal.Decimal `gorm:"type:numeric;not null"`

	Volume   decimal.Decimal `gorm:"type:numeric;not null"`
	Turnover decimal.Decimal `gorm:"type:numeric;not null"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

// TableName overrides the default table name for GORM.
func (KlineRecord) TableName() string {
	return "kline_record"
}
