package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketBar is one historical OHLCV bar; the replay cursor pages over these.
type MarketBar struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement"`
	InstrumentID int       `gorm:"not null;uniqueIndex:uniq_bar_instrument_ts;index"`
	Ticker       string    `gorm:"type:varchar(50);not null;index"`
	Timestamp    time.Time `gorm:"type:timestamptz;not null;uniqueIndex:uniq_bar_instrument_ts;index"`

	Open   decimal.Decimal `gorm:"type:numeric(20,10);not null"`
	High   decimal.Decimal `gorm:"type:numeric(20,10);not null"`
	Low    decimal.Decimal `gorm:"type:numeric(20,10);not null"`
	Close  decimal.Decimal `gorm:"type:numeric(20,10);not null"`
	Volume decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (MarketBar) TableName() string {
	return "market_bars"
}
