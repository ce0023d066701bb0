package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeRow is one executed fill as reported by the broker.
type TradeRow struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	TradeID     int    `gorm:"not null;index"`
	LegID       int    `gorm:"not null"`
	ExecutionID string `gorm:"type:varchar(50);not null;uniqueIndex"`

	InstrumentID int    `gorm:"not null;index"`
	Ticker       string `gorm:"type:varchar(50);not null;index"`
	Action       string `gorm:"type:varchar(10);not null"`

	Quantity decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	AvgPrice decimal.Decimal `gorm:"type:numeric(20,10);not null"`
	Value    decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Cost     decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Fees     decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	ExecutedAt time.Time `gorm:"type:timestamptz;not null;index"`
	CreatedAt  time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (TradeRow) TableName() string {
	return "trades"
}
