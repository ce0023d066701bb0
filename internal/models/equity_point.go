package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EquityPoint is one sample of the account equity curve.
type EquityPoint struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	Timestamp time.Time `gorm:"type:timestamptz;not null;index"`

	Value decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (EquityPoint) TableName() string {
	return "equity_points"
}
