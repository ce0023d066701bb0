package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionSnapshot is one open position at a point in time, taken by the
// periodic snapshot job or on position updates.
type PositionSnapshot struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	SnapshotAt time.Time `gorm:"type:timestamptz;not null;index"`

	InstrumentID int    `gorm:"not null;index"`
	Ticker       string `gorm:"type:varchar(50);not null;index"`
	Kind         string `gorm:"type:varchar(10);not null"`
	Side         string `gorm:"type:varchar(10);not null"`

	Quantity    decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	AvgPrice    decimal.Decimal `gorm:"type:numeric(20,10);not null"`
	MarketPrice decimal.Decimal `gorm:"type:numeric(20,10);not null"`

	MarketValue      decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	UnrealizedPnL    decimal.Decimal `gorm:"column:unrealized_pnl;type:numeric(30,10);not null"`
	MarginRequired   decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	LiquidationValue decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (PositionSnapshot) TableName() string {
	return "position_snapshots"
}
