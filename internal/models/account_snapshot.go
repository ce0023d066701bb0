package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountSnapshot is the broker account state after a recompute.
type AccountSnapshot struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	Timestamp time.Time `gorm:"type:timestamptz;not null;index"`

	AvailableFunds     decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	InitMarginRequired decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	NetLiquidation     decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	UnrealizedPnL      decimal.Decimal `gorm:"column:unrealized_pnl;type:numeric(30,10);not null"`
	Currency           string          `gorm:"type:varchar(10);not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (AccountSnapshot) TableName() string {
	return "account_snapshots"
}
