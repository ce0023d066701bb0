package models

import (
	"time"

	"gorm.io/datatypes"
)

// SignalRecord journals a strategy signal batch; legs carry the raw
// instructions for post-run review.
type SignalRecord struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	Timestamp time.Time `gorm:"type:timestamptz;not null;index"`

	LegCount int            `gorm:"not null"`
	Legs     datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (SignalRecord) TableName() string {
	return "signal_records"
}
