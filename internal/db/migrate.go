package db

import (
	"quantcore/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.MarketBar{},
		&models.TradeRow{},
		&models.EquityPoint{},
		&models.PositionSnapshot{},
		&models.AccountSnapshot{},
		&models.SignalRecord{},
	)
}
