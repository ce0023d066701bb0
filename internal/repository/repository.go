package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"quantcore/internal/models"
)

// Repository is the persistence boundary for the engine: the replay cursor
// reads bars through it and the recorder writes run artifacts through it.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Historical bars. The replay cursor reads; ingestion pipelines
	// outside this process write.
	InsertBars(ctx context.Context, items []models.MarketBar) error
	ListBarsPage(ctx context.Context, params ListBarsPageParams) ([]models.MarketBar, error)
	CountBars(ctx context.Context, params ListBarsPageParams) (int64, error)

	// Run artifacts.
	InsertTrade(ctx context.Context, item *models.TradeRow) error
	InsertEquityPoint(ctx context.Context, item *models.EquityPoint) error
	InsertAccountSnapshot(ctx context.Context, item *models.AccountSnapshot) error
	InsertSignalRecord(ctx context.Context, item *models.SignalRecord) error
	SnapshotPositions(ctx context.Context, items []models.PositionSnapshot) error

	// Read side for the API.
	ListTrades(ctx context.Context, params ListTradesParams) ([]models.TradeRow, error)
	CountTrades(ctx context.Context, params ListTradesParams) (int64, error)
	ListEquityPoints(ctx context.Context, params ListEquityPointsParams) ([]models.EquityPoint, error)
	CountEquityPoints(ctx context.Context, params ListEquityPointsParams) (int64, error)
}

// ListBarsPageParams pages bars by keyset: rows strictly after
// (AfterTimestamp, AfterInstrumentID) in (timestamp, instrument_id) order.
// A zero AfterTimestamp starts from the beginning of the range.
type ListBarsPageParams struct {
	Start             *time.Time
	End               *time.Time
	AfterTimestamp    time.Time
	AfterInstrumentID int
	Limit             int
}

type ListTradesParams struct {
	Limit        int
	Offset       int
	InstrumentID *int
	Ticker       *string
	TradeID      *int
	Since        *time.Time
	OrderBy      string
	Asc          *bool
}

type ListEquityPointsParams struct {
	Limit   int
	Offset  int
	Since   *time.Time
	Until   *time.Time
	OrderBy string
	Asc     *bool
}
