package replay

import (
	"context"

	"gorm.io/gorm"

	"quantcore/internal/models"
	"quantcore/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
// It implements the full interface but replay tests only exercise the
// bar-paging read side.
type stubRepo struct {
	bars  []models.MarketBar
	calls []repository.ListBarsPageParams
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func (s *stubRepo) InsertBars(ctx context.Context, items []models.MarketBar) error { return nil }

func (s *stubRepo) ListBarsPage(ctx context.Context, params repository.ListBarsPageParams) ([]models.MarketBar, error) {
	s.calls = append(s.calls, params)
	var out []models.MarketBar
	for _, row := range s.bars {
		if row.Timestamp.Before(params.AfterTimestamp) {
			continue
		}
		if row.Timestamp.Equal(params.AfterTimestamp) && row.InstrumentID <= params.AfterInstrumentID {
			continue
		}
		out = append(out, row)
		if len(out) == params.Limit {
			break
		}
	}
	return out, nil
}

func (s *stubRepo) CountBars(ctx context.Context, params repository.ListBarsPageParams) (int64, error) {
	return int64(len(s.bars)), nil
}

func (s *stubRepo) InsertTrade(ctx context.Context, item *models.TradeRow) error { return nil }

func (s *stubRepo) InsertEquityPoint(ctx context.Context, item *models.EquityPoint) error {
	return nil
}

func (s *stubRepo) InsertAccountSnapshot(ctx context.Context, item *models.AccountSnapshot) error {
	return nil
}

func (s *stubRepo) InsertSignalRecord(ctx context.Context, item *models.SignalRecord) error {
	return nil
}

func (s *stubRepo) SnapshotPositions(ctx context.Context, items []models.PositionSnapshot) error {
	return nil
}

func (s *stubRepo) ListTrades(ctx context.Context, params repository.ListTradesParams) ([]models.TradeRow, error) {
	return nil, nil
}

func (s *stubRepo) CountTrades(ctx context.Context, params repository.ListTradesParams) (int64, error) {
	return 0, nil
}

func (s *stubRepo) ListEquityPoints(ctx context.Context, params repository.ListEquityPointsParams) ([]models.EquityPoint, error) {
	return nil, nil
}

func (s *stubRepo) CountEquityPoints(ctx context.Context, params repository.ListEquityPointsParams) (int64, error) {
	return 0, nil
}
