package recorder

import (
	"context"
	"sync"

	"gorm.io/gorm"

	"quantcore/internal/models"
	"quantcore/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
// It captures the write side the recorder exercises; reads no-op. The
// recorder runs on its own goroutine, so captures are mutex-guarded.
type stubRepo struct {
	mu             sync.Mutex
	err            error // returned by every write when set
	equityAttempts int   // equity writes attempted, including failed ones

	trades    []models.TradeRow
	equity    []models.EquityPoint
	accounts  []models.AccountSnapshot
	signals   []models.SignalRecord
	snapshots [][]models.PositionSnapshot
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func (s *stubRepo) InsertBars(ctx context.Context, items []models.MarketBar) error { return nil }

func (s *stubRepo) ListBarsPage(ctx context.Context, params repository.ListBarsPageParams) ([]models.MarketBar, error) {
	return nil, nil
}

func (s *stubRepo) CountBars(ctx context.Context, params repository.ListBarsPageParams) (int64, error) {
	return 0, nil
}

func (s *stubRepo) InsertTrade(ctx context.Context, item *models.TradeRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.trades = append(s.trades, *item)
	return nil
}

func (s *stubRepo) InsertEquityPoint(ctx context.Context, item *models.EquityPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.equityAttempts++
	if s.err != nil {
		return s.err
	}
	s.equity = append(s.equity, *item)
	return nil
}

func (s *stubRepo) InsertAccountSnapshot(ctx context.Context, item *models.AccountSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.accounts = append(s.accounts, *item)
	return nil
}

func (s *stubRepo) InsertSignalRecord(ctx context.Context, item *models.SignalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.signals = append(s.signals, *item)
	return nil
}

func (s *stubRepo) SnapshotPositions(ctx context.Context, items []models.PositionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.snapshots = append(s.snapshots, items)
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

func (s *stubRepo) counts() (trades, equity, accounts, signals, snapshots int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trades), len(s.equity), len(s.accounts), len(s.signals), len(s.snapshots)
}

func (s *stubRepo) equityAttemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.equityAttempts
}

func (s *stubRepo) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
