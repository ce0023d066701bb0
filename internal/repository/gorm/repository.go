package gormrepository

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"quantcore/internal/models"
	"quantcore/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Historical bars ---------------------------------------------------------

func (s *Store) InsertBars(ctx context.Context, items []models.MarketBar) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	// Re-running a backfill over the same range must not fail on duplicates.
	db := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "instrument_id"}, {Name: "timestamp"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"open",
			"high",
			"low",
			"close",
			"volume",
		}),
	})
	return createInBatches(db, items, 500)
}

func (s *Store) ListBarsPage(ctx context.Context, params repository.ListBarsPageParams) ([]models.MarketBar, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.MarketBar{})
	query = applyBarRange(query, params)
	if !params.AfterTimestamp.IsZero() {
		query = query.Where("(timestamp, instrument_id) > (?, ?)", params.AfterTimestamp, params.AfterInstrumentID)
	}
	limit := normalizeLimit(params.Limit, 1000)
	var items []models.MarketBar
	if err := query.
		Order("timestamp asc, instrument_id asc").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountBars(ctx context.Context, params repository.ListBarsPageParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := s.db.WithContext(ctx).Model(&models.MarketBar{})
	query = applyBarRange(query, params)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func applyBarRange(query *gorm.DB, params repository.ListBarsPageParams) *gorm.DB {
	if params.Start != nil && !params.Start.IsZero() {
		query = query.Where("timestamp >= ?", *params.Start)
	}
	if params.End != nil && !params.End.IsZero() {
		query = query.Where("timestamp < ?", *params.End)
	}
	return query
}

// --- Run artifacts -----------------------------------------------------------

func (s *Store) InsertTrade(ctx context.Context, item *models.TradeRow) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) InsertEquityPoint(ctx context.Context, item *models.EquityPoint) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) InsertAccountSnapshot(ctx context.Context, item *models.AccountSnapshot) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) InsertSignalRecord(ctx context.Context, item *models.SignalRecord) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) SnapshotPositions(ctx context.Context, items []models.PositionSnapshot) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return createInBatches(tx, items, 200)
	})
}

// --- Read side ---------------------------------------------------------------

func (s *Store) ListTrades(ctx context.Context, params repository.ListTradesParams) ([]models.TradeRow, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyTradeFilters(s.db.WithContext(ctx).Model(&models.TradeRow{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "executed_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.TradeRow
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountTrades(ctx context.Context, params repository.ListTradesParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := applyTradeFilters(s.db.WithContext(ctx).Model(&models.TradeRow{}), params)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func applyTradeFilters(query *gorm.DB, params repository.ListTradesParams) *gorm.DB {
	if params.InstrumentID != nil {
		query = query.Where("instrument_id = ?", *params.InstrumentID)
	}
	if params.Ticker != nil && strings.TrimSpace(*params.Ticker) != "" {
		query = query.Where("ticker = ?", strings.TrimSpace(*params.Ticker))
	}
	if params.TradeID != nil {
		query = query.Where("trade_id = ?", *params.TradeID)
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("executed_at >= ?", *params.Since)
	}
	return query
}

func (s *Store) ListEquityPoints(ctx context.Context, params repository.ListEquityPointsParams) ([]models.EquityPoint, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyEquityFilters(s.db.WithContext(ctx).Model(&models.EquityPoint{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "timestamp")
	limit := normalizeLimit(params.Limit, 500)
	offset := normalizeOffset(params.Offset)
	var items []models.EquityPoint
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountEquityPoints(ctx context.Context, params repository.ListEquityPointsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := applyEquityFilters(s.db.WithContext(ctx).Model(&models.EquityPoint{}), params)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func applyEquityFilters(query *gorm.DB, params repository.ListEquityPointsParams) *gorm.DB {
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("timestamp >= ?", *params.Since)
	}
	if params.Until != nil && !params.Until.IsZero() {
		query = query.Where("timestamp < ?", *params.Until)
	}
	return query
}

// --- Helpers -----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func createInBatches[T any](db *gorm.DB, items []T, batchSize int) error {
	if len(items) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	for i := 0; i < len(items); i += batchSize {
		end := i + batchSize
		if end > len(items) {
			end = len(items)
		}
		if err := db.CreateInBatches(items[i:end], batchSize).Error; err != nil {
			return err
		}
	}
	return nil
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 5000 {
		return 5000
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

var _ repository.Repository = (*Store)(nil)
