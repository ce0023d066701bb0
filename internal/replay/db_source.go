package replay

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"quantcore/internal/market"
	"quantcore/internal/models"
	"quantcore/internal/repository"
)

// DBSource is a Cursor over the market_bars table. It pages with a keyset on
// (timestamp, instrument_id) so arbitrarily long histories stream in
// BatchSize chunks without deep offsets.
type DBSource struct {
	Repo      repository.Repository
	Logger    *zap.Logger
	Start     *time.Time
	End       *time.Time
	BatchSize int

	buf     []models.MarketBar
	afterTS time.Time
	afterID int
	done    bool
}

func (s *DBSource) Next(ctx context.Context) (market.Record, error) {
	if s == nil || s.Repo == nil {
		return market.Record{}, io.EOF
	}
	for {
		if len(s.buf) == 0 {
			if s.done {
				return market.Record{}, io.EOF
			}
			if err := s.fetch(ctx); err != nil {
				return market.Record{}, err
			}
			if len(s.buf) == 0 {
				s.done = true
				return market.Record{}, io.EOF
			}
		}

		row := s.buf[0]
		s.buf = s.buf[1:]
		s.afterTS = row.Timestamp
		s.afterID = row.InstrumentID

		rec, err := market.NewBar(row.InstrumentID, row.Timestamp, row.Open, row.High, row.Low, row.Close, row.Volume.IntPart())
		if err != nil {
			if s.Logger != nil {
				s.Logger.Warn("skipping malformed bar row",
					zap.Uint64("row_id", row.ID),
					zap.Int("instrument_id", row.InstrumentID),
					zap.Error(err))
			}
			continue
		}
		return rec, nil
	}
}

func (s *DBSource) fetch(ctx context.Context) error {
	batch := s.BatchSize
	if batch <= 0 {
		batch = 1000
	}
	rows, err := s.Repo.ListBarsPage(ctx, repository.ListBarsPageParams{
		Start:             s.Start,
		End:               s.End,
		AfterTimestamp:    s.afterTS,
		AfterInstrumentID: s.afterID,
		Limit:             batch,
	})
	if err != nil {
		return err
	}
	s.buf = rows
	if len(rows) < batch {
		s.done = true
	}
	return nil
}
