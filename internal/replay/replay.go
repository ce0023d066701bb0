package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"quantcore/internal/book"
	"quantcore/internal/market"
)

// Cursor yields historical records in (timestamp, instrument) order.
// Next returns io.EOF when the stream is exhausted.
type Cursor interface {
	Next(ctx context.Context) (market.Record, error)
}

// Replayer drives a backtest: it feeds records into the book one at a time
// and raises end-of-day between the last record of one session date and the
// first record of the next. The book's lockstep handshake makes each Apply
// block until the whole consumer chain has reacted, so the pace of the
// replay is the pace of the strategy.
type Replayer struct {
	Source   Cursor
	Book     *book.Book
	Logger   *zap.Logger
	Timezone *time.Location
}

func (r *Replayer) Run(ctx context.Context) error {
	if r == nil || r.Source == nil || r.Book == nil {
		return nil
	}
	loc := r.Timezone
	if loc == nil {
		loc = time.UTC
	}

	var (
		prevDay time.Time
		seen    bool
		count   int
	)
	for {
		rec, err := r.Source.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("replay cursor: %w", err)
		}

		day := sessionDate(rec.Timestamp, loc)
		if seen && !day.Equal(prevDay) {
			if err := r.Book.HandleEOD(ctx, prevDay); err != nil {
				return fmt.Errorf("replay end-of-day: %w", err)
			}
		}
		if err := r.Book.Apply(ctx, rec); err != nil {
			return fmt.Errorf("replay apply: %w", err)
		}
		prevDay = day
		seen = true
		count++
	}

	if seen {
		if err := r.Book.HandleEOD(ctx, prevDay); err != nil {
			return fmt.Errorf("replay final end-of-day: %w", err)
		}
	}
	if r.Logger != nil {
		r.Logger.Info("replay drained", zap.Int("records", count))
	}
	return nil
}

// sessionDate truncates ts to midnight of its calendar date in loc. EOD
// boundaries follow the trading session's timezone, not UTC.
func sessionDate(ts time.Time, loc *time.Location) time.Time {
	y, m, d := ts.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
