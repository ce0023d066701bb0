package feed

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"quantcore/internal/book"
	"quantcore/internal/clock"
	"quantcore/internal/market"
)

// openBar accumulates quote midpoints into an OHLC bar.
type openBar struct {
	open  decimal.Decimal
	high  decimal.Decimal
	low   decimal.Decimal
	close decimal.Decimal
	ticks int64
}

// aggregator turns a quote stream into fixed-interval bars. Quotes fold
// into per-instrument open bars; the clock ticker flushes every open bar to
// the book and starts the next interval. The clock is injected so tests
// drive flushes manually.
type aggregator struct {
	book   *book.Book
	clock  clock.Clock
	logger *zap.Logger

	mu   sync.Mutex
	bars map[int]*openBar
}

func newAggregator(b *book.Book, clk clock.Clock, logger *zap.Logger) *aggregator {
	return &aggregator{
		book:   b,
		clock:  clk,
		logger: logger,
		bars:   make(map[int]*openBar),
	}
}

func (a *aggregator) add(rec market.Record) {
	mid := rec.Price()

	a.mu.Lock()
	defer a.mu.Unlock()
	bar, ok := a.bars[rec.InstrumentID]
	if !ok {
		a.bars[rec.InstrumentID] = &openBar{open: mid, high: mid, low: mid, close: mid, ticks: 1}
		return
	}
	if mid.GreaterThan(bar.high) {
		bar.high = mid
	}
	if mid.LessThan(bar.low) {
		bar.low = mid
	}
	bar.close = mid
	bar.ticks++
}

func (a *aggregator) run(ctx context.Context, interval time.Duration) {
	ticker := a.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			a.flush(ctx)
		}
	}
}

// flush applies every open bar at the current clock time and resets the
// accumulation.
func (a *aggregator) flush(ctx context.Context) {
	a.mu.Lock()
	bars := a.bars
	a.bars = make(map[int]*openBar)
	a.mu.Unlock()

	ts := a.clock.Now()
	for instID, bar := range bars {
		rec, err := market.NewBar(instID, ts, bar.open, bar.high, bar.low, bar.close, bar.ticks)
		if err != nil {
			a.logger.Warn("dropping aggregated bar", zap.Int("instrument_id", instID), zap.Error(err))
			continue
		}
		if err := a.book.Apply(ctx, rec); err != nil {
			a.logger.Warn("book apply failed", zap.Int("instrument_id", instID), zap.Error(err))
		}
	}
}
