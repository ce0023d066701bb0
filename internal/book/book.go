package book

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"quantcore/internal/bus"
	"quantcore/internal/config"
	"quantcore/internal/event"
	"quantcore/internal/instrument"
	"quantcore/internal/market"
	"quantcore/internal/metrics"
)

// ErrNotFound is returned when no record has been seen for an instrument.
var ErrNotFound = errors.New("instrument record not found")

// Options tunes book behavior per engine mode.
type Options struct {
	Mode config.Mode
	// LockstepTimeout bounds each flag handshake in backtest mode.
	LockstepTimeout time.Duration
}

// Book caches the latest record per instrument and, in backtest mode, runs
// the lockstep choreography that keeps valuation and strategy reaction
// aligned with the record stream. It has a single writer: the replayer or
// the live feed.
type Book struct {
	Metrics *metrics.Metrics // optional

	universe *instrument.Universe
	bus      *bus.Bus
	opts     Options
	logger   *zap.Logger

	mu          sync.RWMutex
	records     map[int]market.Record
	lastUpdated time.Time
	loaded      bool
}

func New(universe *instrument.Universe, b *bus.Bus, opts Options, logger *zap.Logger) *Book {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Book{
		universe: universe,
		bus:      b,
		opts:     opts,
		logger:   logger,
		records:  make(map[int]market.Record),
	}
}

// Retrieve returns the latest record for an instrument.
func (b *Book) Retrieve(id int) (market.Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.records[id]
	if !ok {
		return market.Record{}, fmt.Errorf("instrument %d: %w", id, ErrNotFound)
	}
	return rec, nil
}

// RetrieveAll returns a copy of the latest record per instrument.
func (b *Book) RetrieveAll() map[int]market.Record {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[int]market.Record, len(b.records))
	for id, rec := range b.records {
		out[id] = rec
	}
	return out
}

// Price returns the representative price for an instrument.
func (b *Book) Price(id int) (decimal.Decimal, error) {
	rec, err := b.Retrieve(id)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return rec.Price(), nil
}

// LastUpdated is the timestamp of the most recently applied record.
func (b *Book) LastUpdated() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdated
}

// TickersLoaded reports whether every instrument in the universe has been
// seen at least once. It latches true.
func (b *Book) TickersLoaded() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.loaded
}

// Apply stores a record and advances the book clock. In live mode the book
// notifies immediately. In backtest mode, once all tickers are loaded, each
// record runs the lockstep handshake: the broker re-marks equity, then the
// strategy chain reacts, and the call returns only when both flags come
// back down. Records for unknown instruments and invalid records are
// dropped with a log line.
func (b *Book) Apply(ctx context.Context, rec market.Record) error {
	if _, ok := b.universe.ByID(rec.InstrumentID); !ok {
		b.logger.Warn("dropping record for unknown instrument", zap.Int("instrument_id", rec.InstrumentID))
		return nil
	}
	if err := rec.Validate(); err != nil {
		b.logger.Warn("dropping invalid record", zap.Int("instrument_id", rec.InstrumentID), zap.Error(err))
		return nil
	}

	b.mu.Lock()
	b.records[rec.InstrumentID] = rec
	b.lastUpdated = rec.Timestamp
	if !b.loaded {
		b.loaded = len(b.records) == b.universe.Size()
	}
	loaded := b.loaded
	b.mu.Unlock()

	if b.Metrics != nil {
		b.Metrics.RecordsApplied.Inc()
	}

	if b.opts.Mode == config.ModeLive {
		b.bus.Publish(event.OrderBookUpdated{Timestamp: rec.Timestamp})
		return nil
	}

	if !loaded {
		return nil
	}

	b.bus.SetFlag(event.FlagUpdateEquity, true)
	if err := b.bus.AwaitFlag(ctx, event.FlagUpdateEquity, false, b.opts.LockstepTimeout); err != nil {
		return fmt.Errorf("equity handshake: %w", err)
	}

	// The flag goes up before the event goes out so a reacting consumer can
	// never clear it before it is raised.
	b.bus.SetFlag(event.FlagUpdateSystem, true)
	b.bus.Publish(event.OrderBookUpdated{Timestamp: rec.Timestamp})
	if err := b.bus.AwaitFlag(ctx, event.FlagUpdateSystem, false, b.opts.LockstepTimeout); err != nil {
		return fmt.Errorf("system handshake: %w", err)
	}
	return nil
}

// HandleEOD publishes the end-of-day marker and waits for the broker to
// finish its close-of-day valuation.
func (b *Book) HandleEOD(ctx context.Context, date time.Time) error {
	b.bus.SetFlag(event.FlagEOD, true)
	b.bus.Publish(event.EndOfDay{Date: date})
	if err := b.bus.AwaitFlag(ctx, event.FlagEOD, false, b.opts.LockstepTimeout); err != nil {
		return fmt.Errorf("end-of-day handshake: %w", err)
	}
	return nil
}
