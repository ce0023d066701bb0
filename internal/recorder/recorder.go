package recorder

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"quantcore/internal/bus"
	"quantcore/internal/event"
	"quantcore/internal/instrument"
	"quantcore/internal/metrics"
	"quantcore/internal/models"
	"quantcore/internal/portfolio"
	"quantcore/internal/repository"
)

// Recorder journals run artifacts: fills, the equity curve, account
// snapshots and signal batches. It rides the bus on its own goroutine so a
// slow or failing database never blocks the trading path; persistence
// errors are logged and counted, never fatal.
type Recorder struct {
	Bus       *bus.Bus
	Repo      repository.Repository
	Universe  *instrument.Universe
	Portfolio *portfolio.Server
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

func (r *Recorder) Run(ctx context.Context) error {
	if r == nil || r.Bus == nil || r.Repo == nil {
		return nil
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sub := r.Bus.Subscribe("recorder",
		event.KindExecution, event.KindEquity, event.KindAccountUpdate, event.KindSignal)
	defer sub.Close()

	logger.Info("recorder started")
	for {
		select {
		case <-ctx.Done():
			logger.Info("recorder stopped")
			return ctx.Err()
		case ev := <-sub.C():
			r.handle(ctx, ev, logger)
		}
	}
}

func (r *Recorder) handle(ctx context.Context, ev event.Event, logger *zap.Logger) {
	var err error
	switch ev := ev.(type) {
	case event.Execution:
		err = r.recordTrade(ctx, ev)
	case event.EquityUpdated:
		err = r.Repo.InsertEquityPoint(ctx, &models.EquityPoint{
			Timestamp: ev.Timestamp,
			Value:     ev.Value,
		})
	case event.AccountUpdated:
		err = r.Repo.InsertAccountSnapshot(ctx, &models.AccountSnapshot{
			Timestamp:          ev.Account.Timestamp,
			AvailableFunds:     ev.Account.AvailableFunds,
			InitMarginRequired: ev.Account.InitMarginRequired,
			NetLiquidation:     ev.Account.NetLiquidation,
			UnrealizedPnL:      ev.Account.UnrealizedPnL,
			Currency:           ev.Account.Currency,
		})
	case event.Signal:
		err = r.recordSignal(ctx, ev)
	default:
		logger.Warn("unexpected event on recorder stream", zap.Stringer("kind", ev.Kind()))
		return
	}
	if err != nil {
		logger.Warn("recorder write failed", zap.Stringer("kind", ev.Kind()), zap.Error(err))
		if r.Metrics != nil {
			r.Metrics.RecorderErrors.Inc()
		}
	}
}

func (r *Recorder) recordTrade(ctx context.Context, ev event.Execution) error {
	ticker := ""
	if r.Universe != nil {
		if inst, ok := r.Universe.ByID(ev.Trade.InstrumentID); ok {
			ticker = inst.Ticker
		}
	}
	return r.Repo.InsertTrade(ctx, &models.TradeRow{
		TradeID:      ev.Trade.TradeID,
		LegID:        ev.Trade.LegID,
		ExecutionID:  ev.Trade.ExecID,
		InstrumentID: ev.Trade.InstrumentID,
		Ticker:       ticker,
		Action:       string(ev.Trade.Action),
		Quantity:     ev.Trade.Quantity,
		AvgPrice:     ev.Trade.AvgPrice,
		Value:        ev.Trade.Value,
		Cost:         ev.Trade.Cost,
		Fees:         ev.Trade.Fees,
		ExecutedAt:   ev.Trade.Timestamp,
	})
}

func (r *Recorder) recordSignal(ctx context.Context, ev event.Signal) error {
	legs, err := json.Marshal(ev.Instructions)
	if err != nil {
		return err
	}
	return r.Repo.InsertSignalRecord(ctx, &models.SignalRecord{
		Timestamp: ev.Timestamp,
		LegCount:  len(ev.Instructions),
		Legs:      legs,
	})
}

// SnapshotPositions writes the portfolio's current holdings, one row per
// instrument. The live cron calls it periodically.
func (r *Recorder) SnapshotPositions(ctx context.Context) error {
	if r == nil || r.Repo == nil || r.Portfolio == nil {
		return nil
	}
	positions := r.Portfolio.Positions()
	if len(positions) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]models.PositionSnapshot, 0, len(positions))
	for instID, pos := range positions {
		ticker := ""
		if r.Universe != nil {
			if inst, ok := r.Universe.ByID(instID); ok {
				ticker = inst.Ticker
			}
		}
		rows = append(rows, models.PositionSnapshot{
			SnapshotAt:       now,
			InstrumentID:     instID,
			Ticker:           ticker,
			Kind:             pos.Kind.String(),
			Side:             string(pos.Side),
			Quantity:         pos.Quantity,
			AvgPrice:         pos.AvgPrice,
			MarketPrice:      pos.MarketPrice,
			MarketValue:      pos.MarketValue,
			UnrealizedPnL:    pos.UnrealizedPnL,
			MarginRequired:   pos.MarginRequired,
			LiquidationValue: pos.LiquidationValue,
		})
	}
	return r.Repo.SnapshotPositions(ctx, rows)
}
