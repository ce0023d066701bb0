package strategy

import (
	"context"

	"go.uber.org/zap"

	"quantcore/internal/bus"
	"quantcore/internal/config"
	"quantcore/internal/event"
)

// Runner drives one Strategy off the book stream. In backtest mode it is a
// participant in the lockstep handshake: when the strategy produces no
// instructions (or fails), the runner lowers FlagUpdateSystem itself so the
// replay can advance; when it publishes a Signal, the flag stays up and
// whoever finishes the order path lowers it.
type Runner struct {
	Strategy Strategy
	Bus      *bus.Bus
	View     View
	Logger   *zap.Logger
	Mode     config.Mode
}

func (r *Runner) Run(ctx context.Context) error {
	if r == nil || r.Strategy == nil || r.Bus == nil {
		return nil
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sub := r.Bus.Subscribe("strategy", event.KindOrderBook)
	defer sub.Close()

	logger.Info("strategy runner started", zap.String("strategy", r.Strategy.Name()))
	for {
		select {
		case <-ctx.Done():
			logger.Info("strategy runner stopped", zap.String("strategy", r.Strategy.Name()))
			return ctx.Err()
		case ev := <-sub.C():
			update, ok := ev.(event.OrderBookUpdated)
			if !ok {
				logger.Warn("unexpected event on strategy stream", zap.Stringer("kind", ev.Kind()))
				continue
			}
			r.handle(ctx, update, logger)
		}
	}
}

func (r *Runner) handle(ctx context.Context, ev event.OrderBookUpdated, logger *zap.Logger) {
	instructions, err := r.Strategy.OnMarket(ctx, ev, r.View)
	if err != nil {
		logger.Warn("strategy failed on market update",
			zap.String("strategy", r.Strategy.Name()),
			zap.Time("timestamp", ev.Timestamp),
			zap.Error(err))
		r.release()
		return
	}
	if len(instructions) == 0 {
		r.release()
		return
	}

	logger.Debug("strategy signal",
		zap.String("strategy", r.Strategy.Name()),
		zap.Int("legs", len(instructions)))
	r.Bus.Publish(event.Signal{Timestamp: ev.Timestamp, Instructions: instructions})
}

func (r *Runner) release() {
	if r.Mode == config.ModeBacktest {
		r.Bus.SetFlag(event.FlagUpdateSystem, false)
	}
}
