package execution

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"quantcore/internal/book"
	"quantcore/internal/bus"
	"quantcore/internal/config"
	"quantcore/internal/event"
	"quantcore/internal/id"
	"quantcore/internal/instrument"
	"quantcore/internal/metrics"
	"quantcore/internal/order"
	"quantcore/internal/portfolio"
)

// Manager admits strategy signals under a capital gate. A signal batch is
// all-or-nothing: either every leg becomes an order or the whole batch is
// dropped, so multi-leg structures never execute partially.
type Manager struct {
	Bus       *bus.Bus
	Book      *book.Book
	Portfolio *portfolio.Server
	Universe  *instrument.Universe
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Mode      config.Mode
}

func (m *Manager) Run(ctx context.Context) error {
	if m == nil || m.Bus == nil || m.Book == nil || m.Portfolio == nil || m.Universe == nil {
		return nil
	}
	logger := m.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sub := m.Bus.Subscribe("execution", event.KindSignal)
	defer sub.Close()

	logger.Info("execution manager started")
	for {
		select {
		case <-ctx.Done():
			logger.Info("execution manager stopped")
			return ctx.Err()
		case ev := <-sub.C():
			sig, ok := ev.(event.Signal)
			if !ok {
				logger.Warn("unexpected event on execution stream", zap.Stringer("kind", ev.Kind()))
				continue
			}
			m.handleSignal(sig, logger)
		}
	}
}

func (m *Manager) handleSignal(sig event.Signal, logger *zap.Logger) {
	if len(sig.Instructions) == 0 {
		m.release()
		return
	}

	if m.hasActiveConflict(sig.Instructions) {
		logger.Warn("tickers in signal have active orders; ignoring signal",
			zap.Time("timestamp", sig.Timestamp))
		m.reject("active_orders")
		return
	}

	orders, required, err := m.buildBatch(sig.Instructions)
	if err != nil {
		logger.Warn("dropping signal batch", zap.Time("timestamp", sig.Timestamp), zap.Error(err))
		m.reject("invalid_batch")
		return
	}

	capital := m.Portfolio.Capital()
	if required.GreaterThan(capital) {
		logger.Warn("not enough capital to execute all orders",
			zap.String("required", required.String()),
			zap.String("capital", capital.String()))
		m.reject("capital")
		return
	}

	logger.Debug("signal admitted",
		zap.Int("orders", len(orders)),
		zap.String("required", required.String()),
		zap.String("capital", capital.String()))
	if m.Metrics != nil {
		m.Metrics.OrdersEmitted.Add(float64(len(orders)))
	}
	m.Bus.Publish(event.OrdersCreated{Timestamp: sig.Timestamp, Orders: orders})
}

func (m *Manager) hasActiveConflict(instructions []order.Instruction) bool {
	active := m.Portfolio.ActiveOrderInstruments()
	if len(active) == 0 {
		return false
	}
	set := make(map[int]struct{}, len(active))
	for _, instID := range active {
		set[instID] = struct{}{}
	}
	for _, ins := range instructions {
		if _, ok := set[ins.InstrumentID]; ok {
			return true
		}
	}
	return false
}

// buildBatch validates every leg, prices it off the book and sums the
// capital the opening legs consume. Closing legs release capital and are
// excluded from the requirement.
func (m *Manager) buildBatch(instructions []order.Instruction) ([]order.Order, decimal.Decimal, error) {
	orders := make([]order.Order, 0, len(instructions))
	required := decimal.Zero
	for _, ins := range instructions {
		ord, err := ins.BuildOrder()
		if err != nil {
			return nil, decimal.Zero, err
		}
		ord.ID = id.New()

		inst, ok := m.Universe.ByID(ord.InstrumentID)
		if !ok {
			return nil, decimal.Zero, fmt.Errorf("instrument %d not in universe", ord.InstrumentID)
		}
		price, err := m.Book.Price(ord.InstrumentID)
		if err != nil {
			return nil, decimal.Zero, fmt.Errorf("price leg %d: %w", ins.LegID, err)
		}
		if ord.Action.Opening() {
			required = required.Add(inst.Cost(ord.SignedQuantity(), price))
		}
		orders = append(orders, ord)
	}
	return orders, required, nil
}

func (m *Manager) reject(reason string) {
	if m.Metrics != nil {
		m.Metrics.SignalsRejected.WithLabelValues(reason).Inc()
	}
	m.release()
}

// release lowers the system flag after a dropped batch so a backtest can
// advance; admitted batches leave it up for the broker to lower after the
// fills land.
func (m *Manager) release() {
	if m.Mode == config.ModeBacktest {
		m.Bus.SetFlag(event.FlagUpdateSystem, false)
	}
}
