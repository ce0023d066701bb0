package sim

import (
	"context"
	"sort"
	"sync"
	"time"

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
	"quantcore/internal/position"
)

// Broker simulates execution and account keeping. Orders fill immediately
// at the book price adjusted for slippage, commissions debit cash, and the
// account is re-marked from the book after every change. In backtest mode
// the broker answers the lockstep flags: it re-marks equity when the book
// raises FlagUpdateEquity, runs end-of-day valuation on FlagEOD, and lowers
// FlagUpdateSystem once an admitted batch has been filled.
type Broker struct {
	Bus      *bus.Bus
	Book     *book.Book
	Universe *instrument.Universe
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Mode     config.Mode

	mu         sync.Mutex
	positions  map[int]*position.Position
	account    position.Account
	lastTrades map[int]order.Trade
}

func NewBroker(b *bus.Bus, bk *book.Book, u *instrument.Universe, capital decimal.Decimal, currency string, logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		Bus:        b,
		Book:       bk,
		Universe:   u,
		Logger:     logger,
		positions:  make(map[int]*position.Position),
		account:    position.NewAccount(capital, currency),
		lastTrades: make(map[int]order.Trade),
	}
}

// Run starts the order consumer and the valuation loops and blocks until
// ctx ends.
func (s *Broker) Run(ctx context.Context) error {
	if s == nil || s.Bus == nil || s.Book == nil || s.Universe == nil {
		return nil
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		s.orderLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.equityLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.eodLoop(ctx)
	}()

	s.Logger.Info("sim broker started", zap.String("mode", string(s.Mode)))
	wg.Wait()
	s.Logger.Info("sim broker stopped")
	return ctx.Err()
}

func (s *Broker) orderLoop(ctx context.Context) {
	sub := s.Bus.Subscribe("sim-broker", event.KindOrderCreated)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub.C():
			batch, ok := ev.(event.OrdersCreated)
			if !ok {
				s.Logger.Warn("unexpected event on broker stream", zap.Stringer("kind", ev.Kind()))
				continue
			}
			for _, ord := range batch.Orders {
				s.placeOrder(batch.Timestamp, ord)
			}
			// The batch is done; let the replay move to the next record.
			if s.Mode == config.ModeBacktest {
				s.Bus.SetFlag(event.FlagUpdateSystem, false)
			}
		}
	}
}

// equityLoop produces the equity curve. In backtest mode the book raises
// FlagUpdateEquity before each notify so every record gets marked exactly
// once; in live mode the loop rides the book stream directly.
func (s *Broker) equityLoop(ctx context.Context) {
	if s.Mode == config.ModeBacktest {
		for {
			if err := s.Bus.AwaitFlag(ctx, event.FlagUpdateEquity, true, 0); err != nil {
				return
			}
			s.publishEquity()
			s.Bus.SetFlag(event.FlagUpdateEquity, false)
		}
	}

	sub := s.Bus.Subscribe("sim-broker-equity", event.KindOrderBook)
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.C():
			s.publishEquity()
		}
	}
}

func (s *Broker) publishEquity() {
	s.mu.Lock()
	s.recomputeAccountLocked()
	snap := s.account.EquityValue()
	s.mu.Unlock()
	s.Bus.Publish(event.EquityUpdated{Timestamp: snap.Timestamp, Value: snap.Value})
}

// eodLoop answers end-of-day valuation requests in both modes: the replayer
// raises FlagEOD between session dates and the live cron raises it at the
// configured close.
func (s *Broker) eodLoop(ctx context.Context) {
	for {
		if err := s.Bus.AwaitFlag(ctx, event.FlagEOD, true, 0); err != nil {
			return
		}

		s.mu.Lock()
		s.recomputeAccountLocked()
		acct := s.account
		s.mu.Unlock()

		if acct.MarginCall() {
			s.Logger.Warn("margin call",
				zap.String("available_funds", acct.AvailableFunds.String()),
				zap.String("init_margin_required", acct.InitMarginRequired.String()))
			if s.Metrics != nil {
				s.Metrics.MarginCalls.Inc()
			}
		}

		s.Bus.Publish(event.AccountUpdated{Account: acct})
		s.Bus.SetFlag(event.FlagEOD, false)
	}
}

// placeOrder fills one order at the slippage-adjusted book price and
// publishes the resulting state changes.
func (s *Broker) placeOrder(ts time.Time, ord order.Order) {
	inst, ok := s.Universe.ByID(ord.InstrumentID)
	if !ok {
		s.Logger.Warn("dropping order for unknown instrument", zap.Int("instrument_id", ord.InstrumentID))
		return
	}
	rec, err := s.Book.Retrieve(ord.InstrumentID)
	if err != nil {
		s.Logger.Warn("dropping order without market data",
			zap.Int("instrument_id", ord.InstrumentID), zap.Error(err))
		return
	}
	fill, err := inst.SlippagePrice(rec.Price(), ord.Action)
	if err != nil {
		s.Logger.Warn("dropping order", zap.String("order_id", ord.ID), zap.Error(err))
		return
	}
	quantity := ord.SignedQuantity()
	fees := inst.CommissionFee(quantity)

	s.mu.Lock()
	s.account.AvailableFunds = s.account.AvailableFunds.Add(fees)

	pos, ok := s.positions[ord.InstrumentID]
	var impact position.Impact
	if ok {
		impact = pos.Update(quantity, fill, fill, ord.Action.Side())
		if pos.Quantity.IsZero() {
			delete(s.positions, ord.InstrumentID)
		}
	} else {
		pos, err = position.New(inst, ord.Action.Side(), quantity, fill, fill)
		if err != nil {
			s.mu.Unlock()
			s.Logger.Warn("cannot open position", zap.String("order_id", ord.ID), zap.Error(err))
			return
		}
		impact = pos.Impact()
		s.positions[ord.InstrumentID] = pos
	}
	s.account.AvailableFunds = s.account.AvailableFunds.Add(impact.Cash)
	s.recomputeAccountLocked()

	trade := order.Trade{
		Timestamp:    ts,
		TradeID:      ord.TradeID,
		LegID:        ord.LegID,
		ExecID:       id.New(),
		InstrumentID: ord.InstrumentID,
		Quantity:     quantity.RoundBank(4),
		AvgPrice:     fill.Mul(inst.PriceMultiplier),
		Value:        inst.Value(quantity, fill).RoundBank(2),
		Cost:         inst.Cost(quantity, fill).RoundBank(2),
		Action:       ord.Action,
		Fees:         fees.RoundBank(4),
	}
	s.lastTrades[ord.InstrumentID] = trade
	posCopy := *pos
	acct := s.account
	s.mu.Unlock()

	if s.Metrics != nil {
		s.Metrics.TradesExecuted.Inc()
	}
	s.Logger.Debug("order filled",
		zap.String("order_id", ord.ID),
		zap.Int("instrument_id", ord.InstrumentID),
		zap.String("action", string(ord.Action)),
		zap.String("quantity", quantity.String()),
		zap.String("fill_price", fill.String()))

	s.Bus.Publish(event.OrderUpdated{Order: order.ActiveOrder{
		ID:             ord.ID,
		InstrumentID:   ord.InstrumentID,
		Status:         order.StatusFilled,
		Action:         ord.Action,
		Type:           ord.Type,
		TotalQuantity:  ord.Quantity,
		FilledQuantity: ord.Quantity,
		AvgFillPrice:   fill,
		UpdatedAt:      ts,
	}})
	s.Bus.Publish(event.Execution{Timestamp: ts, Trade: trade, Action: ord.Action})
	s.Bus.Publish(event.PositionUpdated{InstrumentID: ord.InstrumentID, Position: posCopy})
	s.Bus.Publish(event.AccountUpdated{Account: acct})
}

// recomputeAccountLocked re-marks every position at its book price and
// rolls the sums into the account. Callers hold s.mu.
func (s *Broker) recomputeAccountLocked() {
	unrealized := decimal.Zero
	margin := decimal.Zero
	liquidation := decimal.Zero
	for instID, pos := range s.positions {
		if price, err := s.Book.Price(instID); err == nil {
			pos.MarkPrice(price)
		}
		unrealized = unrealized.Add(pos.UnrealizedPnL)
		margin = margin.Add(pos.MarginRequired)
		liquidation = liquidation.Add(pos.LiquidationValue)
	}
	s.account.UnrealizedPnL = unrealized
	s.account.InitMarginRequired = margin
	s.account.NetLiquidation = liquidation.Add(s.account.AvailableFunds)
	s.account.Timestamp = s.Book.LastUpdated()
}

// Liquidate closes every open position at the current book price with
// offsetting zero-fee trades, reusing each instrument's last trade
// identity. The engine calls it once after a backtest drains so the final
// account is all cash.
func (s *Broker) Liquidate(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	ts := s.Book.LastUpdated()

	ids := make([]int, 0, len(s.positions))
	for instID := range s.positions {
		ids = append(ids, instID)
	}
	sort.Ints(ids)

	type closeout struct {
		instID int
		trade  order.Trade
		pos    position.Position
	}
	closed := make([]closeout, 0, len(ids))
	for _, instID := range ids {
		pos := s.positions[instID]
		inst, ok := s.Universe.ByID(instID)
		if !ok {
			continue
		}
		price, err := s.Book.Price(instID)
		if err != nil {
			s.Logger.Warn("cannot liquidate position without market data",
				zap.Int("instrument_id", instID), zap.Error(err))
			continue
		}

		action := order.Sell
		if pos.Side == order.SideSell {
			action = order.Cover
		}
		last := s.lastTrades[instID]
		trade := order.Trade{
			Timestamp:    ts,
			TradeID:      last.TradeID,
			LegID:        last.LegID,
			ExecID:       id.New(),
			InstrumentID: instID,
			Quantity:     pos.Quantity.Neg().RoundBank(4),
			AvgPrice:     price.Mul(inst.PriceMultiplier),
			Value:        inst.Value(pos.Quantity, price).RoundBank(2),
			Cost:         inst.Cost(pos.Quantity.Neg(), price).RoundBank(2),
			Action:       action,
			Fees:         decimal.Zero,
		}
		s.lastTrades[instID] = trade

		impact := pos.Update(pos.Quantity.Neg(), price, price, action.Side())
		s.account.AvailableFunds = s.account.AvailableFunds.Add(impact.Cash)
		delete(s.positions, instID)
		closed = append(closed, closeout{instID: instID, trade: trade, pos: *pos})
	}
	s.recomputeAccountLocked()
	acct := s.account
	s.mu.Unlock()

	for _, c := range closed {
		if s.Metrics != nil {
			s.Metrics.TradesExecuted.Inc()
		}
		s.Logger.Info("position liquidated",
			zap.Int("instrument_id", c.instID),
			zap.String("quantity", c.trade.Quantity.String()),
			zap.String("avg_price", c.trade.AvgPrice.String()))
		s.Bus.Publish(event.Execution{Timestamp: ts, Trade: c.trade, Action: c.trade.Action})
		s.Bus.Publish(event.PositionUpdated{InstrumentID: c.instID, Position: c.pos})
	}

	snap := acct.EquityValue()
	s.Bus.Publish(event.AccountUpdated{Account: acct})
	s.Bus.Publish(event.EquityUpdated{Timestamp: snap.Timestamp, Value: snap.Value})
}

// Positions returns value copies of the open positions; zero-quantity
// holdings are pruned.
func (s *Broker) Positions() map[int]position.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]position.Position, len(s.positions))
	for instID, pos := range s.positions {
		if pos.Quantity.IsZero() {
			delete(s.positions, instID)
			continue
		}
		out[instID] = *pos
	}
	return out
}

// Account returns the latest account state.
func (s *Broker) Account() position.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}
