package portfolio

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"quantcore/internal/bus"
	"quantcore/internal/event"
	"quantcore/internal/order"
	"quantcore/internal/position"
)

// Server is the reactive view of broker state: positions, account and
// working orders. It never initiates anything; every mutation arrives over
// the bus from the broker side, and readers get copies.
type Server struct {
	bus    *bus.Bus
	logger *zap.Logger

	mu        sync.RWMutex
	positions map[int]position.Position
	account   position.Account
	orders    map[string]order.ActiveOrder
	// pending marks instruments whose fill has been seen but whose position
	// update has not landed yet. The execution manager treats them as
	// active so a strategy cannot double-trade the gap.
	pending map[int]struct{}
}

func NewServer(b *bus.Bus, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		bus:       b,
		logger:    logger,
		positions: make(map[int]position.Position),
		orders:    make(map[string]order.ActiveOrder),
		pending:   make(map[int]struct{}),
	}
}

// Run consumes portfolio-facing events until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	sub := s.bus.Subscribe("portfolio",
		event.KindPositionUpdate, event.KindAccountUpdate, event.KindOrderUpdate)
	defer sub.Close()

	s.logger.Info("portfolio server started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("portfolio server stopped")
			return ctx.Err()
		case ev := <-sub.C():
			s.handle(ev)
		}
	}
}

func (s *Server) handle(ev event.Event) {
	switch ev := ev.(type) {
	case event.PositionUpdated:
		s.applyPosition(ev.InstrumentID, ev.Position)
	case event.AccountUpdated:
		s.applyAccount(ev.Account)
	case event.OrderUpdated:
		s.applyOrder(ev.Order)
	default:
		s.logger.Warn("unexpected event on portfolio stream", zap.Stringer("kind", ev.Kind()))
	}
}

func (s *Server) applyPosition(instrumentID int, pos position.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pos.Quantity.IsZero() {
		delete(s.positions, instrumentID)
	} else {
		s.positions[instrumentID] = pos
	}
	delete(s.pending, instrumentID)
	s.logger.Debug("position updated",
		zap.Int("instrument_id", instrumentID),
		zap.String("quantity", pos.Quantity.String()))
}

func (s *Server) applyAccount(acc position.Account) {
	s.mu.Lock()
	s.account = acc
	s.mu.Unlock()
}

// applyOrder runs the working-order state machine: terminal cancels drop
// the order, fills drop it and mark the instrument pending, anything else
// merges into (or inserts) the tracked order.
func (s *Server) applyOrder(o order.ActiveOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch o.Status {
	case order.StatusCancelled:
		delete(s.orders, o.ID)
	case order.StatusFilled:
		delete(s.orders, o.ID)
		s.pending[o.InstrumentID] = struct{}{}
	default:
		if existing, ok := s.orders[o.ID]; ok {
			existing.Apply(o)
			s.orders[o.ID] = existing
		} else {
			s.orders[o.ID] = o
		}
	}
	s.logger.Debug("order updated", zap.String("order_id", o.ID), zap.String("status", string(o.Status)))
}

// Positions returns a copy of current holdings keyed by instrument.
func (s *Server) Positions() map[int]position.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]position.Position, len(s.positions))
	for id, p := range s.positions {
		out[id] = p
	}
	return out
}

// Account returns the latest account snapshot.
func (s *Server) Account() position.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

// Capital is the account's available funds.
func (s *Server) Capital() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account.Capital()
}

// ActiveOrders returns a copy of the working orders keyed by order id.
func (s *Server) ActiveOrders() map[string]order.ActiveOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]order.ActiveOrder, len(s.orders))
	for id, o := range s.orders {
		out[id] = o
	}
	return out
}

// ActiveOrderInstruments is the union of instruments with working orders
// and instruments pending a position update, sorted ascending.
func (s *Server) ActiveOrderInstruments() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := make(map[int]struct{}, len(s.orders)+len(s.pending))
	for _, o := range s.orders {
		set[o.InstrumentID] = struct{}{}
	}
	for id := range s.pending {
		set[id] = struct{}{}
	}

	out := make([]int, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}
