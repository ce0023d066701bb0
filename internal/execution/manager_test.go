package execution

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"quantcore/internal/book"
	"quantcore/internal/bus"
	"quantcore/internal/config"
	"quantcore/internal/event"
	"quantcore/internal/instrument"
	"quantcore/internal/market"
	"quantcore/internal/order"
	"quantcore/internal/portfolio"
	"quantcore/internal/position"
)

type rig struct {
	bus       *bus.Bus
	book      *book.Book
	portfolio *portfolio.Server
	manager   *Manager
}

// newRig wires a manager against a live-mode book (so price seeding does
// not engage the lockstep handshake) and a running portfolio server. The
// manager itself runs in backtest mode to exercise the flag discipline.
func newRig(t *testing.T) *rig {
	t.Helper()

	u, err := instrument.FromConfig([]config.InstrumentConfig{
		{
			ID: 1, Ticker: "HE.n.0", Kind: "future", Fees: 0.85,
			InitialMargin: 500, PriceMultiplier: 1, QuantityMultiplier: 1,
		},
		{
			ID: 2, Ticker: "AAPL", Kind: "equity", Fees: 0.1,
			PriceMultiplier: 1, QuantityMultiplier: 1,
		},
	})
	if err != nil {
		t.Fatalf("building universe: %v", err)
	}

	eb := bus.New(nil)
	t.Cleanup(eb.Close)

	bk := book.New(u, eb, book.Options{Mode: config.ModeLive}, nil)
	pf := portfolio.NewServer(eb, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go pf.Run(ctx)

	ts := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	for id, px := range map[int]float64{1: 95, 2: 18} {
		p := decimal.NewFromFloat(px)
		rec, err := market.NewBar(id, ts, p, p, p, p, 100)
		if err != nil {
			t.Fatalf("building bar: %v", err)
		}
		if err := bk.Apply(ctx, rec); err != nil {
			t.Fatalf("seeding book: %v", err)
		}
	}

	return &rig{
		bus:       eb,
		book:      bk,
		portfolio: pf,
		manager: &Manager{
			Bus:       eb,
			Book:      bk,
			Portfolio: pf,
			Universe:  u,
			Mode:      config.ModeBacktest,
		},
	}
}

func (r *rig) setCapital(t *testing.T, funds float64) {
	t.Helper()
	acct := position.Account{
		AvailableFunds: decimal.NewFromFloat(funds),
		NetLiquidation: decimal.NewFromFloat(funds),
	}
	// Republish until observed: the server's subscription may not exist yet
	// on the first send, and a repeated snapshot is idempotent.
	waitUntil(t, "capital to land", func() bool {
		r.bus.Publish(event.AccountUpdated{Account: acct})
		return r.portfolio.Capital().Equal(acct.AvailableFunds)
	})
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func leg(instrumentID, tradeID, legID int, action order.Action, qty float64) order.Instruction {
	return order.Instruction{
		InstrumentID: instrumentID,
		Action:       action,
		Type:         order.Market,
		TradeID:      tradeID,
		LegID:        legID,
		Weight:       decimal.NewFromInt(1),
		Quantity:     decimal.NewFromFloat(qty),
	}
}

func expectNoOrders(t *testing.T, sub *bus.Subscription) {
	t.Helper()
	select {
	case ev := <-sub.C():
		t.Fatalf("unexpected order batch: %#v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAdmitsAffordableBatch(t *testing.T) {
	r := newRig(t)
	r.setCapital(t, 100000)
	sub := r.bus.Subscribe("test-orders", event.KindOrderCreated)

	ts := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	sig := event.Signal{Timestamp: ts, Instructions: []order.Instruction{
		leg(1, 1, 1, order.Long, 2),  // margin 1000
		leg(2, 1, 2, order.Long, 10), // notional 180
	}}
	r.manager.handleSignal(sig, zap.NewNop())

	select {
	case ev := <-sub.C():
		batch := ev.(event.OrdersCreated)
		if len(batch.Orders) != 2 {
			t.Fatalf("orders = %d, want 2", len(batch.Orders))
		}
		if !batch.Timestamp.Equal(ts) {
			t.Fatalf("batch timestamp = %v, want %v", batch.Timestamp, ts)
		}
		for _, o := range batch.Orders {
			if o.ID == "" {
				t.Fatalf("order without id: %+v", o)
			}
			if o.TradeID != 1 {
				t.Fatalf("order lost trade identity: %+v", o)
			}
		}
		if batch.Orders[0].ID == batch.Orders[1].ID {
			t.Fatalf("order ids must be unique, both %s", batch.Orders[0].ID)
		}
	case <-time.After(time.Second):
		t.Fatalf("no order batch for an affordable signal")
	}
}

func TestDropsBatchOverCapital(t *testing.T) {
	r := newRig(t)
	r.setCapital(t, 100)
	sub := r.bus.Subscribe("test-orders", event.KindOrderCreated)

	r.bus.SetFlag(event.FlagUpdateSystem, true)
	sig := event.Signal{Timestamp: time.Now(), Instructions: []order.Instruction{
		leg(1, 1, 1, order.Long, 2), // needs 1000
	}}
	r.manager.handleSignal(sig, zap.NewNop())

	expectNoOrders(t, sub)
	if r.bus.Flag(event.FlagUpdateSystem) {
		t.Fatalf("dropped batch must lower the system flag")
	}
}

func TestClosingLegsDoNotConsumeCapital(t *testing.T) {
	r := newRig(t)
	r.setCapital(t, 600)
	sub := r.bus.Subscribe("test-orders", event.KindOrderCreated)

	// Selling two contracts releases margin; only the opening leg counts
	// against the 600 of available capital.
	sig := event.Signal{Timestamp: time.Now(), Instructions: []order.Instruction{
		leg(1, 1, 1, order.Sell, 2),
		leg(1, 1, 2, order.Long, 1), // margin 500
	}}
	r.manager.handleSignal(sig, zap.NewNop())

	select {
	case ev := <-sub.C():
		batch := ev.(event.OrdersCreated)
		if len(batch.Orders) != 2 {
			t.Fatalf("orders = %d, want 2", len(batch.Orders))
		}
	case <-time.After(time.Second):
		t.Fatalf("batch with affordable opening legs was dropped")
	}
}

func TestActiveInstrumentConflictDropsBatch(t *testing.T) {
	r := newRig(t)
	r.setCapital(t, 100000)

	r.bus.Publish(event.OrderUpdated{Order: order.ActiveOrder{
		ID: "working-1", InstrumentID: 1, Status: order.StatusSubmitted,
		Action: order.Long, TotalQuantity: decimal.NewFromInt(1),
	}})
	waitUntil(t, "active order to land", func() bool {
		return len(r.portfolio.ActiveOrderInstruments()) == 1
	})

	sub := r.bus.Subscribe("test-orders", event.KindOrderCreated)
	r.bus.SetFlag(event.FlagUpdateSystem, true)
	sig := event.Signal{Timestamp: time.Now(), Instructions: []order.Instruction{
		leg(1, 2, 1, order.Long, 1),
	}}
	r.manager.handleSignal(sig, zap.NewNop())

	expectNoOrders(t, sub)
	if r.bus.Flag(event.FlagUpdateSystem) {
		t.Fatalf("conflicting batch must lower the system flag")
	}
}

func TestInvalidLegDropsWholeBatch(t *testing.T) {
	r := newRig(t)
	r.setCapital(t, 100000)
	sub := r.bus.Subscribe("test-orders", event.KindOrderCreated)

	r.bus.SetFlag(event.FlagUpdateSystem, true)
	bad := leg(2, 1, 2, order.Long, 10)
	bad.TradeID = 0
	sig := event.Signal{Timestamp: time.Now(), Instructions: []order.Instruction{
		leg(1, 1, 1, order.Long, 1),
		bad,
	}}
	r.manager.handleSignal(sig, zap.NewNop())

	expectNoOrders(t, sub)
	if r.bus.Flag(event.FlagUpdateSystem) {
		t.Fatalf("invalid batch must lower the system flag")
	}
}

func TestUnknownInstrumentDropsWholeBatch(t *testing.T) {
	r := newRig(t)
	r.setCapital(t, 100000)
	sub := r.bus.Subscribe("test-orders", event.KindOrderCreated)

	sig := event.Signal{Timestamp: time.Now(), Instructions: []order.Instruction{
		leg(99, 1, 1, order.Long, 1),
	}}
	r.manager.handleSignal(sig, zap.NewNop())

	expectNoOrders(t, sub)
}

func TestEmptySignalReleasesFlag(t *testing.T) {
	r := newRig(t)

	r.bus.SetFlag(event.FlagUpdateSystem, true)
	r.manager.handleSignal(event.Signal{Timestamp: time.Now()}, zap.NewNop())

	if r.bus.Flag(event.FlagUpdateSystem) {
		t.Fatalf("empty signal must lower the system flag")
	}
}
