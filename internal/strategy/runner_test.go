package strategy

import (
	"context"
	"errors"
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

// scripted returns a fixed decision on every market update.
type scripted struct {
	ins []order.Instruction
	err error
}

func (scripted) Name() string { return "scripted" }

func (s scripted) OnMarket(context.Context, event.OrderBookUpdated, View) ([]order.Instruction, error) {
	return s.ins, s.err
}

func longLeg() order.Instruction {
	return order.Instruction{
		InstrumentID: 1,
		Action:       order.Long,
		Type:         order.Market,
		TradeID:      1,
		LegID:        1,
		Weight:       decimal.NewFromInt(1),
		Quantity:     decimal.NewFromInt(2),
	}
}

func TestRunnerPublishesSignalAndKeepsFlagUp(t *testing.T) {
	eb := bus.New(nil)
	t.Cleanup(eb.Close)
	sub := eb.Subscribe("test", event.KindSignal)

	r := &Runner{
		Strategy: scripted{ins: []order.Instruction{longLeg()}},
		Bus:      eb,
		Mode:     config.ModeBacktest,
	}

	ts := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	eb.SetFlag(event.FlagUpdateSystem, true)
	r.handle(context.Background(), event.OrderBookUpdated{Timestamp: ts}, zap.NewNop())

	select {
	case ev := <-sub.C():
		sig := ev.(event.Signal)
		if !sig.Timestamp.Equal(ts) {
			t.Fatalf("signal timestamp = %v, want %v", sig.Timestamp, ts)
		}
		if len(sig.Instructions) != 1 || sig.Instructions[0].TradeID != 1 {
			t.Fatalf("signal legs = %+v", sig.Instructions)
		}
	case <-time.After(time.Second):
		t.Fatalf("no signal published")
	}

	// The order path owns the flag once a signal is out.
	if !eb.Flag(event.FlagUpdateSystem) {
		t.Fatalf("runner lowered the system flag despite signalling")
	}
}

func TestRunnerReleasesFlagWhenHolding(t *testing.T) {
	eb := bus.New(nil)
	t.Cleanup(eb.Close)
	sub := eb.Subscribe("test", event.KindSignal)

	r := &Runner{Strategy: Hold{}, Bus: eb, Mode: config.ModeBacktest}
	eb.SetFlag(event.FlagUpdateSystem, true)
	r.handle(context.Background(), event.OrderBookUpdated{Timestamp: time.Now()}, zap.NewNop())

	if eb.Flag(event.FlagUpdateSystem) {
		t.Fatalf("no-action update must lower the system flag")
	}
	select {
	case ev := <-sub.C():
		t.Fatalf("hold strategy published %#v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRunnerReleasesFlagOnStrategyError(t *testing.T) {
	eb := bus.New(nil)
	t.Cleanup(eb.Close)
	sub := eb.Subscribe("test", event.KindSignal)

	r := &Runner{
		Strategy: scripted{err: errors.New("indicator window not ready")},
		Bus:      eb,
		Mode:     config.ModeBacktest,
	}
	eb.SetFlag(event.FlagUpdateSystem, true)
	r.handle(context.Background(), event.OrderBookUpdated{Timestamp: time.Now()}, zap.NewNop())

	if eb.Flag(event.FlagUpdateSystem) {
		t.Fatalf("failed strategy must lower the system flag")
	}
	select {
	case ev := <-sub.C():
		t.Fatalf("failed strategy published %#v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRunnerLiveModeDoesNotTouchFlags(t *testing.T) {
	eb := bus.New(nil)
	t.Cleanup(eb.Close)

	r := &Runner{Strategy: Hold{}, Bus: eb, Mode: config.ModeLive}
	eb.SetFlag(event.FlagUpdateSystem, true)
	r.handle(context.Background(), event.OrderBookUpdated{Timestamp: time.Now()}, zap.NewNop())

	if !eb.Flag(event.FlagUpdateSystem) {
		t.Fatalf("live mode has no lockstep; the flag must stay untouched")
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"", "hold"} {
		s, err := ByName(name)
		if err != nil {
			t.Fatalf("ByName(%q): %v", name, err)
		}
		if s.Name() != "hold" {
			t.Fatalf("ByName(%q) = %s, want hold", name, s.Name())
		}
	}
	if _, err := ByName("momentum-breakout"); err == nil {
		t.Fatalf("unknown strategy must error")
	}
}

func TestViewReadsBookAndPortfolio(t *testing.T) {
	u, err := instrument.FromConfig([]config.InstrumentConfig{
		{
			ID: 1, Ticker: "HE.n.0", Kind: "future",
			InitialMargin: 500, PriceMultiplier: 1, QuantityMultiplier: 1,
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
	px := decimal.NewFromInt(95)
	rec, err := market.NewBar(1, ts, px, px, px, px, 100)
	if err != nil {
		t.Fatalf("building bar: %v", err)
	}
	if err := bk.Apply(ctx, rec); err != nil {
		t.Fatalf("seeding book: %v", err)
	}

	v := NewView(bk, pf)
	got, err := v.Price(1)
	if err != nil || !got.Equal(px) {
		t.Fatalf("price = %s (%v), want 95", got, err)
	}
	r, err := v.Record(1)
	if err != nil || !r.Timestamp.Equal(ts) {
		t.Fatalf("record = %+v (%v)", r, err)
	}
	if _, err := v.Price(42); err == nil {
		t.Fatalf("price for an unseen instrument must error")
	}
	if n := len(v.Positions()); n != 0 {
		t.Fatalf("positions = %d, want none before any fill", n)
	}

	pos := position.Position{InstrumentID: 1, Quantity: decimal.NewFromInt(2)}
	deadline := time.Now().Add(2 * time.Second)
	for len(v.Positions()) == 0 {
		if !time.Now().Before(deadline) {
			t.Fatalf("position never reached the view")
		}
		eb.Publish(event.PositionUpdated{InstrumentID: 1, Position: pos})
		time.Sleep(2 * time.Millisecond)
	}
	if got := v.Positions()[1].Quantity; !got.Equal(pos.Quantity) {
		t.Fatalf("view quantity = %s, want 2", got)
	}
}
