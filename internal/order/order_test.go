package order

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNewRejectsBadOrders(t *testing.T) {
	qty := decimal.NewFromInt(5)

	cases := []struct {
		name string
		run  func() (Order, error)
	}{
		{"zero instrument", func() (Order, error) {
			return New(0, Long, Market, qty, decimal.Zero, decimal.Zero)
		}},
		{"unknown action", func() (Order, error) {
			return New(1, Action("HOLD"), Market, qty, decimal.Zero, decimal.Zero)
		}},
		{"unknown type", func() (Order, error) {
			return New(1, Long, Type("TRAIL"), qty, decimal.Zero, decimal.Zero)
		}},
		{"zero quantity", func() (Order, error) {
			return New(1, Long, Market, decimal.Zero, decimal.Zero, decimal.Zero)
		}},
		{"limit without price", func() (Order, error) {
			return New(1, Long, Limit, qty, decimal.Zero, decimal.Zero)
		}},
		{"stop without aux", func() (Order, error) {
			return New(1, Sell, StopLoss, qty, decimal.Zero, decimal.Zero)
		}},
	}
	for _, c := range cases {
		if _, err := c.run(); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: err = %v, want ErrInvalid", c.name, err)
		}
	}
}

func TestSignedQuantityFollowsAction(t *testing.T) {
	qty := decimal.NewFromInt(3)

	buy, err := New(1, Long, Market, qty, decimal.Zero, decimal.Zero)
	if err != nil {
		t.Fatalf("new long: %v", err)
	}
	if !buy.SignedQuantity().Equal(qty) {
		t.Fatalf("long signed quantity = %s, want 3", buy.SignedQuantity())
	}

	sell, err := New(1, Sell, Market, qty, decimal.Zero, decimal.Zero)
	if err != nil {
		t.Fatalf("new sell: %v", err)
	}
	if !sell.SignedQuantity().Equal(qty.Neg()) {
		t.Fatalf("sell signed quantity = %s, want -3", sell.SignedQuantity())
	}
}

func TestActionSemantics(t *testing.T) {
	if Long.Side() != SideBuy || Cover.Side() != SideBuy {
		t.Fatalf("LONG and COVER must map to BUY")
	}
	if Short.Side() != SideSell || Sell.Side() != SideSell {
		t.Fatalf("SHORT and SELL must map to SELL")
	}
	if !Long.Opening() || !Short.Opening() {
		t.Fatalf("LONG and SHORT open exposure")
	}
	if Sell.Opening() || Cover.Opening() {
		t.Fatalf("SELL and COVER close exposure")
	}
}

func TestBuildOrderCarriesTradeIdentity(t *testing.T) {
	ins := Instruction{
		InstrumentID: 1,
		Action:       Long,
		Type:         Market,
		TradeID:      7,
		LegID:        2,
		Weight:       decimal.NewFromInt(1),
		Quantity:     decimal.NewFromInt(10),
	}

	o, err := ins.BuildOrder()
	if err != nil {
		t.Fatalf("build order: %v", err)
	}
	if o.TradeID != 7 || o.LegID != 2 {
		t.Fatalf("order identity = (%d,%d), want (7,2)", o.TradeID, o.LegID)
	}
	if o.InstrumentID != 1 || o.Action != Long {
		t.Fatalf("order fields not carried: %+v", o)
	}
}

func TestBuildOrderRejectsMissingTradeID(t *testing.T) {
	ins := Instruction{
		InstrumentID: 1,
		Action:       Long,
		Type:         Market,
		LegID:        1,
		Quantity:     decimal.NewFromInt(10),
	}
	if _, err := ins.BuildOrder(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid for trade id 0", err)
	}
}

func TestTradeValidate(t *testing.T) {
	trade := Trade{
		Timestamp:    time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
		TradeID:      1,
		LegID:        1,
		ExecID:       "01HV0000000000000000000000",
		InstrumentID: 1,
		Quantity:     decimal.NewFromInt(2),
		AvgPrice:     decimal.NewFromInt(10),
		Action:       Long,
	}
	if err := trade.Validate(); err != nil {
		t.Fatalf("valid trade rejected: %v", err)
	}

	bad := trade
	bad.TradeID = 0
	if err := bad.Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("zero trade id err = %v, want ErrInvalid", err)
	}

	bad = trade
	bad.AvgPrice = decimal.Zero
	if err := bad.Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("zero avg price err = %v, want ErrInvalid", err)
	}

	// Broker-standard sides are accepted alongside strategy actions.
	side := trade
	side.Action = Action(SideSell)
	if err := side.Validate(); err != nil {
		t.Fatalf("SELL-side trade rejected: %v", err)
	}
}

func TestActiveOrderApplyMergesSparseUpdates(t *testing.T) {
	base := ActiveOrder{
		ID:                "01HV0000000000000000000001",
		InstrumentID:      1,
		Status:            StatusSubmitted,
		Action:            Long,
		Type:              Market,
		TotalQuantity:     decimal.NewFromInt(4),
		RemainingQuantity: decimal.NewFromInt(4),
		UpdatedAt:         time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
	}

	fill := ActiveOrder{
		ID:             base.ID,
		Status:         StatusFilled,
		FilledQuantity: decimal.NewFromInt(4),
		AvgFillPrice:   decimal.NewFromInt(101),
		UpdatedAt:      base.UpdatedAt.Add(time.Second),
	}
	base.Apply(fill)

	if base.Status != StatusFilled {
		t.Fatalf("status = %s, want filled", base.Status)
	}
	if !base.TotalQuantity.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("sparse update must not clear total quantity, got %s", base.TotalQuantity)
	}
	if !base.AvgFillPrice.Equal(decimal.NewFromInt(101)) {
		t.Fatalf("avg fill price = %s, want 101", base.AvgFillPrice)
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []Status{StatusFilled, StatusCancelled} {
		if !s.Terminal() {
			t.Fatalf("%s must be terminal", s)
		}
	}
	for _, s := range []Status{StatusPendingSubmit, StatusPreSubmitted, StatusSubmitted} {
		if s.Terminal() {
			t.Fatalf("%s must not be terminal", s)
		}
	}
}
