package instrument

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"quantcore/internal/order"
)

func heFuture() Instrument {
	return Instrument{
		ID:                 1,
		Ticker:             "HE.n.0",
		Kind:               Future,
		Fees:               decimal.NewFromFloat(0.85),
		InitialMargin:      decimal.NewFromFloat(4564.17),
		PriceMultiplier:    decimal.NewFromFloat(0.01),
		QuantityMultiplier: decimal.NewFromInt(40000),
		SlippageFactor:     decimal.NewFromInt(10),
	}
}

func TestSlippagePriceBySide(t *testing.T) {
	inst := heFuture()
	price := decimal.NewFromInt(100)

	cases := []struct {
		action order.Action
		want   decimal.Decimal
	}{
		{order.Long, decimal.NewFromInt(110)},
		{order.Cover, decimal.NewFromInt(110)},
		{order.Short, decimal.NewFromInt(90)},
		{order.Sell, decimal.NewFromInt(90)},
	}
	for _, c := range cases {
		got, err := inst.SlippagePrice(price, c.action)
		if err != nil {
			t.Fatalf("%s: %v", c.action, err)
		}
		if !got.Equal(c.want) {
			t.Fatalf("%s: fill = %s, want %s", c.action, got, c.want)
		}
	}

	if _, err := inst.SlippagePrice(price, order.Action("HOLD")); !errors.Is(err, ErrInvalid) {
		t.Fatalf("unknown action err = %v, want ErrInvalid", err)
	}
}

func TestCommissionFeeIsNonPositive(t *testing.T) {
	inst := heFuture()

	fee := inst.CommissionFee(decimal.NewFromInt(-4))
	if !fee.Equal(decimal.NewFromFloat(-3.4)) {
		t.Fatalf("fee = %s, want -3.4", fee)
	}
	if inst.CommissionFee(decimal.Zero).Sign() != 0 {
		t.Fatalf("zero quantity must cost nothing")
	}
}

func TestValueAndCostByKind(t *testing.T) {
	fut := heFuture()
	qty := decimal.NewFromInt(2)
	px := decimal.NewFromInt(95)

	// 0.01 * 95 * 2 * 40000
	if got := fut.Value(qty, px); !got.Equal(decimal.NewFromInt(76000)) {
		t.Fatalf("future value = %s, want 76000", got)
	}
	// Futures consume posted margin, not notional.
	if got := fut.Cost(qty.Neg(), px); !got.Equal(decimal.NewFromFloat(9128.34)) {
		t.Fatalf("future cost = %s, want 9128.34", got)
	}

	eq := Instrument{
		ID: 2, Ticker: "AAPL", Kind: Equity,
		PriceMultiplier:    decimal.NewFromInt(1),
		QuantityMultiplier: decimal.NewFromInt(1),
	}
	if got := eq.Value(decimal.NewFromInt(10), decimal.NewFromInt(18)); !got.Equal(decimal.NewFromInt(180)) {
		t.Fatalf("equity value = %s, want 180", got)
	}
	if got := eq.Cost(decimal.NewFromInt(-10), decimal.NewFromInt(18)); !got.Equal(decimal.NewFromInt(180)) {
		t.Fatalf("equity cost = %s, want 180", got)
	}

	opt := Instrument{
		ID: 3, Ticker: "AAPL240621C", Kind: Option,
		PriceMultiplier:    decimal.NewFromInt(1),
		QuantityMultiplier: decimal.NewFromInt(100),
		Strike:             decimal.NewFromInt(180),
		Right:              Call,
	}
	// Premium on absolute quantity.
	if got := opt.Value(decimal.NewFromInt(-3), decimal.NewFromFloat(2.5)); !got.Equal(decimal.NewFromInt(750)) {
		t.Fatalf("option value = %s, want 750", got)
	}
	if got := opt.Cost(decimal.NewFromInt(3), decimal.NewFromFloat(2.5)); !got.Equal(decimal.NewFromInt(750)) {
		t.Fatalf("option cost = %s, want 750", got)
	}
}

func TestValidateRejectsBadTerms(t *testing.T) {
	inst := heFuture()
	inst.PriceMultiplier = decimal.Zero
	if err := inst.Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("zero price multiplier err = %v, want ErrInvalid", err)
	}

	opt := Instrument{
		ID: 3, Ticker: "BADOPT", Kind: Option,
		PriceMultiplier:    decimal.NewFromInt(1),
		QuantityMultiplier: decimal.NewFromInt(100),
	}
	if err := opt.Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("option without strike err = %v, want ErrInvalid", err)
	}
}

func TestDaySessionWindow(t *testing.T) {
	inst := heFuture()
	inst.DayOpen = TimeOfDay{Hour: 9, Minute: 0}
	inst.DayClose = TimeOfDay{Hour: 14, Minute: 0}

	chicago, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Fatalf("load tz: %v", err)
	}

	during := time.Date(2024, 1, 2, 10, 30, 0, 0, chicago)
	after := time.Date(2024, 1, 2, 14, 1, 0, 0, chicago)

	if !inst.InDaySession(during, chicago) {
		t.Fatalf("10:30 must be inside the 09:00-14:00 session")
	}
	if inst.InDaySession(after, chicago) {
		t.Fatalf("14:01 must be outside the session")
	}
	if !inst.AfterDaySession(after, chicago) {
		t.Fatalf("14:01 must be after the session close")
	}
}
