package position

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is the broker account snapshot. The simulated broker owns and
// mutates one; everyone else sees value copies.
type Account struct {
	Timestamp          time.Time
	AvailableFunds     decimal.Decimal
	InitMarginRequired decimal.Decimal
	NetLiquidation     decimal.Decimal
	UnrealizedPnL      decimal.Decimal
	Currency           string

	// Pass-through fields a live brokerage reports; the simulator leaves
	// them zero.
	MaintMarginRequired decimal.Decimal
	ExcessLiquidity     decimal.Decimal
	BuyingPower         decimal.Decimal
	FuturesPnL          decimal.Decimal
	TotalCashBalance    decimal.Decimal
}

func NewAccount(capital decimal.Decimal, currency string) Account {
	return Account{
		AvailableFunds: capital,
		NetLiquidation: capital,
		Currency:       currency,
	}
}

// Capital is the cash available to open new exposure.
func (a Account) Capital() decimal.Decimal { return a.AvailableFunds }

// EquitySnapshot is one point on the equity curve.
type EquitySnapshot struct {
	Timestamp time.Time
	Value     decimal.Decimal
}

func (a Account) EquityValue() EquitySnapshot {
	return EquitySnapshot{Timestamp: a.Timestamp, Value: a.NetLiquidation.RoundBank(2)}
}

// MarginCall reports whether available funds no longer cover the initial
// margin requirement.
func (a Account) MarginCall() bool {
	return a.AvailableFunds.LessThan(a.InitMarginRequired)
}
