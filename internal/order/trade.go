package order

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Trade is an executed fill as the broker reports it. Quantity is signed,
// AvgPrice carries the instrument price multiplier, Value and Cost are the
// fill's notional and capital effect.
type Trade struct {
	Timestamp    time.Time       `json:"timestamp"`
	TradeID      int             `json:"trade_id"`
	LegID        int             `json:"leg_id"`
	ExecID       string          `json:"exec_id"`
	InstrumentID int             `json:"instrument_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	AvgPrice     decimal.Decimal `json:"avg_price"`
	Value        decimal.Decimal `json:"trade_value"`
	Cost         decimal.Decimal `json:"trade_cost"`
	Action       Action          `json:"action"`
	Fees         decimal.Decimal `json:"fees"`
}

// tradeActions also admits the broker-standard sides for adapters that
// report BUY/SELL instead of strategy actions.
var tradeActions = map[Action]struct{}{
	Long: {}, Cover: {}, Short: {}, Sell: {},
	Action(SideBuy): {},
}

func (t Trade) Validate() error {
	if t.TradeID <= 0 {
		return fmt.Errorf("%w: trade id must be positive, got %d", ErrInvalid, t.TradeID)
	}
	if t.LegID <= 0 {
		return fmt.Errorf("%w: leg id must be positive, got %d", ErrInvalid, t.LegID)
	}
	if t.InstrumentID <= 0 {
		return fmt.Errorf("%w: trade instrument id must be positive, got %d", ErrInvalid, t.InstrumentID)
	}
	if !t.AvgPrice.IsPositive() {
		return fmt.Errorf("%w: trade avg price must be greater than zero, got %s", ErrInvalid, t.AvgPrice)
	}
	if _, ok := tradeActions[t.Action]; !ok {
		return fmt.Errorf("%w: trade action %q", ErrInvalid, t.Action)
	}
	return nil
}
