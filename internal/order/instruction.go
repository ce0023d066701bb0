package order

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Instruction is one leg of a strategy signal: which instrument to trade,
// how, and the trade/leg identity used to correlate fills.
type Instruction struct {
	InstrumentID int             `json:"instrument_id"`
	Action       Action          `json:"action"`
	Type         Type            `json:"order_type"`
	TradeID      int             `json:"trade_id"`
	LegID        int             `json:"leg_id"`
	Weight       decimal.Decimal `json:"weight"`
	Quantity     decimal.Decimal `json:"quantity"`
	LimitPrice   decimal.Decimal `json:"limit_price,omitempty"`
	AuxPrice     decimal.Decimal `json:"aux_price,omitempty"`
}

func (i Instruction) Validate() error {
	if i.InstrumentID <= 0 {
		return fmt.Errorf("%w: instruction instrument id must be positive, got %d", ErrInvalid, i.InstrumentID)
	}
	if !i.Action.Valid() {
		return fmt.Errorf("%w: instruction action %q", ErrInvalid, i.Action)
	}
	if !i.Type.Valid() {
		return fmt.Errorf("%w: instruction order type %q", ErrInvalid, i.Type)
	}
	if i.TradeID <= 0 {
		return fmt.Errorf("%w: trade id must be positive, got %d", ErrInvalid, i.TradeID)
	}
	if i.LegID <= 0 {
		return fmt.Errorf("%w: leg id must be positive, got %d", ErrInvalid, i.LegID)
	}
	if i.Quantity.IsZero() {
		return fmt.Errorf("%w: instruction quantity must be non-zero", ErrInvalid)
	}
	switch i.Type {
	case Limit:
		if !i.LimitPrice.IsPositive() {
			return fmt.Errorf("%w: limit instruction requires limit price greater than zero", ErrInvalid)
		}
	case StopLoss:
		if !i.AuxPrice.IsPositive() {
			return fmt.Errorf("%w: stop instruction requires aux price greater than zero", ErrInvalid)
		}
	}
	return nil
}

// BuildOrder turns the instruction into an executable order.
func (i Instruction) BuildOrder() (Order, error) {
	if err := i.Validate(); err != nil {
		return Order{}, err
	}
	o, err := New(i.InstrumentID, i.Action, i.Type, i.Quantity, i.LimitPrice, i.AuxPrice)
	if err != nil {
		return Order{}, err
	}
	o.TradeID = i.TradeID
	o.LegID = i.LegID
	return o, nil
}
