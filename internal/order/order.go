package order

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalid wraps every order and instruction validation failure.
var ErrInvalid = errors.New("invalid order")

// Action is the strategy-level intent of an order. Long and Short open
// exposure, Sell and Cover close it.
type Action string

const (
	Long  Action = "LONG"
	Cover Action = "COVER"
	Short Action = "SHORT"
	Sell  Action = "SELL"
)

func (a Action) Valid() bool {
	switch a {
	case Long, Cover, Short, Sell:
		return true
	default:
		return false
	}
}

// Side collapses an Action to the broker-standard direction.
func (a Action) Side() Side {
	if a == Long || a == Cover {
		return SideBuy
	}
	return SideSell
}

// Opening reports whether the action adds exposure. Opening legs consume
// capital; closing legs release it.
func (a Action) Opening() bool {
	return a == Long || a == Short
}

// Side is the broker-standard direction of a fill or position entry.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

// Type is the order execution type.
type Type string

const (
	Market   Type = "MKT"
	Limit    Type = "LMT"
	StopLoss Type = "STP"
)

func (t Type) Valid() bool {
	switch t {
	case Market, Limit, StopLoss:
		return true
	default:
		return false
	}
}

// Order is a validated, immutable order request. Quantity is stored as an
// absolute size; direction comes from the action. TradeID and LegID carry
// the strategy's trade identity through to the fill.
type Order struct {
	ID           string
	InstrumentID int
	TradeID      int
	LegID        int
	Action       Action
	Type         Type
	Quantity     decimal.Decimal
	LimitPrice   decimal.Decimal
	AuxPrice     decimal.Decimal
}

// New validates and builds an order. Limit orders require a positive limit
// price, stop orders a positive aux price.
func New(instrumentID int, action Action, typ Type, quantity, limitPrice, auxPrice decimal.Decimal) (Order, error) {
	if instrumentID <= 0 {
		return Order{}, fmt.Errorf("%w: instrument id must be positive, got %d", ErrInvalid, instrumentID)
	}
	if !action.Valid() {
		return Order{}, fmt.Errorf("%w: unknown action %q", ErrInvalid, action)
	}
	if !typ.Valid() {
		return Order{}, fmt.Errorf("%w: unknown order type %q", ErrInvalid, typ)
	}
	if quantity.IsZero() {
		return Order{}, fmt.Errorf("%w: quantity must be non-zero", ErrInvalid)
	}
	switch typ {
	case Limit:
		if !limitPrice.IsPositive() {
			return Order{}, fmt.Errorf("%w: limit order requires limit price greater than zero, got %s", ErrInvalid, limitPrice)
		}
	case StopLoss:
		if !auxPrice.IsPositive() {
			return Order{}, fmt.Errorf("%w: stop order requires aux price greater than zero, got %s", ErrInvalid, auxPrice)
		}
	}

	return Order{
		InstrumentID: instrumentID,
		Action:       action,
		Type:         typ,
		Quantity:     quantity.Abs(),
		LimitPrice:   limitPrice,
		AuxPrice:     auxPrice,
	}, nil
}

// SignedQuantity is positive for buy-side actions and negative for
// sell-side actions.
func (o Order) SignedQuantity() decimal.Decimal {
	if o.Action.Side() == SideBuy {
		return o.Quantity
	}
	return o.Quantity.Neg()
}
