package event

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"quantcore/internal/order"
	"quantcore/internal/position"
)

// Kind discriminates the closed set of bus events.
type Kind int

const (
	KindOrderBook Kind = iota
	KindSignal
	KindOrderCreated
	KindExecution
	KindPositionUpdate
	KindAccountUpdate
	KindOrderUpdate
	KindEquity
	KindEOD
)

func (k Kind) String() string {
	switch k {
	case KindOrderBook:
		return "order_book_updated"
	case KindSignal:
		return "signal"
	case KindOrderCreated:
		return "order_created"
	case KindExecution:
		return "trade_executed"
	case KindPositionUpdate:
		return "position_update"
	case KindAccountUpdate:
		return "account_update"
	case KindOrderUpdate:
		return "order_update"
	case KindEquity:
		return "equity_update"
	case KindEOD:
		return "end_of_day"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is the sealed payload union; only types in this package implement
// it, so consumers can switch exhaustively over the concrete types.
type Event interface {
	Kind() Kind
	sealed()
}

// OrderBookUpdated announces that the book advanced to a new timestamp.
type OrderBookUpdated struct {
	Timestamp time.Time
}

// Signal carries one strategy decision: a batch of instructions admitted or
// rejected as a unit downstream.
type Signal struct {
	Timestamp    time.Time
	Instructions []order.Instruction
}

// OrdersCreated is an admitted batch on its way to the broker.
type OrdersCreated struct {
	Timestamp time.Time
	Orders    []order.Order
}

// Execution reports a fill.
type Execution struct {
	Timestamp time.Time
	Trade     order.Trade
	Action    order.Action
}

// PositionUpdated publishes the post-fill state of one holding. Position is
// a value copy; consumers must not treat it as shared state.
type PositionUpdated struct {
	InstrumentID int
	Position     position.Position
}

// AccountUpdated publishes a full account snapshot.
type AccountUpdated struct {
	Account position.Account
}

// OrderUpdated publishes a working-order state change.
type OrderUpdated struct {
	Order order.ActiveOrder
}

// EquityUpdated is one equity-curve observation.
type EquityUpdated struct {
	Timestamp time.Time
	Value     decimal.Decimal
}

// EndOfDay marks the session close for Date.
type EndOfDay struct {
	Date time.Time
}

func (OrderBookUpdated) Kind() Kind { return KindOrderBook }
func (Signal) Kind() Kind           { return KindSignal }
func (OrdersCreated) Kind() Kind    { return KindOrderCreated }
func (Execution) Kind() Kind        { return KindExecution }
func (PositionUpdated) Kind() Kind  { return KindPositionUpdate }
func (AccountUpdated) Kind() Kind   { return KindAccountUpdate }
func (OrderUpdated) Kind() Kind     { return KindOrderUpdate }
func (EquityUpdated) Kind() Kind    { return KindEquity }
func (EndOfDay) Kind() Kind         { return KindEOD }

func (OrderBookUpdated) sealed() {}
func (Signal) sealed()           {}
func (OrdersCreated) sealed()    {}
func (Execution) sealed()        {}
func (PositionUpdated) sealed()  {}
func (AccountUpdated) sealed()   {}
func (OrderUpdated) sealed()     {}
func (EquityUpdated) sealed()    {}
func (EndOfDay) sealed()         {}

// Flag names one boolean rendezvous used by the lockstep handshake.
type Flag int

const (
	// FlagUpdateEquity asks the broker to mark to market and publish an
	// equity point; the broker clears it when done.
	FlagUpdateEquity Flag = iota
	// FlagUpdateSystem holds the replay until the strategy/execution/broker
	// chain finishes reacting to the current book state.
	FlagUpdateSystem
	// FlagEOD asks the broker to run end-of-day valuation.
	FlagEOD
)

func (f Flag) String() string {
	switch f {
	case FlagUpdateEquity:
		return "update_equity"
	case FlagUpdateSystem:
		return "update_system"
	case FlagEOD:
		return "eod"
	default:
		return fmt.Sprintf("flag(%d)", int(f))
	}
}
