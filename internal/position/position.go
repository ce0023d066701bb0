package position

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"quantcore/internal/instrument"
	"quantcore/internal/order"
)

// ErrInvalid wraps position construction failures.
var ErrInvalid = errors.New("invalid position")

// Impact is the account-level effect of opening, updating or re-marking a
// position: the margin it pins, the paper PnL it carries, what it would
// liquidate for, and the immediate cash flow.
type Impact struct {
	MarginRequired   decimal.Decimal
	UnrealizedPnL    decimal.Decimal
	LiquidationValue decimal.Decimal
	Cash             decimal.Decimal
}

// Position is a single holding. One concrete type covers all asset classes;
// Kind selects the valuation arithmetic. Quantity is signed, Side records
// the entry direction, and the derived fields are kept consistent with the
// inputs after every operation.
type Position struct {
	InstrumentID int
	Kind         instrument.Kind
	Side         order.Side

	Quantity           decimal.Decimal
	AvgPrice           decimal.Decimal
	MarketPrice        decimal.Decimal
	PriceMultiplier    decimal.Decimal
	QuantityMultiplier decimal.Decimal
	InitialMargin      decimal.Decimal
	Strike             decimal.Decimal
	Right              instrument.Right

	InitialValue     decimal.Decimal
	InitialCost      decimal.Decimal
	MarketValue      decimal.Decimal
	UnrealizedPnL    decimal.Decimal
	MarginRequired   decimal.Decimal
	LiquidationValue decimal.Decimal
}

// New opens a position for inst. Side is the broker-standard entry
// direction and must agree with the caller's signed quantity convention.
func New(inst instrument.Instrument, side order.Side, quantity, avgPrice, marketPrice decimal.Decimal) (*Position, error) {
	if !side.Valid() {
		return nil, fmt.Errorf("%w: side must be BUY or SELL, got %q", ErrInvalid, side)
	}
	if !inst.PriceMultiplier.IsPositive() {
		return nil, fmt.Errorf("%w: price multiplier must be greater than zero, got %s", ErrInvalid, inst.PriceMultiplier)
	}
	if !inst.QuantityMultiplier.IsPositive() {
		return nil, fmt.Errorf("%w: quantity multiplier must be greater than zero, got %s", ErrInvalid, inst.QuantityMultiplier)
	}
	if inst.Kind == instrument.Future && inst.InitialMargin.IsNegative() {
		return nil, fmt.Errorf("%w: initial margin must be non-negative, got %s", ErrInvalid, inst.InitialMargin)
	}
	if inst.Kind == instrument.Option && !inst.Strike.IsPositive() {
		return nil, fmt.Errorf("%w: option strike must be greater than zero, got %s", ErrInvalid, inst.Strike)
	}

	p := &Position{
		InstrumentID:       inst.ID,
		Kind:               inst.Kind,
		Side:               side,
		Quantity:           quantity,
		AvgPrice:           avgPrice,
		MarketPrice:        marketPrice,
		PriceMultiplier:    inst.PriceMultiplier,
		QuantityMultiplier: inst.QuantityMultiplier,
		InitialMargin:      inst.InitialMargin,
		Strike:             inst.Strike,
		Right:              inst.Right,
	}
	p.refresh()
	return p, nil
}

// refresh recomputes every derived field from the inputs. Cost must land
// before unrealized PnL: the equity PnL formula reads it.
func (p *Position) refresh() {
	p.InitialValue = initialValue(p)
	p.InitialCost = initialCost(p)
	p.MarketValue = marketValue(p)
	p.MarginRequired = marginRequired(p)
	p.UnrealizedPnL = unrealizedPnL(p)
	p.LiquidationValue = liquidationValue(p)
}

// Update applies a fill against the position and reports its account
// impact. Same-side fills blend the average price by quantity; opposite
// fills larger than the holding flip the side and reset the average to the
// fill price; smaller opposite fills reduce quantity only. The cash impact
// is the released cost plus the PnL realized by the fill.
func (p *Position) Update(quantity, avgPrice, marketPrice decimal.Decimal, side order.Side) Impact {
	costBefore := p.InitialCost
	valueBefore := p.InitialValue

	p.MarketPrice = marketPrice
	p.MarketValue = marketValue(p)
	totalUnrealized := p.MarketValue.Sub(valueBefore)

	newQuantity := p.Quantity.Add(quantity)
	switch {
	case side == p.Side && !newQuantity.IsZero():
		p.AvgPrice = p.AvgPrice.Mul(p.Quantity).Add(avgPrice.Mul(quantity)).Div(newQuantity)
	case side != p.Side && quantity.Abs().GreaterThan(p.Quantity.Abs()):
		if newQuantity.IsPositive() {
			p.Side = order.SideBuy
		} else {
			p.Side = order.SideSell
		}
		p.AvgPrice = avgPrice
	}
	p.Quantity = newQuantity

	p.refresh()

	remainingUnrealized := p.MarketValue.Sub(p.InitialValue)
	realized := totalUnrealized.Sub(remainingUnrealized)
	returnedCost := costBefore.Sub(p.InitialCost)

	return Impact{
		MarginRequired:   p.MarginRequired,
		UnrealizedPnL:    p.UnrealizedPnL,
		LiquidationValue: p.LiquidationValue,
		Cash:             returnedCost.Add(realized),
	}
}

// MarkPrice re-marks the position at a new market price without touching
// quantity, average price or cost basis.
func (p *Position) MarkPrice(price decimal.Decimal) {
	p.MarketPrice = price
	p.MarketValue = marketValue(p)
	p.UnrealizedPnL = unrealizedPnL(p)
	p.LiquidationValue = liquidationValue(p)
}

// Impact re-marks the market-dependent fields and returns the current
// account impact. Cash is the opening cash flow, so Impact on a fresh
// position is what the broker applies to funds; the call does not advance
// position state.
func (p *Position) Impact() Impact {
	p.MarketValue = marketValue(p)
	p.UnrealizedPnL = unrealizedPnL(p)
	p.LiquidationValue = liquidationValue(p)

	return Impact{
		MarginRequired:   p.MarginRequired,
		UnrealizedPnL:    p.UnrealizedPnL,
		LiquidationValue: p.LiquidationValue,
		Cash:             p.InitialCost.Neg(),
	}
}

func initialValue(p *Position) decimal.Decimal {
	switch p.Kind {
	case instrument.Future, instrument.Option:
		return p.AvgPrice.Mul(p.PriceMultiplier).Mul(p.Quantity).Mul(p.QuantityMultiplier)
	default:
		return p.AvgPrice.Mul(p.Quantity).Mul(p.QuantityMultiplier)
	}
}

func initialCost(p *Position) decimal.Decimal {
	switch p.Kind {
	case instrument.Future:
		return p.InitialMargin.Mul(p.Quantity.Abs())
	case instrument.Option:
		cost := p.AvgPrice.Mul(p.PriceMultiplier).Mul(p.Quantity).Mul(p.QuantityMultiplier)
		if p.Side == order.SideBuy {
			return cost.Neg()
		}
		return cost
	default:
		return initialValue(p)
	}
}

func marketValue(p *Position) decimal.Decimal {
	switch p.Kind {
	case instrument.Future, instrument.Option:
		return p.MarketPrice.Mul(p.PriceMultiplier).Mul(p.Quantity).Mul(p.QuantityMultiplier)
	default:
		return p.MarketPrice.Mul(p.Quantity).Mul(p.QuantityMultiplier)
	}
}

func unrealizedPnL(p *Position) decimal.Decimal {
	switch p.Kind {
	case instrument.Future:
		return p.MarketPrice.Sub(p.AvgPrice).Mul(p.PriceMultiplier).Mul(p.Quantity).Mul(p.QuantityMultiplier)
	case instrument.Option:
		diff := p.MarketPrice.Sub(p.AvgPrice)
		if p.Side == order.SideSell {
			diff = p.AvgPrice.Sub(p.MarketPrice)
		}
		return diff.Mul(p.PriceMultiplier).Mul(p.Quantity).Mul(p.QuantityMultiplier)
	default:
		return p.MarketPrice.Mul(p.Quantity).Mul(p.QuantityMultiplier).Sub(p.InitialCost)
	}
}

func marginRequired(p *Position) decimal.Decimal {
	if p.Kind == instrument.Future {
		return p.InitialMargin.Mul(p.Quantity.Abs())
	}
	return decimal.Zero
}

func liquidationValue(p *Position) decimal.Decimal {
	if p.Kind == instrument.Future {
		move := p.MarketPrice.Sub(p.AvgPrice).Mul(p.PriceMultiplier).Mul(p.Quantity).Mul(p.QuantityMultiplier)
		return p.InitialCost.Add(move)
	}
	return marketValue(p)
}
