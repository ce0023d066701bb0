package instrument

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"quantcore/internal/order"
)

// ErrInvalid wraps every instrument validation failure.
var ErrInvalid = errors.New("invalid instrument")

// Kind is the asset class of an instrument. It selects the money math used
// for valuation, margin and position accounting.
type Kind int

const (
	Equity Kind = iota
	Future
	Option
)

func (k Kind) String() string {
	switch k {
	case Equity:
		return "equity"
	case Future:
		return "future"
	case Option:
		return "option"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "equity", "stock":
		return Equity, nil
	case "future":
		return Future, nil
	case "option":
		return Option, nil
	default:
		return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalid, s)
	}
}

// Right is the option right.
type Right string

const (
	Call Right = "CALL"
	Put  Right = "PUT"
)

// TimeOfDay is a wall-clock session boundary.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("%w: time of day %q must be HH:MM", ErrInvalid, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("%w: bad hour in %q", ErrInvalid, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: bad minute in %q", ErrInvalid, s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func (t TimeOfDay) minutes() int { return t.Hour*60 + t.Minute }

// Instrument is one tradable contract and its economics. All monetary
// parameters are decimals; multipliers must be positive.
type Instrument struct {
	ID           int
	Ticker       string
	BrokerTicker string
	DataTicker   string
	Kind         Kind
	Currency     string
	Venue        string

	Fees               decimal.Decimal
	InitialMargin      decimal.Decimal
	PriceMultiplier    decimal.Decimal
	QuantityMultiplier decimal.Decimal
	SlippageFactor     decimal.Decimal

	DayOpen  TimeOfDay
	DayClose TimeOfDay

	// Option terms.
	Strike     decimal.Decimal
	Right      Right
	Expiration string
}

func (i Instrument) Validate() error {
	if i.ID <= 0 {
		return fmt.Errorf("%w: id must be positive, got %d", ErrInvalid, i.ID)
	}
	if i.Ticker == "" {
		return fmt.Errorf("%w: ticker must be set (id %d)", ErrInvalid, i.ID)
	}
	if i.Fees.IsNegative() {
		return fmt.Errorf("%w: %s fees must be non-negative, got %s", ErrInvalid, i.Ticker, i.Fees)
	}
	if i.InitialMargin.IsNegative() {
		return fmt.Errorf("%w: %s initial margin must be non-negative, got %s", ErrInvalid, i.Ticker, i.InitialMargin)
	}
	if !i.PriceMultiplier.IsPositive() {
		return fmt.Errorf("%w: %s price multiplier must be greater than zero, got %s", ErrInvalid, i.Ticker, i.PriceMultiplier)
	}
	if !i.QuantityMultiplier.IsPositive() {
		return fmt.Errorf("%w: %s quantity multiplier must be greater than zero, got %s", ErrInvalid, i.Ticker, i.QuantityMultiplier)
	}
	if i.SlippageFactor.IsNegative() {
		return fmt.Errorf("%w: %s slippage factor must be non-negative, got %s", ErrInvalid, i.Ticker, i.SlippageFactor)
	}
	if i.Kind == Option {
		if !i.Strike.IsPositive() {
			return fmt.Errorf("%w: %s strike must be greater than zero, got %s", ErrInvalid, i.Ticker, i.Strike)
		}
		if i.Right != Call && i.Right != Put {
			return fmt.Errorf("%w: %s right must be CALL or PUT, got %q", ErrInvalid, i.Ticker, i.Right)
		}
	}
	return nil
}

// Value is the signed market value of a quantity at a price. Equities carry
// no multipliers, futures carry both, options value the premium on absolute
// quantity.
func (i Instrument) Value(quantity, price decimal.Decimal) decimal.Decimal {
	switch i.Kind {
	case Future:
		return i.PriceMultiplier.Mul(price).Mul(quantity).Mul(i.QuantityMultiplier)
	case Option:
		return quantity.Abs().Mul(price).Mul(i.QuantityMultiplier)
	default:
		return quantity.Mul(price)
	}
}

// Cost is the capital consumed by acquiring a quantity at a price: notional
// for equities, posted margin for futures, premium for options.
func (i Instrument) Cost(quantity, price decimal.Decimal) decimal.Decimal {
	switch i.Kind {
	case Future:
		return quantity.Abs().Mul(i.InitialMargin)
	case Option:
		return quantity.Abs().Mul(price).Mul(i.QuantityMultiplier)
	default:
		return quantity.Abs().Mul(price)
	}
}

// CommissionFee is the cash effect of commissions for a fill, always
// non-positive.
func (i Instrument) CommissionFee(quantity decimal.Decimal) decimal.Decimal {
	return quantity.Abs().Mul(i.Fees).Neg()
}

// SlippagePrice adjusts a book price by the configured slippage factor:
// buying actions pay up, selling actions give up.
func (i Instrument) SlippagePrice(price decimal.Decimal, action order.Action) (decimal.Decimal, error) {
	switch action {
	case order.Long, order.Cover:
		return price.Add(i.SlippageFactor), nil
	case order.Short, order.Sell:
		return price.Sub(i.SlippageFactor), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("%w: cannot slip price for action %q", ErrInvalid, action)
	}
}

// InDaySession reports whether ts falls inside the day session in loc.
func (i Instrument) InDaySession(ts time.Time, loc *time.Location) bool {
	local := ts.In(loc)
	m := local.Hour()*60 + local.Minute()
	return i.DayOpen.minutes() <= m && m <= i.DayClose.minutes()
}

// AfterDaySession reports whether ts is past the day close in loc.
func (i Instrument) AfterDaySession(ts time.Time, loc *time.Location) bool {
	local := ts.In(loc)
	m := local.Hour()*60 + local.Minute()
	return m > i.DayClose.minutes()
}
