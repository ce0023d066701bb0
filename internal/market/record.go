package market

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RecordKind tags a Record as an OHLCV bar or a top-of-book quote.
type RecordKind int

const (
	KindBar RecordKind = iota
	KindQuote
)

func (k RecordKind) String() string {
	switch k {
	case KindBar:
		return "bar"
	case KindQuote:
		return "quote"
	default:
		return fmt.Sprintf("record_kind(%d)", int(k))
	}
}

// Record is one normalized market-data observation for a single instrument.
// Bars populate OHLCV, quotes populate bid/ask; the other group stays zero.
type Record struct {
	InstrumentID int
	Timestamp    time.Time
	Kind         RecordKind

	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume int64

	Bid     decimal.Decimal
	Ask     decimal.Decimal
	BidSize decimal.Decimal
	AskSize decimal.Decimal
}

func NewBar(instrumentID int, ts time.Time, open, high, low, close decimal.Decimal, volume int64) (Record, error) {
	r := Record{
		InstrumentID: instrumentID,
		Timestamp:    ts.UTC(),
		Kind:         KindBar,
		Open:         open,
		High:         high,
		Low:          low,
		Close:        close,
		Volume:       volume,
	}
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

func NewQuote(instrumentID int, ts time.Time, bid, ask, bidSize, askSize decimal.Decimal) (Record, error) {
	r := Record{
		InstrumentID: instrumentID,
		Timestamp:    ts.UTC(),
		Kind:         KindQuote,
		Bid:          bid,
		Ask:          ask,
		BidSize:      bidSize,
		AskSize:      askSize,
	}
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

func (r Record) Validate() error {
	if r.InstrumentID <= 0 {
		return fmt.Errorf("record instrument id must be positive, got %d", r.InstrumentID)
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("record timestamp must be set")
	}
	switch r.Kind {
	case KindBar:
		for _, p := range []struct {
			name string
			v    decimal.Decimal
		}{
			{"open", r.Open}, {"high", r.High}, {"low", r.Low}, {"close", r.Close},
		} {
			if !p.v.IsPositive() {
				return fmt.Errorf("bar %s must be greater than zero, got %s", p.name, p.v)
			}
		}
		if r.Volume < 0 {
			return fmt.Errorf("bar volume must be non-negative, got %d", r.Volume)
		}
	case KindQuote:
		if !r.Bid.IsPositive() || !r.Ask.IsPositive() {
			return fmt.Errorf("quote bid/ask must be greater than zero, got %s/%s", r.Bid, r.Ask)
		}
	default:
		return fmt.Errorf("unknown record kind %d", int(r.Kind))
	}
	return nil
}

// Price is the representative price used by the book and the broker: the
// close for bars, the bid/ask midpoint for quotes.
func (r Record) Price() decimal.Decimal {
	if r.Kind == KindQuote {
		return r.Bid.Add(r.Ask).Div(decimal.NewFromInt(2))
	}
	return r.Close
}
