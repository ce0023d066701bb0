package instrument

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"quantcore/internal/config"
)

// Universe is the immutable set of instruments the engine trades, with
// lookups by id and by each ticker space.
type Universe struct {
	byID     map[int]Instrument
	byTicker map[string]int
	byBroker map[string]int
	byData   map[string]int
}

// FromConfig builds and validates the universe. IDs and tickers must be
// unique across their namespaces.
func FromConfig(cfgs []config.InstrumentConfig) (*Universe, error) {
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("%w: no instruments configured", ErrInvalid)
	}

	u := &Universe{
		byID:     make(map[int]Instrument, len(cfgs)),
		byTicker: make(map[string]int, len(cfgs)),
		byBroker: make(map[string]int, len(cfgs)),
		byData:   make(map[string]int, len(cfgs)),
	}

	for _, c := range cfgs {
		kind, err := ParseKind(c.Kind)
		if err != nil {
			return nil, err
		}

		inst := Instrument{
			ID:                 c.ID,
			Ticker:             c.Ticker,
			BrokerTicker:       c.BrokerTicker,
			DataTicker:         c.DataTicker,
			Kind:               kind,
			Currency:           c.Currency,
			Venue:              c.Venue,
			Fees:               decimal.NewFromFloat(c.Fees),
			InitialMargin:      decimal.NewFromFloat(c.InitialMargin),
			PriceMultiplier:    decimal.NewFromFloat(c.PriceMultiplier),
			QuantityMultiplier: decimal.NewFromFloat(c.QuantityMultiplier),
			SlippageFactor:     decimal.NewFromFloat(c.SlippageFactor),
			Right:              Right(c.Right),
			Expiration:         c.Expiration,
		}
		if c.Strike != 0 {
			inst.Strike = decimal.NewFromFloat(c.Strike)
		}
		if inst.BrokerTicker == "" {
			inst.BrokerTicker = inst.Ticker
		}
		if inst.DataTicker == "" {
			inst.DataTicker = inst.Ticker
		}
		if c.DayOpen != "" {
			if inst.DayOpen, err = ParseTimeOfDay(c.DayOpen); err != nil {
				return nil, fmt.Errorf("instrument %s: %w", c.Ticker, err)
			}
		}
		if c.DayClose != "" {
			if inst.DayClose, err = ParseTimeOfDay(c.DayClose); err != nil {
				return nil, fmt.Errorf("instrument %s: %w", c.Ticker, err)
			}
		}

		if err := inst.Validate(); err != nil {
			return nil, err
		}

		if _, dup := u.byID[inst.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate instrument id %d", ErrInvalid, inst.ID)
		}
		if _, dup := u.byTicker[inst.Ticker]; dup {
			return nil, fmt.Errorf("%w: duplicate ticker %q", ErrInvalid, inst.Ticker)
		}
		if _, dup := u.byBroker[inst.BrokerTicker]; dup {
			return nil, fmt.Errorf("%w: duplicate broker ticker %q", ErrInvalid, inst.BrokerTicker)
		}
		if _, dup := u.byData[inst.DataTicker]; dup {
			return nil, fmt.Errorf("%w: duplicate data ticker %q", ErrInvalid, inst.DataTicker)
		}

		u.byID[inst.ID] = inst
		u.byTicker[inst.Ticker] = inst.ID
		u.byBroker[inst.BrokerTicker] = inst.ID
		u.byData[inst.DataTicker] = inst.ID
	}

	return u, nil
}

func (u *Universe) ByID(id int) (Instrument, bool) {
	inst, ok := u.byID[id]
	return inst, ok
}

// ByTicker resolves any of the canonical, broker or data ticker spaces.
func (u *Universe) ByTicker(ticker string) (Instrument, bool) {
	if id, ok := u.byTicker[ticker]; ok {
		return u.byID[id], true
	}
	if id, ok := u.byBroker[ticker]; ok {
		return u.byID[id], true
	}
	if id, ok := u.byData[ticker]; ok {
		return u.byID[id], true
	}
	return Instrument{}, false
}

func (u *Universe) ByDataTicker(ticker string) (Instrument, bool) {
	id, ok := u.byData[ticker]
	if !ok {
		return Instrument{}, false
	}
	return u.byID[id], true
}

// IDs returns all instrument ids in ascending order.
func (u *Universe) IDs() []int {
	ids := make([]int, 0, len(u.byID))
	for id := range u.byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// DataTickers returns the data-feed subscription symbols.
func (u *Universe) DataTickers() []string {
	tickers := make([]string, 0, len(u.byData))
	for t := range u.byData {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}

func (u *Universe) Size() int { return len(u.byID) }
