package strategy

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"quantcore/internal/book"
	"quantcore/internal/event"
	"quantcore/internal/market"
	"quantcore/internal/order"
	"quantcore/internal/portfolio"
	"quantcore/internal/position"
)

// Strategy is the pluggable decision boundary. OnMarket runs once per book
// advance and returns the instruction batch to submit, or nil for no
// action. Returned batches are admitted or rejected downstream as a unit.
type Strategy interface {
	Name() string
	OnMarket(ctx context.Context, ev event.OrderBookUpdated, view View) ([]order.Instruction, error)
}

// View is the read surface a strategy sees: current holdings, account and
// market state. All methods return copies.
type View interface {
	Positions() map[int]position.Position
	Account() position.Account
	Price(instrumentID int) (decimal.Decimal, error)
	Record(instrumentID int) (market.Record, error)
}

type view struct {
	book      *book.Book
	portfolio *portfolio.Server
}

// NewView binds the book and portfolio into the surface handed to
// strategies.
func NewView(b *book.Book, p *portfolio.Server) View {
	return &view{book: b, portfolio: p}
}

func (v *view) Positions() map[int]position.Position { return v.portfolio.Positions() }
func (v *view) Account() position.Account            { return v.portfolio.Account() }

func (v *view) Price(instrumentID int) (decimal.Decimal, error) {
	return v.book.Price(instrumentID)
}

func (v *view) Record(instrumentID int) (market.Record, error) {
	return v.book.Retrieve(instrumentID)
}

// ByName resolves a built-in strategy. An empty name means hold.
func ByName(name string) (Strategy, error) {
	switch name {
	case "", "hold":
		return Hold{}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}
