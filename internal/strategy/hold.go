package strategy

import (
	"context"

	"quantcore/internal/event"
	"quantcore/internal/order"
)

// Hold never trades. It keeps the pipeline honest on soak runs: every
// record still flows through the full handshake with no side effects.
type Hold struct{}

func (Hold) Name() string { return "hold" }

func (Hold) OnMarket(context.Context, event.OrderBookUpdated, View) ([]order.Instruction, error) {
	return nil, nil
}
