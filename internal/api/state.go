package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"quantcore/internal/instrument"
	"quantcore/internal/portfolio"
)

// StateHandler exposes the live mirror of broker state: positions, account
// and working orders as the portfolio server currently sees them.
type StateHandler struct {
	Portfolio *portfolio.Server
	Universe  *instrument.Universe
}

func (h *StateHandler) Register(r *gin.Engine) {
	v1 := r.Group("/api/v1")
	v1.GET("/positions", h.listPositions)
	v1.GET("/account", h.getAccount)
	v1.GET("/orders", h.listOrders)
}

type positionView struct {
	InstrumentID     int             `json:"instrument_id"`
	Ticker           string          `json:"ticker"`
	Kind             string          `json:"kind"`
	Side             string          `json:"side"`
	Quantity         decimal.Decimal `json:"quantity"`
	AvgPrice         decimal.Decimal `json:"avg_price"`
	MarketPrice      decimal.Decimal `json:"market_price"`
	MarketValue      decimal.Decimal `json:"market_value"`
	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl"`
	MarginRequired   decimal.Decimal `json:"margin_required"`
	LiquidationValue decimal.Decimal `json:"liquidation_value"`
}

type accountView struct {
	Timestamp          time.Time       `json:"timestamp"`
	AvailableFunds     decimal.Decimal `json:"available_funds"`
	InitMarginRequired decimal.Decimal `json:"init_margin_required"`
	NetLiquidation     decimal.Decimal `json:"net_liquidation"`
	UnrealizedPnL      decimal.Decimal `json:"unrealized_pnl"`
	Currency           string          `json:"currency"`
	MarginCall         bool            `json:"margin_call"`
}

type orderView struct {
	ID                string          `json:"id"`
	InstrumentID      int             `json:"instrument_id"`
	Ticker            string          `json:"ticker"`
	Status            string          `json:"status"`
	Action            string          `json:"action"`
	Type              string          `json:"type"`
	TotalQuantity     decimal.Decimal `json:"total_quantity"`
	FilledQuantity    decimal.Decimal `json:"filled_quantity"`
	RemainingQuantity decimal.Decimal `json:"remaining_quantity"`
	AvgFillPrice      decimal.Decimal `json:"avg_fill_price"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// @Summary List open positions
// @Tags state
// @Produce json
// @Success 200 {object} apiResponse
// @Router /api/v1/positions [get]
func (h *StateHandler) listPositions(c *gin.Context) {
	if h.Portfolio == nil {
		Error(c, http.StatusInternalServerError, "portfolio unavailable", nil)
		return
	}
	positions := h.Portfolio.Positions()
	items := make([]positionView, 0, len(positions))
	for id, pos := range positions {
		view := positionView{
			InstrumentID:     id,
			Kind:             pos.Kind.String(),
			Side:             string(pos.Side),
			Quantity:         pos.Quantity,
			AvgPrice:         pos.AvgPrice,
			MarketPrice:      pos.MarketPrice,
			MarketValue:      pos.MarketValue,
			UnrealizedPnL:    pos.UnrealizedPnL,
			MarginRequired:   pos.MarginRequired,
			LiquidationValue: pos.LiquidationValue,
		}
		if h.Universe != nil {
			if inst, ok := h.Universe.ByID(id); ok {
				view.Ticker = inst.Ticker
			}
		}
		items = append(items, view)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].InstrumentID < items[j].InstrumentID })
	Ok(c, items, map[string]any{"count": len(items)})
}

// @Summary Current account summary
// @Tags state
// @Produce json
// @Success 200 {object} apiResponse
// @Router /api/v1/account [get]
func (h *StateHandler) getAccount(c *gin.Context) {
	if h.Portfolio == nil {
		Error(c, http.StatusInternalServerError, "portfolio unavailable", nil)
		return
	}
	acc := h.Portfolio.Account()
	Ok(c, accountView{
		Timestamp:          acc.Timestamp,
		AvailableFunds:     acc.AvailableFunds,
		InitMarginRequired: acc.InitMarginRequired,
		NetLiquidation:     acc.NetLiquidation,
		UnrealizedPnL:      acc.UnrealizedPnL,
		Currency:           acc.Currency,
		MarginCall:         acc.MarginCall(),
	}, nil)
}

// @Summary List working orders
// @Tags state
// @Produce json
// @Success 200 {object} apiResponse
// @Router /api/v1/orders [get]
func (h *StateHandler) listOrders(c *gin.Context) {
	if h.Portfolio == nil {
		Error(c, http.StatusInternalServerError, "portfolio unavailable", nil)
		return
	}
	orders := h.Portfolio.ActiveOrders()
	items := make([]orderView, 0, len(orders))
	for id, o := range orders {
		view := orderView{
			ID:                id,
			InstrumentID:      o.InstrumentID,
			Status:            string(o.Status),
			Action:            string(o.Action),
			Type:              string(o.Type),
			TotalQuantity:     o.TotalQuantity,
			FilledQuantity:    o.FilledQuantity,
			RemainingQuantity: o.RemainingQuantity,
			AvgFillPrice:      o.AvgFillPrice,
			UpdatedAt:         o.UpdatedAt,
		}
		if h.Universe != nil {
			if inst, ok := h.Universe.ByID(o.InstrumentID); ok {
				view.Ticker = inst.Ticker
			}
		}
		items = append(items, view)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	Ok(c, items, map[string]any{"count": len(items)})
}
