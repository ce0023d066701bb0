package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"quantcore/internal/repository"
)

// HistoryHandler serves persisted run history: executed trades and the
// equity curve. Routes are only mounted when persistence is enabled.
type HistoryHandler struct {
	Repo repository.Repository
}

func (h *HistoryHandler) Register(r *gin.Engine) {
	v1 := r.Group("/api/v1")
	v1.GET("/trades", h.listTrades)
	v1.GET("/equity", h.listEquity)
}

// @Summary List executed trades
// @Tags history
// @Produce json
// @Param limit query int false "page size" default(50)
// @Param offset query int false "page offset" default(0)
// @Param instrument_id query int false "filter by instrument"
// @Param ticker query string false "filter by ticker"
// @Param trade_id query int false "filter by trade id"
// @Param since query string false "RFC3339 lower bound on execution time"
// @Param order_by query string false "executed_at|trade_id|created_at"
// @Param order query string false "asc|desc"
// @Success 200 {object} apiResponse
// @Router /api/v1/trades [get]
func (h *HistoryHandler) listTrades(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	orderBy := parseOrder(strings.TrimSpace(c.Query("order_by")), map[string]string{
		"executed_at": "executed_at",
		"trade_id":    "trade_id",
		"created_at":  "created_at",
	})
	if orderBy == "" {
		orderBy = "executed_at"
	}
	order := strings.ToLower(strings.TrimSpace(c.Query("order")))
	asc := false
	if order == "asc" {
		asc = true
	}

	params := repository.ListTradesParams{
		Limit:        limit,
		Offset:       offset,
		InstrumentID: intQueryPtr(c, "instrument_id"),
		Ticker:       strQueryPtr(c, "ticker"),
		TradeID:      intQueryPtr(c, "trade_id"),
		Since:        timeQueryPtr(c, "since"),
		OrderBy:      orderBy,
		Asc:          boolPtr(asc),
	}
	items, err := h.Repo.ListTrades(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountTrades(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Equity curve points
// @Tags history
// @Produce json
// @Param limit query int false "page size" default(500)
// @Param offset query int false "page offset" default(0)
// @Param since query string false "RFC3339 lower bound"
// @Param until query string false "RFC3339 upper bound"
// @Param order query string false "asc|desc"
// @Success 200 {object} apiResponse
// @Router /api/v1/equity [get]
func (h *HistoryHandler) listEquity(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 500)
	offset := intQuery(c, "offset", 0)
	order := strings.ToLower(strings.TrimSpace(c.Query("order")))
	asc := true
	if order == "desc" {
		asc = false
	}

	params := repository.ListEquityPointsParams{
		Limit:   limit,
		Offset:  offset,
		Since:   timeQueryPtr(c, "since"),
		Until:   timeQueryPtr(c, "until"),
		OrderBy: "timestamp",
		Asc:     boolPtr(asc),
	}
	items, err := h.Repo.ListEquityPoints(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountEquityPoints(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}
