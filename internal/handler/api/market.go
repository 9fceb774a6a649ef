package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
	xhttp "github.com/kiheon-jang/autoTrade-sub000/pkg/http"
	xlogger "github.com/kiheon-jang/autoTrade-sub000/pkg/logger"
)

// Tiers reports the current hot/core/broad classification.
func (h *Handler) Tiers(c echo.Context) error {
	const key = "market:tiers"
	if ok, err := h.serveCached(c, key); ok {
		return err
	}
	return h.respondAndCache(c, key, newTierStatusView(h.market.Tiers()))
}

// Opportunities ranks tracked symbols by current signal score.
func (h *Handler) Opportunities(c echo.Context) error {
	req := &models.OpportunitiesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	key := fmt.Sprintf("market:opportunities:%d", req.Limit)
	if ok, err := h.serveCached(c, key); ok {
		return err
	}
	return h.respondAndCache(c, key, newOpportunityViews(h.market.TopOpportunities(req.Limit)))
}

// Analyze assembles the full per-symbol picture: cached snapshot, window
// statistics, live depth, and recent fills.
func (h *Handler) Analyze(c echo.Context) error {
	req := &models.MarketSnapshotRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := strings.ToUpper(req.Symbol)
	if !h.rl.Allow(c.RealIP()+":analysis", 5, 2) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
	}

	key := "market:analysis:" + symbol
	if ok, err := h.serveCached(c, key); ok {
		return err
	}
	res, err := h.analysis.Analyze(c.Request().Context(), symbol)
	if err != nil {
		h.log.Error("symbol analysis usecase error", xlogger.String("symbol", symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, apiError(err))
	}
	return h.respondAndCache(c, key, newAnalysisView(res))
}

// Candles returns the most recent bars for a symbol, from memory when
// the rolling window has them and from the archive otherwise.
func (h *Handler) Candles(c echo.Context) error {
	req := &models.CandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := strings.ToUpper(req.Symbol)
	if !h.rl.Allow(c.RealIP()+":candles", 5, 2) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
	}

	key := fmt.Sprintf("market:candles:%s:%d", symbol, req.N)
	if ok, err := h.serveCached(c, key); ok {
		return err
	}
	res, err := h.candles.Recent(c.Request().Context(), symbol, req.N)
	if err != nil {
		h.log.Error("candles usecase error", xlogger.String("symbol", symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, apiError(err))
	}
	return h.respondAndCacheTTL(c, key, h.candleTTL, newCandlesView(res))
}
