package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
	drepo "github.com/kiheon-jang/autoTrade-sub000/internal/domain/repository"
	xhttp "github.com/kiheon-jang/autoTrade-sub000/pkg/http"
	xlogger "github.com/kiheon-jang/autoTrade-sub000/pkg/logger"
	"github.com/kiheon-jang/autoTrade-sub000/pkg/util"
)

// SubmitBacktest queues a replay for the background worker and returns
// its run ID for polling. Requires a queue backend.
func (h *Handler) SubmitBacktest(c echo.Context) error {
	req := &models.BacktestSubmitRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.submit == nil {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_QUEUE_UNAVAILABLE", "",
			"backtest queue is not configured, use POST /api/backtests/run", http.StatusServiceUnavailable))
	}
	cfg, appErr := h.backtestConfig(req)
	if appErr != nil {
		return xhttp.AppErrorResponse(c, appErr)
	}

	runID, err := h.submit.Submit(c.Request().Context(), cfg)
	if err != nil {
		h.log.Error("backtest submit failed", xlogger.String("strategy", req.Strategy), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, apiError(err))
	}
	return xhttp.CreatedResponse(c, SubmittedView{RunID: runID, Status: models.RunPending.String()})
}

// RunBacktest executes a replay inline and returns the full result.
// Long windows can take a while; the request context bounds the run.
func (h *Handler) RunBacktest(c echo.Context) error {
	req := &models.BacktestSubmitRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.backtests == nil {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_UNAVAILABLE", "",
			"backtests need the candle archive, which is not configured", http.StatusServiceUnavailable))
	}
	if !h.rl.Allow(c.RealIP()+":backtest", 2, 0.2) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
	}
	cfg, appErr := h.backtestConfig(req)
	if appErr != nil {
		return xhttp.AppErrorResponse(c, appErr)
	}

	res, err := h.backtests.RunSync(c.Request().Context(), cfg)
	if err != nil {
		h.log.Error("sync backtest failed", xlogger.String("strategy", req.Strategy), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, apiError(err))
	}
	return xhttp.SuccessResponse(c, newBacktestView(res))
}

// BacktestResult returns the stored state of a queued run: pending,
// running, or the final report.
func (h *Handler) BacktestResult(c echo.Context) error {
	req := &models.BacktestResultRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.submit == nil {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_QUEUE_UNAVAILABLE", "",
			"backtest queue is not configured", http.StatusServiceUnavailable))
	}
	res, err := h.submit.Result(c.Request().Context(), req.RunID)
	if err != nil {
		return xhttp.AppErrorResponse(c, apiError(err))
	}
	return xhttp.SuccessResponse(c, newBacktestView(res))
}

// backtestConfig turns the request into a replay config: times parsed
// as RFC3339 or unix seconds and aligned to timeframe boundaries,
// capital defaulting to the deployment's starting capital.
func (h *Handler) backtestConfig(req *models.BacktestSubmitRequest) (models.BacktestConfig, *xhttp.AppError) {
	from, ok := util.ParseTime(req.From)
	if !ok {
		return models.BacktestConfig{}, xhttp.NewAppError("ERR_BAD_REQUEST", "from",
			"from must be RFC3339 or unix seconds", http.StatusBadRequest)
	}
	to, ok := util.ParseTime(req.To)
	if !ok {
		return models.BacktestConfig{}, xhttp.NewAppError("ERR_BAD_REQUEST", "to",
			"to must be RFC3339 or unix seconds", http.StatusBadRequest)
	}
	tf := drepo.NormalizeTimeframe(req.TF)
	from, to = util.AlignFromTo(from, to, string(tf))
	if !to.After(from) {
		return models.BacktestConfig{}, xhttp.NewAppError("ERR_BAD_REQUEST", "to",
			"to must be after from", http.StatusBadRequest)
	}

	capital := req.Capital
	if capital <= 0 {
		capital = h.orch.Portfolio().InitialCapital
	}
	symbols := make([]string, 0, len(req.Symbols))
	for _, s := range req.Symbols {
		symbols = append(symbols, strings.ToUpper(s))
	}
	return models.BacktestConfig{
		Strategy:       req.Strategy,
		Symbols:        symbols,
		InitialCapital: capital,
		From:           from,
		To:             to,
		Timeframe:      string(tf),
	}, nil
}
