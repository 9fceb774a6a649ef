package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
	"github.com/kiheon-jang/autoTrade-sub000/internal/usecase"
	xhttp "github.com/kiheon-jang/autoTrade-sub000/pkg/http"
	xlogger "github.com/kiheon-jang/autoTrade-sub000/pkg/logger"
)

// StartStrategy deploys a strategy run. Mode and capital are fixed when
// the process starts; requests naming a different value are rejected
// rather than silently ignored.
func (h *Handler) StartStrategy(c echo.Context) error {
	req := &models.StartStrategyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	pf := h.orch.Portfolio()
	if req.Mode != "" && req.Mode != pf.Mode {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_MODE_FIXED", "mode",
			fmt.Sprintf("trading mode is fixed at %s for this deployment", pf.Mode), http.StatusBadRequest))
	}
	if req.Capital > 0 && req.Capital != pf.InitialCapital {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_CAPITAL_FIXED", "capital",
			fmt.Sprintf("capital is fixed at %.0f for this deployment", pf.InitialCapital), http.StatusBadRequest))
	}

	run, err := h.orch.StartStrategy(usecase.StartConfig{Strategy: req.Strategy, Symbols: req.Symbols})
	if err != nil {
		h.log.Error("start strategy failed", xlogger.String("strategy", req.Strategy), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, apiError(err))
	}
	h.log.Info("strategy deployed",
		xlogger.String("strategy", run.Strategy),
		xlogger.String("run_id", run.ID),
		xlogger.Strings("symbols", run.Symbols),
	)
	return xhttp.CreatedResponse(c, newRunView(run))
}

// Strategies lists every run in the registry, including stopped ones.
func (h *Handler) Strategies(c echo.Context) error {
	return xhttp.SuccessResponse(c, newRunViews(h.orch.Runs()))
}

func (h *Handler) Strategy(c echo.Context) error {
	req := &models.StrategyNameRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	run, ok := h.orch.Run(req.Name)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no run for strategy %s", req.Name))
	}
	return xhttp.SuccessResponse(c, newRunView(run))
}

// StopStrategy halts a run and liquidates its positions. Stopping a
// strategy that is not running is not an error.
func (h *Handler) StopStrategy(c echo.Context) error {
	req := &models.StrategyNameRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.orch.StopStrategy(req.Name); err != nil {
		h.log.Error("stop strategy failed", xlogger.String("strategy", req.Name), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, apiError(err))
	}
	if run, ok := h.orch.Run(req.Name); ok {
		return xhttp.SuccessResponse(c, newRunView(run))
	}
	return xhttp.SuccessResponse(c, map[string]string{
		"strategy": req.Name,
		"state":    models.RunInactive.String(),
	})
}

func (h *Handler) PauseStrategy(c echo.Context) error {
	req := &models.StrategyNameRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.orch.PauseStrategy(req.Name); err != nil {
		return xhttp.AppErrorResponse(c, runStateError(err))
	}
	run, _ := h.orch.Run(req.Name)
	return xhttp.SuccessResponse(c, newRunView(run))
}

func (h *Handler) ResumeStrategy(c echo.Context) error {
	req := &models.StrategyNameRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.orch.ResumeStrategy(req.Name); err != nil {
		return xhttp.AppErrorResponse(c, runStateError(err))
	}
	run, _ := h.orch.Run(req.Name)
	return xhttp.SuccessResponse(c, newRunView(run))
}

// DeleteStrategy stops a run and drops it from the registry.
func (h *Handler) DeleteStrategy(c echo.Context) error {
	req := &models.StrategyNameRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.orch.DeleteStrategy(req.Name); err != nil {
		return xhttp.AppErrorResponse(c, runStateError(err))
	}
	h.log.Info("strategy run deleted", xlogger.String("strategy", req.Name))
	return xhttp.SuccessResponse(c, map[string]string{"strategy": req.Name, "deleted": "true"})
}

func (h *Handler) Portfolio(c echo.Context) error {
	return xhttp.SuccessResponse(c, newPortfolioView(h.orch.Portfolio()))
}

func (h *Handler) Positions(c echo.Context) error {
	return xhttp.SuccessResponse(c, newPortfolioView(h.orch.Portfolio()).Positions)
}

// Trades returns session fills, oldest first. With a symbol filter the
// limit applies after filtering so short histories of quiet symbols
// still come back whole.
func (h *Handler) Trades(c echo.Context) error {
	req := &models.TradesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	trades := h.orch.Trades(0)
	if req.Symbol != "" {
		symbol := strings.ToUpper(req.Symbol)
		kept := make([]models.Trade, 0, len(trades))
		for _, t := range trades {
			if t.Symbol == symbol {
				kept = append(kept, t)
			}
		}
		trades = kept
	}
	if req.Limit > 0 && len(trades) > req.Limit {
		trades = trades[len(trades)-req.Limit:]
	}
	return xhttp.SuccessResponse(c, newTradeViews(trades))
}

// runStateError maps run lifecycle failures: an unknown run is a 404,
// anything else the orchestrator refused is a bad transition.
func runStateError(err error) error {
	if errors.Is(err, models.ErrRunNotFound) {
		return xhttp.NotFoundError(err.Error())
	}
	return xhttp.BadRequestError(err.Error())
}
