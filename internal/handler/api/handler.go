package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
	drepo "github.com/kiheon-jang/autoTrade-sub000/internal/domain/repository"
	icache "github.com/kiheon-jang/autoTrade-sub000/internal/service/cache"
	"github.com/kiheon-jang/autoTrade-sub000/internal/service/ratelimit"
	"github.com/kiheon-jang/autoTrade-sub000/internal/usecase"
	xhttp "github.com/kiheon-jang/autoTrade-sub000/pkg/http"
	xlogger "github.com/kiheon-jang/autoTrade-sub000/pkg/logger"
)

// Handler serves the trading API: strategy lifecycle, portfolio and
// trade inspection, market tiers and per-symbol analysis, and backtest
// submission. All routes live under /api.
type Handler struct {
	log       *xlogger.Logger
	orch      *usecase.Orchestrator
	market    *usecase.MarketCache
	analysis  *usecase.AnalysisUseCase
	candles   *usecase.CandlesUseCase
	backtests *usecase.BacktestJob
	submit    *usecase.BacktestSubmitter

	responses   icache.BytesCache
	responseTTL time.Duration
	candleTTL   time.Duration
	rl          *ratelimit.Limiter

	trades  drepo.TradeStore
	archive drepo.CandleStore
	stream  drepo.MarketStream

	started time.Time
}

// NewHandler wires the API over the trading usecases. submit may be nil
// when no queue backend is configured; backtests then run synchronously
// only.
func NewHandler(
	log *xlogger.Logger,
	orch *usecase.Orchestrator,
	market *usecase.MarketCache,
	analysis *usecase.AnalysisUseCase,
	candles *usecase.CandlesUseCase,
	backtests *usecase.BacktestJob,
	submit *usecase.BacktestSubmitter,
) *Handler {
	return &Handler{
		log:       log,
		orch:      orch,
		market:    market,
		analysis:  analysis,
		candles:   candles,
		backtests: backtests,
		submit:    submit,
		rl:        ratelimit.New(),
		started:   time.Now(),
	}
}

// SetResponseCache attaches a byte cache for the read-heavy market
// endpoints. Without one every request recomputes its response.
func (h *Handler) SetResponseCache(c icache.BytesCache, ttl time.Duration) {
	h.responses = c
	if ttl > 0 {
		h.responseTTL = ttl
	}
	if h.candleTTL == 0 {
		h.candleTTL = h.responseTTL
	}
}

// SetCandleCacheTTL overrides retention for the bar endpoints, which
// only change when a new bar closes.
func (h *Handler) SetCandleCacheTTL(ttl time.Duration) {
	if ttl > 0 {
		h.candleTTL = ttl
	}
}

// SetHealthProbes attaches optional backends so /health can report on
// them. Any of the three may be nil.
func (h *Handler) SetHealthProbes(trades drepo.TradeStore, archive drepo.CandleStore, stream drepo.MarketStream) {
	h.trades = trades
	h.archive = archive
	h.stream = stream
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")

	g.GET("/health", h.Health)
	g.GET("/portfolio", h.Portfolio)
	g.GET("/positions", h.Positions)
	g.GET("/trades", h.Trades)

	g.GET("/market/tiers", h.Tiers)
	g.GET("/market/opportunities", h.Opportunities)
	g.GET("/market/:symbol", h.Analyze)
	g.GET("/market/:symbol/candles", h.Candles)

	g.POST("/strategies", h.StartStrategy)
	g.GET("/strategies", h.Strategies)
	g.GET("/strategies/:name", h.Strategy)
	g.POST("/strategies/:name/stop", h.StopStrategy)
	g.POST("/strategies/:name/pause", h.PauseStrategy)
	g.POST("/strategies/:name/resume", h.ResumeStrategy)
	g.DELETE("/strategies/:name", h.DeleteStrategy)

	g.POST("/backtests", h.SubmitBacktest)
	g.POST("/backtests/run", h.RunBacktest)
	g.GET("/backtests/:id", h.BacktestResult)
}

// serveCached writes the cached envelope for key if one exists. Cached
// entries hold the fully marshaled body so a hit skips both the usecase
// and the JSON encoder.
func (h *Handler) serveCached(c echo.Context, key string) (bool, error) {
	if h.responses == nil {
		return false, nil
	}
	if b, ok, err := h.responses.GetBytes(key); err == nil && ok {
		h.log.Debug("response cache hit", xlogger.String("key", key))
		return true, c.JSONBlob(http.StatusOK, b)
	}
	h.log.Debug("response cache miss", xlogger.String("key", key))
	return false, nil
}

// respondAndCache stores the marshaled success envelope under key and
// writes it. Cache trouble degrades to an uncached response.
func (h *Handler) respondAndCache(c echo.Context, key string, data interface{}) error {
	return h.respondAndCacheTTL(c, key, h.responseTTL, data)
}

func (h *Handler) respondAndCacheTTL(c echo.Context, key string, ttl time.Duration, data interface{}) error {
	if h.responses == nil {
		return xhttp.SuccessResponse(c, data)
	}
	body, err := json.Marshal(xhttp.APIResponse{Status: http.StatusOK, Message: "OK", Data: data})
	if err != nil {
		return xhttp.SuccessResponse(c, data)
	}
	if err := h.responses.SetBytes(key, body, ttl); err != nil {
		h.log.Warn("response cache store failed", xlogger.String("key", key), xlogger.Error(err))
	}
	return c.JSONBlob(http.StatusOK, body)
}

// apiError translates usecase errors into typed API errors so clients
// get the right status instead of a blanket 500.
func apiError(err error) error {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return err
	}
	switch {
	case errors.Is(err, models.ErrRunNotFound), errors.Is(err, models.ErrDataUnavailable), errors.Is(err, models.ErrNoSuchPosition):
		return xhttp.NotFoundError(err.Error())
	case errors.Is(err, models.ErrRunActive),
		errors.Is(err, models.ErrInsufficientCapital),
		errors.Is(err, models.ErrBelowMinNotional),
		errors.Is(err, models.ErrMaxPositionsReached):
		return xhttp.BadRequestError(err.Error())
	default:
		return err
	}
}
