package bithumb

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
	drepo "github.com/kiheon-jang/autoTrade-sub000/internal/domain/repository"
	domsvc "github.com/kiheon-jang/autoTrade-sub000/internal/domain/service"
	"github.com/kiheon-jang/autoTrade-sub000/internal/service/metrics"
	"github.com/kiheon-jang/autoTrade-sub000/internal/service/ratelimit"
	pkghttp "github.com/kiheon-jang/autoTrade-sub000/pkg/http"
	"github.com/kiheon-jang/autoTrade-sub000/pkg/logger"
	"github.com/kiheon-jang/autoTrade-sub000/pkg/util"
)

const (
	defaultRESTURL = "https://api.bithumb.com"
	quoteCurrency  = "KRW"
	statusOK       = "0000"
)

// Client implements the exchange gateway against the Bithumb REST API.
// Public endpoints are plain GETs; private endpoints are form-encoded
// POSTs signed with HMAC-SHA512 (Api-Key / Api-Sign / Api-Nonce).
type Client struct {
	baseURL string
	apiKey  string
	secret  string
	timeout time.Duration

	http    *pkghttp.Client
	limiter *ratelimit.Limiter
	log     *logger.Logger

	publicBudget  float64 // requests per second
	privateBudget float64

	mu     sync.Mutex
	orders map[string]placedOrder
}

// placedOrder keeps what /trade/cancel needs beyond the order ID.
type placedOrder struct {
	symbol string
	side   string // "bid" or "ask"
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the REST endpoint, mainly for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateBudgets sets the public and private requests-per-second caps.
func WithRateBudgets(publicPerSec, privatePerSec float64) Option {
	return func(c *Client) {
		if publicPerSec > 0 {
			c.publicBudget = publicPerSec
		}
		if privatePerSec > 0 {
			c.privateBudget = privatePerSec
		}
	}
}

// New creates a Bithumb-backed market gateway. The key pair is only
// needed for private endpoints; public market data works without it.
func New(apiKey, secret string, log *logger.Logger, opts ...Option) domsvc.MarketGateway {
	c := &Client{
		baseURL:       defaultRESTURL,
		apiKey:        apiKey,
		secret:        secret,
		timeout:       10 * time.Second,
		limiter:       ratelimit.New(),
		log:           log,
		publicBudget:  20,
		privateBudget: 8,
		orders:        make(map[string]placedOrder),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http = pkghttp.NewClient(pkghttp.WithTimeout(c.timeout))
	metrics.Register()
	return c
}

// apiEnvelope is the common Bithumb response wrapper. Trade endpoints
// put order_id next to status instead of under data.
type apiEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	OrderID string          `json:"order_id"`
}

// apiError maps a Bithumb status code onto the engine's error
// taxonomy: 5200 (not a member) and 5300 (invalid API key) mean the
// credentials are bad, everything else is worth one retry.
func apiError(name, status, message string) error {
	switch status {
	case "5200", "5300":
		return fmt.Errorf("bithumb %s: status %s %s: %w", name, status, message, models.ErrAuthentication)
	default:
		return models.Transient(fmt.Errorf("bithumb %s: status %s %s", name, status, message))
	}
}

func observe(name string, start time.Time, err error) {
	metrics.ExchangeLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ExchangeErrors.WithLabelValues(name).Inc()
	}
}

// wait blocks until the named token bucket admits one request.
func (c *Client) wait(ctx context.Context, class string, perSec float64) error {
	for !c.limiter.Allow(class, perSec, perSec) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}
	return nil
}

func (c *Client) public(ctx context.Context, name, path string, dest interface{}) (err error) {
	if err = c.wait(ctx, "public", c.publicBudget); err != nil {
		return err
	}
	start := time.Now()
	defer func() { observe(name, start, err) }()

	var env apiEnvelope
	if err = c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodGet,
		URL:    c.baseURL + path,
	}, &env); err != nil {
		return models.Transient(fmt.Errorf("bithumb %s: %w", name, err))
	}
	if env.Status != statusOK {
		return apiError(name, env.Status, env.Message)
	}
	if dest != nil && len(env.Data) > 0 {
		if err = json.Unmarshal(env.Data, dest); err != nil {
			return fmt.Errorf("bithumb %s: decode data: %w", name, err)
		}
	}
	return nil
}

func (c *Client) private(ctx context.Context, name, endpoint string, params map[string]string, dest interface{}) (env *apiEnvelope, err error) {
	if err = c.wait(ctx, "private", c.privateBudget); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { observe(name, start, err) }()

	form := url.Values{}
	form.Set("endpoint", endpoint)
	for k, v := range params {
		form.Set(k, v)
	}
	encoded := form.Encode()
	nonce := strconv.FormatInt(time.Now().UnixMilli(), 10)

	resp, err := c.http.SendRequest(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodPost,
		URL:    c.baseURL + endpoint,
		Headers: map[string]string{
			"Api-Key":      c.apiKey,
			"Api-Sign":     c.sign(endpoint, encoded, nonce),
			"Api-Nonce":    nonce,
			"Content-Type": "application/x-www-form-urlencoded",
		},
		Body: encoded,
	})
	if err != nil {
		return nil, models.Transient(fmt.Errorf("bithumb %s: %w", name, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("bithumb %s: http %d: %w", name, resp.StatusCode, models.ErrAuthentication)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, models.Transient(fmt.Errorf("bithumb %s: http %d", name, resp.StatusCode))
	}

	var body apiEnvelope
	if err = json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, models.Transient(fmt.Errorf("bithumb %s: decode: %w", name, err))
	}
	if body.Status != statusOK {
		return nil, apiError(name, body.Status, body.Message)
	}
	if dest != nil && len(body.Data) > 0 {
		if err = json.Unmarshal(body.Data, dest); err != nil {
			return nil, fmt.Errorf("bithumb %s: decode data: %w", name, err)
		}
	}
	return &body, nil
}

// sign builds the Api-Sign header: HMAC-SHA512 over
// endpoint NUL form NUL nonce, hex digest, then base64.
func (c *Client) sign(endpoint, encodedForm, nonce string) string {
	payload := endpoint + "\x00" + encodedForm + "\x00" + nonce
	mac := hmac.New(sha512.New, []byte(c.secret))
	mac.Write([]byte(payload))
	digest := hex.EncodeToString(mac.Sum(nil))
	return base64.StdEncoding.EncodeToString([]byte(digest))
}

func pair(symbol string) string { return symbol + "_" + quoteCurrency }

// tickerPayload is one /public/ticker entry. Bithumb serves every
// number as a string.
type tickerPayload struct {
	OpeningPrice string `json:"opening_price"`
	ClosingPrice string `json:"closing_price"`
	MinPrice     string `json:"min_price"`
	MaxPrice     string `json:"max_price"`
	UnitsTraded  string `json:"units_traded_24H"`
	AccValue     string `json:"acc_trade_value_24H"`
	FluctateRate string `json:"fluctate_rate_24H"`
	Date         string `json:"date"`
}

func tickerFrom(symbol string, p tickerPayload, at time.Time) models.Ticker {
	return models.Ticker{
		Symbol:     symbol,
		Price:      pf(p.ClosingPrice),
		Open24h:    pf(p.OpeningPrice),
		High24h:    pf(p.MaxPrice),
		Low24h:     pf(p.MinPrice),
		Volume24h:  pf(p.UnitsTraded),
		Value24h:   pf(p.AccValue),
		ChangeRate: pf(p.FluctateRate),
		Timestamp:  at,
	}
}

func (c *Client) GetTicker(ctx context.Context, symbol string) (*models.Ticker, error) {
	var raw tickerPayload
	if err := c.public(ctx, "ticker", "/public/ticker/"+pair(symbol), &raw); err != nil {
		return nil, err
	}
	at := time.Now()
	if ms, err := strconv.ParseInt(raw.Date, 10, 64); err == nil {
		at = util.FromMillis(ms)
	}
	t := tickerFrom(symbol, raw, at)
	return &t, nil
}

// GetAllTickers returns every KRW market, sorted by symbol. The ALL
// payload mixes per-symbol objects with a top-level "date" string.
func (c *Client) GetAllTickers(ctx context.Context) ([]models.Ticker, error) {
	var raw map[string]json.RawMessage
	if err := c.public(ctx, "ticker_all", "/public/ticker/ALL_"+quoteCurrency, &raw); err != nil {
		return nil, err
	}
	at := time.Now()
	if msg, ok := raw["date"]; ok {
		var s string
		if json.Unmarshal(msg, &s) == nil {
			if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
				at = util.FromMillis(ms)
			}
		}
	}
	out := make([]models.Ticker, 0, len(raw))
	for sym, msg := range raw {
		if sym == "date" {
			continue
		}
		var p tickerPayload
		if err := json.Unmarshal(msg, &p); err != nil {
			continue
		}
		if p.ClosingPrice == "" {
			continue
		}
		out = append(out, tickerFrom(sym, p, at))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

type orderbookPayload struct {
	Timestamp string      `json:"timestamp"`
	Bids      []bookLevel `json:"bids"`
	Asks      []bookLevel `json:"asks"`
}

type bookLevel struct {
	Quantity string `json:"quantity"`
	Price    string `json:"price"`
}

func (c *Client) GetOrderbook(ctx context.Context, symbol string) (*models.Orderbook, error) {
	var raw orderbookPayload
	if err := c.public(ctx, "orderbook", "/public/orderbook/"+pair(symbol), &raw); err != nil {
		return nil, err
	}
	ob := &models.Orderbook{Symbol: symbol, Timestamp: time.Now()}
	if ms, err := strconv.ParseInt(raw.Timestamp, 10, 64); err == nil {
		ob.Timestamp = util.FromMillis(ms)
	}
	for _, b := range raw.Bids {
		ob.Bids = append(ob.Bids, models.OrderbookLevel{Price: pf(b.Price), Quantity: pf(b.Quantity)})
	}
	for _, a := range raw.Asks {
		ob.Asks = append(ob.Asks, models.OrderbookLevel{Price: pf(a.Price), Quantity: pf(a.Quantity)})
	}
	return ob, nil
}

// GetCandles returns up to n bars oldest first. Candlestick rows are
// [ms, open, close, high, low, volume] with prices as strings.
func (c *Client) GetCandles(ctx context.Context, symbol, timeframe string, n int) ([]models.Candle, error) {
	tf := drepo.NormalizeTimeframe(timeframe)
	var rows [][]interface{}
	if err := c.public(ctx, "candlestick", "/public/candlestick/"+pair(symbol)+"/"+string(tf), &rows); err != nil {
		return nil, err
	}
	out := make([]models.Candle, 0, len(rows))
	for _, r := range rows {
		if len(r) < 6 {
			continue
		}
		out = append(out, models.Candle{
			Symbol:    symbol,
			Timestamp: util.FromMillis(int64(cellF(r[0]))),
			Open:      cellF(r[1]),
			Close:     cellF(r[2]),
			High:      cellF(r[3]),
			Low:       cellF(r[4]),
			Volume:    cellF(r[5]),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

// PlaceOrder submits a market order and resolves the executed price
// and fee from the contract list. Market orders settle immediately,
// so one detail lookup normally suffices; if it fails the requested
// values stand in and the ledger books its own fee model.
func (c *Client) PlaceOrder(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	endpoint, side := "/trade/market_buy", "bid"
	if req.Side == models.SignalSell {
		endpoint, side = "/trade/market_sell", "ask"
	}
	env, err := c.private(ctx, "market_order", endpoint, map[string]string{
		"units":            strconv.FormatFloat(req.Amount, 'f', -1, 64),
		"order_currency":   req.Symbol,
		"payment_currency": quoteCurrency,
	}, nil)
	if err != nil {
		return nil, err
	}
	if env.OrderID == "" {
		return nil, models.Transient(fmt.Errorf("bithumb market_order: missing order_id"))
	}

	c.mu.Lock()
	c.orders[env.OrderID] = placedOrder{symbol: req.Symbol, side: side}
	c.mu.Unlock()

	res := &models.OrderResult{
		OrderID:    env.OrderID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Price:      req.Price,
		Amount:     req.Amount,
		ExecutedAt: time.Now(),
	}
	fill, err := c.orderDetail(ctx, env.OrderID, req.Symbol)
	if err != nil {
		if c.log != nil {
			c.log.Warn("order detail unavailable, keeping requested values",
				logger.String("order_id", env.OrderID),
				logger.String("symbol", req.Symbol),
				logger.Error(err),
			)
		}
		return res, nil
	}
	if fill.Amount > 0 {
		res.Price = fill.Price
		res.Amount = fill.Amount
		res.Commission = fill.Commission
		res.ExecutedAt = fill.ExecutedAt
	}
	return res, nil
}

type orderDetailPayload struct {
	OrderStatus string `json:"order_status"`
	Contracts   []struct {
		TransactionDate string `json:"transaction_date"` // unix microseconds
		Price           string `json:"price"`
		Units           string `json:"units"`
		Fee             string `json:"fee"`
	} `json:"contract"`
}

type orderFill struct {
	Price      float64 // volume-weighted
	Amount     float64
	Commission float64
	ExecutedAt time.Time
}

func (c *Client) orderDetail(ctx context.Context, orderID, symbol string) (*orderFill, error) {
	var raw orderDetailPayload
	if _, err := c.private(ctx, "order_detail", "/info/order_detail", map[string]string{
		"order_id":         orderID,
		"order_currency":   symbol,
		"payment_currency": quoteCurrency,
	}, &raw); err != nil {
		return nil, err
	}
	var fill orderFill
	var notional float64
	for _, ct := range raw.Contracts {
		units := pf(ct.Units)
		fill.Amount += units
		notional += units * pf(ct.Price)
		fill.Commission += pf(ct.Fee)
		if us, err := strconv.ParseInt(ct.TransactionDate, 10, 64); err == nil {
			if ts := time.UnixMicro(us); ts.After(fill.ExecutedAt) {
				fill.ExecutedAt = ts
			}
		}
	}
	if fill.Amount > 0 {
		fill.Price = notional / fill.Amount
	}
	if fill.ExecutedAt.IsZero() {
		fill.ExecutedAt = time.Now()
	}
	return &fill, nil
}

// CancelOrder cancels an order placed through this client. Bithumb's
// cancel endpoint needs the order side and currency, so only orders
// tracked by this session can be cancelled.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	c.mu.Lock()
	po, ok := c.orders[orderID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("cancel %s: order not tracked by this session", orderID)
	}
	if _, err := c.private(ctx, "cancel", "/trade/cancel", map[string]string{
		"type":             po.side,
		"order_id":         orderID,
		"order_currency":   po.symbol,
		"payment_currency": quoteCurrency,
	}, nil); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.orders, orderID)
	c.mu.Unlock()
	return nil
}

// GetBalances returns non-zero holdings. The ALL payload is a flat
// map of available_<cur> / in_use_<cur> / total_<cur> entries.
func (c *Client) GetBalances(ctx context.Context) ([]models.Balance, error) {
	var raw map[string]interface{}
	if _, err := c.private(ctx, "balance", "/info/balance", map[string]string{
		"currency": "ALL",
	}, &raw); err != nil {
		return nil, err
	}
	out := make([]models.Balance, 0, 8)
	for key, v := range raw {
		if !strings.HasPrefix(key, "available_") {
			continue
		}
		cur := strings.TrimPrefix(key, "available_")
		available := cellF(v)
		inUse := cellF(raw["in_use_"+cur])
		if available == 0 && inUse == 0 {
			continue
		}
		out = append(out, models.Balance{
			Currency:  strings.ToUpper(cur),
			Available: available,
			InUse:     inUse,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

// pf parses Bithumb's numeric strings, 0 for blanks.
func pf(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// cellF coerces a JSON cell that may arrive as a string or a number.
func cellF(v interface{}) float64 {
	switch x := v.(type) {
	case string:
		return pf(x)
	case float64:
		return x
	case json.Number:
		f, _ := x.Float64()
		return f
	default:
		return 0
	}
}
