package bithumb

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
	domsvc "github.com/kiheon-jang/autoTrade-sub000/internal/domain/service"
	"github.com/kiheon-jang/autoTrade-sub000/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func testClient(t *testing.T, srv *httptest.Server) domsvc.MarketGateway {
	t.Helper()
	return New("test-key", "test-secret", testLogger(t), WithBaseURL(srv.URL))
}

// signFor mirrors the Api-Sign construction so the test server can
// verify what the client sent.
func signFor(endpoint, form, nonce, secret string) string {
	payload := endpoint + "\x00" + form + "\x00" + nonce
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString([]byte(hex.EncodeToString(mac.Sum(nil))))
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestGetTickerParsesStringNumbers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/public/ticker/BTC_KRW" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"status":"0000","data":{
			"opening_price":"100000000","closing_price":"105000000",
			"min_price":"99000000","max_price":"107000000",
			"units_traded_24H":"1234.5","acc_trade_value_24H":"129000000000",
			"fluctate_rate_24H":"5.0","date":"1714000000000"}}`))
	}))
	defer srv.Close()

	tk, err := testClient(t, srv).GetTicker(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("GetTicker: %v", err)
	}
	if tk.Symbol != "BTC" || !near(tk.Price, 105_000_000) {
		t.Fatalf("unexpected ticker %+v", tk)
	}
	if !near(tk.Open24h, 100_000_000) || !near(tk.High24h, 107_000_000) || !near(tk.Low24h, 99_000_000) {
		t.Fatalf("unexpected ohl %+v", tk)
	}
	if !near(tk.Volume24h, 1234.5) || !near(tk.Value24h, 129_000_000_000) || !near(tk.ChangeRate, 5.0) {
		t.Fatalf("unexpected volume fields %+v", tk)
	}
	if !tk.Timestamp.Equal(time.UnixMilli(1714000000000)) {
		t.Fatalf("expected exchange timestamp, got %v", tk.Timestamp)
	}
}

func TestGetAllTickersSkipsDateEntry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/public/ticker/ALL_KRW" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"status":"0000","data":{
			"ETH":{"opening_price":"4900000","closing_price":"5000000","min_price":"4850000","max_price":"5100000","units_traded_24H":"800","acc_trade_value_24H":"4000000000","fluctate_rate_24H":"2.0"},
			"BTC":{"opening_price":"100000000","closing_price":"105000000","min_price":"99000000","max_price":"107000000","units_traded_24H":"10","acc_trade_value_24H":"1050000000","fluctate_rate_24H":"5.0"},
			"date":"1714000000000"}}`))
	}))
	defer srv.Close()

	all, err := testClient(t, srv).GetAllTickers(context.Background())
	if err != nil {
		t.Fatalf("GetAllTickers: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 tickers, got %d", len(all))
	}
	if all[0].Symbol != "BTC" || all[1].Symbol != "ETH" {
		t.Fatalf("expected sorted symbols, got %s %s", all[0].Symbol, all[1].Symbol)
	}
	if !all[0].Timestamp.Equal(time.UnixMilli(1714000000000)) {
		t.Fatalf("expected shared exchange timestamp, got %v", all[0].Timestamp)
	}
}

func TestGetOrderbookMapsLevels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"0000","data":{
			"timestamp":"1714000000000","order_currency":"BTC","payment_currency":"KRW",
			"bids":[{"price":"104000000","quantity":"0.1"},{"price":"103900000","quantity":"0.4"}],
			"asks":[{"price":"104100000","quantity":"0.2"}]}}`))
	}))
	defer srv.Close()

	ob, err := testClient(t, srv).GetOrderbook(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("GetOrderbook: %v", err)
	}
	if len(ob.Bids) != 2 || len(ob.Asks) != 1 {
		t.Fatalf("unexpected depth %d/%d", len(ob.Bids), len(ob.Asks))
	}
	if !near(ob.Bids[0].Price, 104_000_000) || !near(ob.Bids[0].Quantity, 0.1) {
		t.Fatalf("unexpected best bid %+v", ob.Bids[0])
	}
	if !ob.Timestamp.Equal(time.UnixMilli(1714000000000)) {
		t.Fatalf("expected book timestamp, got %v", ob.Timestamp)
	}
}

func TestGetCandlesMapsRowsOldestFirst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/public/candlestick/BTC_KRW/1m" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		// newest first on purpose; rows are [ms, open, close, high, low, volume]
		w.Write([]byte(`{"status":"0000","data":[
			[1714000060000,"101","102","103","100","5.5"],
			[1714000000000,"100","101","102","99","4.0"]]}`))
	}))
	defer srv.Close()

	gw := testClient(t, srv)
	bars, err := gw.GetCandles(context.Background(), "BTC", "1m", 0)
	if err != nil {
		t.Fatalf("GetCandles: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	first := bars[0]
	if !first.Timestamp.Equal(time.UnixMilli(1714000000000)) {
		t.Fatalf("expected oldest first, got %v", first.Timestamp)
	}
	if !near(first.Open, 100) || !near(first.Close, 101) || !near(first.High, 102) || !near(first.Low, 99) || !near(first.Volume, 4.0) {
		t.Fatalf("row mapped wrong: %+v", first)
	}

	tail, err := gw.GetCandles(context.Background(), "BTC", "1m", 1)
	if err != nil {
		t.Fatalf("GetCandles tail: %v", err)
	}
	if len(tail) != 1 || !tail[0].Timestamp.Equal(time.UnixMilli(1714000060000)) {
		t.Fatalf("expected only the latest bar, got %+v", tail)
	}
}

func TestPlaceOrderSignsAndAggregatesContracts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		nonce := r.Header.Get("Api-Nonce")
		want := signFor(r.URL.Path, r.PostForm.Encode(), nonce, "test-secret")
		if got := r.Header.Get("Api-Sign"); got != want {
			t.Errorf("bad signature for %s", r.URL.Path)
		}
		if got := r.Header.Get("Api-Key"); got != "test-key" {
			t.Errorf("bad api key %q", got)
		}

		switch r.URL.Path {
		case "/trade/market_buy":
			if r.PostForm.Get("endpoint") != "/trade/market_buy" {
				t.Errorf("endpoint param %q", r.PostForm.Get("endpoint"))
			}
			if r.PostForm.Get("units") != "0.5" || r.PostForm.Get("order_currency") != "BTC" || r.PostForm.Get("payment_currency") != "KRW" {
				t.Errorf("unexpected order form %v", r.PostForm)
			}
			w.Write([]byte(`{"status":"0000","order_id":"oid-77"}`))
		case "/info/order_detail":
			if r.PostForm.Get("order_id") != "oid-77" {
				t.Errorf("unexpected detail form %v", r.PostForm)
			}
			w.Write([]byte(`{"status":"0000","data":{"order_status":"Completed","contract":[
				{"transaction_date":"1714000000123456","price":"50000000","units":"0.3","fee":"22500"},
				{"transaction_date":"1714000000234567","price":"50100000","units":"0.2","fee":"15030"}]}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	res, err := testClient(t, srv).PlaceOrder(context.Background(), models.OrderRequest{
		Symbol: "BTC",
		Side:   models.SignalBuy,
		Price:  50_000_000,
		Amount: 0.5,
		Mode:   models.ModeLive,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if res.OrderID != "oid-77" || res.Side != models.SignalBuy {
		t.Fatalf("unexpected result %+v", res)
	}
	if !near(res.Amount, 0.5) {
		t.Fatalf("expected full fill, got %v", res.Amount)
	}
	if !near(res.Price, 50_040_000) {
		t.Fatalf("expected volume-weighted price 50040000, got %v", res.Price)
	}
	if !near(res.Commission, 37_530) {
		t.Fatalf("expected summed fees 37530, got %v", res.Commission)
	}
	if !res.ExecutedAt.Equal(time.UnixMicro(1714000000234567)) {
		t.Fatalf("expected last contract time, got %v", res.ExecutedAt)
	}
}

func TestPlaceOrderKeepsRequestedValuesWithoutDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/trade/market_sell":
			w.Write([]byte(`{"status":"0000","order_id":"oid-9"}`))
		case "/info/order_detail":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	res, err := testClient(t, srv).PlaceOrder(context.Background(), models.OrderRequest{
		Symbol: "ETH",
		Side:   models.SignalSell,
		Price:  5_000_000,
		Amount: 2,
		Mode:   models.ModeLive,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if !near(res.Price, 5_000_000) || !near(res.Amount, 2) || res.Commission != 0 {
		t.Fatalf("expected requested values to stand in, got %+v", res)
	}
}

func TestCancelOrderNeedsTrackedOrder(t *testing.T) {
	var cancelForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		switch r.URL.Path {
		case "/trade/market_buy":
			w.Write([]byte(`{"status":"0000","order_id":"oid-1"}`))
		case "/info/order_detail":
			w.Write([]byte(`{"status":"0000","data":{"contract":[]}}`))
		case "/trade/cancel":
			cancelForm = map[string]string{
				"type":           r.PostForm.Get("type"),
				"order_id":       r.PostForm.Get("order_id"),
				"order_currency": r.PostForm.Get("order_currency"),
			}
			w.Write([]byte(`{"status":"0000"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	gw := testClient(t, srv)
	ctx := context.Background()

	if err := gw.CancelOrder(ctx, "oid-1"); err == nil {
		t.Fatalf("expected error for untracked order")
	}

	if _, err := gw.PlaceOrder(ctx, models.OrderRequest{Symbol: "BTC", Side: models.SignalBuy, Price: 1, Amount: 1}); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if err := gw.CancelOrder(ctx, "oid-1"); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if cancelForm["type"] != "bid" || cancelForm["order_id"] != "oid-1" || cancelForm["order_currency"] != "BTC" {
		t.Fatalf("unexpected cancel form %v", cancelForm)
	}
	if err := gw.CancelOrder(ctx, "oid-1"); err == nil {
		t.Fatalf("expected error after order forgotten")
	}
}

func TestGetBalancesKeepsNonZeroHoldings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.URL.Path != "/info/balance" || r.PostForm.Get("currency") != "ALL" {
			t.Errorf("unexpected request %s %v", r.URL.Path, r.PostForm)
		}
		w.Write([]byte(`{"status":"0000","data":{
			"available_krw":"1000000","in_use_krw":"50000","total_krw":"1050000",
			"available_btc":"0.5","in_use_btc":"0","total_btc":"0.5",
			"available_xrp":"0","in_use_xrp":"0","total_xrp":"0"}}`))
	}))
	defer srv.Close()

	bals, err := testClient(t, srv).GetBalances(context.Background())
	if err != nil {
		t.Fatalf("GetBalances: %v", err)
	}
	if len(bals) != 2 {
		t.Fatalf("expected zero rows dropped, got %+v", bals)
	}
	if bals[0].Currency != "BTC" || !near(bals[0].Available, 0.5) {
		t.Fatalf("unexpected first row %+v", bals[0])
	}
	if bals[1].Currency != "KRW" || !near(bals[1].Available, 1_000_000) || !near(bals[1].InUse, 50_000) {
		t.Fatalf("unexpected KRW row %+v", bals[1])
	}
}

func TestErrorClassification(t *testing.T) {
	t.Run("invalid api key is authentication", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"5300","message":"Invalid Apikey"}`))
		}))
		defer srv.Close()
		_, err := testClient(t, srv).GetBalances(context.Background())
		if !errors.Is(err, models.ErrAuthentication) {
			t.Fatalf("expected authentication error, got %v", err)
		}
	})

	t.Run("http 401 is authentication", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()
		_, err := testClient(t, srv).GetBalances(context.Background())
		if !errors.Is(err, models.ErrAuthentication) {
			t.Fatalf("expected authentication error, got %v", err)
		}
	})

	t.Run("server failure is transient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()
		_, err := testClient(t, srv).GetTicker(context.Background(), "BTC")
		if !models.IsTransient(err) {
			t.Fatalf("expected transient error, got %v", err)
		}
	})

	t.Run("api status failure is transient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"5400","message":"Database Fail"}`))
		}))
		defer srv.Close()
		_, err := testClient(t, srv).GetTicker(context.Background(), "BTC")
		if !models.IsTransient(err) {
			t.Fatalf("expected transient error, got %v", err)
		}
		if !strings.Contains(err.Error(), "5400") {
			t.Fatalf("expected status code in error, got %v", err)
		}
	})
}
