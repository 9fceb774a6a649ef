package bithumb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
)

type subscribeMsg struct {
	Type      string   `json:"type"`
	Symbols   []string `json:"symbols"`
	TickTypes []string `json:"tickTypes"`
}

// wsServer records subscriptions and lets each test script the
// server side of the conversation.
type wsServer struct {
	srv *httptest.Server

	mu   sync.Mutex
	subs []subscribeMsg
}

func newWSServer(t *testing.T, script func(conn *websocket.Conn, sub subscribeMsg)) *wsServer {
	t.Helper()
	ws := &wsServer{}
	up := websocket.Upgrader{}
	ws.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub subscribeMsg
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		ws.mu.Lock()
		ws.subs = append(ws.subs, sub)
		ws.mu.Unlock()
		if script != nil {
			script(conn, sub)
		}
	}))
	t.Cleanup(ws.srv.Close)
	return ws
}

func (ws *wsServer) url() string {
	return "ws" + strings.TrimPrefix(ws.srv.URL, "http")
}

func (ws *wsServer) subscriptions() []subscribeMsg {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	out := make([]subscribeMsg, len(ws.subs))
	copy(out, ws.subs)
	return out
}

func TestStreamDeliversTickers(t *testing.T) {
	ws := newWSServer(t, func(conn *websocket.Conn, sub subscribeMsg) {
		conn.WriteJSON(map[string]string{"status": "0000", "resmsg": "Connected Successfully"})
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ticker","content":{
			"symbol":"BTC_KRW","tickType":"24H",
			"openPrice":"100000000","closePrice":"105000000",
			"highPrice":"107000000","lowPrice":"99000000",
			"value":"129000000000","volume":"1234.5","chgRate":"5.0",
			"date":"20250401","time":"090000"}}`))
		time.Sleep(200 * time.Millisecond)
	})

	s := NewStream(testLogger(t), WithStreamURL(ws.url()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Close()
	if !s.IsConnected() {
		t.Fatalf("expected connected")
	}
	if err := s.Subscribe(ctx, []string{"BTC"}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ticks, errs := s.Read(ctx)
	select {
	case tk := <-ticks:
		if tk.Symbol != "BTC" {
			t.Fatalf("expected bare symbol, got %q", tk.Symbol)
		}
		if !near(tk.Price, 105_000_000) || !near(tk.ChangeRate, 5.0) {
			t.Fatalf("unexpected ticker %+v", tk)
		}
		want := time.Date(2025, 4, 1, 9, 0, 0, 0, kst)
		if !tk.Timestamp.Equal(want) {
			t.Fatalf("expected KST timestamp %v, got %v", want, tk.Timestamp)
		}
	case err := <-errs:
		t.Fatalf("unexpected stream error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("no ticker delivered")
	}

	subs := ws.subscriptions()
	if len(subs) != 1 || subs[0].Type != "ticker" {
		t.Fatalf("unexpected subscriptions %+v", subs)
	}
	if len(subs[0].Symbols) != 1 || subs[0].Symbols[0] != "BTC_KRW" {
		t.Fatalf("expected KRW pair subscription, got %+v", subs[0].Symbols)
	}
}

func TestStreamSubscribeNeedsConnection(t *testing.T) {
	s := NewStream(testLogger(t))
	if err := s.Subscribe(context.Background(), []string{"BTC"}); err == nil {
		t.Fatalf("expected error before Connect")
	}
}

func TestStreamReconnectReplaysSubscription(t *testing.T) {
	ws := newWSServer(t, nil) // server closes right after the subscribe

	s := NewStream(testLogger(t),
		WithStreamURL(ws.url()),
		WithReconnectDelay(10*time.Millisecond),
	)
	ctx := context.Background()

	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Close()
	if err := s.Subscribe(ctx, []string{"BTC", "ETH"}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := s.Reconnect(ctx); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if subs := ws.subscriptions(); len(subs) >= 2 {
			got := subs[1].Symbols
			if len(got) != 2 || got[0] != "BTC_KRW" || got[1] != "ETH_KRW" {
				t.Fatalf("expected replayed subscription, got %+v", got)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("second subscription never arrived: %+v", ws.subscriptions())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStreamReadStopsOnDisconnect(t *testing.T) {
	ws := newWSServer(t, nil)

	s := NewStream(testLogger(t), WithStreamURL(ws.url()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := s.Subscribe(ctx, []string{"BTC"}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	_, errs := s.Read(ctx)

	select {
	case err, ok := <-errs:
		if ok && !models.IsTransient(err) {
			t.Fatalf("expected transient read error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("read loop did not surface disconnect")
	}
}
