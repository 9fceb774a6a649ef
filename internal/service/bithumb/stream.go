package bithumb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
	drepo "github.com/kiheon-jang/autoTrade-sub000/internal/domain/repository"
	"github.com/kiheon-jang/autoTrade-sub000/pkg/logger"
)

const defaultStreamURL = "wss://pubwss.bithumb.com/pub/ws"

var kst = time.FixedZone("KST", 9*60*60)

// Stream implements MarketStream over the Bithumb public WebSocket.
// It feeds ticker pushes into the market cache between REST polls.
type Stream struct {
	url            string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	symbols   []string // last subscription, replayed on reconnect
}

// StreamOption configures Stream.
type StreamOption func(*Stream)

// WithStreamURL overrides the WebSocket endpoint, mainly for tests.
func WithStreamURL(u string) StreamOption {
	return func(s *Stream) {
		if u != "" {
			s.url = u
		}
	}
}

// WithReconnectDelay sets the pause before Reconnect dials again.
func WithReconnectDelay(d time.Duration) StreamOption {
	return func(s *Stream) {
		if d > 0 {
			s.reconnectDelay = d
		}
	}
}

// WithPingInterval sets the keepalive ping cadence.
func WithPingInterval(d time.Duration) StreamOption {
	return func(s *Stream) {
		if d > 0 {
			s.pingInterval = d
		}
	}
}

// NewStream creates a Bithumb public ticker stream.
func NewStream(log *logger.Logger, opts ...StreamOption) drepo.MarketStream {
	s := &Stream{
		url:            defaultStreamURL,
		reconnectDelay: 3 * time.Second,
		pingInterval:   15 * time.Second,
		log:            log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect establishes the WebSocket connection.
func (s *Stream) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return models.Transient(fmt.Errorf("bithumb stream connect: %w", err))
	}
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	if s.log != nil {
		s.log.Info("bithumb stream connected", logger.String("url", s.url))
	}
	return nil
}

// Subscribe requests 24H ticker pushes for the given symbols.
func (s *Stream) Subscribe(ctx context.Context, symbols []string) error {
	s.mu.Lock()
	conn, ok := s.conn, s.connected
	s.mu.Unlock()
	if conn == nil || !ok {
		return fmt.Errorf("bithumb stream not connected")
	}

	pairs := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		pairs = append(pairs, pair(sym))
	}
	msg := map[string]interface{}{
		"type":      "ticker",
		"symbols":   pairs,
		"tickTypes": []string{"24H"},
	}
	if err := conn.WriteJSON(msg); err != nil {
		return models.Transient(fmt.Errorf("bithumb stream subscribe: %w", err))
	}

	s.mu.Lock()
	s.symbols = append([]string(nil), symbols...)
	s.mu.Unlock()
	if s.log != nil {
		s.log.Info("bithumb stream subscribed", logger.Int("symbols", len(symbols)))
	}
	return nil
}

// wsMessage covers both the ticker frames and the status frames the
// server sends on connect and subscribe.
type wsMessage struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Content struct {
		Symbol     string `json:"symbol"` // "BTC_KRW"
		OpenPrice  string `json:"openPrice"`
		ClosePrice string `json:"closePrice"`
		HighPrice  string `json:"highPrice"`
		LowPrice   string `json:"lowPrice"`
		Value      string `json:"value"`
		Volume     string `json:"volume"`
		ChgRate    string `json:"chgRate"`
		Date       string `json:"date"` // yyyymmdd, KST
		Time       string `json:"time"` // HHMMSS, KST
	} `json:"content"`
}

// Read streams ticker updates and errors. Both channels close when
// the context ends or the connection drops; slow consumers lose
// updates rather than stalling the read loop.
func (s *Stream) Read(ctx context.Context) (<-chan *models.Ticker, <-chan error) {
	ticks := make(chan *models.Ticker, 1024)
	errs := make(chan error, 1)

	// keepalive
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				conn := s.conn
				s.mu.Unlock()
				if conn != nil {
					_ = conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	go func() {
		defer close(ticks)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if conn == nil {
				errs <- fmt.Errorf("bithumb stream: no connection")
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				errs <- models.Transient(fmt.Errorf("bithumb stream read: %w", err))
				return
			}
			var m wsMessage
			if err := json.Unmarshal(b, &m); err != nil {
				continue
			}
			if m.Type != "ticker" || m.Content.Symbol == "" {
				// status / resmsg frames
				continue
			}
			t := &models.Ticker{
				Symbol:     strings.TrimSuffix(m.Content.Symbol, "_"+quoteCurrency),
				Price:      pf(m.Content.ClosePrice),
				Open24h:    pf(m.Content.OpenPrice),
				High24h:    pf(m.Content.HighPrice),
				Low24h:     pf(m.Content.LowPrice),
				Volume24h:  pf(m.Content.Volume),
				Value24h:   pf(m.Content.Value),
				ChangeRate: pf(m.Content.ChgRate),
				Timestamp:  tickerTime(m.Content.Date, m.Content.Time),
			}
			select {
			case ticks <- t:
			default:
				// drop on backpressure
			}
		}
	}()

	return ticks, errs
}

// Reconnect closes the connection, waits, dials again and replays
// the last subscription.
func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.reconnectDelay):
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	symbols := append([]string(nil), s.symbols...)
	s.mu.Unlock()
	if len(symbols) == 0 {
		return nil
	}
	return s.Subscribe(ctx, symbols)
}

// Close closes the connection.
func (s *Stream) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.connected = false
	s.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// IsConnected reports connection status.
func (s *Stream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func tickerTime(date, clock string) time.Time {
	ts, err := time.ParseInLocation("20060102150405", date+clock, kst)
	if err != nil {
		return time.Now()
	}
	return ts
}
